package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveCredentialConfigWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env-0000000000")
	status := ResolveCredential(ProviderOpenAI, "sk-cfg-1111111111")
	require.True(t, status.Configured)
	require.Equal(t, "config", status.Source)
	require.Equal(t, "sk-c...1111", status.Preview)
}

func TestResolveCredentialEnvFallback(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-abcdefgh")
	status := ResolveCredential(ProviderAnthropic, "")
	require.True(t, status.Configured)
	require.Equal(t, "env:ANTHROPIC_API_KEY", status.Source)
	require.Equal(t, "sk-a...efgh", status.Preview)
}

func TestResolveCredentialUnconfigured(t *testing.T) {
	t.Setenv("OPENROUTER_API_KEY", "")
	status := ResolveCredential(ProviderOpenRouter, "")
	require.False(t, status.Configured)
	require.Empty(t, status.Source)
}

func TestResolveCredentialAWSChain(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_PROFILE", "prod")
	status := ResolveCredential(ProviderBedrock, "")
	require.True(t, status.Configured)
	require.Equal(t, "aws-default-chain", status.Source)
	require.Empty(t, status.Preview)
}

func TestResolveCredentialOAuthToken(t *testing.T) {
	t.Setenv("ANTHROPIC_OAUTH_TOKEN", "sk-oat-abcdefgh")
	status := ResolveCredential(ProviderAnthropicOAuth, "")
	require.True(t, status.Configured)
	require.Equal(t, "env:ANTHROPIC_OAUTH_TOKEN", status.Source)
	require.Equal(t, "sk-o...efgh", status.Preview)
}

func TestResolveCredentialVertexCredentialsFile(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/etc/creds/sa.json")
	status := ResolveCredential(ProviderVertex, "")
	require.True(t, status.Configured)
	require.Equal(t, "env:GOOGLE_APPLICATION_CREDENTIALS", status.Source)
	require.Empty(t, status.Preview)
}

func TestResolveCredentialVertexADC(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("XDG_CONFIG_HOME", dir)
	status := ResolveCredential(ProviderVertex, "")
	require.False(t, status.Configured)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "gcloud"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "gcloud", "application_default_credentials.json"), []byte("{}"), 0o644))
	status = ResolveCredential(ProviderVertex, "")
	require.True(t, status.Configured)
	require.Equal(t, "gcloud-adc", status.Source)
}

func TestResolveCredentialAzureCLIProfile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("AZURE_OPENAI_API_KEY", "")
	t.Setenv("HOME", home)
	status := ResolveCredential(ProviderAzure, "")
	require.False(t, status.Configured)

	require.NoError(t, os.MkdirAll(filepath.Join(home, ".azure"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(home, ".azure", "azureProfile.json"), []byte("{}"), 0o644))
	status = ResolveCredential(ProviderAzure, "")
	require.True(t, status.Configured)
	require.Equal(t, "azure-cli", status.Source)
}

func TestMaskKeyShort(t *testing.T) {
	require.Equal(t, "****", maskKey("short"))
	require.Equal(t, "****", maskKey("12345678"))
}
