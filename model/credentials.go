package model

import (
	"os"
	"path/filepath"
)

// Provider keys understood by the router.
const (
	ProviderOpenAI         = "openai"
	ProviderAnthropic      = "anthropic"
	ProviderAnthropicOAuth = "anthropic-oauth"
	ProviderOpenRouter     = "openrouter"
	ProviderAzure          = "azure"
	ProviderBedrock        = "bedrock"
	ProviderVertex         = "vertex"
)

// Providers lists every provider key in display order.
var Providers = []string{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderAnthropicOAuth,
	ProviderOpenRouter,
	ProviderAzure,
	ProviderBedrock,
	ProviderVertex,
}

// envVars maps each provider to its primary environment variable. Vertex has
// none: Application Default Credentials carry no key.
var envVars = map[string]string{
	ProviderOpenAI:         "OPENAI_API_KEY",
	ProviderAnthropic:      "ANTHROPIC_API_KEY",
	ProviderAnthropicOAuth: "ANTHROPIC_OAUTH_TOKEN",
	ProviderOpenRouter:     "OPENROUTER_API_KEY",
	ProviderAzure:          "AZURE_OPENAI_API_KEY",
	ProviderBedrock:        "AWS_ACCESS_KEY_ID",
}

// CredentialStatus reports whether a provider has usable credentials, where
// they came from and a masked preview safe to display.
type CredentialStatus struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
	Source     string `json:"source"`
	Preview    string `json:"preview"`
}

// ResolveCredential resolves the API key for a provider: an explicit config
// value wins, then the primary environment variable, then the provider's
// auxiliary chain where one exists (the AWS SDK default chain for bedrock,
// gcloud Application Default Credentials for vertex, the Azure CLI profile
// for azure). Auxiliary chains are reported as available without a key
// preview; the cloud SDK performs the real resolution at call time.
func ResolveCredential(provider, configKey string) CredentialStatus {
	status := CredentialStatus{Provider: provider}
	if configKey != "" {
		status.Configured = true
		status.Source = "config"
		status.Preview = maskKey(configKey)
		return status
	}
	if env := envVars[provider]; env != "" {
		if value := os.Getenv(env); value != "" {
			status.Configured = true
			status.Source = "env:" + env
			status.Preview = maskKey(value)
			return status
		}
	}
	switch provider {
	case ProviderBedrock:
		// Shared config profiles and instance roles carry no key to preview.
		if os.Getenv("AWS_PROFILE") != "" || os.Getenv("AWS_ROLE_ARN") != "" {
			status.Configured = true
			status.Source = "aws-default-chain"
		}
	case ProviderVertex:
		// Application Default Credentials: an explicit credentials file wins,
		// then the file `gcloud auth application-default login` writes.
		if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") != "" {
			status.Configured = true
			status.Source = "env:GOOGLE_APPLICATION_CREDENTIALS"
		} else if fileExists(filepath.Join("gcloud", "application_default_credentials.json"), os.UserConfigDir) {
			status.Configured = true
			status.Source = "gcloud-adc"
		}
	case ProviderAzure:
		// An Azure CLI login leaves a profile the azure SDK can mint tokens
		// from.
		if fileExists(filepath.Join(".azure", "azureProfile.json"), os.UserHomeDir) {
			status.Configured = true
			status.Source = "azure-cli"
		}
	}
	return status
}

func fileExists(rel string, base func() (string, error)) bool {
	dir, err := base()
	if err != nil {
		return false
	}
	_, err = os.Stat(filepath.Join(dir, rel))
	return err == nil
}

// ResolveKey returns the effective API key for a provider using the same
// precedence as ResolveCredential.
func ResolveKey(provider, configKey string) string {
	if configKey != "" {
		return configKey
	}
	if env := envVars[provider]; env != "" {
		return os.Getenv(env)
	}
	return ""
}

// maskKey keeps the first and last four characters of a credential visible.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
