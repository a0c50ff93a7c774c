package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.Nil(t, cfg.Default)
	require.Empty(t, cfg.Profiles)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.AddProfile("work", 9222))
	cfg.Agent = Agent{
		Provider:         "anthropic",
		Model:            "claude-sonnet-4-20250514",
		Workspace:        "/tmp/ws",
		BrowserProfile:   "work",
		ShellEnabled:     true,
		DecomposeEnabled: true,
		Timeout:          120,
	}
	require.NoError(t, cfg.Save())

	loaded, err := Load(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded.Default)
	require.Equal(t, "work", *loaded.Default)
	require.Equal(t, 9222, loaded.Profiles["work"].Port)
	require.Equal(t, cfg.Agent, loaded.Agent)

	// No stray temp files left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "config.json", entries[0].Name())
}

func TestAddProfileValidation(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.AddProfile("main", 9222))

	require.Error(t, cfg.AddProfile("Main", 9223), "uppercase rejected")
	require.Error(t, cfg.AddProfile("with space", 9223))
	require.Error(t, cfg.AddProfile("main", 9224), "duplicate name")
	require.Error(t, cfg.AddProfile("other", 9222), "duplicate port")
	require.NoError(t, cfg.AddProfile("other_2", 9223))
}

func TestResolveProfile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cfg.AddProfile("main", 9222))

	name, p, err := cfg.ResolveProfile("")
	require.NoError(t, err)
	require.Equal(t, "main", name)
	require.Equal(t, 9222, p.Port)

	_, _, err = cfg.ResolveProfile("ghost")
	require.Error(t, err)
}

func TestFirstLaunch(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.NoError(t, cfg.AddProfile("main", 9222))

	require.True(t, cfg.FirstLaunch("main"))
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.ProfileDataDir("main"), "Default"), 0o755))
	require.False(t, cfg.FirstLaunch("main"))
}

func TestEffectiveMaxIterationsClamps(t *testing.T) {
	require.Equal(t, DefaultMaxIterations, Agent{}.EffectiveMaxIterations())
	require.Equal(t, 80, Agent{MaxIterations: 80}.EffectiveMaxIterations())
	require.Equal(t, MaxIterationsHardCeiling, Agent{MaxIterations: 9999}.EffectiveMaxIterations())
}
