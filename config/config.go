// Package config loads and persists the single JSON configuration document
// shared by the agent, the browser profiles and the scheduler. The file lives
// at ~/.chauffeur/config.json by default and is rewritten atomically
// (write-temp-then-rename) on every save.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults applied when the config file omits a value.
const (
	DefaultTimeoutSeconds    = 300
	DefaultMaxIterations     = 50
	DefaultMainMaxTokens     = 8192
	DefaultSubMaxTokens      = 4096
	DefaultBrowserPort       = 9222
	MaxIterationsHardCeiling = 500
)

type (
	// Config is the on-disk document. Profiles map one-to-one with Chromium
	// user-data-dir directories under <dir>/profiles/<name>.
	Config struct {
		// Default names the profile used when none is specified. Nil when no
		// profile has been marked default.
		Default *string `json:"default"`
		// Profiles maps profile names to their settings. Ports are unique.
		Profiles map[string]*Profile `json:"profiles"`
		// Agent carries the agent-level settings.
		Agent Agent `json:"agent"`

		// dir is the directory holding config.json, profiles/, sessions/ and
		// jobs.json. Not serialized.
		dir string
	}

	// Profile is a named Chromium user-data-dir with a dedicated CDP port.
	Profile struct {
		// Port is the remote-debugging port Chromium listens on.
		Port int `json:"port"`
		// DownloadDir optionally overrides the browser download directory.
		DownloadDir string `json:"download_dir,omitempty"`
	}

	// Agent holds the agent-level configuration.
	Agent struct {
		// Provider is the LLM provider key (openai, anthropic, bedrock, ...).
		Provider string `json:"provider"`
		// Model is the provider-specific model identifier.
		Model string `json:"model"`
		// Workspace is the absolute path all tools are sandboxed to.
		Workspace string `json:"workspace"`
		// BrowserProfile names the profile the browser tool drives.
		BrowserProfile string `json:"browser_profile"`
		// ShellEnabled gates the shell tool.
		ShellEnabled bool `json:"shell_enabled"`
		// DecomposeEnabled gates task decomposition.
		DecomposeEnabled bool `json:"decompose_enabled"`
		// Timeout is the per-LLM-call timeout in seconds.
		Timeout int `json:"timeout"`
		// MaxIterations caps agent loop iterations (hard ceiling 500).
		MaxIterations int `json:"max_iterations,omitempty"`
		// MainMaxTokens caps completion tokens for the main agent.
		MainMaxTokens int `json:"main_max_tokens"`
		// SubagentMaxTokens caps completion tokens for sub-agents.
		SubagentMaxTokens int `json:"subagent_max_tokens"`
		// CDPURL optionally points the browser tool at an external browser.
		CDPURL string `json:"cdp_url,omitempty"`
		// Providers carries per-provider credential records.
		Providers map[string]ProviderConfig `json:"providers,omitempty"`
	}

	// ProviderConfig is an explicit per-provider credential record.
	ProviderConfig struct {
		APIKey     string `json:"api_key,omitempty"`
		BaseURL    string `json:"base_url,omitempty"`
		Region     string `json:"region,omitempty"`
		Deployment string `json:"deployment,omitempty"`
		Project    string `json:"project,omitempty"`
	}
)

// DefaultDir returns ~/.chauffeur, the default configuration directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: home directory: %w", err)
	}
	return filepath.Join(home, ".chauffeur"), nil
}

// Load reads the config document from dir/config.json. A missing file yields
// an empty config bound to dir so the first Save creates it.
func Load(dir string) (*Config, error) {
	if dir == "" {
		return nil, errors.New("config: directory is required")
	}
	cfg := &Config{Profiles: make(map[string]*Profile), dir: dir}
	data, err := os.ReadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if cfg.Profiles == nil {
		cfg.Profiles = make(map[string]*Profile)
	}
	cfg.dir = dir
	return cfg, nil
}

// Save writes the document atomically: marshal to a temp file in the same
// directory, then rename over config.json.
func (c *Config) Save() error {
	if c.dir == "" {
		return errors.New("config: not bound to a directory")
	}
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("config: create dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp, err := os.CreateTemp(c.dir, "config-*.json")
	if err != nil {
		return fmt.Errorf("config: temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("config: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(c.dir, "config.json")); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// Dir returns the directory this config is bound to.
func (c *Config) Dir() string { return c.dir }

// SessionsDir returns the directory persisted sessions live in.
func (c *Config) SessionsDir() string { return filepath.Join(c.dir, "sessions") }

// JobsPath returns the path of the cron job store.
func (c *Config) JobsPath() string { return filepath.Join(c.dir, "jobs.json") }

// ProfileDataDir returns the Chromium user-data-dir for the named profile.
func (c *Config) ProfileDataDir(name string) string {
	return filepath.Join(c.dir, "profiles", name)
}

// AddProfile registers a new profile. Names must be filesystem-safe
// (lowercase alphanumerics, '-', '_'); ports must be unique across profiles.
// The first profile added becomes the default.
func (c *Config) AddProfile(name string, port int) error {
	if !ValidProfileName(name) {
		return fmt.Errorf("config: invalid profile name %q (lowercase alphanumerics, '-', '_' only)", name)
	}
	if _, ok := c.Profiles[name]; ok {
		return fmt.Errorf("config: profile %q already exists", name)
	}
	for other, p := range c.Profiles {
		if p.Port == port {
			return fmt.Errorf("config: port %d already used by profile %q", port, other)
		}
	}
	c.Profiles[name] = &Profile{Port: port}
	if c.Default == nil {
		c.Default = &name
	}
	return nil
}

// ResolveProfile returns the named profile, falling back to the default when
// name is empty.
func (c *Config) ResolveProfile(name string) (string, *Profile, error) {
	if name == "" {
		if c.Default == nil {
			return "", nil, errors.New("config: no default profile configured")
		}
		name = *c.Default
	}
	p, ok := c.Profiles[name]
	if !ok {
		return "", nil, fmt.Errorf("config: unknown profile %q", name)
	}
	return name, p, nil
}

// FirstLaunch reports whether the named profile's Chromium data dir has never
// been initialized (its Default/ subdirectory does not exist).
func (c *Config) FirstLaunch(name string) bool {
	_, err := os.Stat(filepath.Join(c.ProfileDataDir(name), "Default"))
	return os.IsNotExist(err)
}

// ValidProfileName reports whether name contains only lowercase
// alphanumerics, '-' and '_'.
func ValidProfileName(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// EffectiveTimeout returns the per-call timeout with the default applied.
func (a Agent) EffectiveTimeout() int {
	if a.Timeout > 0 {
		return a.Timeout
	}
	return DefaultTimeoutSeconds
}

// EffectiveMaxIterations returns the loop cap clamped to the hard ceiling.
func (a Agent) EffectiveMaxIterations() int {
	n := a.MaxIterations
	if n <= 0 {
		n = DefaultMaxIterations
	}
	if n > MaxIterationsHardCeiling {
		n = MaxIterationsHardCeiling
	}
	return n
}
