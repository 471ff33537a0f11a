package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMarker is the sentinel text rendered by dashboard stub pages.
const DefaultMarker = "Tool implementation coming soon"

// Config holds all stubprobe configuration.
type Config struct {
	// BaseURL resolves relative page URLs from the registry. When empty the
	// registry file's own base_url is used.
	BaseURL string `yaml:"base_url"`

	// SuiteRoot is the test-suite directory that holds the spec files and
	// the two destination directories.
	SuiteRoot string `yaml:"suite_root"`

	// RegistryPath points at the module registry. Relative paths are
	// resolved against SuiteRoot.
	RegistryPath string `yaml:"registry_path"`

	// Marker is the sentinel text whose presence marks a stub page.
	Marker string `yaml:"marker"`

	Probe    ProbeConfig    `yaml:"probe"`
	Browser  BrowserConfig  `yaml:"browser"`
	Organize OrganizeConfig `yaml:"organize"`
	History  HistoryConfig  `yaml:"history"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		SuiteRoot:    "tests/e2e",
		RegistryPath: "modules.yaml",
		Marker:       DefaultMarker,
		Probe:        DefaultProbeConfig(),
		Browser:      DefaultBrowserConfig(),
		Organize:     DefaultOrganizeConfig(),
		History: HistoryConfig{
			Enabled: false,
			Path:    ".stubprobe/history.db",
			Keep:    50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults (with environment overrides applied).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("STUBPROBE_BASE_URL"); url != "" {
		c.BaseURL = url
	}
	if root := os.Getenv("STUBPROBE_SUITE_ROOT"); root != "" {
		c.SuiteRoot = root
	}
	if path := os.Getenv("STUBPROBE_REGISTRY"); path != "" {
		c.RegistryPath = path
	}
	if url := os.Getenv("STUBPROBE_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if bin := os.Getenv("STUBPROBE_CHROME_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if policy := os.Getenv("STUBPROBE_FAIL_POLICY"); policy != "" {
		c.Probe.FailPolicy = strings.ToLower(policy)
	}
}

// RegistryFile returns the registry path, resolved against SuiteRoot when relative.
func (c *Config) RegistryFile() string {
	if filepath.IsAbs(c.RegistryPath) {
		return c.RegistryPath
	}
	return filepath.Join(c.SuiteRoot, c.RegistryPath)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.SuiteRoot == "" {
		return fmt.Errorf("suite_root must be set")
	}
	if c.RegistryPath == "" {
		return fmt.Errorf("registry_path must be set")
	}
	if strings.TrimSpace(c.Marker) == "" {
		return fmt.Errorf("marker must not be empty")
	}
	if err := c.Probe.validate(); err != nil {
		return err
	}
	return c.Organize.validate()
}
