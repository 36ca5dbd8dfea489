package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Backend selects the compressor implementation
type Backend string

const (
	BackendShell  Backend = "shell"
	BackendTinify Backend = "tinify"
	BackendLocal  Backend = "local"
)

const (
	// DefaultAPIURL is the Tinify shrink endpoint
	DefaultAPIURL = "https://api.tinify.com/shrink"
	// DefaultTimeout bounds a single compressor call
	DefaultTimeout = 2 * time.Minute
	// DefaultQuality is the JPEG quality used by the local backend
	DefaultQuality = 82
)

// Config represents the complete imgshrink configuration
type Config struct {
	Options    OptionsConfig    `yaml:"options" toml:"options"`
	Compressor CompressorConfig `yaml:"compressor" toml:"compressor"`
}

// OptionsConfig holds the persistent defaults for run options
type OptionsConfig struct {
	UseChangeLog bool `yaml:"use_change_log" toml:"use_change_log"`
	Backup       bool `yaml:"backup" toml:"backup"`
	NoRegress    bool `yaml:"no_regress" toml:"no_regress"`
}

// CompressorConfig configures the compression backend
type CompressorConfig struct {
	Backend    Backend  `yaml:"backend" toml:"backend"`
	Command    string   `yaml:"command" toml:"command"`
	Args       []string `yaml:"args" toml:"args"`
	APIURL     string   `yaml:"api_url" toml:"api_url"`
	APIKeyFile string   `yaml:"api_key_file" toml:"api_key_file"`
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	Quality    int      `yaml:"quality" toml:"quality"`
}

// Duration is a time.Duration written as a Go duration string ("90s", "2m")
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for both YAML and TOML
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no config file exists
func Default() Config {
	cfg := Config{
		Options: OptionsConfig{
			UseChangeLog: true,
			NoRegress:    true,
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Load reads and parses the configuration file. Files ending in .toml are
// parsed as TOML, everything else as YAML.
func Load(path string) (*Config, error) {
	// Expand environment variables in path
	path = os.ExpandEnv(path)

	// Read file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Keys missing from the file keep their defaults
	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Expand environment variables in string fields
	cfg.expandEnv()

	// Apply defaults
	cfg.applyDefaults()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// expandEnv expands environment variables in all string fields
func (c *Config) expandEnv() {
	c.Compressor.Backend = Backend(os.ExpandEnv(string(c.Compressor.Backend)))
	c.Compressor.Command = os.ExpandEnv(c.Compressor.Command)
	c.Compressor.APIURL = os.ExpandEnv(c.Compressor.APIURL)
	c.Compressor.APIKeyFile = expandHome(os.ExpandEnv(c.Compressor.APIKeyFile))
	for i, arg := range c.Compressor.Args {
		c.Compressor.Args[i] = os.ExpandEnv(arg)
	}
}

// expandHome replaces a leading "~/" with the user's home directory
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

// applyDefaults fills in zero-value fields with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Compressor.Backend == "" {
		c.Compressor.Backend = BackendTinify
	}
	if c.Compressor.APIURL == "" {
		c.Compressor.APIURL = DefaultAPIURL
	}
	if c.Compressor.Timeout.Duration == 0 {
		c.Compressor.Timeout.Duration = DefaultTimeout
	}
	if c.Compressor.Quality == 0 {
		c.Compressor.Quality = DefaultQuality
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	return c.Compressor.Validate()
}

// Validate checks the compressor configuration for errors
func (c *CompressorConfig) Validate() error {
	switch c.Backend {
	case BackendShell:
		if c.Command == "" {
			return fmt.Errorf("compressor.command is required for the shell backend")
		}
		if !c.HasInput() {
			return fmt.Errorf("compressor.args must contain the {in} placeholder")
		}
	case BackendTinify:
		if !strings.HasPrefix(c.APIURL, "https://") && !strings.HasPrefix(c.APIURL, "http://") {
			return fmt.Errorf("compressor.api_url must be an http(s) URL: %s", c.APIURL)
		}
	case BackendLocal:
		// valid
	default:
		return fmt.Errorf("invalid compressor.backend: %s (must be shell, tinify, or local)", c.Backend)
	}

	if c.Timeout.Duration < 0 {
		return fmt.Errorf("compressor.timeout must not be negative")
	}
	if c.Quality < 1 || c.Quality > 100 {
		return fmt.Errorf("compressor.quality must be between 1 and 100, got %d", c.Quality)
	}

	return nil
}

// Placeholders substituted in shell backend arguments
const (
	PlaceholderIn  = "{in}"
	PlaceholderOut = "{out}"
)

// HasInput returns true if the shell arguments reference the input file
func (c *CompressorConfig) HasInput() bool {
	return c.argsContain(PlaceholderIn)
}

// HasOutput returns true if the shell arguments name a separate output file.
// Without it the command is expected to rewrite the input in place.
func (c *CompressorConfig) HasOutput() bool {
	return c.argsContain(PlaceholderOut)
}

func (c *CompressorConfig) argsContain(placeholder string) bool {
	for _, arg := range c.Args {
		if strings.Contains(arg, placeholder) {
			return true
		}
	}
	return false
}

// RunOptions returns the run options seeded from the config file
func (c *Config) RunOptions() RunOptions {
	return RunOptions{
		UseChangeLog: c.Options.UseChangeLog,
		Backup:       c.Options.Backup,
		NoRegress:    c.Options.NoRegress,
	}
}
