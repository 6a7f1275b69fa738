// Package config handles loading and managing vaultsearch configuration.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort         int      `toml:"api_port"`         // HTTP server port (default: 8080)
	BindAddr        string   `toml:"bind_addr"`        // Listen address (default: 127.0.0.1)
	APIKey          string   `toml:"api_key"`          // API authentication key
	AllowInsecure   bool     `toml:"allow_insecure"`   // Permit a non-loopback bind without an API key
	CORSOrigins     []string `toml:"cors_origins"`     // Allowed CORS origins; empty disables CORS
	CORSCredentials bool     `toml:"cors_credentials"` // Allow credentialed CORS requests
	CORSMaxAge      int      `toml:"cors_max_age"`     // Preflight cache seconds
	RateLimitQPS    float64  `toml:"rate_limit_qps"`   // Per-client request rate
	RateLimitBurst  int      `toml:"rate_limit_burst"` // Per-client burst
}

// ValidateSecure refuses to expose an unauthenticated API beyond loopback.
func (s ServerConfig) ValidateSecure() error {
	if s.APIKey != "" || s.AllowInsecure {
		return nil
	}
	addr := s.BindAddr
	if addr == "" || addr == "localhost" {
		return nil
	}
	if ip := net.ParseIP(addr); ip != nil && ip.IsLoopback() {
		return nil
	}
	return fmt.Errorf("refusing to bind %s without an api_key; set [server] api_key or allow_insecure = true", addr)
}

// SearchConfig holds search view configuration.
type SearchConfig struct {
	PageSize      int    `toml:"page_size"`      // Mail results fetched per query
	PromptTimeout string `toml:"prompt_timeout"` // How long a confirmation waits for an answer
}

// AccountConfig describes the account the view runs for.
type AccountConfig struct {
	UserID string `toml:"user_id"`
	// Restricted accounts may not use search filters.
	Restricted bool `toml:"restricted"`
}

// EventsConfig configures the entity change event stream.
type EventsConfig struct {
	Origin     string `toml:"origin"`     // Event server base URL; empty disables the client
	Identifier string `toml:"identifier"` // Client identifier sent with the stream request
	Buffer     int    `toml:"buffer"`     // Per-subscriber queue length
}

// IndexConfig configures search index maintenance.
type IndexConfig struct {
	BackfillSchedule string `toml:"backfill_schedule"`  // Cron expression; empty disables backfill
	BackfillStepDays int    `toml:"backfill_step_days"` // Days added to coverage per run
}

// DataConfig holds data storage configuration.
type DataConfig struct {
	DataDir     string `toml:"data_dir"`
	DatabaseURL string `toml:"database_url"`
}

// Config represents the vaultsearch configuration.
type Config struct {
	Data    DataConfig    `toml:"data"`
	Server  ServerConfig  `toml:"server"`
	Search  SearchConfig  `toml:"search"`
	Account AccountConfig `toml:"account"`
	Events  EventsConfig  `toml:"events"`
	Index   IndexConfig   `toml:"index"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DefaultHome returns the default vaultsearch home directory.
// Respects the VAULTSEARCH_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("VAULTSEARCH_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vaultsearch"
	}
	return filepath.Join(home, ".vaultsearch")
}

// NewDefaultConfig returns a configuration with default values rooted at homeDir.
func NewDefaultConfig(homeDir string) *Config {
	return &Config{
		HomeDir:    homeDir,
		ConfigPath: filepath.Join(homeDir, "config.toml"),
		Data: DataConfig{
			DataDir: homeDir,
		},
		Server: ServerConfig{
			APIPort:        8080,
			RateLimitQPS:   10,
			RateLimitBurst: 20,
		},
		Search: SearchConfig{
			PageSize:      100,
			PromptTimeout: "2m",
		},
		Events: EventsConfig{
			Buffer: 64,
		},
		Index: IndexConfig{
			BackfillStepDays: 30,
		},
	}
}

// Load reads the configuration. An empty path reads config.toml in the home
// directory, which is homeDir when set and DefaultHome otherwise; a missing
// file there yields the defaults. An explicit path must exist, and its
// directory becomes the home directory unless homeDir is set.
func Load(path, homeDir string) (*Config, error) {
	explicit := path != ""
	switch {
	case homeDir != "":
		homeDir = expandPath(homeDir)
	case explicit:
		homeDir = filepath.Dir(expandPath(path))
	default:
		homeDir = DefaultHome()
	}
	if !explicit {
		path = filepath.Join(homeDir, "config.toml")
	}
	path = expandPath(path)

	cfg := NewDefaultConfig(homeDir)
	cfg.ConfigPath = path

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("config file: %w", err)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, decodeError(err)
	}

	cfg.Data.DataDir = resolvePath(cfg.Data.DataDir, homeDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decodeError adds a hint for the most common mistake: Windows paths in
// double-quoted strings, where backslashes start escape sequences.
func decodeError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "escape") || strings.Contains(msg, "hexadecimal digits") {
		return fmt.Errorf("decode config: %w (hint: use forward slashes or single quotes for paths containing backslashes)", err)
	}
	return fmt.Errorf("decode config: %w", err)
}

// Validate checks values the defaults cannot repair.
func (c *Config) Validate() error {
	if c.Search.PageSize < 0 {
		return fmt.Errorf("search.page_size must not be negative, got %d", c.Search.PageSize)
	}
	if _, err := c.PromptTimeout(); err != nil {
		return err
	}
	if c.Index.BackfillStepDays < 0 {
		return fmt.Errorf("index.backfill_step_days must not be negative, got %d", c.Index.BackfillStepDays)
	}
	return nil
}

// PromptTimeout returns the parsed search.prompt_timeout, zero when unset.
func (c *Config) PromptTimeout() (time.Duration, error) {
	if c.Search.PromptTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Search.PromptTimeout)
	if err != nil {
		return 0, fmt.Errorf("search.prompt_timeout: %w", err)
	}
	return d, nil
}

// DatabasePath returns the path to the SQLite database.
func (c *Config) DatabasePath() string {
	if c.Data.DatabaseURL != "" {
		return c.Data.DatabaseURL
	}
	return filepath.Join(c.Data.DataDir, "vaultsearch.db")
}

// EnsureHomeDir creates the home and data directories if they don't exist.
func (c *Config) EnsureHomeDir() error {
	for _, dir := range []string{c.HomeDir, c.Data.DataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// EventsEnabled reports whether an event stream origin is configured.
func (c *Config) EventsEnabled() bool {
	return c.Events.Origin != ""
}

// BackfillEnabled reports whether scheduled coverage backfill is configured.
func (c *Config) BackfillEnabled() bool {
	return c.Index.BackfillSchedule != ""
}

// resolvePath expands ~ and makes relative paths relative to base.
func resolvePath(path, base string) string {
	path = expandPath(path)
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
