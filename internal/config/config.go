// Package config implements TOML configuration loading, validation, and
// platform path resolution for clouddrive-go. The override chain is
// defaults -> config file -> environment -> CLI flags.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Defaults applied before the config file is read.
const (
	DefaultBaseURL        = "http://localhost:4000"
	DefaultRequestTimeout = "30s"
	DefaultCheckInterval  = "2s"
	DefaultTickInterval   = "200ms"
	DefaultTickIncrement  = 10
	DefaultFinalizeAt     = 90
	DefaultProgressLinger = "1s"
	DefaultLogLevel       = "info"

	appDirName         = "clouddrive"
	credentialFileName = "token"
	configFileName     = "config.toml"
)

// Config is the top-level configuration structure parsed from a TOML file.
// Interval fields are duration strings ("2s", "200ms") validated by
// Validate(); typed accessors parse them on demand.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Session SessionConfig `toml:"session"`
	Upload  UploadConfig  `toml:"upload"`
	Logging LoggingConfig `toml:"logging"`
}

// ServerConfig locates the remote collaborator and bounds request time.
type ServerConfig struct {
	BaseURL        string `toml:"base_url"`
	RequestTimeout string `toml:"request_timeout"`
}

// SessionConfig controls the background session revalidation loop.
type SessionConfig struct {
	CheckInterval string `toml:"check_interval"`
}

// UploadConfig controls the simulated progress phase of the upload pipeline.
// The ticker is presentational only — it is not coupled to transfer bytes.
type UploadConfig struct {
	TickInterval   string `toml:"tick_interval"`
	TickIncrement  int    `toml:"tick_increment"`
	FinalizeAt     int    `toml:"finalize_at"`
	ProgressLinger string `toml:"progress_linger"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL:        DefaultBaseURL,
			RequestTimeout: DefaultRequestTimeout,
		},
		Session: SessionConfig{
			CheckInterval: DefaultCheckInterval,
		},
		Upload: UploadConfig{
			TickInterval:   DefaultTickInterval,
			TickIncrement:  DefaultTickIncrement,
			FinalizeAt:     DefaultFinalizeAt,
			ProgressLinger: DefaultProgressLinger,
		},
		Logging: LoggingConfig{
			LogLevel: DefaultLogLevel,
		},
	}
}

// Load resolves the effective configuration: defaults, then the TOML file at
// path (missing file is fine), then environment overrides. path "" uses
// DefaultConfigPath().
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath()
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides applies CLOUDDRIVE_* environment variables on top of the
// file-derived config. Environment wins over the file; CLI flags win over both.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CLOUDDRIVE_SERVER_URL"); v != "" {
		cfg.Server.BaseURL = v
	}

	if v := os.Getenv("CLOUDDRIVE_LOG_LEVEL"); v != "" {
		cfg.Logging.LogLevel = v
	}
}

// Validate checks duration strings and numeric ranges. Called by Load; also
// exported for callers that build a Config by hand.
func (c *Config) Validate() error {
	for _, d := range []struct{ name, val string }{
		{"server.request_timeout", c.Server.RequestTimeout},
		{"session.check_interval", c.Session.CheckInterval},
		{"upload.tick_interval", c.Upload.TickInterval},
		{"upload.progress_linger", c.Upload.ProgressLinger},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("config: invalid %s %q: %w", d.name, d.val, err)
		}
	}

	if c.Upload.TickIncrement <= 0 {
		return fmt.Errorf("config: upload.tick_increment must be positive, got %d", c.Upload.TickIncrement)
	}

	if c.Upload.FinalizeAt <= 0 || c.Upload.FinalizeAt > 100 {
		return fmt.Errorf("config: upload.finalize_at must be in 1..100, got %d", c.Upload.FinalizeAt)
	}

	return nil
}

// mustDuration parses a duration string already vetted by Validate.
func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic(fmt.Sprintf("config: unvalidated duration %q: %v", s, err))
	}

	return d
}

// RequestTimeout returns the parsed HTTP request timeout.
func (c *Config) RequestTimeout() time.Duration { return mustDuration(c.Server.RequestTimeout) }

// CheckInterval returns the parsed session revalidation interval.
func (c *Config) CheckInterval() time.Duration { return mustDuration(c.Session.CheckInterval) }

// TickInterval returns the parsed upload progress tick interval.
func (c *Config) TickInterval() time.Duration { return mustDuration(c.Upload.TickInterval) }

// ProgressLinger returns how long 100% progress stays visible after a
// successful upload before it is cleared.
func (c *Config) ProgressLinger() time.Duration { return mustDuration(c.Upload.ProgressLinger) }

// DefaultConfigPath returns the platform config file path, or "" when the
// user config directory cannot be determined.
func DefaultConfigPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(base, appDirName, configFileName)
}

// CredentialPath returns the path of the durable credential key.
func CredentialPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}

	return filepath.Join(base, appDirName, credentialFileName)
}
