// Package config loads keysafe settings from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/illarion/keysafe/internal/crypto"
	"github.com/illarion/keysafe/internal/session"
)

// Environment variables
const (
	EnvConfig   = "KEYSAFE_CONFIG"
	EnvDB       = "KEYSAFE_DB"
	EnvIdentity = "KEYSAFE_IDENTITY"
	EnvBackend  = "KEYSAFE_BACKEND"
	EnvLogLevel = "KEYSAFE_LOG_LEVEL"
)

const (
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"

	BindingSignature = "signature" // master secret bound to the signer's signature
	BindingNone      = "none"

	DirPermSecure = 0700 // Directory: owner rwx only
)

// Config holds keysafe settings
type Config struct {
	// Identity used when none is given; empty means the local signer's address.
	Identity string        `yaml:"identity"`
	Storage  StorageConfig `yaml:"storage"`
	Session  SessionConfig `yaml:"session"`
	Signer   SignerConfig  `yaml:"signer"`
	// KDFIterations for new master secret records
	KDFIterations int    `yaml:"kdf_iterations"`
	LogLevel      string `yaml:"log_level"`
}

// StorageConfig selects the byte store
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// SessionConfig holds session windows, as Go durations ("30m", "12h")
type SessionConfig struct {
	Duration        time.Duration `yaml:"duration"`
	Inactivity      time.Duration `yaml:"inactivity"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
}

// SignerConfig holds local signer settings
type SignerConfig struct {
	Name    string `yaml:"name"`
	Binding string `yaml:"binding"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendBolt,
		},
		Session: SessionConfig{
			Duration:        session.DefaultDuration,
			Inactivity:      session.DefaultInactivity,
			MonitorInterval: session.DefaultMonitorInterval,
		},
		Signer: SignerConfig{
			Name:    "default",
			Binding: BindingSignature,
		},
		KDFIterations: crypto.DefaultIters,
		LogLevel:      "warn",
	}
}

// DefaultPath returns $KEYSAFE_CONFIG or ~/.config/keysafe/config.yaml
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate config directory: %w", err)
	}
	return filepath.Join(dir, "keysafe", "config.yaml"), nil
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Use defaults if no config file
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv(os.Getenv)

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv(EnvDB); v != "" {
		c.Storage.Path = v
	}
	if v := getenv(EnvBackend); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv(EnvIdentity); v != "" {
		c.Identity = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// finish validates the config and fills derived defaults
func (c *Config) finish() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	switch c.Storage.Backend {
	case "":
		c.Storage.Backend = BackendBolt
	case BackendBolt, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage backend %q (want %s or %s)", c.Storage.Backend, BackendBolt, BackendSQLite)
	}

	switch c.Signer.Binding {
	case "":
		c.Signer.Binding = BindingSignature
	case BindingSignature, BindingNone:
	default:
		return fmt.Errorf("unknown signer binding %q (want %s or %s)", c.Signer.Binding, BindingSignature, BindingNone)
	}

	if c.KDFIterations == 0 {
		c.KDFIterations = crypto.DefaultIters
	}
	if c.KDFIterations < crypto.MinIters {
		return fmt.Errorf("kdf_iterations %d is below the minimum of %d", c.KDFIterations, crypto.MinIters)
	}

	if c.Session.Duration < 0 || c.Session.Inactivity < 0 || c.Session.MonitorInterval < 0 {
		return fmt.Errorf("session durations must not be negative")
	}
	if c.Session.Duration > 0 && c.Session.Inactivity > c.Session.Duration {
		c.Session.Inactivity = c.Session.Duration
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}

	if c.Storage.Path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to locate home directory: %w", err)
		}
		name := "vault.db"
		if c.Storage.Backend == BackendSQLite {
			name = "vault.sqlite"
		}
		c.Storage.Path = filepath.Join(home, ".keysafe", name)
	}
	return nil
}

// Level returns the configured zerolog level
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.WarnLevel
	}
	return level
}

// Sessions returns the session manager settings
func (c *Config) Sessions() session.Config {
	return session.Config{
		Duration:   c.Session.Duration,
		Inactivity: c.Session.Inactivity,
	}
}

// Bound reports whether unlocks include the signer's signature
func (c *Config) Bound() bool {
	return c.Signer.Binding == BindingSignature
}

// EnsureStorageDir creates the directory holding the database
func (c *Config) EnsureStorageDir() error {
	if err := os.MkdirAll(filepath.Dir(c.Storage.Path), DirPermSecure); err != nil {
		return fmt.Errorf("failed to create storage directory: %w", err)
	}
	return nil
}
