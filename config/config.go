// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Modes.
const (
	ModeDevelopment = "development"
	ModeProduction  = "production"
)

// Persistence backends.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

// Config is the root configuration structure.
type Config struct {
	// Mode is "development" or "production". Production drops the
	// transition logger and selector diagnostics.
	Mode string `yaml:"mode" toml:"mode" env:"STATEKIT_MODE"`

	// ModulesDir holds declarative module files loaded at startup.
	ModulesDir string `yaml:"modules_dir" toml:"modules_dir" env:"STATEKIT_MODULES_DIR"`

	Persist PersistConfig `yaml:"persist" toml:"persist" envPrefix:"STATEKIT_PERSIST_"`
	Server  ServerConfig  `yaml:"server" toml:"server" envPrefix:"STATEKIT_SERVER_"`
	Logging LoggingConfig `yaml:"logging" toml:"logging" envPrefix:"STATEKIT_LOG_"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics" envPrefix:"STATEKIT_METRICS_"`
}

// PersistConfig configures the persistence plugin and its storage.
type PersistConfig struct {
	Backend      string `yaml:"backend" toml:"backend" env:"BACKEND"`             // "none", "memory", "sqlite", "file"
	DSN          string `yaml:"dsn" toml:"dsn" env:"DSN"`                         // sqlite path or file directory
	StorageKey   string `yaml:"storage_key" toml:"storage_key" env:"STORAGE_KEY"` // blob key or key prefix
	DebounceMS   int    `yaml:"debounce_ms" toml:"debounce_ms" env:"DEBOUNCE_MS"`
	PerNamespace bool   `yaml:"per_namespace" toml:"per_namespace" env:"PER_NAMESPACE"`
	Passphrase   string `yaml:"passphrase" toml:"passphrase" env:"PASSPHRASE"` // seals stored values when set
}

// ServerConfig configures the inspector HTTP server.
type ServerConfig struct {
	Enabled          bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"`
	Host             string `yaml:"host" toml:"host" env:"HOST"`
	Port             int    `yaml:"port" toml:"port" env:"PORT"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs" toml:"read_timeout_secs" env:"READ_TIMEOUT_SECS"`
	WriteTimeoutSecs int    `yaml:"write_timeout_secs" toml:"write_timeout_secs" env:"WRITE_TIMEOUT_SECS"`
	Docs             bool   `yaml:"docs" toml:"docs" env:"DOCS"` // Serve Swagger UI at /swagger/
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" env:"LEVEL"`    // "debug", "info", "warn", "error"
	Format string `yaml:"format" toml:"format" env:"FORMAT"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled" env:"ENABLED"` // Enable the metrics plugin and endpoint
	Path    string `yaml:"path" toml:"path" env:"PATH"`          // Endpoint path (default: /metrics)
}

// IsProduction reports whether the configuration runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Mode == ModeProduction
}

// Debounce returns the persistence debounce interval.
func (p PersistConfig) Debounce() time.Duration {
	return time.Duration(p.DebounceMS) * time.Millisecond
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// ReadTimeout returns the read timeout.
func (s ServerConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutSecs) * time.Second
}

// WriteTimeout returns the write timeout.
func (s ServerConfig) WriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeoutSecs) * time.Second
}

// Load reads configuration from a YAML or TOML file (chosen by extension),
// then applies STATEKIT_* environment overrides and defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	return finish(&cfg)
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	STATEKIT_MODE                 - development or production (default: development)
//	STATEKIT_MODULES_DIR          - Directory of module definitions
//	STATEKIT_PERSIST_BACKEND      - none, memory, sqlite or file (default: memory)
//	STATEKIT_PERSIST_DSN          - SQLite path or file directory
//	STATEKIT_PERSIST_STORAGE_KEY  - Storage key (default: persistStore)
//	STATEKIT_PERSIST_DEBOUNCE_MS  - Debounce interval (default: 160)
//	STATEKIT_PERSIST_PASSPHRASE   - Encrypt stored state with this passphrase
//	STATEKIT_SERVER_ENABLED       - Start the inspector server
//	STATEKIT_SERVER_PORT          - Inspector port (default: 8080)
//	STATEKIT_LOG_LEVEL            - debug, info, warn, error (default: info)
//	STATEKIT_LOG_FORMAT           - json or console (default: json)
//	STATEKIT_METRICS_ENABLED      - Enable metrics
func LoadFromEnv() (*Config, error) {
	var cfg Config
	return finish(&cfg)
}

// LoadWithFallback loads from path when the file exists and from the
// environment otherwise.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

func finish(cfg *Config) (*Config, error) {
	// Environment variables always override file-based configuration.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	setDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Mode == "" {
		cfg.Mode = ModeDevelopment
	}

	if cfg.Persist.Backend == "" {
		cfg.Persist.Backend = BackendMemory
	}
	if cfg.Persist.DSN == "" {
		switch cfg.Persist.Backend {
		case BackendSQLite:
			cfg.Persist.DSN = "statekit.db"
		case BackendFile:
			cfg.Persist.DSN = "statekit-state"
		}
	}
	if cfg.Persist.StorageKey == "" {
		cfg.Persist.StorageKey = "persistStore"
	}
	if cfg.Persist.DebounceMS == 0 {
		cfg.Persist.DebounceMS = 160
	}

	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutSecs == 0 {
		cfg.Server.ReadTimeoutSecs = 30
	}
	if cfg.Server.WriteTimeoutSecs == 0 {
		cfg.Server.WriteTimeoutSecs = 60
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
}

func validate(cfg *Config) error {
	if cfg.Mode != ModeDevelopment && cfg.Mode != ModeProduction {
		return fmt.Errorf("mode must be 'development' or 'production', got %q", cfg.Mode)
	}

	validBackends := map[string]bool{
		BackendNone: true, BackendMemory: true, BackendSQLite: true, BackendFile: true,
	}
	if !validBackends[cfg.Persist.Backend] {
		return fmt.Errorf("persist.backend must be one of: none, memory, sqlite, file, got %q", cfg.Persist.Backend)
	}
	if cfg.Persist.DebounceMS < 0 {
		return fmt.Errorf("persist.debounce_ms must not be negative")
	}
	if cfg.Persist.Passphrase != "" && cfg.Persist.Backend == BackendNone {
		return fmt.Errorf("persist.passphrase requires a persist backend")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	if _, err := zerolog.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", cfg.Logging.Format)
	}

	if !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with '/'")
	}

	return nil
}
