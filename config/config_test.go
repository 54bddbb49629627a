package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/artpar/statekit/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
mode: production
modules_dir: ./modules

persist:
  backend: sqlite
  dsn: ":memory:"
  storage_key: appState
  debounce_ms: 250
  per_namespace: true

server:
  enabled: true
  host: "0.0.0.0"
  port: 9090

logging:
  level: debug
  format: console

metrics:
  enabled: true
  path: /internal/metrics
`

	cfg := writeAndLoad(t, content)

	if !cfg.IsProduction() {
		t.Errorf("Mode = %s, want production", cfg.Mode)
	}
	if cfg.ModulesDir != "./modules" {
		t.Errorf("ModulesDir = %s, want ./modules", cfg.ModulesDir)
	}
	if cfg.Persist.Backend != config.BackendSQLite || cfg.Persist.DSN != ":memory:" {
		t.Errorf("Persist = %+v", cfg.Persist)
	}
	if cfg.Persist.StorageKey != "appState" {
		t.Errorf("StorageKey = %s, want appState", cfg.Persist.StorageKey)
	}
	if cfg.Persist.Debounce() != 250*time.Millisecond {
		t.Errorf("Debounce = %v, want 250ms", cfg.Persist.Debounce())
	}
	if !cfg.Persist.PerNamespace {
		t.Error("PerNamespace = false, want true")
	}
	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("Addr = %s, want 0.0.0.0:9090", cfg.Server.Addr())
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "console" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/internal/metrics" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestLoad_TOML(t *testing.T) {
	content := `
mode = "development"

[persist]
backend = "file"
debounce_ms = 50

[server]
port = 7070
`
	path := filepath.Join(t.TempDir(), "statekit.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Persist.Backend != config.BackendFile {
		t.Errorf("Backend = %s, want file", cfg.Persist.Backend)
	}
	if cfg.Persist.DSN != "statekit-state" {
		t.Errorf("default file DSN = %s, want statekit-state", cfg.Persist.DSN)
	}
	if cfg.Persist.DebounceMS != 50 {
		t.Errorf("DebounceMS = %d, want 50", cfg.Persist.DebounceMS)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Port = %d, want 7070", cfg.Server.Port)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, "mode: development\n")

	if cfg.IsProduction() {
		t.Error("default mode should be development")
	}
	if cfg.Persist.Backend != config.BackendMemory {
		t.Errorf("default Backend = %s, want memory", cfg.Persist.Backend)
	}
	if cfg.Persist.StorageKey != "persistStore" {
		t.Errorf("default StorageKey = %s, want persistStore", cfg.Persist.StorageKey)
	}
	if cfg.Persist.Debounce() != 160*time.Millisecond {
		t.Errorf("default Debounce = %v, want 160ms", cfg.Persist.Debounce())
	}
	if cfg.Server.Enabled {
		t.Error("server should be disabled by default")
	}
	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("default Addr = %s, want 127.0.0.1:8080", cfg.Server.Addr())
	}
	if cfg.Server.ReadTimeout() != 30*time.Second || cfg.Server.WriteTimeout() != 60*time.Second {
		t.Errorf("default timeouts = %v/%v", cfg.Server.ReadTimeout(), cfg.Server.WriteTimeout())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default Logging = %+v", cfg.Logging)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_SQLiteDefaultDSN(t *testing.T) {
	cfg := writeAndLoad(t, "persist:\n  backend: sqlite\n")
	if cfg.Persist.DSN != "statekit.db" {
		t.Errorf("DSN = %s, want statekit.db", cfg.Persist.DSN)
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_STATE_DIR", "/var/lib/statekit")

	cfg := writeAndLoad(t, `
persist:
  backend: file
  dsn: "${TEST_STATE_DIR}/state"
`)

	if cfg.Persist.DSN != "/var/lib/statekit/state" {
		t.Errorf("DSN = %s, want /var/lib/statekit/state", cfg.Persist.DSN)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"invalid mode", "mode: staging\n", "mode must be"},
		{"invalid backend", "persist:\n  backend: redis\n", "persist.backend"},
		{"negative debounce", "persist:\n  debounce_ms: -1\n", "debounce_ms"},
		{"port out of range", "server:\n  port: 70000\n", "server.port"},
		{"invalid level", "logging:\n  level: loud\n", "logging.level"},
		{"invalid format", "logging:\n  format: xml\n", "logging.format"},
		{"relative metrics path", "metrics:\n  path: metrics\n", "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := writeAndLoadErr(t, "persist: [unclosed\n"); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := config.Load("/nonexistent/statekit.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STATEKIT_MODE", "production")
	t.Setenv("STATEKIT_MODULES_DIR", "/etc/statekit/modules")
	t.Setenv("STATEKIT_PERSIST_BACKEND", "sqlite")
	t.Setenv("STATEKIT_PERSIST_DSN", "/tmp/state.db")
	t.Setenv("STATEKIT_PERSIST_DEBOUNCE_MS", "500")
	t.Setenv("STATEKIT_PERSIST_PER_NAMESPACE", "true")
	t.Setenv("STATEKIT_SERVER_ENABLED", "true")
	t.Setenv("STATEKIT_SERVER_PORT", "9999")
	t.Setenv("STATEKIT_LOG_LEVEL", "warn")
	t.Setenv("STATEKIT_METRICS_ENABLED", "true")
	t.Setenv("STATEKIT_METRICS_PATH", "/prom")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if !cfg.IsProduction() {
		t.Errorf("Mode = %s, want production", cfg.Mode)
	}
	if cfg.ModulesDir != "/etc/statekit/modules" {
		t.Errorf("ModulesDir = %s", cfg.ModulesDir)
	}
	if cfg.Persist.Backend != config.BackendSQLite || cfg.Persist.DSN != "/tmp/state.db" {
		t.Errorf("Persist = %+v", cfg.Persist)
	}
	if cfg.Persist.DebounceMS != 500 || !cfg.Persist.PerNamespace {
		t.Errorf("Persist = %+v", cfg.Persist)
	}
	if !cfg.Server.Enabled || cfg.Server.Port != 9999 {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %s, want warn", cfg.Logging.Level)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/prom" {
		t.Errorf("Metrics = %+v", cfg.Metrics)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("STATEKIT_SERVER_PORT", "9091")
	t.Setenv("STATEKIT_PERSIST_STORAGE_KEY", "fromEnv")

	cfg := writeAndLoad(t, `
server:
  port: 8081
persist:
  storage_key: fromFile
`)

	if cfg.Server.Port != 9091 {
		t.Errorf("Port = %d, want 9091 (env wins)", cfg.Server.Port)
	}
	if cfg.Persist.StorageKey != "fromEnv" {
		t.Errorf("StorageKey = %s, want fromEnv", cfg.Persist.StorageKey)
	}
}

func TestEnvOverrides_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "STATEKIT_SERVER_PORT", "http"},
		{"non-numeric debounce", "STATEKIT_PERSIST_DEBOUNCE_MS", "fast"},
		{"non-boolean flag", "STATEKIT_SERVER_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := config.LoadFromEnv(); err == nil {
				t.Errorf("%s=%s should fail", tt.key, tt.value)
			}
		})
	}
}

func TestLoadWithFallback_FileExists(t *testing.T) {
	path := writeConfig(t, "persist:\n  backend: none\n")

	cfg, err := config.LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Persist.Backend != config.BackendNone {
		t.Errorf("Backend = %s, want none", cfg.Persist.Backend)
	}
}

func TestLoadWithFallback_EnvOnly(t *testing.T) {
	t.Setenv("STATEKIT_PERSIST_BACKEND", "file")

	cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Persist.Backend != config.BackendFile {
		t.Errorf("Backend = %s, want file", cfg.Persist.Backend)
	}
}

func TestLoadWithFallback_EmptyPath(t *testing.T) {
	cfg, err := config.LoadWithFallback("")
	if err != nil {
		t.Fatalf("LoadWithFallback error: %v", err)
	}
	if cfg.Persist.Backend != config.BackendMemory {
		t.Errorf("Backend = %s, want memory", cfg.Persist.Backend)
	}
}

// Helpers

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Load(writeConfig(t, content))
}
