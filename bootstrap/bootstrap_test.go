package bootstrap_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/artpar/statekit/adapters/clock"
	"github.com/artpar/statekit/bootstrap"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/core/store"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

const userModule = `
namespace: user
state:
  userinfo: {}
  token: ""
actions:
  SET_TOKEN: { set: [token] }
  logout:    { reset: [userinfo, token] }
`

const cartModule = `
namespace = "cart"
persist = false

[state]
items = []

[actions.clear]
reset = ["*"]
`

func setupDir(t *testing.T, configBody string) (configPath string) {
	t.Helper()
	dir := t.TempDir()
	modules := filepath.Join(dir, "modules")
	if err := os.MkdirAll(modules, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(modules, "user.yaml"), userModule)
	writeFile(t, filepath.Join(modules, "cart.toml"), cartModule)

	body := strings.ReplaceAll(configBody, "{{dir}}", dir)
	configPath = filepath.Join(dir, "statekit.yaml")
	writeFile(t, configPath, body)
	return configPath
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func newApp(t *testing.T, configPath string, decls ...store.Declaration) *bootstrap.App {
	t.Helper()
	nop := zerolog.Nop()
	a, err := bootstrap.New(context.Background(), bootstrap.Options{
		ConfigPath:   configPath,
		Declarations: decls,
		Clock:        clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)),
		Logger:       &nop,
	})
	if err != nil {
		t.Fatalf("bootstrap.New: %v", err)
	}
	return a
}

func sessionDecl() store.Declaration {
	return store.Declaration{
		Namespace: "session",
		Persist:   store.Bool(false),
		State:     state.State{"open": false},
		Actions: map[string]store.Action{
			"open": func(c *store.ActionContext, _ ...any) (any, error) {
				c.SetState(state.State{"open": true})
				return nil, nil
			},
		},
	}
}

func TestNew_LoadsModules(t *testing.T) {
	path := setupDir(t, `
modules_dir: "{{dir}}/modules"
persist:
  backend: memory
`)
	a := newApp(t, path, sessionDecl())
	defer a.Shutdown()

	var names []string
	for _, m := range a.Store.Modules() {
		names = append(names, m.Namespace())
	}
	if want := []string{"cart", "session", "user"}; !reflect.DeepEqual(names, want) {
		t.Errorf("modules = %v, want %v", names, want)
	}

	if want := []string{"persist", "logger", "emit"}; !reflect.DeepEqual(a.Store.Plugins(), want) {
		t.Errorf("plugins = %v, want %v", a.Store.Plugins(), want)
	}
	if a.Persist == nil {
		t.Error("Persist should be set for the memory backend")
	}
	if a.HTTPServer != nil {
		t.Error("HTTPServer should be nil when the server is disabled")
	}
}

func TestNew_ProductionDropsLogger(t *testing.T) {
	path := setupDir(t, `
mode: production
persist:
  backend: none
metrics:
  enabled: true
`)
	a := newApp(t, path)
	defer a.Shutdown()

	if want := []string{"metrics", "emit"}; !reflect.DeepEqual(a.Store.Plugins(), want) {
		t.Errorf("plugins = %v, want %v", a.Store.Plugins(), want)
	}
	if a.Persist != nil {
		t.Error("Persist should be nil for the none backend")
	}
}

func TestNew_InvalidModule(t *testing.T) {
	path := setupDir(t, `modules_dir: "{{dir}}/modules"`)
	writeFile(t, filepath.Join(filepath.Dir(path), "modules", "bad.yaml"), "namespace: bad\nactions:\n  noop: {}\n")

	nop := zerolog.Nop()
	_, err := bootstrap.New(context.Background(), bootstrap.Options{ConfigPath: path, Logger: &nop})
	if err == nil || !strings.Contains(err.Error(), "no operations") {
		t.Errorf("error = %v, want a validation error", err)
	}
}

func TestNew_DuplicateNamespace(t *testing.T) {
	path := setupDir(t, `modules_dir: "{{dir}}/modules"`)

	nop := zerolog.Nop()
	_, err := bootstrap.New(context.Background(), bootstrap.Options{
		ConfigPath:   path,
		Logger:       &nop,
		Declarations: []store.Declaration{{Namespace: "user"}},
	})
	if err == nil {
		t.Error("expected duplicate namespace error")
	}
}

func TestPersistAcrossRestart(t *testing.T) {
	tests := []struct {
		name   string
		config string
	}{
		{"sqlite blob", `
modules_dir: "{{dir}}/modules"
persist:
  backend: sqlite
  dsn: "{{dir}}/state.db"
`},
		{"sealed sqlite", `
modules_dir: "{{dir}}/modules"
persist:
  backend: sqlite
  dsn: "{{dir}}/state.db"
  passphrase: "correct horse"
`},
		{"file per namespace", `
modules_dir: "{{dir}}/modules"
persist:
  backend: file
  dsn: "{{dir}}/state"
  per_namespace: true
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := setupDir(t, tt.config)
			ctx := context.Background()

			first := newApp(t, path)
			user, _ := first.Store.Module("user")
			if _, err := user.Dispatch(ctx, "SET_TOKEN", "abc"); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			cart, _ := first.Store.Module("cart")
			if _, err := cart.Dispatch(ctx, "clear"); err != nil {
				t.Fatalf("dispatch: %v", err)
			}
			if err := first.Shutdown(); err != nil {
				t.Fatalf("Shutdown: %v", err)
			}

			second := newApp(t, path)
			defer second.Shutdown()

			user, _ = second.Store.Module("user")
			if got := user.State().GetString("token"); got != "abc" {
				t.Errorf("token after restart = %q, want abc", got)
			}

			stored, err := second.Persist.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if _, ok := stored["cart"]; ok {
				t.Error("non-persisted module reached storage")
			}
		})
	}
}

func TestInspectorServer(t *testing.T) {
	path := setupDir(t, `
modules_dir: "{{dir}}/modules"
server:
  enabled: true
  port: 9191
metrics:
  enabled: true
`)
	a := newApp(t, path)
	defer a.Shutdown()

	if a.HTTPServer == nil {
		t.Fatal("HTTPServer should be configured")
	}
	if a.HTTPServer.Addr != "127.0.0.1:9191" {
		t.Errorf("Addr = %s", a.HTTPServer.Addr)
	}

	srv := httptest.NewServer(a.HTTPServer.Handler)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/modules/user/actions/SET_TOKEN", "application/json", strings.NewReader(`{"args":["xyz"]}`))
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dispatch status = %d", resp.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `statekit_transitions_total{action="SET_TOKEN",namespace="user"} 1`) {
		t.Errorf("metrics missing transition counter:\n%s", body)
	}
	if !strings.Contains(string(body), `statekit_http_requests_total{method="POST",route="/modules/{namespace}/actions/{action}",status="200"} 1`) {
		t.Errorf("metrics missing request counter:\n%s", body)
	}
}

func TestBusReceivesTransitions(t *testing.T) {
	path := setupDir(t, `modules_dir: "{{dir}}/modules"`)
	a := newApp(t, path)
	defer a.Shutdown()

	var got []string
	a.Bus.Subscribe("user.*", func(_ context.Context, e events.Event) error {
		got = append(got, e.Name)
		return nil
	})

	user, _ := a.Store.Module("user")
	user.Dispatch(context.Background(), "SET_TOKEN", "t")
	user.Dispatch(context.Background(), "logout")

	if want := []string{"user.SET_TOKEN", "user.logout"}; !reflect.DeepEqual(got, want) {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEventsRecorded(t *testing.T) {
	path := setupDir(t, `modules_dir: "{{dir}}/modules"`)
	a := newApp(t, path)
	defer a.Shutdown()

	user, _ := a.Store.Module("user")
	user.Dispatch(context.Background(), "SET_TOKEN", "t")

	var names []string
	for _, e := range a.Events.Recent(0) {
		names = append(names, e.Name)
	}
	for _, want := range []string{"user.init", "user.SET_TOKEN"} {
		if !slices.Contains(names, want) {
			t.Errorf("recorded events %v missing %s", names, want)
		}
	}
}

func TestRun_ContextCancelled(t *testing.T) {
	path := setupDir(t, `
modules_dir: "{{dir}}/modules"
persist:
  backend: sqlite
  dsn: "{{dir}}/state.db"
`)
	a := newApp(t, path)

	user, _ := a.Store.Module("user")
	user.Dispatch(context.Background(), "SET_TOKEN", "pending")
	if len(a.Persist.Pending()) != 1 {
		t.Fatalf("pending = %v, want [user]", a.Persist.Pending())
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.Persist.Pending()) != 0 {
		t.Error("Run should flush pending writes on shutdown")
	}
}

func TestNewWithHotReload(t *testing.T) {
	path := setupDir(t, `
metrics:
  enabled: true
logging:
  level: info
`)
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	nop := zerolog.Nop()
	a, err := bootstrap.NewWithHotReload(context.Background(), bootstrap.Options{ConfigPath: path, Logger: &nop})
	if err != nil {
		t.Fatalf("NewWithHotReload: %v", err)
	}
	defer a.Shutdown()

	writeFile(t, path, "metrics:\n  enabled: true\nlogging:\n  level: warn\n")
	if err := a.Holder.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if zerolog.GlobalLevel() != zerolog.WarnLevel {
		t.Errorf("global level = %v, want warn", zerolog.GlobalLevel())
	}
	if got := testutil.ToFloat64(a.Metrics.ConfigReloads); got < 1 {
		t.Errorf("config reloads = %v, want at least 1", got)
	}
}
