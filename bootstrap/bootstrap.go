// Package bootstrap wires all dependencies and starts the application.
// Configuration comes from a YAML or TOML file with STATEKIT_* environment
// overrides; modules come from the configured modules directory and from
// declarations registered in Go.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/artpar/statekit/adapters/clock"
	httpapi "github.com/artpar/statekit/adapters/http"
	httpmetrics "github.com/artpar/statekit/adapters/metrics"
	"github.com/artpar/statekit/adapters/sqlite"
	"github.com/artpar/statekit/config"
	"github.com/artpar/statekit/core/events"
	"github.com/artpar/statekit/core/plugins/emit"
	"github.com/artpar/statekit/core/plugins/logger"
	"github.com/artpar/statekit/core/plugins/metrics"
	"github.com/artpar/statekit/core/plugins/persist"
	"github.com/artpar/statekit/core/store"
	"github.com/artpar/statekit/ports"
	"github.com/rs/zerolog"
)

const (
	// shutdownTimeout bounds the final flush and server shutdown.
	shutdownTimeout = 30 * time.Second

	// eventHistory is how many recent events the inspector can show.
	eventHistory = 200
)

// App represents the running application.
type App struct {
	Logger     zerolog.Logger
	Config     *config.Config
	Store      *store.Store
	Bus        *events.Bus
	Events     *events.Recorder // recent bus events, served at /events
	Persist    *persist.Plugin // nil when the persist backend is "none"
	Metrics    *metrics.Plugin // nil when metrics are disabled
	DB         *sqlite.DB      // set for the sqlite backend
	HTTPServer *http.Server    // nil when the inspector is disabled
	Holder     *config.Holder  // set by NewWithHotReload

	clock ports.Clock
}

// Options provides optional configuration for application initialization.
type Options struct {
	// ConfigPath is the config file. When empty or missing, configuration
	// is read from the environment only.
	ConfigPath string

	// Config skips loading and uses this configuration as is.
	Config *config.Config

	// Declarations are modules defined in Go, created before the modules
	// directory is loaded.
	Declarations []store.Declaration

	// Version is reported by the inspector.
	Version string

	// Clock drives persistence debouncing (default: real time).
	Clock ports.Clock

	// Logger overrides the logger built from the logging config.
	Logger *zerolog.Logger
}

// New creates and initializes the application.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		cfg, err = config.LoadWithFallback(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}

	log := setupLogger(cfg.Logging)
	if opts.Logger != nil {
		log = *opts.Logger
	}
	log.Info().
		Str("mode", cfg.Mode).
		Str("persist", cfg.Persist.Backend).
		Msg("initializing statekit")

	a := &App{
		Logger: log,
		Config: cfg,
		Bus:    events.NewBus(log),
		Events: events.NewRecorder(eventHistory),
		clock:  opts.Clock,
	}
	a.Bus.Subscribe("*", a.Events.Handle)
	if a.clock == nil {
		a.clock = clock.Real{}
	}

	if err := a.initPersistence(); err != nil {
		return nil, fmt.Errorf("init persistence: %w", err)
	}

	if cfg.Metrics.Enabled {
		a.Metrics = metrics.New(metrics.Config{RuntimeCollectors: true})
		log.Info().Msg("prometheus metrics enabled")
	}

	a.Store = store.New(
		store.Config{
			Logger:     log,
			Production: cfg.IsProduction(),
		},
		a.Persist,
		store.When(!cfg.IsProduction(), logger.New(log)),
		a.Metrics,
		emit.New(a.Bus, emit.WithClock(a.clock)),
	)
	log.Info().Strs("plugins", a.Store.Plugins()).Msg("store created")

	if err := a.loadModules(ctx, opts.Declarations); err != nil {
		a.closeStorage()
		return nil, fmt.Errorf("load modules: %w", err)
	}

	if cfg.Server.Enabled {
		a.initHTTPServer(opts.Version)
	}

	return a, nil
}

// NewWithHotReload creates the application from a config file and reloads
// the logging settings whenever the file changes or SIGHUP arrives.
func NewWithHotReload(ctx context.Context, opts Options) (*App, error) {
	holder, err := config.NewHolder(opts.ConfigPath, zerolog.Nop())
	if err != nil {
		return nil, err
	}

	opts.Config = holder.Get()
	a, err := New(ctx, opts)
	if err != nil {
		return nil, err
	}

	holder.SetLogger(a.Logger)
	holder.OnChange(func(cfg *config.Config) {
		applyLogLevel(cfg.Logging.Level)
	})
	if a.Metrics != nil {
		holder.OnReload(a.Metrics.RecordReload)
	}

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP only")
	}
	holder.WatchSignals()
	a.Holder = holder

	return a, nil
}

func (a *App) initHTTPServer(version string) {
	cfg := a.Config.Server

	rc := httpapi.RouterConfig{
		Version:    version,
		Timeout:    cfg.WriteTimeout(),
		EnableDocs: cfg.Docs,
		Events:     a.Events,
	}
	if a.Metrics != nil {
		rc.MetricsHandler = a.Metrics.Handler()
		rc.MetricsPath = a.Config.Metrics.Path
		rc.Metrics = httpmetrics.NewWithRegistry(a.Metrics.Registry(), "statekit")
	}
	router := httpapi.NewRouter(a.Store, a.Logger, rc)

	a.HTTPServer = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}

	a.Logger.Info().Str("addr", cfg.Addr()).Msg("http server configured")
}

// Run starts the inspector server, if enabled, and blocks until ctx is done,
// SIGINT or SIGTERM arrives, or the server fails. It then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	if a.HTTPServer != nil {
		go func() {
			a.Logger.Info().
				Str("addr", a.HTTPServer.Addr).
				Msg("starting http server")
			if err := a.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()
	}

	var runErr error
	select {
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	if err := a.Shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// Shutdown gracefully stops the application. Pending debounced writes are
// flushed before storage is closed.
func (a *App) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.Holder != nil {
		a.Holder.Stop()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("http server shutdown error")
		}
	}

	var errs []error
	if err := a.Store.Close(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("store flush error")
		errs = append(errs, err)
	}

	if err := a.closeStorage(); err != nil {
		a.Logger.Error().Err(err).Msg("database close error")
		errs = append(errs, err)
	}

	a.Logger.Info().Msg("shutdown complete")
	return errors.Join(errs...)
}

func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	applyLogLevel(cfg.Level)

	if cfg.Format == "console" {
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		return zerolog.New(output).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func applyLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
