package bootstrap

import (
	"context"
	"fmt"

	"github.com/artpar/statekit/adapters/file"
	"github.com/artpar/statekit/adapters/memory"
	"github.com/artpar/statekit/adapters/sealed"
	"github.com/artpar/statekit/adapters/sqlite"
	"github.com/artpar/statekit/config"
	"github.com/artpar/statekit/core/plugins/persist"
	"github.com/artpar/statekit/ports"
)

// initPersistence opens the configured storage backend and builds the
// persist plugin on top of it.
func (a *App) initPersistence() error {
	cfg := a.Config.Persist
	if cfg.Backend == config.BackendNone {
		a.Logger.Info().Msg("persistence disabled")
		return nil
	}

	storage, err := a.openStorage(cfg)
	if err != nil {
		return err
	}
	if cfg.Passphrase != "" {
		if storage, err = sealed.New(storage, cfg.Passphrase); err != nil {
			a.closeStorage()
			return err
		}
	}

	opts := []persist.Option{
		persist.WithStorageKey(cfg.StorageKey),
		persist.WithDebounce(cfg.Debounce()),
		persist.WithClock(a.clock),
		persist.WithLogger(a.Logger.With().Str("plugin", "persist").Logger()),
	}
	if cfg.PerNamespace {
		opts = append(opts, persist.WithPerNamespaceKeys())
	}
	a.Persist = persist.New(storage, opts...)

	a.Logger.Info().
		Str("backend", cfg.Backend).
		Str("dsn", cfg.DSN).
		Str("key", cfg.StorageKey).
		Dur("debounce", cfg.Debounce()).
		Bool("sealed", cfg.Passphrase != "").
		Msg("persistence enabled")
	return nil
}

func (a *App) openStorage(cfg config.PersistConfig) (ports.Storage, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.NewStorage(), nil

	case config.BackendSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		a.DB = db
		return sqlite.NewKVStore(db, a.clock), nil

	case config.BackendFile:
		fs, err := file.NewStorage(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return fs, nil

	default:
		return nil, fmt.Errorf("unknown persist backend %q", cfg.Backend)
	}
}

func (a *App) closeStorage() error {
	if a.DB == nil {
		return nil
	}
	err := a.DB.Close()
	a.DB = nil
	return err
}
