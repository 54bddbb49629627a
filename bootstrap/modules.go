package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/artpar/statekit/core/schema"
	"github.com/artpar/statekit/core/store"
)

// loadModules creates the Go declarations first, then every module defined in
// the modules directory. A module whose creation fails aborts startup.
func (a *App) loadModules(ctx context.Context, decls []store.Declaration) error {
	for _, decl := range decls {
		if _, err := a.Store.CreateModule(ctx, decl); err != nil {
			return err
		}
		a.Logger.Info().Str("module", decl.Namespace).Msg("loaded module")
	}

	mods, err := LoadModuleDir(a.Config.ModulesDir)
	if err != nil {
		return err
	}
	for _, mod := range mods {
		if _, err := a.Store.CreateModule(ctx, mod.Declaration()); err != nil {
			return fmt.Errorf("%s: %w", mod.Source, err)
		}
		a.Logger.Info().
			Str("module", mod.Namespace).
			Str("source", mod.Source).
			Msg("loaded declarative module")
	}

	return nil
}

// LoadModuleDir parses the module definitions in dir. An empty dir, or one
// that does not exist, yields no modules.
func LoadModuleDir(dir string) ([]schema.Module, error) {
	if dir == "" {
		return nil, nil
	}
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return schema.ParseDir(dir)
}
