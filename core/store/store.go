// Package store is the module engine: it builds namespaced state containers
// from declarations, runs their actions, notifies subscribers and threads
// every lifecycle event through the registered plugins.
//
// A Store is created once with its plugins and then produces modules:
//
//	s := store.New(store.Config{Logger: logger},
//	    persist.New(storage),
//	    store.When(!production, logger.New(log)),
//	)
//	user, err := s.CreateModule(ctx, store.Declaration{
//	    Namespace: "user",
//	    State:     state.State{"token": ""},
//	    Actions: map[string]store.Action{
//	        "SET_TOKEN": func(c *store.ActionContext, args ...any) (any, error) {
//	            c.SetState(state.State{"token": args[0]})
//	            return nil, nil
//	        },
//	    },
//	})
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/artpar/statekit/adapters/idgen"
	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/ports"
	"github.com/rs/zerolog"
)

// Config configures a store.
type Config struct {
	// Logger for the engine. Use zerolog.Nop() to silence it.
	Logger zerolog.Logger

	// IDGen issues subscriber ids (default: UUID v4).
	IDGen ports.IDGenerator

	// Production suppresses diagnostic logging of selector failures.
	Production bool
}

// Store composes plugins and creates modules bound to them.
type Store struct {
	logger     zerolog.Logger
	idgen      ports.IDGenerator
	production bool

	plugins      []Plugin
	initializers []Initializer
	creators     []Creator
	observers    []Observer
	flushers     []Flusher

	mu       sync.RWMutex
	modules  map[string]*Module
	reserved map[string]bool
}

// New creates a store. Nil plugin slots are skipped; the others are split by
// capability, keeping registration order.
func New(cfg Config, plugins ...Plugin) *Store {
	if cfg.IDGen == nil {
		cfg.IDGen = idgen.UUID{}
	}

	s := &Store{
		logger:     cfg.Logger,
		idgen:      cfg.IDGen,
		production: cfg.Production,
		modules:    make(map[string]*Module),
		reserved:   make(map[string]bool),
	}

	for _, p := range plugins {
		if isNil(p) {
			continue
		}
		s.plugins = append(s.plugins, p)
		if i, ok := p.(Initializer); ok {
			s.initializers = append(s.initializers, i)
		}
		if c, ok := p.(Creator); ok {
			s.creators = append(s.creators, c)
		}
		if o, ok := p.(Observer); ok {
			s.observers = append(s.observers, o)
		}
		if f, ok := p.(Flusher); ok {
			s.flushers = append(s.flushers, f)
		}
	}

	return s
}

// Plugins returns the names of the active plugins in registration order.
func (s *Store) Plugins() []string {
	names := make([]string, len(s.plugins))
	for i, p := range s.plugins {
		names[i] = p.Name()
	}
	return names
}

// CreateModule builds a module from its declaration.
//
// Every initializer runs first, in order, on a shared Snapshot. If one fails
// the module is not created and its namespace stays free.
func (s *Store) CreateModule(ctx context.Context, decl Declaration) (*Module, error) {
	if err := decl.validate(); err != nil {
		return nil, err
	}
	if err := s.reserve(decl.Namespace); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Namespace: decl.Namespace,
		Persist:   decl.persist(),
		State:     state.Copy(decl.State),
	}

	for _, p := range s.initializers {
		if err := runInit(ctx, p, snap); err != nil {
			s.release(decl.Namespace)
			return nil, fmt.Errorf("create module %q: %w", decl.Namespace, err)
		}
	}

	m := newModule(s, snap, decl.Actions)

	s.mu.Lock()
	delete(s.reserved, decl.Namespace)
	s.modules[decl.Namespace] = m
	s.mu.Unlock()

	s.logger.Debug().
		Str("module", decl.Namespace).
		Bool("persist", snap.Persist).
		Int("actions", len(decl.Actions)).
		Msg("module created")

	for _, c := range s.creators {
		s.runCreated(ctx, c, *snap)
	}

	return m, nil
}

// MustCreateModule is like CreateModule but panics on error.
// It is intended for package-level module variables.
func (s *Store) MustCreateModule(ctx context.Context, decl Declaration) *Module {
	m, err := s.CreateModule(ctx, decl)
	if err != nil {
		panic(err)
	}
	return m
}

// Lazy returns an accessor that creates the module on first call and returns
// the same module (or the same error) afterwards.
func (s *Store) Lazy(decl Declaration) func() (*Module, error) {
	return sync.OnceValues(func() (*Module, error) {
		return s.CreateModule(context.Background(), decl)
	})
}

// Module returns the module registered under namespace.
func (s *Store) Module(namespace string) (*Module, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.modules[namespace]
	return m, ok
}

// Modules returns all modules sorted by namespace.
func (s *Store) Modules() []*Module {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mods := make([]*Module, 0, len(s.modules))
	for _, m := range s.modules {
		mods = append(mods, m)
	}
	sort.Slice(mods, func(i, j int) bool {
		return mods[i].namespace < mods[j].namespace
	})
	return mods
}

// Close flushes every plugin holding deferred work (e.g. debounced writes).
// It is the shutdown counterpart of a page teardown event.
func (s *Store) Close(ctx context.Context) error {
	var errs []error
	for _, f := range s.flushers {
		if err := f.Flush(ctx); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", f.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *Store) reserve(namespace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.modules[namespace]; exists || s.reserved[namespace] {
		return fmt.Errorf("module %q: %w", namespace, ErrDuplicateNamespace)
	}
	s.reserved[namespace] = true
	return nil
}

func (s *Store) release(namespace string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reserved, namespace)
}

func (s *Store) runCreated(ctx context.Context, c Creator, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("module", snap.Namespace).
				Str("plugin", c.Name()).
				Interface("panic", r).
				Msg("plugin ModuleCreated panicked")
		}
	}()
	c.ModuleCreated(ctx, snap)
}

func runInit(ctx context.Context, p Initializer, snap *Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: panic: %v", ErrPluginInit, p.Name(), r)
		}
	}()

	if err := p.InitStore(ctx, snap); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPluginInit, p.Name(), err)
	}
	if snap.State == nil {
		snap.State = state.Copy(nil)
	}
	return nil
}
