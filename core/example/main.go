// Package example demonstrates how the store, plugins and bindings work
// together on a user module.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/artpar/statekit/adapters/memory"
	"github.com/artpar/statekit/core/plugins/logger"
	"github.com/artpar/statekit/core/plugins/persist"
	"github.com/artpar/statekit/core/state"
	"github.com/artpar/statekit/core/store"
	"github.com/rs/zerolog"
)

func main() {
	ctx := context.Background()
	zl := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// A previous session left a token behind.
	storage := memory.NewStorage()
	storage.Set(ctx, persist.DefaultStorageKey, `{"user":{"token":"from-last-run"}}`)

	s := store.New(
		store.Config{Logger: zl},
		persist.New(storage, persist.WithLogger(zl)),
		logger.New(zl),
	)

	user, err := s.CreateModule(ctx, userModule())
	if err != nil {
		log.Fatalf("create module: %v", err)
	}
	fmt.Printf("hydrated token: %q\n", user.State().GetString("token"))

	// Re-render only when the token changes.
	token := store.Bind(user, store.As[string](store.Field("token")), func(t string) {
		fmt.Printf("token is now %q\n", t)
	})
	defer token.Close()

	user.Dispatch(ctx, "SET_USER", map[string]any{"name": "ann"})
	user.Dispatch(ctx, "SET_TOKEN", "abc")
	user.Dispatch(ctx, "logout")

	// Close writes the debounced state before exit.
	if err := s.Close(ctx); err != nil {
		log.Fatalf("flush: %v", err)
	}

	blob, _, _ := storage.Get(ctx, persist.DefaultStorageKey)
	fmt.Println("stored:", blob)
}

func userModule() store.Declaration {
	return store.Declaration{
		Namespace: "user",
		State: state.State{
			"userinfo": map[string]any{},
			"token":    "",
		},
		Actions: map[string]store.Action{
			"SET_USER": func(c *store.ActionContext, args ...any) (any, error) {
				if len(args) != 1 {
					return nil, errors.New("SET_USER expects the user")
				}
				c.SetState(state.State{"userinfo": args[0]})
				return nil, nil
			},
			"SET_TOKEN": func(c *store.ActionContext, args ...any) (any, error) {
				if len(args) != 1 {
					return nil, errors.New("SET_TOKEN expects the token")
				}
				c.SetState(state.State{"token": args[0]})
				return nil, nil
			},
			"logout": func(c *store.ActionContext, _ ...any) (any, error) {
				if _, err := c.Dispatch("SET_USER", map[string]any{}); err != nil {
					return nil, err
				}
				return c.Dispatch("SET_TOKEN", "")
			},
		},
	}
}
