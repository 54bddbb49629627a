package sealed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/statekit/adapters/memory"
)

// fastParams keeps key derivation cheap in tests.
var fastParams = Params{N: 1 << 10, R: 8, P: 1}

func newSealed(t *testing.T, inner *memory.Storage, passphrase string) *Storage {
	t.Helper()
	s, err := New(inner, passphrase, WithParams(fastParams))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStorage()
	s := newSealed(t, inner, "correct horse")

	value := `{"user":{"token":"secret-token"}}`
	if err := s.Set(ctx, "persistStore", value); err != nil {
		t.Fatalf("Set: %v", err)
	}

	raw, _, _ := inner.Get(ctx, "persistStore")
	if strings.Contains(raw, "secret-token") {
		t.Fatalf("plaintext reached the wrapped storage: %s", raw)
	}

	got, ok, err := s.Get(ctx, "persistStore")
	if err != nil || !ok || got != value {
		t.Errorf("Get = %q, %v, %v", got, ok, err)
	}

	if _, ok, err := s.Get(ctx, "missing"); ok || err != nil {
		t.Errorf("Get missing = %v, %v", ok, err)
	}
}

func TestFreshSaltPerWrite(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStorage()
	s := newSealed(t, inner, "pw")

	s.Set(ctx, "k", "same")
	first, _, _ := inner.Get(ctx, "k")
	s.Set(ctx, "k", "same")
	second, _, _ := inner.Get(ctx, "k")

	if first == second {
		t.Error("sealing the same value twice produced identical envelopes")
	}
}

func TestOpenFailures(t *testing.T) {
	ctx := context.Background()
	inner := memory.NewStorage()
	s := newSealed(t, inner, "right")
	s.Set(ctx, "a", "value")

	tests := []struct {
		name    string
		setup   func() *Storage
		key     string
		wantErr error
	}{
		{
			name:    "wrong passphrase",
			setup:   func() *Storage { return newSealed(t, inner, "wrong") },
			key:     "a",
			wantErr: ErrWrongPassphrase,
		},
		{
			name: "moved to another key",
			setup: func() *Storage {
				raw, _, _ := inner.Get(ctx, "a")
				inner.Set(ctx, "b", raw)
				return s
			},
			key:     "b",
			wantErr: ErrWrongPassphrase,
		},
		{
			name: "plaintext value",
			setup: func() *Storage {
				inner.Set(ctx, "plain", `{"user":{}}`)
				return s
			},
			key:     "plain",
			wantErr: ErrNotSealed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := tt.setup()
			_, ok, err := store.Get(ctx, tt.key)
			if ok || !errors.Is(err, tt.wantErr) {
				t.Errorf("Get = ok %v, err %v, want %v", ok, err, tt.wantErr)
			}
		})
	}
}

func TestEmptyPassphrase(t *testing.T) {
	if _, err := New(memory.NewStorage(), ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Errorf("err = %v, want ErrEmptyPassphrase", err)
	}
}

func TestKeysAndDelete(t *testing.T) {
	ctx := context.Background()
	s := newSealed(t, memory.NewStorage(), "pw")
	s.Set(ctx, "app/user", "{}")
	s.Set(ctx, "app/cart", "{}")

	if err := s.Delete(ctx, "app/cart"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	keys, err := s.Keys(ctx)
	if err != nil || len(keys) != 1 || keys[0] != "app/user" {
		t.Errorf("Keys = %v, %v", keys, err)
	}
}
