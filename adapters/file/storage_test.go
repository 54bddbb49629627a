package file

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestStorage_RoundTrip(t *testing.T) {
	s, err := NewStorage(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "persistStore"); err != nil || ok {
		t.Fatalf("Get missing = ok %v, err %v", ok, err)
	}

	if err := s.Set(ctx, "persistStore", `{"user":{"token":"abc"}}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := s.Get(ctx, "persistStore")
	if err != nil || !ok || got != `{"user":{"token":"abc"}}` {
		t.Errorf("Get = %q, %v, %v", got, ok, err)
	}

	info, err := os.Stat(filepath.Join(s.Dir(), "persistStore.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "persistStore.json.tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestStorage_KeysWithSlashes(t *testing.T) {
	s, err := NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for _, k := range []string{"app/user", "app/cart", "plain"} {
		if err := s.Set(ctx, k, "{}"); err != nil {
			t.Fatalf("Set %s: %v", k, err)
		}
	}
	if err := os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	keys, err := s.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if want := []string{"app/cart", "app/user", "plain"}; !reflect.DeepEqual(keys, want) {
		t.Errorf("Keys = %v, want %v", keys, want)
	}

	if err := s.Delete(ctx, "app/user"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "app/user"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "app/user"); ok {
		t.Error("deleted key still present")
	}
}
