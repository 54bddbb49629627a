// Package sealed encrypts stored values at rest. It wraps any storage and
// seals each value with XChaCha20-Poly1305 under a key derived from a
// passphrase with scrypt.
package sealed

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/artpar/statekit/ports"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"
)

// formatVersion is the envelope version written by Set.
const formatVersion = 1

var (
	// ErrWrongPassphrase is returned when a value cannot be opened, either
	// because the passphrase differs or the value was modified.
	ErrWrongPassphrase = errors.New("wrong passphrase or corrupted value")

	// ErrNotSealed is returned for stored values that are not envelopes.
	ErrNotSealed = errors.New("value is not sealed")

	// ErrEmptyPassphrase is returned by New for an empty passphrase.
	ErrEmptyPassphrase = errors.New("passphrase is required")
)

// envelope is the stored JSON structure holding the ciphertext and KDF parameters.
type envelope struct {
	V      int    `json:"v"`
	Salt   []byte `json:"salt"`
	N      int    `json:"scrypt_N"`
	R      int    `json:"scrypt_r"`
	P      int    `json:"scrypt_p"`
	Nonce  []byte `json:"nonce"`
	Cipher []byte `json:"cipher"`
}

// Params are the scrypt cost parameters used for new values.
type Params struct {
	N, R, P int
}

// DefaultParams are the interactive-login parameters recommended by scrypt.
var DefaultParams = Params{N: 1 << 15, R: 8, P: 1}

// Option configures a Storage.
type Option func(*Storage)

// WithParams sets the scrypt parameters for new values. Existing values keep
// the parameters they were sealed with.
func WithParams(p Params) Option {
	return func(s *Storage) {
		s.params = p
	}
}

// Storage seals values before handing them to the wrapped storage.
type Storage struct {
	inner      ports.Storage
	passphrase []byte
	params     Params
}

// New wraps inner.
func New(inner ports.Storage, passphrase string, opts ...Option) (*Storage, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	s := &Storage{
		inner:      inner,
		passphrase: []byte(passphrase),
		params:     DefaultParams,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Get opens the value stored at key.
func (s *Storage) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.open(key, []byte(raw))
	if err != nil {
		return "", false, fmt.Errorf("open %s: %w", key, err)
	}
	return string(plain), true, nil
}

// Set seals value and stores it at key. The key is bound to the ciphertext,
// so a value moved to another key fails to open.
func (s *Storage) Set(ctx context.Context, key, value string) error {
	sealed, err := s.seal(key, []byte(value))
	if err != nil {
		return fmt.Errorf("seal %s: %w", key, err)
	}
	return s.inner.Set(ctx, key, string(sealed))
}

// Delete removes key when the wrapped storage supports deletion.
func (s *Storage) Delete(ctx context.Context, key string) error {
	deleter, ok := s.inner.(ports.Deleter)
	if !ok {
		return errors.New("wrapped storage cannot delete keys")
	}
	return deleter.Delete(ctx, key)
}

// Keys lists the wrapped storage's keys when it supports listing.
func (s *Storage) Keys(ctx context.Context) ([]string, error) {
	lister, ok := s.inner.(ports.KeyLister)
	if !ok {
		return nil, errors.New("wrapped storage cannot list keys")
	}
	return lister.Keys(ctx)
}

func (s *Storage) seal(key string, plain []byte) ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	aead, err := s.aead(salt, s.params)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	return json.Marshal(envelope{
		V:      formatVersion,
		Salt:   salt,
		N:      s.params.N,
		R:      s.params.R,
		P:      s.params.P,
		Nonce:  nonce,
		Cipher: aead.Seal(nil, nonce, plain, []byte(key)),
	})
}

func (s *Storage) open(key string, data []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.V == 0 || len(env.Cipher) == 0 {
		return nil, ErrNotSealed
	}
	if env.V > formatVersion {
		return nil, fmt.Errorf("unsupported envelope version %d", env.V)
	}

	aead, err := s.aead(env.Salt, Params{N: env.N, R: env.R, P: env.P})
	if err != nil {
		return nil, err
	}
	if len(env.Nonce) != aead.NonceSize() {
		return nil, ErrWrongPassphrase
	}
	plain, err := aead.Open(nil, env.Nonce, env.Cipher, []byte(key))
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func (s *Storage) aead(salt []byte, p Params) (cipher.AEAD, error) {
	key, err := scrypt.Key(s.passphrase, salt, p.N, p.R, p.P, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(key)
}

var (
	_ ports.Storage   = (*Storage)(nil)
	_ ports.KeyLister = (*Storage)(nil)
	_ ports.Deleter   = (*Storage)(nil)
)
