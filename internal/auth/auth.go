// Package auth keeps the opaque bearer token the cloud backend needs. The
// only questions it answers are "is a valid token available" and "clear it".
package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gtank/cryptopasta"
	"github.com/rs/zerolog"

	"github.com/dvloznov/artho/internal/kv"
)

// Authenticator is what the sync module needs from token storage.
type Authenticator interface {
	Valid(ctx context.Context) (string, bool)
	Save(ctx context.Context, value string, expiresIn time.Duration) error
	Clear(ctx context.Context) error
}

// Token is a bearer token with a client-tracked expiry.
type Token struct {
	Value  string `json:"token"`
	Expiry int64  `json:"expiry"` // unix milliseconds
}

// Expired reports whether now is past the expiry.
func (t Token) Expired(now time.Time) bool {
	return now.UnixMilli() > t.Expiry
}

// Store persists the token in kv, optionally sealed with a secret key.
type Store struct {
	kv  kv.Store
	log zerolog.Logger
	key *[32]byte
	now func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithSealKey encrypts the stored token with a key derived from secret.
// Secrets shorter than 32 characters are rejected by config validation.
func WithSealKey(secret string) Option {
	return func(s *Store) {
		if secret == "" {
			return
		}
		key := &[32]byte{}
		copy(key[:], cryptopasta.Hash("artho token key", []byte(secret)))
		s.key = key
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a token store on top of store.
func NewStore(store kv.Store, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{kv: store, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save stores value, valid for expiresIn from now.
func (s *Store) Save(ctx context.Context, value string, expiresIn time.Duration) error {
	if value == "" {
		return fmt.Errorf("Save: empty token")
	}
	data, err := json.Marshal(Token{Value: value, Expiry: s.now().Add(expiresIn).UnixMilli()})
	if err != nil {
		return fmt.Errorf("Save: encoding token: %w", err)
	}
	stored := string(data)
	if s.key != nil {
		sealed, err := cryptopasta.Encrypt(data, s.key)
		if err != nil {
			return fmt.Errorf("Save: sealing token: %w", err)
		}
		stored = base64.RawURLEncoding.EncodeToString(sealed)
	}
	if err := s.kv.PutBatch(ctx, map[string]string{kv.KeyDriveToken: stored}); err != nil {
		return fmt.Errorf("Save: %w", err)
	}
	return nil
}

// Valid returns the stored token when one exists and has not expired. An
// expired or unreadable token is removed.
func (s *Store) Valid(ctx context.Context) (string, bool) {
	tok, err := s.load(ctx)
	if errors.Is(err, kv.ErrNotFound) {
		return "", false
	}
	if err != nil {
		s.log.Warn().Err(err).Msg("Discarding unreadable access token")
		_ = s.Clear(ctx)
		return "", false
	}
	if tok.Expired(s.now()) {
		s.log.Info().Msg("Access token expired")
		_ = s.Clear(ctx)
		return "", false
	}
	return tok.Value, true
}

func (s *Store) load(ctx context.Context) (Token, error) {
	raw, err := s.kv.Get(ctx, kv.KeyDriveToken)
	if err != nil {
		return Token{}, err
	}
	data := []byte(raw)
	if s.key != nil {
		sealed, err := base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return Token{}, fmt.Errorf("decoding sealed token: %w", err)
		}
		data, err = cryptopasta.Decrypt(sealed, s.key)
		if err != nil {
			return Token{}, fmt.Errorf("unsealing token: %w", err)
		}
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return Token{}, fmt.Errorf("decoding token: %w", err)
	}
	return tok, nil
}

// Clear removes the stored token.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, kv.KeyDriveToken); err != nil {
		return fmt.Errorf("Clear: %w", err)
	}
	return nil
}

// Ambient is the Authenticator for backends that authenticate through the
// environment (Application Default Credentials). It is always valid.
type Ambient struct{}

func (Ambient) Valid(context.Context) (string, bool) { return "", true }

func (Ambient) Save(context.Context, string, time.Duration) error { return nil }

func (Ambient) Clear(context.Context) error { return nil }
