// Package identity issues, resolves and revokes opaque bearer tokens.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/store"
)

// tokenBytes gives 32 hex characters once encoded.
const tokenBytes = 16

var (
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrTokenNotFound   = user.ErrTokenNotFound
)

type Store struct {
	users  store.UserRepository
	tokens store.TokenRepository
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL makes ResolveToken reject tokens issued longer than ttl ago.
// Zero keeps tokens valid until revoked.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) { s.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(repos store.Repos, opts ...Option) *Store {
	s := &Store{
		users:  repos.Users,
		tokens: repos.Tokens,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bind returns a copy of s that reads and writes through repos, typically the
// repositories of an open transaction.
func (s *Store) Bind(repos store.Repos) *Store {
	cp := *s
	cp.users = repos.Users
	cp.tokens = repos.Tokens
	return &cp
}

func (s *Store) ResolveToken(ctx context.Context, value string) (user.User, error) {
	if value == "" {
		return user.User{}, ErrUnauthenticated
	}

	tok, err := s.tokens.GetByValue(ctx, value)
	if err != nil {
		if errors.Is(err, user.ErrTokenNotFound) {
			return user.User{}, ErrUnauthenticated
		}
		return user.User{}, fmt.Errorf("resolve token: %w", err)
	}

	if s.ttl > 0 && s.now().Sub(tok.IssuedAt) > s.ttl {
		return user.User{}, ErrUnauthenticated
	}

	u, err := s.users.GetByID(ctx, tok.UserID)
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, ErrUnauthenticated
		}
		return user.User{}, fmt.Errorf("resolve token owner: %w", err)
	}
	return u, nil
}

func (s *Store) IssueToken(ctx context.Context, u user.User) (user.Token, error) {
	value, err := newTokenValue()
	if err != nil {
		return user.Token{}, err
	}

	tok, err := s.tokens.Create(ctx, user.Token{
		Value:    value,
		UserID:   u.ID,
		IssuedAt: s.now(),
	})
	if err != nil {
		return user.Token{}, fmt.Errorf("issue token: %w", err)
	}
	return tok, nil
}

// RevokeToken deletes value only when it belongs to u. Any other token,
// including another user's token with the same value, is left intact.
func (s *Store) RevokeToken(ctx context.Context, u user.User, value string) error {
	if value == "" {
		return ErrTokenNotFound
	}
	return s.tokens.DeleteForUser(ctx, u.ID, value)
}

func newTokenValue() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
