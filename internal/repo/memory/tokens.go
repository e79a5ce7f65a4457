package memory

import (
	"context"
	"errors"

	"github.com/geocoder89/taskflow/internal/domain/user"
)

var errDuplicateToken = errors.New("token already exists")

type TokensRepo struct {
	s *Store
}

func (r *TokensRepo) Create(ctx context.Context, tok user.Token) (user.Token, error) {
	err := r.s.write(func(t *tables) error {
		if _, ok := t.users[tok.UserID]; !ok {
			return user.ErrNotFound
		}
		if _, dup := t.tokens[tok.Value]; dup {
			return errDuplicateToken
		}
		tok.ID = t.nextID()
		t.tokens[tok.Value] = tok
		return nil
	})
	if err != nil {
		return user.Token{}, err
	}
	return tok, nil
}

func (r *TokensRepo) GetByValue(ctx context.Context, value string) (user.Token, error) {
	var tok user.Token
	err := r.s.read(func(t *tables) error {
		found, ok := t.tokens[value]
		if !ok {
			return user.ErrTokenNotFound
		}
		tok = found
		return nil
	})
	return tok, err
}

func (r *TokensRepo) DeleteForUser(ctx context.Context, userID int64, value string) error {
	return r.s.write(func(t *tables) error {
		found, ok := t.tokens[value]
		if !ok || found.UserID != userID {
			return user.ErrTokenNotFound
		}
		delete(t.tokens, value)
		return nil
	})
}
