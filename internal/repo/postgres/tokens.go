package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/jackc/pgx/v5"
)

type TokensRepo struct {
	db   DBTX
	prom *observability.Prom
}

func NewTokensRepo(db DBTX, prom *observability.Prom) *TokensRepo {
	return &TokensRepo{db: db, prom: prom}
}

func (r *TokensRepo) Create(ctx context.Context, t user.Token) (user.Token, error) {
	err := observe(r.prom, "tokens.create", func() error {
		return r.db.QueryRow(ctx,
			`INSERT INTO tokens (token, user_id, issued_at)
			VALUES ($1, $2, $3)
			RETURNING id`,
			t.Value, t.UserID, t.IssuedAt,
		).Scan(&t.ID)
	})

	if err != nil {
		if code, _ := pgErrorCode(err); code == codeForeignKeyViolation {
			return user.Token{}, user.ErrNotFound
		}
		return user.Token{}, err
	}
	return t, nil
}

func (r *TokensRepo) GetByValue(ctx context.Context, value string) (user.Token, error) {
	var t user.Token

	err := observe(r.prom, "tokens.get_by_value", func() error {
		return r.db.QueryRow(ctx,
			`SELECT id, token, user_id, issued_at FROM tokens WHERE token = $1`,
			value,
		).Scan(&t.ID, &t.Value, &t.UserID, &t.IssuedAt)
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.Token{}, user.ErrTokenNotFound
		}
		return user.Token{}, err
	}
	return t, nil
}

func (r *TokensRepo) DeleteForUser(ctx context.Context, userID int64, value string) error {
	var deleted int64

	err := observe(r.prom, "tokens.delete_for_user", func() error {
		tag, err := r.db.Exec(ctx, `DELETE FROM tokens WHERE user_id = $1 AND token = $2`, userID, value)
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return err
	}

	if deleted == 0 {
		return user.ErrTokenNotFound
	}
	return nil
}
