package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/jackc/pgx/v5"
)

type UsersRepo struct {
	db   DBTX
	prom *observability.Prom
}

func NewUsersRepo(db DBTX, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

const userColumns = `id, email, password_hash, phone, first_name, last_name, super_user, created_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Phone,
		&u.FirstName,
		&u.LastName,
		&u.SuperUser,
		&u.CreatedAt,
	)
	return u, err
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	var out user.User

	err := observe(r.prom, "users.create", func() error {
		var err error
		out, err = scanUser(r.db.QueryRow(ctx,
			`INSERT INTO users (email, password_hash, phone, first_name, last_name, super_user)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING `+userColumns,
			u.Email, u.PasswordHash, u.Phone, u.FirstName, u.LastName, u.SuperUser,
		))
		return err
	})

	if err != nil {
		if code, _ := pgErrorCode(err); code == codeUniqueViolation {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, err
	}
	return out, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User

	err := observe(r.prom, "users.get_by_id", func() error {
		var err error
		u, err = scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := observe(r.prom, "users.get_by_email", func() error {
		var err error
		u, err = scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
		return err
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, user.ErrNotFound
		}
		return user.User{}, err
	}
	return u, nil
}
