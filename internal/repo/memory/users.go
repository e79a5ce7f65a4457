package memory

import (
	"context"
	"strings"
	"time"

	"github.com/geocoder89/taskflow/internal/domain/user"
)

type UsersRepo struct {
	s *Store
}

func (r *UsersRepo) Create(ctx context.Context, u user.User) (user.User, error) {
	err := r.s.write(func(t *tables) error {
		for _, existing := range t.users {
			if strings.EqualFold(existing.Email, u.Email) {
				return user.ErrEmailTaken
			}
		}

		u.ID = t.nextID()
		if u.CreatedAt.IsZero() {
			u.CreatedAt = time.Now().UTC()
		}
		t.users[u.ID] = u
		return nil
	})
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetByID(ctx context.Context, id int64) (user.User, error) {
	var u user.User
	err := r.s.read(func(t *tables) error {
		found, ok := t.users[id]
		if !ok {
			return user.ErrNotFound
		}
		u = found
		return nil
	})
	return u, err
}

func (r *UsersRepo) GetByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User
	err := r.s.read(func(t *tables) error {
		for _, existing := range t.users {
			if strings.EqualFold(existing.Email, email) {
				u = existing
				return nil
			}
		}
		return user.ErrNotFound
	})
	return u, err
}
