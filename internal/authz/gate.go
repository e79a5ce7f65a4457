package authz

import (
	"context"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
)

// Guard admits or rejects an already authenticated user.
type Guard func(ctx context.Context, u user.User) error

type Authenticator interface {
	ResolveToken(ctx context.Context, value string) (user.User, error)
}

type Authorizer interface {
	IsAuthorized(ctx context.Context, u user.User, p rbac.PermissionName) (bool, error)
}

// Gate runs token resolution first and guards second, so an unauthenticated
// caller never reaches a permission check.
type Gate struct {
	authn Authenticator
	authz Authorizer
}

func NewGate(authn Authenticator, authz Authorizer) *Gate {
	return &Gate{authn: authn, authz: authz}
}

func (g *Gate) Authenticate(ctx context.Context, token string) (user.User, error) {
	return g.authn.ResolveToken(ctx, token)
}

// RequirePermission builds a guard that fails with ErrForbidden unless the
// user holds p through one of their roles.
func (g *Gate) RequirePermission(p rbac.PermissionName) Guard {
	return func(ctx context.Context, u user.User) error {
		ok, err := g.authz.IsAuthorized(ctx, u, p)
		if err != nil {
			return err
		}
		if !ok {
			return ErrForbidden
		}
		return nil
	}
}

func (g *Gate) RequireSuperUser() Guard {
	return func(_ context.Context, u user.User) error {
		if !u.SuperUser {
			return ErrForbidden
		}
		return nil
	}
}

// Check authenticates token and then applies guards in order, stopping at the
// first rejection.
func (g *Gate) Check(ctx context.Context, token string, guards ...Guard) (user.User, error) {
	u, err := g.Authenticate(ctx, token)
	if err != nil {
		return user.User{}, err
	}
	for _, guard := range guards {
		if err := guard(ctx, u); err != nil {
			return user.User{}, err
		}
	}
	return u, nil
}
