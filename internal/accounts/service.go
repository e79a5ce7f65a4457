// Package accounts implements registration, sessions and role administration
// on top of the identity store and the role/permission graph.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/identity"
	"github.com/geocoder89/taskflow/internal/security"
	"github.com/geocoder89/taskflow/internal/store"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// PermissionSource is the slice of the authorization engine accounts needs.
type PermissionSource interface {
	PermissionsFor(ctx context.Context, userID int64) ([]rbac.PermissionName, error)
	Invalidate(ctx context.Context, userID int64) error
}

type Profile struct {
	User        user.User             `json:"user"`
	Roles       []rbac.RoleName       `json:"roles"`
	Permissions []rbac.PermissionName `json:"permissions"`
}

type AdminSpec struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type Service struct {
	tx          store.TxRunner
	repos       store.Repos
	ids         *identity.Store
	perms       PermissionSource
	hasher      *security.Hasher
	defaultRole rbac.RoleName
	log         *slog.Logger
}

// NewService registers new users under defaultRole, which must be part of the
// seeded catalog.
func NewService(tx store.TxRunner, repos store.Repos, ids *identity.Store, perms PermissionSource, hasher *security.Hasher, defaultRole rbac.RoleName, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{tx: tx, repos: repos, ids: ids, perms: perms, hasher: hasher, defaultRole: defaultRole, log: log}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates the user, gives them the catalog's default role and issues
// their first token, all in one transaction.
func (s *Service) Register(ctx context.Context, req user.RegisterRequest) (user.Token, error) {
	email := normalizeEmail(req.Email)

	hash, err := s.hasher.HashPassword(req.Password)
	if err != nil {
		return user.Token{}, fmt.Errorf("hash password: %w", err)
	}

	var tok user.Token
	err = s.tx.WithinTx(ctx, func(repos store.Repos) error {
		if _, err := repos.Users.GetByEmail(ctx, email); err == nil {
			return user.ErrEmailTaken
		} else if !errors.Is(err, user.ErrNotFound) {
			return err
		}

		u, err := repos.Users.Create(ctx, user.User{
			Email:        email,
			PasswordHash: hash,
			Phone:        req.Phone,
			FirstName:    strings.TrimSpace(req.FirstName),
			LastName:     strings.TrimSpace(req.LastName),
		})
		if err != nil {
			return err
		}

		role, err := repos.RBAC.GetRoleByName(ctx, s.defaultRole)
		if err != nil {
			return fmt.Errorf("default role %s: %w", s.defaultRole, err)
		}
		if _, err := repos.RBAC.FindOrCreateUserRole(ctx, u.ID, role.ID); err != nil {
			return fmt.Errorf("assign default role: %w", err)
		}

		tok, err = s.ids.Bind(repos).IssueToken(ctx, u)
		return err
	})
	if err != nil {
		return user.Token{}, err
	}

	s.log.InfoContext(ctx, "user registered", "user_id", tok.UserID)
	return tok, nil
}

func (s *Service) Login(ctx context.Context, req user.LoginRequest) (user.Token, error) {
	u, err := s.repos.Users.GetByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.Token{}, ErrInvalidCredentials
		}
		return user.Token{}, err
	}

	ok, err := s.hasher.Matches(u.PasswordHash, req.Password)
	if err != nil {
		return user.Token{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return user.Token{}, ErrInvalidCredentials
	}

	return s.ids.IssueToken(ctx, u)
}

func (s *Service) Logout(ctx context.Context, u user.User, token string) error {
	return s.ids.RevokeToken(ctx, u, token)
}

func (s *Service) Profile(ctx context.Context, u user.User) (Profile, error) {
	roles, err := s.repos.RBAC.RolesOf(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}

	perms, err := s.perms.PermissionsFor(ctx, u.ID)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{
		User:        u,
		Roles:       make([]rbac.RoleName, 0, len(roles)),
		Permissions: append([]rbac.PermissionName{}, perms...),
	}
	for _, r := range roles {
		p.Roles = append(p.Roles, r.Name)
	}
	return p, nil
}

// AssignRole grants an existing role to an existing user. Granting a role the
// user already holds is a no-op.
func (s *Service) AssignRole(ctx context.Context, userID int64, name rbac.RoleName) (rbac.UserRole, error) {
	role, err := s.repos.RBAC.GetRoleByName(ctx, name)
	if err != nil {
		return rbac.UserRole{}, err
	}

	ur, err := s.repos.RBAC.FindOrCreateUserRole(ctx, userID, role.ID)
	if err != nil {
		return rbac.UserRole{}, err
	}

	s.invalidate(ctx, userID)
	s.log.InfoContext(ctx, "role assigned", "user_id", userID, "role", name)
	return ur, nil
}

func (s *Service) RemoveRole(ctx context.Context, userID int64, name rbac.RoleName) error {
	role, err := s.repos.RBAC.GetRoleByName(ctx, name)
	if err != nil {
		return err
	}

	if _, err := s.repos.Users.GetByID(ctx, userID); err != nil {
		return err
	}

	if err := s.repos.RBAC.RemoveUserRole(ctx, userID, role.ID); err != nil {
		return err
	}

	s.invalidate(ctx, userID)
	s.log.InfoContext(ctx, "role removed", "user_id", userID, "role", name)
	return nil
}

// EnsureAdmin creates a superuser holding ADMIN when email and password are set and no
// account with that email exists yet. Existing accounts are left untouched.
func (s *Service) EnsureAdmin(ctx context.Context, spec AdminSpec) (bool, error) {
	if spec.Email == "" || spec.Password == "" {
		return false, nil
	}

	email := normalizeEmail(spec.Email)
	created := false

	err := s.tx.WithinTx(ctx, func(repos store.Repos) error {
		_, err := repos.Users.GetByEmail(ctx, email)
		if err == nil {
			return nil
		}
		if !errors.Is(err, user.ErrNotFound) {
			return err
		}

		hash, err := s.hasher.HashPassword(spec.Password)
		if err != nil {
			return err
		}

		u, err := repos.Users.Create(ctx, user.User{
			Email:        email,
			PasswordHash: hash,
			FirstName:    spec.FirstName,
			LastName:     spec.LastName,
			SuperUser:    true,
		})
		if err != nil {
			return err
		}

		admin, err := repos.RBAC.GetRoleByName(ctx, rbac.RoleAdmin)
		if err != nil {
			return fmt.Errorf("admin role missing, seed the catalog first: %w", err)
		}
		if _, err := repos.RBAC.FindOrCreateUserRole(ctx, u.ID, admin.ID); err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ensure admin user: %w", err)
	}

	if created {
		s.log.InfoContext(ctx, "admin user created", "email", email)
	}
	return created, nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if err := s.perms.Invalidate(ctx, userID); err != nil {
		s.log.WarnContext(ctx, "authz cache invalidation failed", "user_id", userID, "err", err)
	}
}
