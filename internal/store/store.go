// Package store declares the persistence contracts shared by the postgres and
// memory implementations.
package store

import (
	"context"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/task"
	"github.com/geocoder89/taskflow/internal/domain/user"
)

type UserRepository interface {
	Create(ctx context.Context, u user.User) (user.User, error)
	GetByID(ctx context.Context, id int64) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type TokenRepository interface {
	Create(ctx context.Context, t user.Token) (user.Token, error)
	GetByValue(ctx context.Context, value string) (user.Token, error)
	// DeleteForUser removes the token only when both owner and value match.
	DeleteForUser(ctx context.Context, userID int64, value string) error
}

// RBACRepository is the role/permission graph: both catalogs plus the
// user->role and role->permission relations.
type RBACRepository interface {
	ListRoles(ctx context.Context) ([]rbac.Role, error)
	ListPermissions(ctx context.Context) ([]rbac.Permission, error)
	GetRoleByName(ctx context.Context, name rbac.RoleName) (rbac.Role, error)

	RolesOf(ctx context.Context, userID int64) ([]rbac.Role, error)
	PermissionsOf(ctx context.Context, roleID int64) ([]rbac.Permission, error)
	// PermissionNamesOf resolves user -> role -> permission in one lookup.
	PermissionNamesOf(ctx context.Context, userID int64) ([]rbac.PermissionName, error)

	// created is false when the row already existed, including when a
	// concurrent writer inserted it first.
	FindOrCreateRole(ctx context.Context, name rbac.RoleName) (role rbac.Role, created bool, err error)
	FindOrCreatePermission(ctx context.Context, name rbac.PermissionName) (p rbac.Permission, created bool, err error)
	HasRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error)
	AssignPermission(ctx context.Context, roleID, permissionID int64) (created bool, err error)
	FindOrCreateUserRole(ctx context.Context, userID, roleID int64) (rbac.UserRole, error)
	RemoveUserRole(ctx context.Context, userID, roleID int64) error
}

type TaskRepository interface {
	Create(ctx context.Context, req task.CreateTaskRequest) (task.Task, error)
	List(ctx context.Context) ([]task.Task, error)
	GetByID(ctx context.Context, id int64) (task.Task, error)
	Update(ctx context.Context, id int64, req task.UpdateTaskRequest) (task.Task, error)
	Delete(ctx context.Context, id int64) error
}

// Repos bundles repositories bound to the same connection or transaction.
type Repos struct {
	Users  UserRepository
	Tokens TokenRepository
	RBAC   RBACRepository
	Tasks  TaskRepository
}

// TxRunner runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(Repos) error) error
}
