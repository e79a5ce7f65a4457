package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/repo/memory"
	"github.com/geocoder89/taskflow/internal/store"
	"github.com/stretchr/testify/require"
)

var allPermissions = []rbac.PermissionName{rbac.CreateTask, rbac.UpdateTask, rbac.DeleteTask, rbac.ReadTask}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	mem := memory.NewStore()
	_, err := NewSeeder(mem, rbac.DefaultCatalog(), nil, nil).EnsureCatalog(context.Background())
	require.NoError(t, err)
	return mem
}

func createUser(t *testing.T, repos store.Repos, email string, roles ...rbac.RoleName) user.User {
	t.Helper()
	ctx := context.Background()

	u, err := repos.Users.Create(ctx, user.User{Email: email, PasswordHash: "x", FirstName: "F", LastName: "L"})
	require.NoError(t, err)

	for _, name := range roles {
		role, err := repos.RBAC.GetRoleByName(ctx, name)
		require.NoError(t, err)
		_, err = repos.RBAC.FindOrCreateUserRole(ctx, u.ID, role.ID)
		require.NoError(t, err)
	}
	return u
}

// flakyGraph fails the nth call to AssignPermission.
type flakyGraph struct {
	store.RBACRepository
	failAt int
	calls  int
}

var errInjected = errors.New("injected failure")

func (f *flakyGraph) AssignPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	f.calls++
	if f.calls == f.failAt {
		return false, errInjected
	}
	return f.RBACRepository.AssignPermission(ctx, roleID, permissionID)
}

// flakyTx hands fn repos whose graph is wrapped by flakyGraph.
type flakyTx struct {
	inner  store.TxRunner
	failAt int
}

func (f flakyTx) WithinTx(ctx context.Context, fn func(store.Repos) error) error {
	return f.inner.WithinTx(ctx, func(r store.Repos) error {
		r.RBAC = &flakyGraph{RBACRepository: r.RBAC, failAt: f.failAt}
		return fn(r)
	})
}

// laggingGraph reports empty role and permission lists, like a replica that
// listed before a concurrent seeder committed the same rows.
type laggingGraph struct {
	store.RBACRepository
}

func (laggingGraph) ListRoles(context.Context) ([]rbac.Role, error) { return nil, nil }

func (laggingGraph) ListPermissions(context.Context) ([]rbac.Permission, error) { return nil, nil }

type laggingTx struct {
	inner store.TxRunner
}

func (l laggingTx) WithinTx(ctx context.Context, fn func(store.Repos) error) error {
	return l.inner.WithinTx(ctx, func(r store.Repos) error {
		r.RBAC = laggingGraph{RBACRepository: r.RBAC}
		return fn(r)
	})
}
