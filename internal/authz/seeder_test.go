package authz

import (
	"context"
	"testing"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/repo/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type graphSnapshot struct {
	roles  []rbac.Role
	perms  []rbac.Permission
	grants map[rbac.RoleName][]rbac.PermissionName
}

func snapshot(t *testing.T, mem *memory.Store) graphSnapshot {
	t.Helper()
	ctx := context.Background()
	graph := mem.Repos().RBAC

	roles, err := graph.ListRoles(ctx)
	require.NoError(t, err)
	perms, err := graph.ListPermissions(ctx)
	require.NoError(t, err)

	grants := make(map[rbac.RoleName][]rbac.PermissionName)
	for _, r := range roles {
		ps, err := graph.PermissionsOf(ctx, r.ID)
		require.NoError(t, err)
		for _, p := range ps {
			grants[r.Name] = append(grants[r.Name], p.AccessLevel)
		}
	}
	return graphSnapshot{roles: roles, perms: perms, grants: grants}
}

func TestEnsureCatalog_FreshStore(t *testing.T) {
	mem := memory.NewStore()

	report, err := NewSeeder(mem, rbac.DefaultCatalog(), nil, nil).EnsureCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeedReport{CatalogVersion: 1, RolesCreated: 3, PermissionsCreated: 4, GrantsCreated: 9}, report)

	snap := snapshot(t, mem)
	assert.Len(t, snap.roles, 3)
	assert.Len(t, snap.perms, 4)
	assert.ElementsMatch(t, allPermissions, snap.grants[rbac.RoleAdmin])
	assert.ElementsMatch(t, allPermissions, snap.grants[rbac.RoleManager])
	assert.Equal(t, []rbac.PermissionName{rbac.ReadTask}, snap.grants[rbac.RoleUser])
}

func TestEnsureCatalog_Idempotent(t *testing.T) {
	mem := memory.NewStore()
	seeder := NewSeeder(mem, rbac.DefaultCatalog(), nil, nil)

	_, err := seeder.EnsureCatalog(context.Background())
	require.NoError(t, err)
	once := snapshot(t, mem)

	report, err := seeder.EnsureCatalog(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Changed())

	assert.Equal(t, once, snapshot(t, mem))
}

func TestEnsureCatalog_FillsPartialState(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	graph := mem.Repos().RBAC

	admin, _, err := graph.FindOrCreateRole(ctx, rbac.RoleAdmin)
	require.NoError(t, err)
	read, _, err := graph.FindOrCreatePermission(ctx, rbac.ReadTask)
	require.NoError(t, err)
	_, err = graph.AssignPermission(ctx, admin.ID, read.ID)
	require.NoError(t, err)

	report, err := NewSeeder(mem, rbac.DefaultCatalog(), nil, nil).EnsureCatalog(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, report.RolesCreated)
	assert.Equal(t, 3, report.PermissionsCreated)
	assert.Equal(t, 8, report.GrantsCreated)

	got, err := graph.GetRoleByName(ctx, rbac.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, got.ID)
}

func TestEnsureCatalog_RollsBackOnFailure(t *testing.T) {
	mem := memory.NewStore()

	_, err := NewSeeder(flakyTx{inner: mem, failAt: 5}, rbac.DefaultCatalog(), nil, nil).EnsureCatalog(context.Background())
	require.ErrorIs(t, err, errInjected)

	snap := snapshot(t, mem)
	assert.Empty(t, snap.roles)
	assert.Empty(t, snap.perms)
	assert.Empty(t, snap.grants)
}

func TestEnsureCatalog_InvalidCatalogTouchesNothing(t *testing.T) {
	mem := memory.NewStore()
	bad := rbac.DefaultCatalog()
	bad.Grants[rbac.RoleUser] = []rbac.PermissionName{"LAUNCH_ROCKETS"}

	_, err := NewSeeder(mem, bad, nil, nil).EnsureCatalog(context.Background())
	require.ErrorIs(t, err, rbac.ErrInvalidCatalog)
	assert.Empty(t, snapshot(t, mem).roles)
}

func TestEnsureCatalog_AlternateCatalog(t *testing.T) {
	mem := memory.NewStore()
	catalog := rbac.Catalog{
		Version:     2,
		DefaultRole: "AUDITOR",
		Roles:       []rbac.RoleName{"AUDITOR"},
		Permissions: []rbac.PermissionName{rbac.ReadTask},
		Grants:      map[rbac.RoleName][]rbac.PermissionName{"AUDITOR": {rbac.ReadTask}},
	}

	report, err := NewSeeder(mem, catalog, nil, nil).EnsureCatalog(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.CatalogVersion)

	u := createUser(t, mem.Repos(), "audit@example.com", "AUDITOR")
	engine := NewEngine(mem.Repos().RBAC)

	ok, err := engine.IsAuthorized(context.Background(), u, rbac.ReadTask)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.IsAuthorized(context.Background(), u, rbac.CreateTask)
	require.NoError(t, err)
	assert.False(t, ok)
}

type countingInvalidator struct{ calls int }

func (c *countingInvalidator) InvalidateAll(context.Context) error {
	c.calls++
	return nil
}

func TestEnsureCatalog_FlushesCacheOnlyOnChange(t *testing.T) {
	mem := memory.NewStore()
	inv := &countingInvalidator{}
	seeder := NewSeeder(mem, rbac.DefaultCatalog(), inv, nil)

	_, err := seeder.EnsureCatalog(context.Background())
	require.NoError(t, err)
	_, err = seeder.EnsureCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, inv.calls)
}

func TestEnsureCatalog_RowsInsertedElsewhereAreNotCounted(t *testing.T) {
	mem := seededStore(t)
	before := snapshot(t, mem)
	inv := &countingInvalidator{}

	report, err := NewSeeder(laggingTx{inner: mem}, rbac.DefaultCatalog(), inv, nil).EnsureCatalog(context.Background())
	require.NoError(t, err)

	assert.Equal(t, SeedReport{CatalogVersion: 1}, report)
	assert.Zero(t, inv.calls)
	assert.Equal(t, before, snapshot(t, mem))
}
