package authz

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/store"
)

// SeedReport counts the rows a seeding run had to create. A run against an
// already seeded store reports zeros.
type SeedReport struct {
	CatalogVersion     int `json:"catalog_version"`
	RolesCreated       int `json:"roles_created"`
	PermissionsCreated int `json:"permissions_created"`
	GrantsCreated      int `json:"grants_created"`
}

func (r SeedReport) Changed() bool {
	return r.RolesCreated+r.PermissionsCreated+r.GrantsCreated > 0
}

// Invalidator is notified once a seeding run has committed.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

type Seeder struct {
	tx          store.TxRunner
	catalog     rbac.Catalog
	invalidator Invalidator
	log         *slog.Logger
}

func NewSeeder(tx store.TxRunner, catalog rbac.Catalog, invalidator Invalidator, log *slog.Logger) *Seeder {
	if log == nil {
		log = slog.Default()
	}
	return &Seeder{tx: tx, catalog: catalog, invalidator: invalidator, log: log}
}

// EnsureCatalog makes the store contain every role, permission and grant of
// the catalog. All writes share one transaction: on any error nothing is
// committed and the error is returned.
func (s *Seeder) EnsureCatalog(ctx context.Context) (SeedReport, error) {
	report := SeedReport{CatalogVersion: s.catalog.Version}

	if err := s.catalog.Validate(); err != nil {
		return report, err
	}

	err := s.tx.WithinTx(ctx, func(repos store.Repos) error {
		var err error
		report.RolesCreated, report.PermissionsCreated, report.GrantsCreated, err = s.seed(ctx, repos.RBAC)
		return err
	})
	if err != nil {
		return SeedReport{CatalogVersion: s.catalog.Version}, fmt.Errorf("seed rbac catalog v%d: %w", s.catalog.Version, err)
	}

	if report.Changed() && s.invalidator != nil {
		if err := s.invalidator.InvalidateAll(ctx); err != nil {
			s.log.WarnContext(ctx, "authz cache flush after seeding failed", "err", err)
		}
	}

	s.log.InfoContext(ctx, "rbac catalog ensured",
		"catalog_version", report.CatalogVersion,
		"roles_created", report.RolesCreated,
		"permissions_created", report.PermissionsCreated,
		"grants_created", report.GrantsCreated,
	)
	return report, nil
}

func (s *Seeder) seed(ctx context.Context, graph store.RBACRepository) (roles, perms, grants int, err error) {
	existingRoles, err := graph.ListRoles(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list roles: %w", err)
	}
	roleIDs := make(map[rbac.RoleName]int64, len(existingRoles))
	for _, r := range existingRoles {
		roleIDs[r.Name] = r.ID
	}

	for _, name := range s.catalog.Roles {
		if _, ok := roleIDs[name]; ok {
			continue
		}
		role, created, err := graph.FindOrCreateRole(ctx, name)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("create role %s: %w", name, err)
		}
		roleIDs[name] = role.ID
		if created {
			roles++
		}
	}

	existingPerms, err := graph.ListPermissions(ctx)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("list permissions: %w", err)
	}
	permIDs := make(map[rbac.PermissionName]int64, len(existingPerms))
	for _, p := range existingPerms {
		permIDs[p.AccessLevel] = p.ID
	}

	for _, name := range s.catalog.Permissions {
		if _, ok := permIDs[name]; ok {
			continue
		}
		p, created, err := graph.FindOrCreatePermission(ctx, name)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("create permission %s: %w", name, err)
		}
		permIDs[name] = p.ID
		if created {
			perms++
		}
	}

	for _, roleName := range s.catalog.Roles {
		for _, permName := range s.catalog.Granted(roleName) {
			roleID, permID := roleIDs[roleName], permIDs[permName]

			has, err := graph.HasRolePermission(ctx, roleID, permID)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("check grant %s->%s: %w", roleName, permName, err)
			}
			if has {
				continue
			}

			created, err := graph.AssignPermission(ctx, roleID, permID)
			if err != nil {
				return 0, 0, 0, fmt.Errorf("grant %s->%s: %w", roleName, permName, err)
			}
			if created {
				grants++
			}
		}
	}

	return roles, perms, grants, nil
}
