package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
	"github.com/geocoder89/taskflow/internal/observability"
	"github.com/jackc/pgx/v5"
)

type RBACRepo struct {
	db   DBTX
	prom *observability.Prom
}

func NewRBACRepo(db DBTX, prom *observability.Prom) *RBACRepo {
	return &RBACRepo{db: db, prom: prom}
}

func (r *RBACRepo) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	var out []rbac.Role
	err := observe(r.prom, "rbac.list_roles", func() error {
		var err error
		out, err = r.queryRoles(ctx, `SELECT id, name FROM roles ORDER BY id`)
		return err
	})
	return out, err
}

func (r *RBACRepo) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	var out []rbac.Permission
	err := observe(r.prom, "rbac.list_permissions", func() error {
		var err error
		out, err = r.queryPermissions(ctx, `SELECT id, access_level FROM permissions ORDER BY id`)
		return err
	})
	return out, err
}

func (r *RBACRepo) GetRoleByName(ctx context.Context, name rbac.RoleName) (rbac.Role, error) {
	var role rbac.Role
	err := observe(r.prom, "rbac.get_role_by_name", func() error {
		return r.db.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rbac.Role{}, rbac.ErrRoleNotFound
		}
		return rbac.Role{}, err
	}
	return role, nil
}

func (r *RBACRepo) RolesOf(ctx context.Context, userID int64) ([]rbac.Role, error) {
	var out []rbac.Role
	err := observe(r.prom, "rbac.roles_of", func() error {
		var err error
		out, err = r.queryRoles(ctx, `
			SELECT DISTINCT r.id, r.name
			FROM roles r
			JOIN user_roles ur ON ur.role_id = r.id
			WHERE ur.user_id = $1
			ORDER BY r.id`, userID)
		return err
	})
	return out, err
}

func (r *RBACRepo) PermissionsOf(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	var out []rbac.Permission
	err := observe(r.prom, "rbac.permissions_of", func() error {
		var err error
		out, err = r.queryPermissions(ctx, `
			SELECT p.id, p.access_level
			FROM permissions p
			JOIN role_permissions rp ON rp.permission_id = p.id
			WHERE rp.role_id = $1
			ORDER BY p.id`, roleID)
		return err
	})
	return out, err
}

func (r *RBACRepo) PermissionNamesOf(ctx context.Context, userID int64) ([]rbac.PermissionName, error) {
	var out []rbac.PermissionName
	err := observe(r.prom, "rbac.permission_names_of", func() error {
		rows, err := r.db.Query(ctx, `
			SELECT DISTINCT p.access_level
			FROM user_roles ur
			JOIN role_permissions rp ON rp.role_id = ur.role_id
			JOIN permissions p ON p.id = rp.permission_id
			WHERE ur.user_id = $1
			ORDER BY p.access_level`, userID)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name rbac.PermissionName
			if err := rows.Scan(&name); err != nil {
				return err
			}
			out = append(out, name)
		}
		return rows.Err()
	})
	return out, err
}

// FindOrCreateRole inserts first and falls back to a read, so two seeders
// racing on an empty table both end up with the same row.
func (r *RBACRepo) FindOrCreateRole(ctx context.Context, name rbac.RoleName) (rbac.Role, bool, error) {
	var (
		role    rbac.Role
		created bool
	)
	err := observe(r.prom, "rbac.find_or_create_role", func() error {
		err := r.db.QueryRow(ctx,
			`INSERT INTO roles (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id, name`,
			name,
		).Scan(&role.ID, &role.Name)
		if !errors.Is(err, pgx.ErrNoRows) {
			created = err == nil
			return err
		}
		return r.db.QueryRow(ctx, `SELECT id, name FROM roles WHERE name = $1`, name).Scan(&role.ID, &role.Name)
	})
	return role, created, err
}

func (r *RBACRepo) FindOrCreatePermission(ctx context.Context, name rbac.PermissionName) (rbac.Permission, bool, error) {
	var (
		p       rbac.Permission
		created bool
	)
	err := observe(r.prom, "rbac.find_or_create_permission", func() error {
		err := r.db.QueryRow(ctx,
			`INSERT INTO permissions (access_level) VALUES ($1) ON CONFLICT (access_level) DO NOTHING RETURNING id, access_level`,
			name,
		).Scan(&p.ID, &p.AccessLevel)
		if !errors.Is(err, pgx.ErrNoRows) {
			created = err == nil
			return err
		}
		return r.db.QueryRow(ctx, `SELECT id, access_level FROM permissions WHERE access_level = $1`, name).Scan(&p.ID, &p.AccessLevel)
	})
	return p, created, err
}

func (r *RBACRepo) HasRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	var exists bool
	err := observe(r.prom, "rbac.has_role_permission", func() error {
		return r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM role_permissions WHERE role_id = $1 AND permission_id = $2)`,
			roleID, permissionID,
		).Scan(&exists)
	})
	return exists, err
}

func (r *RBACRepo) AssignPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	var created bool
	err := observe(r.prom, "rbac.assign_permission", func() error {
		tag, err := r.db.Exec(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)
			ON CONFLICT (role_id, permission_id) DO NOTHING`,
			roleID, permissionID,
		)
		if err != nil {
			return err
		}
		created = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, classifyRBACError(err)
	}
	return created, nil
}

func (r *RBACRepo) FindOrCreateUserRole(ctx context.Context, userID, roleID int64) (rbac.UserRole, error) {
	var ur rbac.UserRole
	err := observe(r.prom, "rbac.find_or_create_user_role", func() error {
		err := r.db.QueryRow(ctx,
			`INSERT INTO user_roles (user_id, role_id) VALUES ($1, $2)
			ON CONFLICT (user_id, role_id) DO NOTHING
			RETURNING id, user_id, role_id`,
			userID, roleID,
		).Scan(&ur.ID, &ur.UserID, &ur.RoleID)
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		return r.db.QueryRow(ctx,
			`SELECT id, user_id, role_id FROM user_roles WHERE user_id = $1 AND role_id = $2`,
			userID, roleID,
		).Scan(&ur.ID, &ur.UserID, &ur.RoleID)
	})
	if err != nil {
		return rbac.UserRole{}, classifyRBACError(err)
	}
	return ur, nil
}

func (r *RBACRepo) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	return observe(r.prom, "rbac.remove_user_role", func() error {
		_, err := r.db.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
		return err
	})
}

func (r *RBACRepo) queryRoles(ctx context.Context, sql string, args ...any) ([]rbac.Role, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Role
	for rows.Next() {
		var role rbac.Role
		if err := rows.Scan(&role.ID, &role.Name); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

func (r *RBACRepo) queryPermissions(ctx context.Context, sql string, args ...any) ([]rbac.Permission, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Permission
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.ID, &p.AccessLevel); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// classifyRBACError maps foreign key failures on the join tables to the
// domain error for whichever side was missing.
func classifyRBACError(err error) error {
	code, constraint := pgErrorCode(err)
	if code != codeForeignKeyViolation {
		return err
	}
	switch {
	case strings.Contains(constraint, "user_id"):
		return user.ErrNotFound
	case strings.Contains(constraint, "permission_id"):
		return rbac.ErrPermissionNotFound
	default:
		return rbac.ErrRoleNotFound
	}
}
