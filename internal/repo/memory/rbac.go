package memory

import (
	"context"
	"sort"

	"github.com/geocoder89/taskflow/internal/domain/rbac"
	"github.com/geocoder89/taskflow/internal/domain/user"
)

type RBACRepo struct {
	s *Store
}

func (r *RBACRepo) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	var out []rbac.Role
	err := r.s.read(func(t *tables) error {
		out = make([]rbac.Role, 0, len(t.roles))
		for _, role := range t.roles {
			out = append(out, role)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *RBACRepo) ListPermissions(ctx context.Context) ([]rbac.Permission, error) {
	var out []rbac.Permission
	err := r.s.read(func(t *tables) error {
		out = make([]rbac.Permission, 0, len(t.permissions))
		for _, p := range t.permissions {
			out = append(out, p)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *RBACRepo) GetRoleByName(ctx context.Context, name rbac.RoleName) (rbac.Role, error) {
	var out rbac.Role
	err := r.s.read(func(t *tables) error {
		role, ok := t.roleByName(name)
		if !ok {
			return rbac.ErrRoleNotFound
		}
		out = role
		return nil
	})
	return out, err
}

func (r *RBACRepo) RolesOf(ctx context.Context, userID int64) ([]rbac.Role, error) {
	var out []rbac.Role
	err := r.s.read(func(t *tables) error {
		seen := make(map[int64]struct{})
		for _, ur := range t.userRoles {
			if ur.UserID != userID {
				continue
			}
			if _, dup := seen[ur.RoleID]; dup {
				continue
			}
			seen[ur.RoleID] = struct{}{}
			if role, ok := t.roles[ur.RoleID]; ok {
				out = append(out, role)
			}
		}
		return nil
	})
	return out, err
}

func (r *RBACRepo) PermissionsOf(ctx context.Context, roleID int64) ([]rbac.Permission, error) {
	var out []rbac.Permission
	err := r.s.read(func(t *tables) error {
		for _, rp := range t.rolePermissions {
			if rp.RoleID != roleID {
				continue
			}
			if p, ok := t.permissions[rp.PermissionID]; ok {
				out = append(out, p)
			}
		}
		return nil
	})
	return out, err
}

func (r *RBACRepo) PermissionNamesOf(ctx context.Context, userID int64) ([]rbac.PermissionName, error) {
	var out []rbac.PermissionName
	err := r.s.read(func(t *tables) error {
		roles := make(map[int64]struct{})
		for _, ur := range t.userRoles {
			if ur.UserID == userID {
				roles[ur.RoleID] = struct{}{}
			}
		}

		seen := make(map[rbac.PermissionName]struct{})
		for _, rp := range t.rolePermissions {
			if _, ok := roles[rp.RoleID]; !ok {
				continue
			}
			p, ok := t.permissions[rp.PermissionID]
			if !ok {
				continue
			}
			if _, dup := seen[p.AccessLevel]; dup {
				continue
			}
			seen[p.AccessLevel] = struct{}{}
			out = append(out, p.AccessLevel)
		}
		return nil
	})
	return out, err
}

func (r *RBACRepo) FindOrCreateRole(ctx context.Context, name rbac.RoleName) (rbac.Role, bool, error) {
	var (
		out     rbac.Role
		created bool
	)
	err := r.s.write(func(t *tables) error {
		if role, ok := t.roleByName(name); ok {
			out = role
			return nil
		}
		out = rbac.Role{ID: t.nextID(), Name: name}
		t.roles[out.ID] = out
		created = true
		return nil
	})
	return out, created, err
}

func (r *RBACRepo) FindOrCreatePermission(ctx context.Context, name rbac.PermissionName) (rbac.Permission, bool, error) {
	var (
		out     rbac.Permission
		created bool
	)
	err := r.s.write(func(t *tables) error {
		for _, p := range t.permissions {
			if p.AccessLevel == name {
				out = p
				return nil
			}
		}
		out = rbac.Permission{ID: t.nextID(), AccessLevel: name}
		t.permissions[out.ID] = out
		created = true
		return nil
	})
	return out, created, err
}

func (r *RBACRepo) HasRolePermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	var found bool
	err := r.s.read(func(t *tables) error {
		found = t.hasRolePermission(roleID, permissionID)
		return nil
	})
	return found, err
}

func (r *RBACRepo) AssignPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	var created bool
	err := r.s.write(func(t *tables) error {
		if _, ok := t.roles[roleID]; !ok {
			return rbac.ErrRoleNotFound
		}
		if _, ok := t.permissions[permissionID]; !ok {
			return rbac.ErrPermissionNotFound
		}
		if t.hasRolePermission(roleID, permissionID) {
			return nil
		}
		t.rolePermissions = append(t.rolePermissions, rbac.RolePermission{
			ID:           t.nextID(),
			RoleID:       roleID,
			PermissionID: permissionID,
		})
		created = true
		return nil
	})
	return created, err
}

func (r *RBACRepo) FindOrCreateUserRole(ctx context.Context, userID, roleID int64) (rbac.UserRole, error) {
	var out rbac.UserRole
	err := r.s.write(func(t *tables) error {
		if _, ok := t.users[userID]; !ok {
			return user.ErrNotFound
		}
		if _, ok := t.roles[roleID]; !ok {
			return rbac.ErrRoleNotFound
		}
		for _, ur := range t.userRoles {
			if ur.UserID == userID && ur.RoleID == roleID {
				out = ur
				return nil
			}
		}
		out = rbac.UserRole{ID: t.nextID(), UserID: userID, RoleID: roleID}
		t.userRoles = append(t.userRoles, out)
		return nil
	})
	return out, err
}

func (r *RBACRepo) RemoveUserRole(ctx context.Context, userID, roleID int64) error {
	return r.s.write(func(t *tables) error {
		kept := t.userRoles[:0]
		for _, ur := range t.userRoles {
			if ur.UserID == userID && ur.RoleID == roleID {
				continue
			}
			kept = append(kept, ur)
		}
		t.userRoles = kept
		return nil
	})
}

func (t *tables) roleByName(name rbac.RoleName) (rbac.Role, bool) {
	for _, role := range t.roles {
		if role.Name == name {
			return role, true
		}
	}
	return rbac.Role{}, false
}

func (t *tables) hasRolePermission(roleID, permissionID int64) bool {
	for _, rp := range t.rolePermissions {
		if rp.RoleID == roleID && rp.PermissionID == permissionID {
			return true
		}
	}
	return false
}
