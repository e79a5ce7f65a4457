package rbac

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

// Catalog is the versioned set of roles and permissions the system recognizes,
// together with the default role -> permission policy applied by the seeder.
type Catalog struct {
	Version     int                           `yaml:"version"`
	Roles       []RoleName                    `yaml:"roles"`
	Permissions []PermissionName              `yaml:"permissions"`
	Grants      map[RoleName][]PermissionName `yaml:"grants"`
	// DefaultRole is given to every newly registered user. Empty means USER.
	DefaultRole RoleName                      `yaml:"default_role"`
}

// DefaultCatalog returns the built-in policy table.
func DefaultCatalog() Catalog {
	all := []PermissionName{CreateTask, UpdateTask, DeleteTask, ReadTask}

	return Catalog{
		Version:     1,
		DefaultRole: RoleUser,
		Roles:       []RoleName{RoleAdmin, RoleManager, RoleUser},
		Permissions: all,
		Grants: map[RoleName][]PermissionName{
			RoleAdmin:   append([]PermissionName(nil), all...),
			RoleManager: append([]PermissionName(nil), all...),
			RoleUser:    {ReadTask},
		},
	}
}

// LoadCatalog reads a catalog from a YAML file and validates it.
func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Catalog{}, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}

	return c, nil
}

func (c Catalog) Validate() error {
	if len(c.Roles) == 0 {
		return fmt.Errorf("%w: no roles", ErrInvalidCatalog)
	}
	if len(c.Permissions) == 0 {
		return fmt.Errorf("%w: no permissions", ErrInvalidCatalog)
	}

	roles := make(map[RoleName]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		if r == "" {
			return fmt.Errorf("%w: empty role name", ErrInvalidCatalog)
		}
		if _, dup := roles[r]; dup {
			return fmt.Errorf("%w: duplicate role %s", ErrInvalidCatalog, r)
		}
		roles[r] = struct{}{}
	}

	perms := make(map[PermissionName]struct{}, len(c.Permissions))
	for _, p := range c.Permissions {
		if p == "" {
			return fmt.Errorf("%w: empty permission name", ErrInvalidCatalog)
		}
		if _, dup := perms[p]; dup {
			return fmt.Errorf("%w: duplicate permission %s", ErrInvalidCatalog, p)
		}
		perms[p] = struct{}{}
	}

	if _, ok := roles[c.RegistrationRole()]; !ok {
		return fmt.Errorf("%w: default role %s is not in the catalog", ErrInvalidCatalog, c.RegistrationRole())
	}

	for role, granted := range c.Grants {
		if _, ok := roles[role]; !ok {
			return fmt.Errorf("%w: grant for unknown role %s", ErrInvalidCatalog, role)
		}
		for _, p := range granted {
			if _, ok := perms[p]; !ok {
				return fmt.Errorf("%w: role %s granted unknown permission %s", ErrInvalidCatalog, role, p)
			}
		}
	}

	return nil
}

func (c Catalog) RegistrationRole() RoleName {
	if c.DefaultRole == "" {
		return RoleUser
	}
	return c.DefaultRole
}

func (c Catalog) HasRole(name RoleName) bool {
	for _, r := range c.Roles {
		if r == name {
			return true
		}
	}
	return false
}

func (c Catalog) HasPermission(name PermissionName) bool {
	for _, p := range c.Permissions {
		if p == name {
			return true
		}
	}
	return false
}

// Granted lists the permissions a role receives from the policy, in catalog order.
func (c Catalog) Granted(role RoleName) []PermissionName {
	want := make(map[PermissionName]struct{}, len(c.Grants[role]))
	for _, p := range c.Grants[role] {
		want[p] = struct{}{}
	}

	out := make([]PermissionName, 0, len(want))
	for _, p := range c.Permissions {
		if _, ok := want[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
