package rbac

import (
	"errors"
	"strings"
)

// RoleName is a named bundle of permissions drawn from the catalog.
type RoleName string

// PermissionName is an atomic capability drawn from the catalog.
type PermissionName string

const (
	RoleAdmin   RoleName = "ADMIN"
	RoleManager RoleName = "MANAGER"
	RoleUser    RoleName = "USER"
)

const (
	CreateTask PermissionName = "CREATE_TASK"
	UpdateTask PermissionName = "UPDATE_TASK"
	DeleteTask PermissionName = "DELETE_TASK"
	ReadTask   PermissionName = "READ_TASK"
)

var (
	ErrRoleNotFound       = errors.New("role not found")
	ErrPermissionNotFound = errors.New("permission not found")
)

type Role struct {
	ID   int64    `json:"id"`
	Name RoleName `json:"name"`
}

type Permission struct {
	ID          int64          `json:"id"`
	AccessLevel PermissionName `json:"access_level"`
}

type UserRole struct {
	ID     int64 `json:"id"`
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

type RolePermission struct {
	ID           int64 `json:"id"`
	RoleID       int64 `json:"role_id"`
	PermissionID int64 `json:"permission_id"`
}

// ParseRoleName normalizes user input ("admin", " Admin ") to a RoleName.
// It does not check catalog membership.
func ParseRoleName(raw string) RoleName {
	return RoleName(strings.ToUpper(strings.TrimSpace(raw)))
}
