package rbac

import (
	"context"

	"github.com/veeduria/veeduria-api/internal/roles"
	"github.com/veeduria/veeduria-api/internal/users"
)

// UserDirectory resolves users with their role memberships.
type UserDirectory interface {
	FindUser(ctx context.Context, id int64) (users.User, error)
}

// RoleSource resolves role ids to roles with their permission sets.
type RoleSource interface {
	FindMany(ctx context.Context, ids []int64) ([]roles.Role, error)
}

// Permission is the display metadata of a permission slug.
type Permission struct {
	Slug          string `json:"slug"`
	Category      string `json:"category"`
	Module        string `json:"module"`
	Function      string `json:"function"`
	Resource      string `json:"resource"`
	Action        string `json:"action"`
	RequiredLevel string `json:"required_level"`
}

// SlugResult is the outcome of one permission check.
type SlugResult struct {
	Slug    string `json:"slug"`
	Granted bool   `json:"granted"`
}

// PermissionReport aggregates a batch of permission checks.
type PermissionReport struct {
	UserID       int64        `json:"user_id"`
	Results      []SlugResult `json:"results"`
	AllGranted   bool         `json:"all_granted"`
	GrantedCount int          `json:"granted_count"`
	DeniedCount  int          `json:"denied_count"`
}

// RoleResult is the outcome of one primary role check.
type RoleResult struct {
	Role        string `json:"role"`
	Description string `json:"description,omitempty"`
	Granted     bool   `json:"granted"`
}

// RoleReport aggregates a batch of primary role checks.
type RoleReport struct {
	UserID       int64        `json:"user_id"`
	Results      []RoleResult `json:"results"`
	AnyGranted   bool         `json:"any_granted"`
	GrantedCount int          `json:"granted_count"`
	DeniedCount  int          `json:"denied_count"`
}

// SuperAdministratorRoleName names the Role entity checked by
// HasSuperAdministratorMembership.
const SuperAdministratorRoleName = "Administrador General"
