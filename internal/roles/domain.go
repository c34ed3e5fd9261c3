package roles

import (
	"sort"
	"time"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// Status is the lifecycle state of a role.
type Status string

// Role statuses.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusActive || s == StatusInactive
}

// Field limits.
const (
	MaxNameLength        = 100
	MaxDescriptionLength = 150
)

// Role represents a role for management.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IsActive reports whether the role is active.
func (r Role) IsActive() bool { return r.Status == StatusActive }

// HasPermission reports whether slug is in the role's permission set.
func (r Role) HasPermission(slug string) bool {
	slug = shared.NormalizeSlug(slug)
	i := sort.SearchStrings(r.Permissions, slug)
	return i < len(r.Permissions) && r.Permissions[i] == slug
}

// CreateInput carries the fields of a new role.
type CreateInput struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description" validate:"required,max=150"`
	Status      Status `json:"status" validate:"omitempty,oneof=active inactive"`
}

// UpdateInput carries changed fields. Nil fields are left alone.
type UpdateInput struct {
	Name        *string `json:"name" validate:"omitnil,required,max=100"`
	Description *string `json:"description" validate:"omitnil,required,max=150"`
	Status      *Status `json:"status" validate:"omitnil,oneof=active inactive"`
}

// ListFilters narrows and orders role listings.
type ListFilters struct {
	Status  Status
	SortBy  string
	SortDir string
	Page    int
	PerPage int
}

// Page is one page of a role listing.
type Page struct {
	Roles      []Role            `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

// Assignments counts the active memberships of one role.
type Assignments struct {
	RoleID int64  `json:"role_id"`
	Name   string `json:"name"`
	Active int    `json:"active_assignments"`
}

// Stats summarises the role table.
type Stats struct {
	Total    int           `json:"total"`
	Active   int           `json:"active"`
	Inactive int           `json:"inactive"`
	PerRole  []Assignments `json:"per_role"`
}

// Member is a user holding an active membership to a role.
type Member struct {
	UserID     int64     `json:"user_id"`
	Name       string    `json:"name"`
	Surname    string    `json:"surname"`
	Email      string    `json:"email"`
	AssignedBy int64     `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

func insertSlug(set []string, slug string) []string {
	i := sort.SearchStrings(set, slug)
	if i < len(set) && set[i] == slug {
		return set
	}
	out := make([]string, 0, len(set)+1)
	out = append(out, set[:i]...)
	out = append(out, slug)
	return append(out, set[i:]...)
}

func removeSlug(set []string, slug string) []string {
	i := sort.SearchStrings(set, slug)
	if i == len(set) || set[i] != slug {
		return set
	}
	out := make([]string, 0, len(set)-1)
	out = append(out, set[:i]...)
	return append(out, set[i+1:]...)
}
