package users

import (
	"time"

	"github.com/veeduria/veeduria-api/internal/shared"
)

// DocumentType identifies the kind of identity document a user registers with.
type DocumentType string

// Document types.
const (
	DocumentCitizenID   DocumentType = "cc"
	DocumentForeignerID DocumentType = "ce"
	DocumentMinorID     DocumentType = "ti"
	DocumentPassport    DocumentType = "pp"
	DocumentTaxID       DocumentType = "nit"
)

// Status is the approval state of an account.
type Status string

// Account statuses.
const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusSuspended Status = "suspended"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusSuspended:
		return true
	}
	return false
}

// Approved reports whether the account has been cleared by an administrator.
func (u User) Approved() bool { return u.Status == StatusApproved }

// User represents a platform account with its role memberships.
type User struct {
	ID             int64              `json:"id"`
	Name           string             `json:"name"`
	Surname        string             `json:"surname"`
	Email          string             `json:"email"`
	DocumentNumber string             `json:"document_number"`
	DocumentType   DocumentType       `json:"document_type"`
	PrimaryRole    shared.PrimaryRole `json:"primary_role"`
	Status         Status             `json:"status"`
	PasswordHash   string             `json:"-"`
	Memberships    []Membership       `json:"memberships"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Membership links a user to a Role entity. It is independent of PrimaryRole.
// Roles requested at self-registration are stored inactive until an
// administrator assigns them.
type Membership struct {
	RoleID     int64     `json:"role_id"`
	AssignedBy int64     `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
	Active     bool      `json:"active"`
}

// ActiveRoleIDs returns the role ids of the user's active memberships.
func (u User) ActiveRoleIDs() []int64 {
	ids := make([]int64, 0, len(u.Memberships))
	for _, m := range u.Memberships {
		if m.Active {
			ids = append(ids, m.RoleID)
		}
	}
	return ids
}

// RegistrationInput is the self-registration payload.
type RegistrationInput struct {
	Name           string             `json:"name" validate:"required,max=100"`
	Surname        string             `json:"surname" validate:"required,max=100"`
	Email          string             `json:"email" validate:"required,email,max=150"`
	DocumentNumber string             `json:"document_number" validate:"required,max=20"`
	DocumentType   DocumentType       `json:"document_type" validate:"required,oneof=cc ce ti pp nit"`
	PrimaryRole    shared.PrimaryRole `json:"primary_role" validate:"required,oneof=cli ope adm adg"`
	Password       string             `json:"password" validate:"required,min=8,max=72"`
	RoleIDs        []int64            `json:"role_ids"`
}

// AssignInput is the payload of a membership assignment.
type AssignInput struct {
	RoleID int64 `json:"role_id"`
}

// StatusInput is the payload of an approval decision.
type StatusInput struct {
	Status Status `json:"status" validate:"required,oneof=pending approved rejected suspended"`
}
