package auth

import (
	"time"

	"github.com/veeduria/veeduria-api/internal/users"
)

// Account is the credential view of a user.
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	Status       users.Status
}

// CanLogin reports whether the account may obtain tokens. Only approved
// accounts qualify; pending self-registrations wait for an administrator.
func (a Account) CanLogin() bool {
	return a.Status == users.StatusApproved
}

// Credentials is the token request body.
type Credentials struct {
	Email    string `json:"email" validate:"required,email,max=150"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// Token is the issued bearer token.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"expires_at"`
}
