package auth

import (
	"fmt"
	"strings"
	"time"
)

// Role is the coarse access level of a user.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleClient Role = "client"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleClient:
		return true
	}
	return false
}

// ParseRole normalizes s and checks it against the known roles.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: role must be admin, staff or client", ErrInvalidInput)
	}
	return r, nil
}

// User is a stored account. Users are deactivated, never deleted.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Role         Role       `json:"role"`
	ClientID     string     `json:"client_id,omitempty"`
	Active       bool       `json:"active"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Identity is the caller as asserted by a verified access token.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	ClientID string `json:"client_id,omitempty"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }

// IsOperator reports whether the caller works for the storage operator (admin or staff).
func (i Identity) IsOperator() bool { return i.Role == RoleAdmin || i.Role == RoleStaff }

// RevokedToken is a revocation ledger row.
type RevokedToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	RevokedAt time.Time
}

// ValidateTenant enforces that a tenant is set for client users and only for them.
func ValidateTenant(role Role, clientID string) error {
	clientID = strings.TrimSpace(clientID)
	switch {
	case role == RoleClient && clientID == "":
		return fmt.Errorf("%w: client_id is required for client role", ErrInvalidInput)
	case role != RoleClient && clientID != "":
		return fmt.Errorf("%w: client_id is only allowed for client role", ErrInvalidInput)
	}
	return nil
}
