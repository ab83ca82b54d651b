package auth

import (
	"context"
	"time"
)

// UserStore persists user accounts.
type UserStore interface {
	FindUser(ctx context.Context, id string) (User, error)
	// FindUserByLogin looks a user up by username or email.
	FindUserByLogin(ctx context.Context, login string) (User, error)
	// CreateUser stores the user together with its permission row.
	CreateUser(ctx context.Context, user User, perms PermissionSet) error
	UpdateUser(ctx context.Context, user User) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

// PermissionStore persists one PermissionSet per user. Permissions returns
// ErrNotFound when the user has no row.
type PermissionStore interface {
	Permissions(ctx context.Context, userID string) (PermissionSet, error)
	SetPermissions(ctx context.Context, userID string, perms PermissionSet) error
}

// RevocationStore is the revocation ledger.
type RevocationStore interface {
	// Revoke adds an entry. Revoking a hash twice is not an error.
	Revoke(ctx context.Context, token RevokedToken) error
	IsRevoked(ctx context.Context, tokenHash string) (bool, error)
	// PruneExpired removes entries whose original expiry is before now.
	PruneExpired(ctx context.Context, now time.Time) (int64, error)
}

// TenantChecker reports whether a tenant exists.
type TenantChecker interface {
	ClientExists(ctx context.Context, clientID string) (bool, error)
}
