package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/Siwa-Docsecure/base/internal/obs"
)

// TenantHint carries the tenant ids a request names, by source.
type TenantHint struct {
	Path  string
	Body  string
	Query string
}

// Resolve returns the tenant the request targets: path first, then body, then query.
func (h TenantHint) Resolve() string {
	for _, v := range []string{h.Path, h.Body, h.Query} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// Requirement is what a route demands of its caller. Zero fields are not checked.
type Requirement struct {
	Roles      []Role
	Permission Permission
	Tenant     *TenantHint
}

// Guard authorizes authenticated callers.
type Guard struct {
	perms  PermissionStore
	logger *slog.Logger
}

func NewGuard(perms PermissionStore, logger *slog.Logger) *Guard {
	return &Guard{perms: perms, logger: logger}
}

// CheckRole fails with ErrForbidden unless id holds one of allowed. An
// empty allow-set admits every role.
func CheckRole(id Identity, allowed ...Role) error {
	if len(allowed) == 0 || slices.Contains(allowed, id.Role) {
		return nil
	}
	return ErrForbidden
}

// CheckTenant lets admin and staff through. A client must name its own tenant.
func CheckTenant(id Identity, hint TenantHint) error {
	if id.IsOperator() {
		return nil
	}
	target := hint.Resolve()
	if target == "" || id.ClientID == "" || target != id.ClientID {
		return ErrForbidden
	}
	return nil
}

// CheckPermission allows admins outright. Everyone else needs the flag set
// in their stored permission row; a missing row denies.
func (g *Guard) CheckPermission(ctx context.Context, id Identity, perm Permission) error {
	if id.IsAdmin() {
		return nil
	}
	if !perm.Valid() {
		return ErrForbidden
	}
	set, err := g.perms.Permissions(ctx, id.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			obs.ResolveLogger(g.logger).Warn("permission row missing", "user_id", id.UserID)
			return ErrForbidden
		}
		return fmt.Errorf("load permissions: %w", err)
	}
	if !set.Has(perm) {
		return ErrForbidden
	}
	return nil
}

// Authorize runs role, permission and tenant checks in that order and stops at the first failure.
func (g *Guard) Authorize(ctx context.Context, id Identity, req Requirement) error {
	logger := obs.ResolveLogger(g.logger)
	if err := CheckRole(id, req.Roles...); err != nil {
		logger.Warn("access denied", "user_id", id.UserID, "role", id.Role, "check", "role")
		return err
	}
	if req.Permission != 0 {
		if err := g.CheckPermission(ctx, id, req.Permission); err != nil {
			if errors.Is(err, ErrForbidden) {
				logger.Warn("access denied", "user_id", id.UserID, "role", id.Role, "check", "permission")
			}
			return err
		}
	}
	if req.Tenant != nil {
		if err := CheckTenant(id, *req.Tenant); err != nil {
			logger.Warn("access denied", "user_id", id.UserID, "role", id.Role, "check", "tenant")
			return err
		}
	}
	return nil
}
