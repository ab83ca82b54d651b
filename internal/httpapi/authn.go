package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/records"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var errMissingToken = errors.New("missing bearer token")

// authenticated verifies the bearer token and stores the caller identity
// and raw token in the request context.
func (a *API) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "authentication failed")
			return
		}
		claims, err := a.tokens.Verify(r.Context(), token)
		if err != nil {
			if auth.IsAuthenticationError(err) {
				writeError(w, r, http.StatusUnauthorized, "authentication failed")
				return
			}
			a.logger.Error("token verification", "error", err, "request_id", RequestIDFromContext(r.Context()))
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
		ctx = auth.ContextWithToken(ctx, token)
		next(w, r.WithContext(ctx))
	}
}

// protect authenticates, then checks role and permission. Tenant checks
// need the request data and are done by the handler.
func (a *API) protect(next http.HandlerFunc, roles []auth.Role, perm auth.Permission) http.HandlerFunc {
	return a.authenticated(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.IdentityFromContext(r.Context())
		if err := a.guard.Authorize(r.Context(), id, auth.Requirement{Roles: roles, Permission: perm}); err != nil {
			a.fail(w, r, err)
			return
		}
		next(w, r)
	})
}

func (a *API) anyRole(next http.HandlerFunc) http.HandlerFunc {
	return a.protect(next, nil, 0)
}

func (a *API) operators(next http.HandlerFunc, perm auth.Permission) http.HandlerFunc {
	return a.protect(next, []auth.Role{auth.RoleAdmin, auth.RoleStaff}, perm)
}

func (a *API) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return a.protect(next, []auth.Role{auth.RoleAdmin}, 0)
}

// identity returns the verified caller. Handlers are only reachable
// through authenticated, so the identity is always present.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func actor(r *http.Request) records.Actor {
	return records.ActorFromIdentity(identity(r), audit.OriginFromContext(r.Context()))
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errMissingToken
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errMissingToken
	}
	return token, nil
}
