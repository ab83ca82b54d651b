package httpapi

import (
	"net/http"

	"github.com/Siwa-Docsecure/base/internal/auth"
)

func (a *API) userRoutes() {
	a.mux.HandleFunc("POST /api/users", a.adminOnly(a.createUser))
	a.mux.HandleFunc("GET /api/users/{userId}", a.adminOnly(a.getUser))
	a.mux.HandleFunc("PATCH /api/users/{userId}/activate", a.adminOnly(a.setActive(true)))
	a.mux.HandleFunc("PATCH /api/users/{userId}/deactivate", a.adminOnly(a.setActive(false)))
	a.mux.HandleFunc("PATCH /api/users/{userId}/role", a.adminOnly(a.changeRole))
	a.mux.HandleFunc("POST /api/users/{userId}/reset-password", a.adminOnly(a.resetPassword))
	a.mux.HandleFunc("GET /api/users/{userId}/permissions", a.adminOnly(a.getPermissions))
	a.mux.HandleFunc("PUT /api/users/{userId}/permissions", a.adminOnly(a.putPermissions))
	a.mux.HandleFunc("POST /api/users/{userId}/permissions/grant", a.adminOnly(a.togglePermission(true)))
	a.mux.HandleFunc("POST /api/users/{userId}/permissions/revoke", a.adminOnly(a.togglePermission(false)))
}

// parsePermissionMap accepts both can_create_boxes and canCreateBoxes keys.
func parsePermissionMap(in map[string]bool) (map[auth.Permission]bool, error) {
	out := make(map[auth.Permission]bool, len(in))
	for k, v := range in {
		p, err := auth.ParsePermission(k)
		if err != nil {
			return nil, err
		}
		out[p] = v
	}
	return out, nil
}

type createUserRequest struct {
	Username    string          `json:"username"`
	Email       string          `json:"email"`
	Password    string          `json:"password"`
	Role        string          `json:"role"`
	ClientID    string          `json:"client_id"`
	Permissions map[string]bool `json:"permissions"`
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	perms, err := parsePermissionMap(req.Permissions)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	user, set, err := a.accounts.CreateUser(r.Context(), identity(r), auth.NewUser{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		Role:        role,
		ClientID:    req.ClientID,
		Permissions: perms,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user, "permissions": set})
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, perms, err := a.accounts.Profile(r.Context(), r.PathValue("userId"))
	if err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "permissions": perms})
}

func (a *API) setActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := a.accounts.SetActive(r.Context(), identity(r), r.PathValue("userId"), active)
		if err != nil {
			a.fail(w, r, asUserError(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
	}
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role     string `json:"role"`
		ClientID string `json:"client_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	user, err := a.accounts.ChangeRole(r.Context(), identity(r), r.PathValue("userId"), role, req.ClientID)
	if err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

func (a *API) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewPassword string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if err := a.accounts.ResetPassword(r.Context(), identity(r), r.PathValue("userId"), req.NewPassword); err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password reset"})
}

func (a *API) getPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := a.accounts.Permissions(r.Context(), r.PathValue("userId"))
	if err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": r.PathValue("userId"), "permissions": perms})
}

func (a *API) putPermissions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permissions map[string]bool `json:"permissions"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	changes, err := parsePermissionMap(req.Permissions)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	perms, err := a.accounts.UpdatePermissions(r.Context(), identity(r), r.PathValue("userId"), changes)
	if err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": r.PathValue("userId"), "permissions": perms})
}

func (a *API) togglePermission(grant bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Permission string `json:"permission"`
		}
		if err := decodeJSON(r, &req); err != nil {
			badRequest(w, r, err.Error())
			return
		}
		perm, err := auth.ParsePermission(req.Permission)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		userID := r.PathValue("userId")
		var perms auth.PermissionSet
		if grant {
			perms, err = a.accounts.Grant(r.Context(), identity(r), userID, perm)
		} else {
			perms, err = a.accounts.Revoke(r.Context(), identity(r), userID, perm)
		}
		if err != nil {
			a.fail(w, r, asUserError(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "permissions": perms})
	}
}
