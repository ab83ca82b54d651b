package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/Siwa-Docsecure/base/internal/auth"
)

func (a *API) authRoutes() {
	a.mux.Handle("POST /api/auth/login", LoginRateLimit(http.HandlerFunc(a.login), a.loginBurst, a.loginPerMinute))
	a.mux.HandleFunc("POST /api/auth/refresh", a.refresh)
	a.mux.HandleFunc("POST /api/auth/verify-token", a.verifyToken)
	a.mux.HandleFunc("POST /api/auth/logout", a.anyRole(a.logout))
	a.mux.HandleFunc("GET /api/auth/profile", a.anyRole(a.profile))
	a.mux.HandleFunc("POST /api/auth/change-password", a.anyRole(a.changePassword))
}

type loginRequest struct {
	Login    string `json:"login"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	TokenType        string             `json:"token_type"`
	AccessToken      string             `json:"access_token"`
	RefreshToken     string             `json:"refresh_token"`
	AccessExpiresAt  time.Time          `json:"access_expires_at"`
	RefreshExpiresAt time.Time          `json:"refresh_expires_at"`
	ExpiresIn        int64              `json:"expires_in"`
	User             auth.User          `json:"user"`
	Permissions      auth.PermissionSet `json:"permissions"`
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	login := req.Login
	for _, v := range []string{req.Username, req.Email} {
		if strings.TrimSpace(login) == "" {
			login = v
		}
	}
	sess, err := a.accounts.Login(r.Context(), login, req.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		TokenType:        "Bearer",
		AccessToken:      sess.Tokens.AccessToken,
		RefreshToken:     sess.Tokens.RefreshToken,
		AccessExpiresAt:  sess.Tokens.AccessExpiresAt,
		RefreshExpiresAt: sess.Tokens.RefreshExpiresAt,
		ExpiresIn:        int64(a.tokens.AccessTTL().Seconds()),
		User:             sess.User,
		Permissions:      sess.Permissions,
	})
}

func (a *API) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		badRequest(w, r, "refresh_token is required")
		return
	}
	token, exp, err := a.tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":        "Bearer",
		"access_token":      token,
		"access_expires_at": exp,
		"expires_in":        int64(a.tokens.AccessTTL().Seconds()),
	})
}

func (a *API) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		badRequest(w, r, "token is required")
		return
	}
	claims, err := a.tokens.Verify(r.Context(), req.Token)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid":      true,
		"user":       claims.Identity(),
		"expires_at": claims.ExpiresAt.Time,
	})
}

func (a *API) logout(w http.ResponseWriter, r *http.Request) {
	token, _ := auth.TokenFromContext(r.Context())
	if err := a.accounts.Logout(r.Context(), identity(r), token); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (a *API) profile(w http.ResponseWriter, r *http.Request) {
	user, perms, err := a.accounts.Profile(r.Context(), identity(r).UserID)
	if err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "permissions": perms})
}

func (a *API) changePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CurrentPassword string `json:"current_password"`
		NewPassword     string `json:"new_password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, r, err.Error())
		return
	}
	if err := a.accounts.ChangePassword(r.Context(), identity(r), req.CurrentPassword, req.NewPassword); err != nil {
		a.fail(w, r, asUserError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "password changed"})
}
