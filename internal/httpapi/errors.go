package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/records"
)

// userNotFound names the subject of a bare auth.ErrNotFound from the user store.
type userNotFound struct{ err error }

func (e userNotFound) Error() string { return e.err.Error() }
func (e userNotFound) Unwrap() error { return e.err }

func asUserError(err error) error {
	if errors.Is(err, auth.ErrNotFound) && detail(err, auth.ErrNotFound) == "" {
		return userNotFound{err: err}
	}
	return err
}

// fail maps a service error onto the HTTP error taxonomy. Internal details
// are logged, never returned.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		nf  records.NotFoundError
		unf userNotFound
	)
	switch {
	case auth.IsAuthenticationError(err):
		writeError(w, r, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, auth.ErrBadCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, auth.ErrForbidden), errors.Is(err, records.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "access denied")
	case errors.As(err, &nf):
		writeError(w, r, http.StatusNotFound, nf.Error())
	case errors.As(err, &unf):
		writeError(w, r, http.StatusNotFound, "user not found")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, notFoundMessage(detail(err, auth.ErrNotFound)))
	case errors.Is(err, records.ErrNotFound):
		writeError(w, r, http.StatusNotFound, notFoundMessage(detail(err, records.ErrNotFound)))
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, orDetail(detail(err, auth.ErrInvalidInput), "invalid input"))
	case errors.Is(err, records.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, orDetail(detail(err, records.ErrInvalidInput), "invalid input"))
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, orDetail(detail(err, auth.ErrConflict), "resource already exists"))
	case errors.Is(err, records.ErrConflict):
		writeError(w, r, http.StatusConflict, orDetail(detail(err, records.ErrConflict), "resource already exists"))
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", RequestIDFromContext(r.Context()),
			"error", err,
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// detail returns the text a wrapped sentinel carries after "<sentinel>: ".
func detail(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error()
	i := strings.Index(msg, prefix)
	if i < 0 {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(msg[i+len(prefix):], ":"))
}

func notFoundMessage(subject string) string {
	if subject == "" {
		return "resource not found"
	}
	return subject + " not found"
}

func orDetail(msg, fallback string) string {
	if msg == "" {
		return fallback
	}
	return msg
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	writeError(w, r, http.StatusBadRequest, msg)
}
