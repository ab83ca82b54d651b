package auth

import "errors"

var (
	ErrInvalidToken          = errors.New("auth: invalid token")
	ErrExpiredToken          = errors.New("auth: token expired")
	ErrRevokedToken          = errors.New("auth: token revoked")
	ErrInactiveOrMissingUser = errors.New("auth: user inactive or missing")
	ErrBadCredentials        = errors.New("auth: invalid credentials")
	ErrForbidden             = errors.New("auth: forbidden")
	ErrNotFound              = errors.New("auth: not found")
	ErrConflict              = errors.New("auth: conflict")
	ErrInvalidInput          = errors.New("auth: invalid input")
)

// IsAuthenticationError reports whether err means the bearer token must be rejected.
func IsAuthenticationError(err error) bool {
	return errors.Is(err, ErrInvalidToken) ||
		errors.Is(err, ErrExpiredToken) ||
		errors.Is(err, ErrRevokedToken) ||
		errors.Is(err, ErrInactiveOrMissingUser)
}
