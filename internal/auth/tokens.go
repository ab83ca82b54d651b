package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Siwa-Docsecure/base/internal/obs"
)

const (
	defaultIssuer     = "psms-api"
	defaultAccessTTL  = 24 * time.Hour
	defaultRefreshTTL = 7 * 24 * time.Hour
	clockSkew         = 5 * time.Second

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the signed token claims. Refresh tokens carry only the subject.
type Claims struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     Role   `json:"role,omitempty"`
	ClientID string `json:"client_id,omitempty"`
	Type     string `json:"typ"`
	jwt.RegisteredClaims
}

// Identity returns the caller described by access token claims.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:   c.Subject,
		Username: c.Username,
		Email:    c.Email,
		Role:     c.Role,
		ClientID: c.ClientID,
	}
}

// TokenPair represents access and refresh tokens along with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// TokenService issues and verifies bearer tokens.
type TokenService struct {
	users   UserStore
	revoked RevocationStore
	logger  *slog.Logger
	now     func() time.Time

	accessSecret  []byte
	refreshSecret []byte
	issuer        string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	validator     *jwt.Validator
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService) error

// WithSigningSecret sets the HS256 secret for access tokens.
func WithSigningSecret(secret string) TokenOption {
	return func(s *TokenService) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return errors.New("auth: signing secret is empty")
		}
		s.accessSecret = []byte(secret)
		return nil
	}
}

// WithRefreshSecret sets the HS256 secret for refresh tokens.
func WithRefreshSecret(secret string) TokenOption {
	return func(s *TokenService) error {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			return errors.New("auth: refresh secret is empty")
		}
		s.refreshSecret = []byte(secret)
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) error {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

func WithTokenLogger(l *slog.Logger) TokenOption {
	return func(s *TokenService) error {
		s.logger = l
		return nil
	}
}

// NewTokenService constructs a TokenService. A signing secret is required;
// without a refresh secret, refresh tokens are signed with the signing secret.
func NewTokenService(users UserStore, revoked RevocationStore, opts ...TokenOption) (*TokenService, error) {
	if users == nil || revoked == nil {
		return nil, errors.New("auth: user store and revocation store are required")
	}
	s := &TokenService{
		users:      users,
		revoked:    revoked,
		now:        time.Now,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if len(s.accessSecret) == 0 {
		return nil, errors.New("auth: signing secret is not configured")
	}
	if len(s.refreshSecret) == 0 {
		s.refreshSecret = s.accessSecret
	}
	s.validator = jwt.NewValidator(
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	return s, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// Issue signs a fresh access and refresh token for user.
func (s *TokenService) Issue(user User) (TokenPair, error) {
	if strings.TrimSpace(user.ID) == "" {
		return TokenPair{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	access, accessExp, err := s.signAccess(user, now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, refreshExp, err := s.signRefresh(user.ID, now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *TokenService) signAccess(user User, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.accessTTL)
	claims := Claims{
		Username:         user.Username,
		Email:            user.Email,
		Role:             user.Role,
		ClientID:         user.ClientID,
		Type:             tokenTypeAccess,
		RegisteredClaims: s.registered(user.ID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.accessSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

func (s *TokenService) signRefresh(userID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(s.refreshTTL)
	claims := Claims{
		Type:             tokenTypeRefresh,
		RegisteredClaims: s.registered(userID, now, exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, exp, nil
}

func (s *TokenService) registered(subject string, now, exp time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}
}

// parse checks the signature first and the time-based claims second, so a
// forged token never reports as merely expired.
func (s *TokenService) parse(raw string, secret []byte, tokenType string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrInvalidToken
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := s.validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if claims.Type != tokenType || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Verify authenticates an access token. Checks run in order: signature and
// expiry, revocation ledger, then the current user row.
func (s *TokenService) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := s.parse(raw, s.accessSecret, tokenTypeAccess)
	if err != nil {
		s.observe(err)
		return nil, err
	}

	revoked, err := s.revoked.IsRevoked(ctx, HashToken(raw))
	if err != nil {
		return nil, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		obs.ResolveLogger(s.logger).Warn("revoked token presented", "user_id", claims.Subject)
		s.observe(ErrRevokedToken)
		return nil, ErrRevokedToken
	}

	if _, err := s.activeUser(ctx, claims.Subject); err != nil {
		s.observe(err)
		return nil, err
	}
	s.observe(nil)
	return claims, nil
}

// Refresh validates a refresh token and returns a new access token built
// from the current user row. Refresh tokens are not checked against the
// revocation ledger.
func (s *TokenService) Refresh(ctx context.Context, raw string) (string, time.Time, error) {
	claims, err := s.parse(raw, s.refreshSecret, tokenTypeRefresh)
	if err != nil {
		return "", time.Time{}, err
	}
	user, err := s.activeUser(ctx, claims.Subject)
	if err != nil {
		return "", time.Time{}, err
	}
	return s.signAccess(user, s.now().UTC())
}

// Revoke records raw in the revocation ledger until its own expiry. The
// token must carry a valid signature.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	claims, err := s.parse(raw, s.accessSecret, tokenTypeAccess)
	if err != nil {
		return err
	}
	return s.revoked.Revoke(ctx, RevokedToken{
		TokenHash: HashToken(raw),
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
		RevokedAt: s.now().UTC(),
	})
}

func (s *TokenService) activeUser(ctx context.Context, id string) (User, error) {
	user, err := s.users.FindUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInactiveOrMissingUser
		}
		return User{}, fmt.Errorf("load user: %w", err)
	}
	if !user.Active {
		return User{}, ErrInactiveOrMissingUser
	}
	return user, nil
}

func (s *TokenService) observe(err error) {
	switch {
	case err == nil:
		obs.ObserveAuth("ok")
	case errors.Is(err, ErrExpiredToken):
		obs.ObserveAuth("expired")
	case errors.Is(err, ErrRevokedToken):
		obs.ObserveAuth("revoked")
	case errors.Is(err, ErrInactiveOrMissingUser):
		obs.ObserveAuth("inactive_user")
	case errors.Is(err, ErrInvalidToken):
		obs.ObserveAuth("invalid")
	default:
		obs.ObserveAuth("error")
	}
}

// HashToken returns the revocation key of a raw token string.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
