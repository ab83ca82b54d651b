package auth_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/obs"
	"github.com/Siwa-Docsecure/base/internal/store/memory"
)

type clock struct{ t time.Time }

func newClock() *clock {
	return &clock{t: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func quiet(t *testing.T) { t.Cleanup(obs.SetLogOutput(io.Discard)) }

func seed(t *testing.T, s *memory.Store, u auth.User) auth.User {
	t.Helper()
	return seedWith(t, s, u, auth.DefaultPermissions(u.Role))
}

func seedWith(t *testing.T, s *memory.Store, u auth.User, perms auth.PermissionSet) auth.User {
	t.Helper()
	if u.ID == "" {
		u.ID = u.Username + "-id"
	}
	if u.Email == "" {
		u.Email = u.Username + "@example.com"
	}
	u.Active = true
	if err := s.CreateUser(context.Background(), u, perms); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func newTokens(t *testing.T, s *memory.Store, c *clock, secret string) *auth.TokenService {
	t.Helper()
	svc, err := auth.NewTokenService(s, s,
		auth.WithSigningSecret(secret),
		auth.WithRefreshSecret(secret+"-refresh"),
		auth.WithAccessTTL(time.Hour),
		auth.WithRefreshTTL(48*time.Hour),
		auth.WithClock(c.now),
	)
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}
	return svc
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	s := memory.New()
	if _, err := auth.NewTokenService(s, s); err == nil {
		t.Fatal("expected error without signing secret")
	}
	if _, err := auth.NewTokenService(s, s, auth.WithSigningSecret("  ")); err == nil {
		t.Fatal("expected error for blank signing secret")
	}
}

func TestIssueAndVerify(t *testing.T) {
	quiet(t)
	s := memory.New()
	c := newClock()
	svc := newTokens(t, s, c, "secret")
	u := seed(t, s, auth.User{Username: "carol", Role: auth.RoleClient, ClientID: "client-1"})

	pair, err := svc.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !pair.AccessExpiresAt.Equal(c.t.Add(time.Hour)) || !pair.RefreshExpiresAt.Equal(c.t.Add(48*time.Hour)) {
		t.Fatalf("expiries = %s / %s", pair.AccessExpiresAt, pair.RefreshExpiresAt)
	}

	claims, err := svc.Verify(context.Background(), pair.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	id := claims.Identity()
	if id.UserID != u.ID || id.Role != auth.RoleClient || id.ClientID != "client-1" || id.Username != "carol" {
		t.Fatalf("identity = %+v", id)
	}

	if _, err := svc.Issue(auth.User{}); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("issue without id: %v", err)
	}
}

func TestVerifyRejections(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := memory.New()
	c := newClock()
	svc := newTokens(t, s, c, "secret")
	other := newTokens(t, s, c, "another-secret")
	u := seed(t, s, auth.User{Username: "sam", Role: auth.RoleStaff})

	pair, err := svc.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	forged, err := other.Issue(u)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	cases := map[string]struct {
		raw  string
		want error
	}{
		"empty":             {"", auth.ErrInvalidToken},
		"garbage":           {"not.a.jwt", auth.ErrInvalidToken},
		"wrong secret":      {forged.AccessToken, auth.ErrInvalidToken},
		"refresh as access": {pair.RefreshToken, auth.ErrInvalidToken},
		"tampered":          {pair.AccessToken[:len(pair.AccessToken)-2] + "xy", auth.ErrInvalidToken},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := svc.Verify(ctx, tc.raw); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestVerifyExpired(t *testing.T) {
	quiet(t)
	s := memory.New()
	c := newClock()
	svc := newTokens(t, s, c, "secret")
	other := newTokens(t, s, c, "another-secret")
	u := seed(t, s, auth.User{Username: "sam", Role: auth.RoleStaff})

	pair, _ := svc.Issue(u)
	forged, _ := other.Issue(u)
	c.advance(2 * time.Hour)

	if _, err := svc.Verify(context.Background(), pair.AccessToken); !errors.Is(err, auth.ErrExpiredToken) {
		t.Fatalf("err = %v, want expired", err)
	}
	// A bad signature wins over expiry.
	if _, err := svc.Verify(context.Background(), forged.AccessToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("err = %v, want invalid", err)
	}
}

func TestRevokedTokenRejected(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := memory.New()
	svc := newTokens(t, s, newClock(), "secret")
	u := seed(t, s, auth.User{Username: "sam", Role: auth.RoleStaff})

	first, _ := svc.Issue(u)
	second, _ := svc.Issue(u)
	if err := svc.Revoke(ctx, first.AccessToken); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if err := svc.Revoke(ctx, first.AccessToken); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if _, err := svc.Verify(ctx, first.AccessToken); !errors.Is(err, auth.ErrRevokedToken) {
		t.Fatalf("err = %v, want revoked", err)
	}
	if _, err := svc.Verify(ctx, second.AccessToken); err != nil {
		t.Fatalf("other token affected: %v", err)
	}
	if err := svc.Revoke(ctx, "garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("revoke garbage: %v", err)
	}
}

func TestInactiveUserRejected(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := memory.New()
	svc := newTokens(t, s, newClock(), "secret")
	u := seed(t, s, auth.User{Username: "sam", Role: auth.RoleStaff})

	pair, _ := svc.Issue(u)
	u.Active = false
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, err := svc.Verify(ctx, pair.AccessToken); !errors.Is(err, auth.ErrInactiveOrMissingUser) {
		t.Fatalf("verify: %v", err)
	}
	if _, _, err := svc.Refresh(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrInactiveOrMissingUser) {
		t.Fatalf("refresh: %v", err)
	}

	ghost, _ := svc.Issue(auth.User{ID: "ghost", Username: "ghost", Role: auth.RoleStaff})
	if _, err := svc.Verify(ctx, ghost.AccessToken); !errors.Is(err, auth.ErrInactiveOrMissingUser) {
		t.Fatalf("missing user: %v", err)
	}
}

func TestRefreshUsesCurrentUserRow(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := memory.New()
	c := newClock()
	svc := newTokens(t, s, c, "secret")
	u := seed(t, s, auth.User{Username: "sam", Role: auth.RoleStaff})
	pair, _ := svc.Issue(u)

	u.Role = auth.RoleAdmin
	if err := s.UpdateUser(ctx, u); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	c.advance(90 * time.Minute)

	access, exp, err := svc.Refresh(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if !exp.Equal(c.t.Add(time.Hour)) {
		t.Fatalf("exp = %s", exp)
	}
	claims, err := svc.Verify(ctx, access)
	if err != nil {
		t.Fatalf("Verify refreshed: %v", err)
	}
	if claims.Role != auth.RoleAdmin {
		t.Fatalf("role = %s, want admin", claims.Role)
	}

	if _, _, err := svc.Refresh(ctx, pair.AccessToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("access as refresh: %v", err)
	}
}

func TestHashTokenStable(t *testing.T) {
	a, b := auth.HashToken("abc"), auth.HashToken("abc")
	if a != b || len(a) != 64 || strings.Contains(a, "abc") {
		t.Fatalf("hash = %q", a)
	}
}
