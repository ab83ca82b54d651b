package auth_test

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/store/memory"
)

const password = "s3cret-pass"

type tenantSet map[string]bool

func (t tenantSet) ClientExists(ctx context.Context, id string) (bool, error) { return t[id], nil }

type accountsFixture struct {
	store    *memory.Store
	tokens   *auth.TokenService
	accounts *auth.Accounts
	admin    auth.Identity
}

func newAccounts(t *testing.T) *accountsFixture {
	t.Helper()
	quiet(t)
	s := memory.New()
	c := newClock()
	tokens := newTokens(t, s, c, "secret")
	accounts, err := auth.NewAccounts(auth.AccountsConfig{
		Users:    s,
		Perms:    s,
		Tokens:   tokens,
		Tenants:  tenantSet{"acme": true},
		Recorder: audit.NewRecorder(s),
		Now:      c.now,
	})
	if err != nil {
		t.Fatalf("NewAccounts: %v", err)
	}
	admin := seedLogin(t, s, auth.User{Username: "root", Role: auth.RoleAdmin})
	return &accountsFixture{
		store:    s,
		tokens:   tokens,
		accounts: accounts,
		admin:    auth.Identity{UserID: admin.ID, Username: admin.Username, Role: auth.RoleAdmin},
	}
}

// seedLogin stores a user whose password is the package test password.
func seedLogin(t *testing.T, s *memory.Store, u auth.User) auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	u.PasswordHash = string(hash)
	return seed(t, s, u)
}

func (f *accountsFixture) actions() []string {
	var out []string
	for _, e := range f.store.AuditEntries() {
		out = append(out, e.Action)
	}
	return out
}

func TestNewAccountsRequiresStores(t *testing.T) {
	if _, err := auth.NewAccounts(auth.AccountsConfig{}); err == nil {
		t.Fatal("expected error")
	}
}

func TestLogin(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	staff := seedLogin(t, f.store, auth.User{Username: "sam", Email: "Sam@Example.com", Role: auth.RoleStaff})

	sess, err := f.accounts.Login(ctx, "sam@example.com", password)
	if err != nil {
		t.Fatalf("Login by email: %v", err)
	}
	if sess.User.ID != staff.ID || sess.User.LastLogin == nil {
		t.Fatalf("session user = %+v", sess.User)
	}
	if !sess.Permissions.CreateBoxes || sess.Permissions.ManageUsers {
		t.Fatalf("permissions = %+v", sess.Permissions)
	}
	if _, err := f.tokens.Verify(ctx, sess.Tokens.AccessToken); err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}

	cases := map[string]struct{ login, pass string }{
		"wrong password": {"sam", "nope-nope"},
		"unknown user":   {"nobody", password},
	}
	for name, tc := range cases {
		if _, err := f.accounts.Login(ctx, tc.login, tc.pass); !errors.Is(err, auth.ErrBadCredentials) {
			t.Fatalf("%s: err = %v", name, err)
		}
	}
	if _, err := f.accounts.Login(ctx, "", ""); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("empty login: %v", err)
	}

	staff.Active = false
	if err := f.store.UpdateUser(ctx, staff); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, err := f.accounts.Login(ctx, "sam", password); !errors.Is(err, auth.ErrBadCredentials) {
		t.Fatalf("inactive user: %v", err)
	}
}

func TestCreateUserAppliesTemplateAndOverrides(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()

	user, perms, err := f.accounts.CreateUser(ctx, f.admin, auth.NewUser{
		Username:    "  nora ",
		Email:       "Nora@Example.com",
		Password:    "long-enough",
		Role:        auth.RoleStaff,
		Permissions: map[auth.Permission]bool{auth.PermDeleteBoxes: true, auth.PermCreateRetrievals: false},
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if user.Username != "nora" || user.Email != "nora@example.com" || !user.Active {
		t.Fatalf("user = %+v", user)
	}
	want := auth.DefaultPermissions(auth.RoleStaff)
	want.DeleteBoxes = true
	want.CreateRetrievals = false
	if perms != want {
		t.Fatalf("perms = %+v, want %+v", perms, want)
	}
	stored, err := f.store.Permissions(ctx, user.ID)
	if err != nil || stored != want {
		t.Fatalf("stored = %+v, %v", stored, err)
	}
	if got := f.actions(); len(got) != 1 || got[0] != audit.ActionCreateUser {
		t.Fatalf("audit actions = %v", got)
	}

	if _, _, err := f.accounts.CreateUser(ctx, f.admin, auth.NewUser{
		Username: "nora", Email: "other@example.com", Password: "long-enough", Role: auth.RoleStaff,
	}); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate username: %v", err)
	}
}

func TestCreateUserValidation(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	base := auth.NewUser{Username: "x", Email: "x@example.com", Password: "long-enough", Role: auth.RoleStaff}

	cases := map[string]struct {
		mutate func(*auth.NewUser)
		want   error
	}{
		"no username":           {func(u *auth.NewUser) { u.Username = " " }, auth.ErrInvalidInput},
		"bad email":             {func(u *auth.NewUser) { u.Email = "nope" }, auth.ErrInvalidInput},
		"bad role":              {func(u *auth.NewUser) { u.Role = "root" }, auth.ErrInvalidInput},
		"short password":        {func(u *auth.NewUser) { u.Password = "abc" }, auth.ErrInvalidInput},
		"client without tenant": {func(u *auth.NewUser) { u.Role = auth.RoleClient }, auth.ErrInvalidInput},
		"staff with tenant":     {func(u *auth.NewUser) { u.ClientID = "acme" }, auth.ErrInvalidInput},
		"client unknown tenant": {func(u *auth.NewUser) { u.Role, u.ClientID = auth.RoleClient, "globex" }, auth.ErrNotFound},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			if _, _, err := f.accounts.CreateUser(ctx, f.admin, in); !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
	if n := len(f.store.AuditEntries()); n != 0 {
		t.Fatalf("rejected creates were audited: %d entries", n)
	}
}

func TestSetActiveAndSelfProtection(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	staff := seedLogin(t, f.store, auth.User{Username: "sam", Role: auth.RoleStaff})

	if _, err := f.accounts.SetActive(ctx, f.admin, f.admin.UserID, false); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("self deactivation: %v", err)
	}
	if _, err := f.accounts.ChangeRole(ctx, f.admin, f.admin.UserID, auth.RoleStaff, ""); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("self role change: %v", err)
	}

	user, err := f.accounts.SetActive(ctx, f.admin, staff.ID, false)
	if err != nil || user.Active {
		t.Fatalf("deactivate: %+v, %v", user, err)
	}
	if _, err := f.accounts.SetActive(ctx, f.admin, "missing", true); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}

	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	if last.Action != audit.ActionDeactivateUser || last.Before["active"] != true || last.After["active"] != false {
		t.Fatalf("audit entry = %+v", last)
	}
}

func TestChangeRoleTenantRule(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	staff := seedLogin(t, f.store, auth.User{Username: "sam", Role: auth.RoleStaff})

	if _, err := f.accounts.ChangeRole(ctx, f.admin, staff.ID, auth.RoleClient, ""); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("client without tenant: %v", err)
	}
	user, err := f.accounts.ChangeRole(ctx, f.admin, staff.ID, auth.RoleClient, "acme")
	if err != nil {
		t.Fatalf("ChangeRole: %v", err)
	}
	if user.Role != auth.RoleClient || user.ClientID != "acme" {
		t.Fatalf("user = %+v", user)
	}
	user, err = f.accounts.ChangeRole(ctx, f.admin, staff.ID, auth.RoleStaff, "")
	if err != nil || user.ClientID != "" {
		t.Fatalf("back to staff: %+v, %v", user, err)
	}
}

func TestPasswords(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	staff := seedLogin(t, f.store, auth.User{Username: "sam", Role: auth.RoleStaff})
	self := auth.Identity{UserID: staff.ID, Role: auth.RoleStaff}

	if err := f.accounts.ChangePassword(ctx, self, "wrong-pass", "brand-new"); !errors.Is(err, auth.ErrBadCredentials) {
		t.Fatalf("wrong current: %v", err)
	}
	if err := f.accounts.ChangePassword(ctx, self, password, "abc"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("short next: %v", err)
	}
	if err := f.accounts.ChangePassword(ctx, self, password, "brand-new"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, err := f.accounts.Login(ctx, "sam", "brand-new"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}

	if err := f.accounts.ResetPassword(ctx, f.admin, staff.ID, "reset-by-admin"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, err := f.accounts.Login(ctx, "sam", "brand-new"); !errors.Is(err, auth.ErrBadCredentials) {
		t.Fatalf("old password still works: %v", err)
	}
}

func TestPermissionMutations(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	staff := seedLogin(t, f.store, auth.User{Username: "sam", Role: auth.RoleStaff})

	set, err := f.accounts.Grant(ctx, f.admin, staff.ID, auth.PermDeleteBoxes)
	if err != nil || !set.DeleteBoxes {
		t.Fatalf("Grant: %+v, %v", set, err)
	}
	set, err = f.accounts.Revoke(ctx, f.admin, staff.ID, auth.PermCreateBoxes)
	if err != nil || set.CreateBoxes || !set.DeleteBoxes {
		t.Fatalf("Revoke: %+v, %v", set, err)
	}
	if _, err := f.accounts.UpdatePermissions(ctx, f.admin, staff.ID, nil); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("empty update: %v", err)
	}
	if _, err := f.accounts.Grant(ctx, f.admin, staff.ID, auth.Permission(42)); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("unknown permission: %v", err)
	}
	if _, err := f.accounts.Grant(ctx, f.admin, "missing", auth.PermEditBoxes); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("missing user: %v", err)
	}

	entries := f.store.AuditEntries()
	last := entries[len(entries)-1]
	if last.Action != audit.ActionRevokePermission || last.Before["can_create_boxes"] != true || last.After["can_create_boxes"] != false {
		t.Fatalf("audit entry = %+v", last)
	}
}

func TestLogoutRevokes(t *testing.T) {
	f := newAccounts(t)
	ctx := context.Background()
	sess, err := f.accounts.Login(ctx, "root", password)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := f.accounts.Logout(ctx, f.admin, sess.Tokens.AccessToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.tokens.Verify(ctx, sess.Tokens.AccessToken); !errors.Is(err, auth.ErrRevokedToken) {
		t.Fatalf("err = %v, want revoked", err)
	}
}
