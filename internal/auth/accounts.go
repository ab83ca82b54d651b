package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/ids"
	"github.com/Siwa-Docsecure/base/internal/obs"
)

// NewUser is the input for CreateUser.
type NewUser struct {
	Username    string
	Email       string
	Password    string
	Role        Role
	ClientID    string
	Permissions map[Permission]bool
}

// Session is the result of a successful login.
type Session struct {
	User        User
	Tokens      TokenPair
	Permissions PermissionSet
}

// Accounts implements login and user administration.
type Accounts struct {
	users    UserStore
	perms    PermissionStore
	tokens   *TokenService
	tenants  TenantChecker
	recorder *audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
}

// AccountsConfig wires Accounts dependencies.
type AccountsConfig struct {
	Users    UserStore
	Perms    PermissionStore
	Tokens   *TokenService
	Tenants  TenantChecker
	Recorder *audit.Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewAccounts(cfg AccountsConfig) (*Accounts, error) {
	if cfg.Users == nil || cfg.Perms == nil || cfg.Tokens == nil {
		return nil, errors.New("auth: users, permissions and tokens are required")
	}
	a := &Accounts{
		users:    cfg.Users,
		perms:    cfg.Perms,
		tokens:   cfg.Tokens,
		tenants:  cfg.Tenants,
		recorder: cfg.Recorder,
		logger:   obs.ResolveLogger(cfg.Logger),
		now:      cfg.Now,
	}
	if a.now == nil {
		a.now = time.Now
	}
	return a, nil
}

// Login authenticates by username or email. Unknown, inactive and
// wrong-password cases are indistinguishable to the caller.
func (a *Accounts) Login(ctx context.Context, login, password string) (Session, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return Session{}, fmt.Errorf("%w: login and password are required", ErrInvalidInput)
	}
	user, err := a.users.FindUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			a.logger.Warn("login failed", "login", login, "reason", "unknown user")
			return Session{}, ErrBadCredentials
		}
		return Session{}, err
	}
	if !user.Active {
		a.logger.Warn("login failed", "user_id", user.ID, "reason", "inactive")
		return Session{}, ErrBadCredentials
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		a.logger.Warn("login failed", "user_id", user.ID, "reason", "bad password")
		return Session{}, ErrBadCredentials
	}

	stored, err := a.perms.Permissions(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Session{}, err
	}
	pair, err := a.tokens.Issue(user)
	if err != nil {
		return Session{}, err
	}
	now := a.now().UTC()
	if err := a.users.TouchLastLogin(ctx, user.ID, now); err != nil {
		a.logger.Warn("update last login", "user_id", user.ID, "error", err)
	} else {
		user.LastLogin = &now
	}

	a.recorder.Record(ctx, audit.Entry{
		ActorID:     user.ID,
		Action:      audit.ActionLogin,
		SubjectType: audit.SubjectUser,
		SubjectID:   user.ID,
		After:       map[string]any{"username": user.Username},
	})
	return Session{User: user, Tokens: pair, Permissions: EffectivePermissions(user.Role, stored)}, nil
}

// Logout revokes the caller's access token.
func (a *Accounts) Logout(ctx context.Context, actor Identity, rawToken string) error {
	if err := a.tokens.Revoke(ctx, rawToken); err != nil {
		return err
	}
	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      audit.ActionLogout,
		SubjectType: audit.SubjectUser,
		SubjectID:   actor.UserID,
	})
	return nil
}

// Profile returns the user and its effective permissions.
func (a *Accounts) Profile(ctx context.Context, userID string) (User, PermissionSet, error) {
	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		return User{}, PermissionSet{}, err
	}
	stored, err := a.perms.Permissions(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return User{}, PermissionSet{}, err
	}
	return user, EffectivePermissions(user.Role, stored), nil
}

// GetUser returns a user by id.
func (a *Accounts) GetUser(ctx context.Context, userID string) (User, error) {
	return a.users.FindUser(ctx, userID)
}

// CreateUser adds an active user with the role's permission template overlaid by in.Permissions.
func (a *Accounts) CreateUser(ctx context.Context, actor Identity, in NewUser) (User, PermissionSet, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.ClientID = strings.TrimSpace(in.ClientID)
	if in.Username == "" {
		return User{}, PermissionSet{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		return User{}, PermissionSet{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if !in.Role.Valid() {
		return User{}, PermissionSet{}, fmt.Errorf("%w: role must be admin, staff or client", ErrInvalidInput)
	}
	if err := ValidateTenant(in.Role, in.ClientID); err != nil {
		return User{}, PermissionSet{}, err
	}
	if err := ValidatePassword(in.Password); err != nil {
		return User{}, PermissionSet{}, err
	}
	if err := a.ensureTenant(ctx, in.ClientID); err != nil {
		return User{}, PermissionSet{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return User{}, PermissionSet{}, fmt.Errorf("hash password: %w", err)
	}
	now := a.now().UTC()
	user := User{
		ID:           ids.New(),
		Username:     in.Username,
		Email:        in.Email,
		Role:         in.Role,
		ClientID:     in.ClientID,
		Active:       true,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	perms := DefaultPermissions(in.Role)
	perms.Apply(in.Permissions)

	if err := a.users.CreateUser(ctx, user, perms); err != nil {
		return User{}, PermissionSet{}, err
	}

	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      audit.ActionCreateUser,
		SubjectType: audit.SubjectUser,
		SubjectID:   user.ID,
		After: map[string]any{
			"username":  user.Username,
			"email":     user.Email,
			"role":      string(user.Role),
			"client_id": user.ClientID,
		},
	})
	a.logger.Info("user created", "user_id", user.ID, "role", user.Role, "by", actor.UserID)
	return user, perms, nil
}

// SetActive activates or deactivates a user. Callers cannot deactivate themselves.
func (a *Accounts) SetActive(ctx context.Context, actor Identity, userID string, active bool) (User, error) {
	if !active && userID == actor.UserID {
		return User{}, fmt.Errorf("%w: cannot deactivate your own account", ErrInvalidInput)
	}
	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	before := user.Active
	user.Active = active
	user.UpdatedAt = a.now().UTC()
	if err := a.users.UpdateUser(ctx, user); err != nil {
		return User{}, err
	}

	action := audit.ActionDeactivateUser
	if active {
		action = audit.ActionActivateUser
	}
	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      action,
		SubjectType: audit.SubjectUser,
		SubjectID:   user.ID,
		Before:      map[string]any{"active": before},
		After:       map[string]any{"active": active},
	})
	return user, nil
}

// ChangeRole moves a user to role. Client-role users need clientID; other
// roles drop any tenant link. Callers cannot change their own role.
func (a *Accounts) ChangeRole(ctx context.Context, actor Identity, userID string, role Role, clientID string) (User, error) {
	if userID == actor.UserID {
		return User{}, fmt.Errorf("%w: cannot change your own role", ErrInvalidInput)
	}
	if !role.Valid() {
		return User{}, fmt.Errorf("%w: role must be admin, staff or client", ErrInvalidInput)
	}
	clientID = strings.TrimSpace(clientID)
	if err := ValidateTenant(role, clientID); err != nil {
		return User{}, err
	}
	if err := a.ensureTenant(ctx, clientID); err != nil {
		return User{}, err
	}
	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		return User{}, err
	}
	before := map[string]any{"role": string(user.Role), "client_id": user.ClientID}
	user.Role = role
	user.ClientID = clientID
	user.UpdatedAt = a.now().UTC()
	if err := a.users.UpdateUser(ctx, user); err != nil {
		return User{}, err
	}
	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      audit.ActionChangeRole,
		SubjectType: audit.SubjectUser,
		SubjectID:   user.ID,
		Before:      before,
		After:       map[string]any{"role": string(role), "client_id": clientID},
	})
	return user, nil
}

// ResetPassword sets a new password chosen by an administrator.
func (a *Accounts) ResetPassword(ctx context.Context, actor Identity, userID, password string) error {
	if err := ValidatePassword(password); err != nil {
		return err
	}
	if err := a.setPassword(ctx, userID, password); err != nil {
		return err
	}
	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      audit.ActionResetPassword,
		SubjectType: audit.SubjectUser,
		SubjectID:   userID,
	})
	return nil
}

// ChangePassword replaces the caller's own password after checking the current one.
func (a *Accounts) ChangePassword(ctx context.Context, actor Identity, current, next string) error {
	if current == "" {
		return fmt.Errorf("%w: current password is required", ErrInvalidInput)
	}
	if err := ValidatePassword(next); err != nil {
		return err
	}
	user, err := a.users.FindUser(ctx, actor.UserID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(user.PasswordHash, current); err != nil {
		return ErrBadCredentials
	}
	if err := a.setPassword(ctx, user.ID, next); err != nil {
		return err
	}
	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      audit.ActionChangePassword,
		SubjectType: audit.SubjectUser,
		SubjectID:   actor.UserID,
	})
	return nil
}

func (a *Accounts) setPassword(ctx context.Context, userID, password string) error {
	user, err := a.users.FindUser(ctx, userID)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = hash
	user.UpdatedAt = a.now().UTC()
	return a.users.UpdateUser(ctx, user)
}

// Permissions returns the stored permission row of a user.
func (a *Accounts) Permissions(ctx context.Context, userID string) (PermissionSet, error) {
	if _, err := a.users.FindUser(ctx, userID); err != nil {
		return PermissionSet{}, err
	}
	return a.perms.Permissions(ctx, userID)
}

// UpdatePermissions overlays changes onto the stored row.
func (a *Accounts) UpdatePermissions(ctx context.Context, actor Identity, userID string, changes map[Permission]bool) (PermissionSet, error) {
	if len(changes) == 0 {
		return PermissionSet{}, fmt.Errorf("%w: no permissions supplied", ErrInvalidInput)
	}
	return a.mutatePermissions(ctx, actor, userID, audit.ActionUpdatePermissions, changes)
}

// Grant sets one capability to true.
func (a *Accounts) Grant(ctx context.Context, actor Identity, userID string, perm Permission) (PermissionSet, error) {
	return a.mutatePermissions(ctx, actor, userID, audit.ActionGrantPermission, map[Permission]bool{perm: true})
}

// Revoke sets one capability to false.
func (a *Accounts) Revoke(ctx context.Context, actor Identity, userID string, perm Permission) (PermissionSet, error) {
	return a.mutatePermissions(ctx, actor, userID, audit.ActionRevokePermission, map[Permission]bool{perm: false})
}

func (a *Accounts) mutatePermissions(ctx context.Context, actor Identity, userID, action string, changes map[Permission]bool) (PermissionSet, error) {
	for p := range changes {
		if !p.Valid() {
			return PermissionSet{}, fmt.Errorf("%w: unknown permission", ErrInvalidInput)
		}
	}
	if _, err := a.users.FindUser(ctx, userID); err != nil {
		return PermissionSet{}, err
	}
	current, err := a.perms.Permissions(ctx, userID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return PermissionSet{}, err
	}
	next := current
	next.Apply(changes)
	if err := a.perms.SetPermissions(ctx, userID, next); err != nil {
		return PermissionSet{}, err
	}

	before := make(map[string]any, len(changes))
	after := make(map[string]any, len(changes))
	for p, v := range changes {
		before[p.Column()] = current.Has(p)
		after[p.Column()] = v
	}
	a.recorder.Record(ctx, audit.Entry{
		ActorID:     actor.UserID,
		Action:      action,
		SubjectType: audit.SubjectPermissions,
		SubjectID:   userID,
		Before:      before,
		After:       after,
	})
	return next, nil
}

func (a *Accounts) ensureTenant(ctx context.Context, clientID string) error {
	if clientID == "" || a.tenants == nil {
		return nil
	}
	ok, err := a.tenants.ClientExists(ctx, clientID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: client", ErrNotFound)
	}
	return nil
}
