// Package memory implements every store interface in process memory. It
// backs tests and the API server when no database DSN is configured.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/records"
)

var (
	_ auth.UserStore       = (*Store)(nil)
	_ auth.PermissionStore = (*Store)(nil)
	_ auth.RevocationStore = (*Store)(nil)
	_ auth.TenantChecker   = (*Store)(nil)
	_ records.Store        = (*Store)(nil)
	_ audit.Sink           = (*Store)(nil)
)

// Store keeps all state behind one mutex. Record transactions hold it for
// their whole duration, which serializes them.
type Store struct {
	mu      sync.RWMutex
	users   map[string]auth.User
	perms   map[string]auth.PermissionSet
	revoked map[string]auth.RevokedToken
	data    recordData

	auditMu sync.Mutex
	entries []audit.Entry
}

func New() *Store {
	return &Store{
		users:   make(map[string]auth.User),
		perms:   make(map[string]auth.PermissionSet),
		revoked: make(map[string]auth.RevokedToken),
		data:    newRecordData(),
	}
}

func (s *Store) FindUser(ctx context.Context, id string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == login || strings.EqualFold(u.Email, login) {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) CreateUser(ctx context.Context, user auth.User, perms auth.PermissionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUnique(user); err != nil {
		return err
	}
	s.users[user.ID] = user
	s.perms[user.ID] = perms
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, user auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return auth.ErrNotFound
	}
	if err := s.checkUnique(user); err != nil {
		return err
	}
	s.users[user.ID] = user
	return nil
}

func (s *Store) checkUnique(user auth.User) error {
	for id, u := range s.users {
		if id == user.ID {
			continue
		}
		if u.Username == user.Username || strings.EqualFold(u.Email, user.Email) {
			return auth.ErrConflict
		}
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.LastLogin = &at
	s.users[id] = u
	return nil
}

func (s *Store) Permissions(ctx context.Context, userID string) (auth.PermissionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.perms[userID]
	if !ok {
		return auth.PermissionSet{}, auth.ErrNotFound
	}
	return p, nil
}

func (s *Store) SetPermissions(ctx context.Context, userID string, perms auth.PermissionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return auth.ErrNotFound
	}
	s.perms[userID] = perms
	return nil
}

// DeletePermissions drops a user's permission row.
func (s *Store) DeletePermissions(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.perms, userID)
}

func (s *Store) Revoke(ctx context.Context, token auth.RevokedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[token.TokenHash]; ok {
		return nil
	}
	s.revoked[token.TokenHash] = token
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.revoked[tokenHash]
	return ok, nil
}

func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for hash, t := range s.revoked {
		if t.ExpiresAt.Before(now) {
			delete(s.revoked, hash)
			n++
		}
	}
	return n, nil
}

// Append implements audit.Sink.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	s.entries = append(s.entries, entry)
	return nil
}

// AuditEntries returns a copy of the recorded trail in append order.
func (s *Store) AuditEntries() []audit.Entry {
	s.auditMu.Lock()
	defer s.auditMu.Unlock()
	out := make([]audit.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
