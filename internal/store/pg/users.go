package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Siwa-Docsecure/base/internal/auth"
)

const userColumns = `id, username, email, role, coalesce(client_id, ''), active, password_hash, created_at, updated_at, last_login`

func scanUser(row scanner) (auth.User, error) {
	var (
		u    auth.User
		role string
		last sql.NullTime
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.ClientID, &u.Active, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt, &last); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.User{}, auth.ErrNotFound
		}
		return auth.User{}, err
	}
	u.Role = auth.Role(role)
	if last.Valid {
		t := last.Time
		u.LastLogin = &t
	}
	return u, nil
}

func (s *Store) FindUser(ctx context.Context, id string) (auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id = $1`, id))
}

func (s *Store) FindUserByLogin(ctx context.Context, login string) (auth.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where username = $1 or lower(email) = lower($1)`, login))
}

// CreateUser writes the user and its permission row in one transaction.
func (s *Store) CreateUser(ctx context.Context, user auth.User, perms auth.PermissionSet) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into users (id, username, email, role, client_id, active, password_hash, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, user.ID, user.Username, user.Email, string(user.Role), nullIfEmpty(user.ClientID),
		user.Active, user.PasswordHash, user.CreatedAt, user.UpdatedAt); err != nil {
		return mapUserError(err)
	}
	if err := upsertPermissions(ctx, tx, user.ID, perms); err != nil {
		return mapUserError(err)
	}
	return tx.Commit()
}

func (s *Store) UpdateUser(ctx context.Context, user auth.User) error {
	res, err := s.db.ExecContext(ctx, `
		update users
		set username = $2, email = $3, role = $4, client_id = $5, active = $6, password_hash = $7, updated_at = $8
		where id = $1
	`, user.ID, user.Username, user.Email, string(user.Role), nullIfEmpty(user.ClientID),
		user.Active, user.PasswordHash, user.UpdatedAt)
	if err != nil {
		return mapUserError(err)
	}
	return expectOne(res, auth.ErrNotFound)
}

func (s *Store) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update users set last_login = $2 where id = $1`, id, at)
	if err != nil {
		return err
	}
	return expectOne(res, auth.ErrNotFound)
}

func mapUserError(err error) error {
	switch {
	case hasCode(err, pgErrUniqueViolation):
		return auth.ErrConflict
	case hasCode(err, pgErrForeignKeyViolation):
		return fmt.Errorf("%w: client", auth.ErrNotFound)
	}
	return err
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func permissionColumns() []string {
	all := auth.AllPermissions()
	cols := make([]string, len(all))
	for i, p := range all {
		cols[i] = p.Column()
	}
	return cols
}

func (s *Store) Permissions(ctx context.Context, userID string) (auth.PermissionSet, error) {
	all := auth.AllPermissions()
	flags := make([]bool, len(all))
	dest := make([]any, len(all))
	for i := range flags {
		dest[i] = &flags[i]
	}
	query := `select ` + strings.Join(permissionColumns(), ", ") + ` from user_permissions where user_id = $1`
	if err := s.db.QueryRowContext(ctx, query, userID).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return auth.PermissionSet{}, auth.ErrNotFound
		}
		return auth.PermissionSet{}, err
	}
	var set auth.PermissionSet
	for i, p := range all {
		set.Set(p, flags[i])
	}
	return set, nil
}

func (s *Store) SetPermissions(ctx context.Context, userID string, perms auth.PermissionSet) error {
	if err := upsertPermissions(ctx, s.db, userID, perms); err != nil {
		if hasCode(err, pgErrForeignKeyViolation) {
			return auth.ErrNotFound
		}
		return err
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertPermissions(ctx context.Context, db execer, userID string, perms auth.PermissionSet) error {
	cols := permissionColumns()
	placeholders := make([]string, len(cols))
	updates := make([]string, len(cols))
	args := []any{userID}
	for i, p := range auth.AllPermissions() {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		updates[i] = cols[i] + " = excluded." + cols[i]
		args = append(args, perms.Has(p))
	}
	query := fmt.Sprintf(`
		insert into user_permissions (user_id, %s)
		values ($1, %s)
		on conflict (user_id) do update set %s, updated_at = now()
	`, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
	_, err := db.ExecContext(ctx, query, args...)
	return err
}
