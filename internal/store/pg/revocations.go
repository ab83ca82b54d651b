package pg

import (
	"context"
	"time"

	"github.com/Siwa-Docsecure/base/internal/auth"
)

func (s *Store) Revoke(ctx context.Context, token auth.RevokedToken) error {
	_, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (token_hash, user_id, expires_at, revoked_at)
		values ($1, $2, $3, $4)
		on conflict (token_hash) do nothing
	`, token.TokenHash, nullIfEmpty(token.UserID), token.ExpiresAt, token.RevokedAt)
	return err
}

func (s *Store) IsRevoked(ctx context.Context, tokenHash string) (bool, error) {
	var revoked bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revoked_tokens where token_hash = $1)`, tokenHash).Scan(&revoked)
	return revoked, err
}

func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `delete from revoked_tokens where expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
