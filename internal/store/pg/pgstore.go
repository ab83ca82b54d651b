// Package pg implements the service stores on PostgreSQL through the pgx
// database/sql driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/auth"
	"github.com/Siwa-Docsecure/base/internal/obs"
	"github.com/Siwa-Docsecure/base/internal/records"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrSerializationFail   = "40001"
	pgErrDeadlockDetected    = "40P01"

	defaultTxAttempts = 3
)

var (
	_ auth.UserStore       = (*Store)(nil)
	_ auth.PermissionStore = (*Store)(nil)
	_ auth.RevocationStore = (*Store)(nil)
	_ auth.TenantChecker   = (*Store)(nil)
	_ records.Store        = (*Store)(nil)
	_ audit.Sink           = (*Store)(nil)
)

// Options tunes the connection pool. Zero fields keep the defaults.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	// TxAttempts bounds how often a serialization failure is retried.
	TxAttempts int
	Logger     *slog.Logger
}

type Store struct {
	db         *sql.DB
	txAttempts int
	logger     *slog.Logger
}

// Open connects to dsn. The pool is created lazily; call Ping to check reachability.
func Open(dsn string, opts Options) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("pg: dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(orInt(opts.MaxOpenConns, 50))
	db.SetMaxIdleConns(orInt(opts.MaxIdleConns, 25))
	db.SetConnMaxLifetime(orDuration(opts.ConnMaxLifetime, 15*time.Minute))
	db.SetConnMaxIdleTime(orDuration(opts.ConnMaxIdleTime, 5*time.Minute))
	return New(db, opts), nil
}

// New wraps an existing handle.
func New(db *sql.DB, opts Options) *Store {
	return &Store{
		db:         db,
		txAttempts: orInt(opts.TxAttempts, defaultTxAttempts),
		logger:     obs.ResolveLogger(opts.Logger),
	}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func hasCode(err error, codes ...string) bool {
	pgErr, ok := maybePgError(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if pgErr.Code == c {
			return true
		}
	}
	return false
}

func nullIfEmpty(s string) sql.NullString {
	s = strings.TrimSpace(s)
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

type scanner interface {
	Scan(dest ...any) error
}
