package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Siwa-Docsecure/base/internal/records"
)

const (
	clientColumns    = `id, code, name, active, created_at`
	locationColumns  = `id, label, available, created_at`
	boxColumns       = `id, box_number, client_id, coalesce(location_id, ''), description, date_received, year_received, retention_years, destruction_year, status, created_at, updated_at`
	retrievalColumns = `r.id, r.client_id, r.box_id, b.box_number, r.retrieval_date, coalesce(r.retrieved_by, ''), coalesce(r.reason, ''),
		coalesce(r.staff_signature, ''), coalesce(r.client_signature, ''), coalesce(r.pdf_path, ''), r.created_by, r.created_at`
	retrievalFrom = ` from retrievals r join boxes b on b.id = r.box_id`
)

// InTx runs fn in a serializable transaction, retrying serialization
// failures and deadlocks up to the configured attempt count.
func (s *Store) InTx(ctx context.Context, fn func(tx records.Tx) error) error {
	var err error
	for attempt := 1; attempt <= s.txAttempts; attempt++ {
		err = s.inTx(ctx, fn)
		if !hasCode(err, pgErrSerializationFail, pgErrDeadlockDetected) {
			return err
		}
		s.logger.Warn("retrying transaction", "attempt", attempt, "error", err)
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx records.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = sqlTx.Rollback() }()

	if err := fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

func scanClient(row scanner) (records.Client, error) {
	var c records.Client
	if err := row.Scan(&c.ID, &c.Code, &c.Name, &c.Active, &c.CreatedAt); err != nil {
		return records.Client{}, mapRecordError(err)
	}
	return c, nil
}

func scanLocation(row scanner) (records.StorageLocation, error) {
	var l records.StorageLocation
	if err := row.Scan(&l.ID, &l.Label, &l.Available, &l.CreatedAt); err != nil {
		return records.StorageLocation{}, mapRecordError(err)
	}
	return l, nil
}

func scanBox(row scanner) (records.Box, error) {
	var (
		b      records.Box
		status string
	)
	if err := row.Scan(&b.ID, &b.Number, &b.ClientID, &b.LocationID, &b.Description, &b.DateReceived,
		&b.YearReceived, &b.RetentionYears, &b.DestructionYear, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return records.Box{}, mapRecordError(err)
	}
	b.Status = records.BoxStatus(status)
	return b, nil
}

func scanRetrieval(row scanner) (records.Retrieval, error) {
	var r records.Retrieval
	if err := row.Scan(&r.ID, &r.ClientID, &r.BoxID, &r.BoxNumber, &r.RetrievalDate, &r.RetrievedBy, &r.Reason,
		&r.StaffSignature, &r.ClientSignature, &r.ArtifactPath, &r.CreatedBy, &r.CreatedAt); err != nil {
		return records.Retrieval{}, mapRecordError(err)
	}
	return r, nil
}

func mapRecordError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return records.ErrNotFound
	case hasCode(err, pgErrUniqueViolation):
		return records.ErrConflict
	case hasCode(err, pgErrForeignKeyViolation):
		return records.ErrNotFound
	}
	return err
}

func (s *Store) Client(ctx context.Context, id string) (records.Client, error) {
	return scanClient(s.db.QueryRowContext(ctx, `select `+clientColumns+` from clients where id = $1`, id))
}

func (s *Store) ClientExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from clients where id = $1)`, id).Scan(&ok)
	return ok, err
}

func (s *Store) Box(ctx context.Context, id string) (records.Box, error) {
	return scanBox(s.db.QueryRowContext(ctx, `select `+boxColumns+` from boxes where id = $1`, id))
}

func (s *Store) Retrieval(ctx context.Context, id string) (records.Retrieval, error) {
	return scanRetrieval(s.db.QueryRowContext(ctx, `select `+retrievalColumns+retrievalFrom+` where r.id = $1`, id))
}

var retrievalSortColumns = map[records.SortField]string{
	records.SortRetrievalDate: "r.retrieval_date",
	records.SortCreatedAt:     "r.created_at",
}

// retrievalFilter renders the where clause of a normalized query. Only
// whitelisted columns and directions reach the SQL text; values are bound.
type retrievalFilter struct {
	where string
	order string
	args  []any
}

func buildRetrievalFilter(q records.RetrievalQuery) (retrievalFilter, error) {
	col, ok := retrievalSortColumns[q.Sort]
	if !ok {
		return retrievalFilter{}, fmt.Errorf("%w: unsupported sort field", records.ErrInvalidInput)
	}
	dir := "desc"
	if q.Order == records.OrderAsc {
		dir = "asc"
	}

	var (
		f     retrievalFilter
		conds []string
	)
	bind := func(v any) string {
		f.args = append(f.args, v)
		return "$" + strconv.Itoa(len(f.args))
	}
	if q.ClientID != "" {
		conds = append(conds, "r.client_id = "+bind(q.ClientID))
	}
	if q.BoxID != "" {
		conds = append(conds, "r.box_id = "+bind(q.BoxID))
	}
	if !q.From.IsZero() {
		conds = append(conds, "r.retrieval_date >= "+bind(q.From))
	}
	if !q.Before.IsZero() {
		conds = append(conds, "r.retrieval_date < "+bind(q.Before))
	}
	if q.AwaitingClientSignature {
		conds = append(conds, "coalesce(r.client_signature, '') = ''")
	}
	if q.Search != "" {
		p := bind("%" + escapeLike(q.Search) + "%")
		conds = append(conds, fmt.Sprintf("(b.box_number ilike %[1]s or r.retrieved_by ilike %[1]s or r.reason ilike %[1]s)", p))
	}
	if len(conds) > 0 {
		f.where = " where " + strings.Join(conds, " and ")
	}
	f.order = fmt.Sprintf(" order by %s %s, r.id %s", col, dir, dir)
	return f, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (s *Store) ListRetrievals(ctx context.Context, q records.RetrievalQuery) ([]records.Retrieval, int, error) {
	f, err := buildRetrievalFilter(q)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `select count(*)`+retrievalFrom+f.where, f.args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(f.args)
	query := `select ` + retrievalColumns + retrievalFrom + f.where + f.order +
		fmt.Sprintf(" limit $%d offset $%d", n+1, n+2)
	args := append(append([]any{}, f.args...), q.Limit, q.Offset())
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []records.Retrieval
	for rows.Next() {
		r, err := scanRetrieval(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

type tx struct {
	tx *sql.Tx
}

func (t *tx) ClientByID(ctx context.Context, id string) (records.Client, error) {
	return scanClient(t.tx.QueryRowContext(ctx, `select `+clientColumns+` from clients where id = $1`, id))
}

func (t *tx) InsertClient(ctx context.Context, c records.Client) error {
	_, err := t.tx.ExecContext(ctx,
		`insert into clients (id, code, name, active, created_at) values ($1, $2, $3, $4, $5)`,
		c.ID, c.Code, c.Name, c.Active, c.CreatedAt)
	return mapRecordError(err)
}

func (t *tx) LocationByID(ctx context.Context, id string) (records.StorageLocation, error) {
	return scanLocation(t.tx.QueryRowContext(ctx, `select `+locationColumns+` from storage_locations where id = $1`, id))
}

func (t *tx) InsertLocation(ctx context.Context, l records.StorageLocation) error {
	_, err := t.tx.ExecContext(ctx,
		`insert into storage_locations (id, label, available, created_at) values ($1, $2, $3, $4)`,
		l.ID, l.Label, l.Available, l.CreatedAt)
	return mapRecordError(err)
}

func (t *tx) LockBox(ctx context.Context, id string) (records.Box, error) {
	return scanBox(t.tx.QueryRowContext(ctx, `select `+boxColumns+` from boxes where id = $1 for update`, id))
}

func (t *tx) BoxNumberTaken(ctx context.Context, number string) (bool, error) {
	var taken bool
	err := t.tx.QueryRowContext(ctx, `select exists(select 1 from boxes where box_number = $1)`, number).Scan(&taken)
	return taken, err
}

func (t *tx) InsertBox(ctx context.Context, b records.Box) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into boxes (id, box_number, client_id, location_id, description, date_received,
			year_received, retention_years, destruction_year, status, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, b.ID, b.Number, b.ClientID, nullIfEmpty(b.LocationID), b.Description, b.DateReceived,
		b.YearReceived, b.RetentionYears, b.DestructionYear, string(b.Status), b.CreatedAt, b.UpdatedAt)
	return mapRecordError(err)
}

func (t *tx) UpdateBoxStatus(ctx context.Context, id string, status records.BoxStatus) error {
	res, err := t.tx.ExecContext(ctx, `update boxes set status = $2, updated_at = now() where id = $1`, id, string(status))
	if err != nil {
		return err
	}
	return expectOne(res, records.ErrNotFound)
}

// LockRetrieval locks only the retrieval row. Callers lock the box after it,
// and every path that takes both locks must keep the retrieval-then-box order.
func (t *tx) LockRetrieval(ctx context.Context, id string) (records.Retrieval, error) {
	return scanRetrieval(t.tx.QueryRowContext(ctx,
		`select `+retrievalColumns+retrievalFrom+` where r.id = $1 for update of r`, id))
}

func (t *tx) InsertRetrieval(ctx context.Context, r records.Retrieval) error {
	_, err := t.tx.ExecContext(ctx, `
		insert into retrievals (id, client_id, box_id, retrieval_date, retrieved_by, reason,
			staff_signature, client_signature, pdf_path, created_by, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, r.ID, r.ClientID, r.BoxID, r.RetrievalDate, nullIfEmpty(r.RetrievedBy), nullIfEmpty(r.Reason),
		nullIfEmpty(r.StaffSignature), nullIfEmpty(r.ClientSignature), nullIfEmpty(r.ArtifactPath), r.CreatedBy, r.CreatedAt)
	return mapRecordError(err)
}

func (t *tx) UpdateSignatures(ctx context.Context, id, staff, client string) error {
	res, err := t.tx.ExecContext(ctx,
		`update retrievals set staff_signature = $2, client_signature = $3 where id = $1`,
		id, nullIfEmpty(staff), nullIfEmpty(client))
	if err != nil {
		return err
	}
	return expectOne(res, records.ErrNotFound)
}

func (t *tx) UpdateArtifact(ctx context.Context, id, path string) error {
	res, err := t.tx.ExecContext(ctx, `update retrievals set pdf_path = $2 where id = $1`, id, path)
	if err != nil {
		return err
	}
	return expectOne(res, records.ErrNotFound)
}

func (t *tx) DeleteRetrieval(ctx context.Context, id string) error {
	res, err := t.tx.ExecContext(ctx, `delete from retrievals where id = $1`, id)
	if err != nil {
		return err
	}
	return expectOne(res, records.ErrNotFound)
}
