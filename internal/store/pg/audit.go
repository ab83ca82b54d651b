package pg

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Siwa-Docsecure/base/internal/audit"
)

// Append implements audit.Sink. Entries are written outside any record
// transaction and are never updated.
func (s *Store) Append(ctx context.Context, e audit.Entry) error {
	before, err := snapshot(e.Before)
	if err != nil {
		return fmt.Errorf("encode before: %w", err)
	}
	after, err := snapshot(e.After)
	if err != nil {
		return fmt.Errorf("encode after: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into audit_log (id, actor_id, action, subject_type, subject_id, before_data, after_data,
			ip_address, user_agent, request_id, trace_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, e.ID, nullIfEmpty(e.ActorID), e.Action, e.SubjectType, nullIfEmpty(e.SubjectID), before, after,
		nullIfEmpty(e.Origin.IP), nullIfEmpty(e.Origin.UserAgent), nullIfEmpty(e.RequestID), nullIfEmpty(e.TraceID), e.OccurredAt)
	return err
}

func snapshot(v map[string]any) ([]byte, error) {
	if len(v) == 0 {
		return nil, nil
	}
	return json.Marshal(v)
}
