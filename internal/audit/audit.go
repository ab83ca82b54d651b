// Package audit records state-changing actions as an append-only trail.
//
// Recording is best-effort. A Sink failure is logged and counted but never
// returned to the caller, so callers invoke Record after their own unit of
// work has committed and do not branch on its outcome.
package audit

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Siwa-Docsecure/base/internal/ids"
	"github.com/Siwa-Docsecure/base/internal/obs"
)

const defaultWriteTimeout = 5 * time.Second

// Origin describes where a request came from.
type Origin struct {
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// Entry is one immutable audit record.
type Entry struct {
	ID          string         `json:"id"`
	ActorID     string         `json:"actor_id"`
	Action      string         `json:"action"`
	SubjectType string         `json:"subject_type"`
	SubjectID   string         `json:"subject_id"`
	Before      map[string]any `json:"before,omitempty"`
	After       map[string]any `json:"after,omitempty"`
	Origin      Origin         `json:"origin"`
	RequestID   string         `json:"request_id,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
	OccurredAt  time.Time      `json:"occurred_at"`
}

// Sink persists audit entries.
type Sink interface {
	Append(ctx context.Context, entry Entry) error
}

// Recorder writes entries to a Sink without ever failing the caller.
type Recorder struct {
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(fn func() time.Time) Option {
	return func(r *Recorder) {
		if fn != nil {
			r.now = fn
		}
	}
}

// WithWriteTimeout bounds a single sink write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// NewRecorder constructs a Recorder. A nil sink only logs.
func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:    sink,
		now:     time.Now,
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stamps and stores one entry. Request id, trace id and origin are
// taken from ctx when the entry does not carry them. The write is detached
// from ctx cancellation so an abandoned request still leaves its trail.
func (r *Recorder) Record(ctx context.Context, entry Entry) {
	if r == nil {
		return
	}
	entry.Action = strings.TrimSpace(entry.Action)
	if entry.ID == "" {
		entry.ID = ids.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = r.now().UTC()
	}
	if entry.RequestID == "" {
		entry.RequestID = RequestIDFromContext(ctx)
	}
	if entry.TraceID == "" {
		entry.TraceID = obs.TraceID(ctx)
	}
	if entry.Origin == (Origin{}) {
		entry.Origin = OriginFromContext(ctx)
	}

	logger := obs.ResolveLogger(r.logger)
	logger.Info("audit",
		"action", entry.Action,
		"actor_id", entry.ActorID,
		"subject_type", entry.SubjectType,
		"subject_id", entry.SubjectID,
		"request_id", entry.RequestID,
	)
	if r.sink == nil {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()
	if err := r.sink.Append(writeCtx, entry); err != nil {
		obs.AuditWriteFailed()
		logger.Error("audit write failed",
			"action", entry.Action,
			"subject_type", entry.SubjectType,
			"subject_id", entry.SubjectID,
			"error", err,
		)
	}
}

// RecordAll records entries in order.
func (r *Recorder) RecordAll(ctx context.Context, entries []Entry) {
	for _, e := range entries {
		r.Record(ctx, e)
	}
}
