package records

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Siwa-Docsecure/base/internal/audit"
	"github.com/Siwa-Docsecure/base/internal/ids"
	"github.com/Siwa-Docsecure/base/internal/obs"
)

const manualRetrievedNote = "Manual override - not via client signature"

// NotFoundError reports a missing entity by name. It matches ErrNotFound.
type NotFoundError struct {
	Subject string
}

func (e NotFoundError) Error() string { return e.Subject + " not found" }

func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

func notFound(err error, subject string) error {
	if errors.Is(err, ErrNotFound) {
		return NotFoundError{Subject: subject}
	}
	return err
}

// NewClient is the input for CreateClient.
type NewClient struct {
	Code string
	Name string
}

// NewBox is the input for CreateBox. Index is upper-cased and prefixed with
// the client code to form the box number.
type NewBox struct {
	ClientID       string
	LocationID     string
	Index          string
	Description    string
	DateReceived   time.Time
	RetentionYears int
}

// NewRetrieval is the input for CreateRetrieval.
type NewRetrieval struct {
	ClientID       string
	BoxID          string
	RetrievalDate  time.Time
	RetrievedBy    string
	Reason         string
	StaffSignature string
}

// Signatures carries the slots a SignRetrieval call writes. A nil slot is
// left untouched.
type Signatures struct {
	Staff  *string
	Client *string
}

// SignResult describes the outcome of SignRetrieval.
type SignResult struct {
	RetrievalID        string    `json:"retrieval_id"`
	BoxID              string    `json:"box_id"`
	BoxNumber          string    `json:"box_number"`
	RetrievalCompleted bool      `json:"retrieval_completed"`
	BoxStatusChanged   bool      `json:"box_status_changed"`
	BoxStatus          BoxStatus `json:"box_status"`
}

// StatusChange is the before and after of a box status update.
type StatusChange struct {
	BoxID     string    `json:"box_id"`
	BoxNumber string    `json:"box_number"`
	OldStatus BoxStatus `json:"old_status"`
	NewStatus BoxStatus `json:"new_status"`
}

// Engine applies box and retrieval lifecycle operations.
type Engine struct {
	store    Store
	recorder *audit.Recorder
	logger   *slog.Logger
	now      func() time.Time
	tracer   trace.Tracer
}

type EngineOption func(*Engine)

func WithRecorder(r *audit.Recorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = obs.ResolveLogger(l) }
}

func WithClock(fn func() time.Time) EngineOption {
	return func(e *Engine) {
		if fn != nil {
			e.now = fn
		}
	}
}

func NewEngine(store Store, opts ...EngineOption) *Engine {
	e := &Engine{
		store:  store,
		logger: obs.Logger(),
		now:    time.Now,
		tracer: obs.Tracer("records"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type boxTransition struct {
	trigger Trigger
	status  BoxStatus
}

// unit collects side effects that must only happen after commit.
type unit struct {
	actor       Actor
	entries     []audit.Entry
	transitions []boxTransition
}

func (u *unit) audit(action, subjectType, subjectID string, before, after map[string]any) {
	u.entries = append(u.entries, audit.Entry{
		ActorID:     u.actor.UserID,
		Action:      action,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Before:      before,
		After:       after,
		Origin:      u.actor.Origin,
	})
}

func (u *unit) transition(trigger Trigger, status BoxStatus) {
	u.transitions = append(u.transitions, boxTransition{trigger: trigger, status: status})
}

// run executes fn in a transaction and, once it has committed, records the
// collected audit entries and transition counters. Each retry starts from an
// empty unit.
func (e *Engine) run(ctx context.Context, actor Actor, fn func(tx Tx, u *unit) error) error {
	var u *unit
	err := e.store.InTx(ctx, func(tx Tx) error {
		u = &unit{actor: actor}
		return fn(tx, u)
	})
	if err != nil {
		return err
	}
	for _, t := range u.transitions {
		obs.BoxTransition(string(t.trigger), string(t.status))
	}
	e.recorder.RecordAll(ctx, u.entries)
	return nil
}

func (e *Engine) span(ctx context.Context, name string, actor Actor, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("actor.role", string(actor.Role)))
	return e.tracer.Start(ctx, "records."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// CreateClient adds an active tenant. The code is stored upper-cased.
func (e *Engine) CreateClient(ctx context.Context, actor Actor, in NewClient) (c Client, err error) {
	ctx, span := e.span(ctx, "CreateClient", actor)
	defer func() { endSpan(span, err) }()

	code := strings.ToUpper(strings.TrimSpace(in.Code))
	name := strings.TrimSpace(in.Name)
	if code == "" || name == "" {
		return Client{}, fmt.Errorf("%w: client code and name are required", ErrInvalidInput)
	}
	if strings.ContainsAny(code, " -") {
		return Client{}, fmt.Errorf("%w: client code must not contain spaces or dashes", ErrInvalidInput)
	}
	c = Client{ID: ids.New(), Code: code, Name: name, Active: true, CreatedAt: e.now().UTC()}
	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		if err := tx.InsertClient(ctx, c); err != nil {
			return err
		}
		u.audit(audit.ActionCreateClient, audit.SubjectClient, c.ID, nil, map[string]any{"code": c.Code, "name": c.Name})
		return nil
	})
	if err != nil {
		return Client{}, err
	}
	return c, nil
}

func (e *Engine) GetClient(ctx context.Context, id string) (Client, error) {
	c, err := e.store.Client(ctx, id)
	if err != nil {
		return Client{}, notFound(err, "client")
	}
	return c, nil
}

// ClientExists lets the engine serve as the tenant checker for user administration.
func (e *Engine) ClientExists(ctx context.Context, id string) (bool, error) {
	return e.store.ClientExists(ctx, id)
}

func (e *Engine) CreateStorageLocation(ctx context.Context, actor Actor, label string) (l StorageLocation, err error) {
	ctx, span := e.span(ctx, "CreateStorageLocation", actor)
	defer func() { endSpan(span, err) }()

	label = strings.TrimSpace(label)
	if label == "" {
		return StorageLocation{}, fmt.Errorf("%w: label is required", ErrInvalidInput)
	}
	l = StorageLocation{ID: ids.New(), Label: label, Available: true, CreatedAt: e.now().UTC()}
	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		if err := tx.InsertLocation(ctx, l); err != nil {
			return err
		}
		u.audit(audit.ActionCreateStorageLocation, audit.SubjectLocation, l.ID, nil, map[string]any{"label": l.Label})
		return nil
	})
	if err != nil {
		return StorageLocation{}, err
	}
	return l, nil
}

// CreateBox registers a stored box for a client.
func (e *Engine) CreateBox(ctx context.Context, actor Actor, in NewBox) (b Box, err error) {
	ctx, span := e.span(ctx, "CreateBox", actor, attribute.String("client.id", in.ClientID))
	defer func() { endSpan(span, err) }()

	in.ClientID = strings.TrimSpace(in.ClientID)
	in.LocationID = strings.TrimSpace(in.LocationID)
	index := strings.ToUpper(strings.TrimSpace(in.Index))
	if in.ClientID == "" || index == "" || in.DateReceived.IsZero() {
		return Box{}, fmt.Errorf("%w: client id, date received and box index are required", ErrInvalidInput)
	}
	if in.RetentionYears < 0 {
		return Box{}, fmt.Errorf("%w: retention years must not be negative", ErrInvalidInput)
	}
	if in.RetentionYears == 0 {
		in.RetentionYears = DefaultRetentionYears
	}
	if !actor.owns(in.ClientID) {
		return Box{}, ErrForbidden
	}

	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		client, err := tx.ClientByID(ctx, in.ClientID)
		if err != nil {
			return notFound(err, "client")
		}
		number := client.Code + "-" + index
		taken, err := tx.BoxNumberTaken(ctx, number)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: box number %s already exists", ErrConflict, number)
		}
		if in.LocationID != "" {
			loc, err := tx.LocationByID(ctx, in.LocationID)
			if err != nil {
				return notFound(err, "storage location")
			}
			if !loc.Available {
				return fmt.Errorf("%w: storage location is not available", ErrInvalidInput)
			}
		}

		now := e.now().UTC()
		received := in.DateReceived.UTC()
		b = Box{
			ID:              ids.New(),
			Number:          number,
			ClientID:        client.ID,
			LocationID:      in.LocationID,
			Description:     strings.TrimSpace(in.Description),
			DateReceived:    received,
			YearReceived:    received.Year(),
			RetentionYears:  in.RetentionYears,
			DestructionYear: received.Year() + in.RetentionYears,
			Status:          StatusStored,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := tx.InsertBox(ctx, b); err != nil {
			return err
		}
		u.audit(audit.ActionCreateBox, audit.SubjectBox, b.ID, nil, map[string]any{
			"box_number":      b.Number,
			"client_id":       b.ClientID,
			"box_index":       index,
			"location_id":     b.LocationID,
			"retention_years": b.RetentionYears,
		})
		return nil
	})
	if err != nil {
		return Box{}, err
	}
	e.logger.Info("box created", "box_id", b.ID, "box_number", b.Number, "by", actor.UserID)
	return b, nil
}

// GetBox returns a box. Clients only see their own.
func (e *Engine) GetBox(ctx context.Context, actor Actor, id string) (Box, error) {
	b, err := e.store.Box(ctx, id)
	if err != nil {
		return Box{}, notFound(err, "box")
	}
	if !actor.owns(b.ClientID) {
		return Box{}, ErrForbidden
	}
	return b, nil
}

// SetBoxStatus is the operator override. Any valid status may be set.
func (e *Engine) SetBoxStatus(ctx context.Context, actor Actor, boxID string, status BoxStatus) (ch StatusChange, err error) {
	ctx, span := e.span(ctx, "SetBoxStatus", actor, attribute.String("box.id", boxID))
	defer func() { endSpan(span, err) }()

	if !status.Valid() {
		return StatusChange{}, fmt.Errorf("%w: status must be stored, retrieved or destroyed", ErrInvalidInput)
	}
	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		box, err := tx.LockBox(ctx, boxID)
		if err != nil {
			return notFound(err, "box")
		}
		if !actor.owns(box.ClientID) {
			return ErrForbidden
		}
		if !ValidTransition(TriggerOverride, box.Status, status) {
			return fmt.Errorf("%w: cannot move box from %s to %s", ErrConflict, box.Status, status)
		}
		if err := tx.UpdateBoxStatus(ctx, box.ID, status); err != nil {
			return err
		}
		ch = StatusChange{BoxID: box.ID, BoxNumber: box.Number, OldStatus: box.Status, NewStatus: status}
		u.transition(TriggerOverride, status)
		u.audit(audit.ActionChangeBoxStatus, audit.SubjectBox, box.ID,
			map[string]any{"status": string(box.Status)},
			map[string]any{"status": string(status)},
		)
		return nil
	})
	if err != nil {
		return StatusChange{}, err
	}
	e.logger.Info("box status changed", "box_id", ch.BoxID, "from", ch.OldStatus, "to", ch.NewStatus, "by", actor.UserID)
	return ch, nil
}

// MarkBoxRetrieved moves a box to retrieved without a client signature.
func (e *Engine) MarkBoxRetrieved(ctx context.Context, actor Actor, boxID string) (ch StatusChange, err error) {
	ctx, span := e.span(ctx, "MarkBoxRetrieved", actor, attribute.String("box.id", boxID))
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		box, err := tx.LockBox(ctx, boxID)
		if err != nil {
			return notFound(err, "box")
		}
		if !actor.owns(box.ClientID) {
			return ErrForbidden
		}
		if box.Status == StatusRetrieved {
			return fmt.Errorf("%w: box is already marked as retrieved", ErrConflict)
		}
		if !ValidTransition(TriggerManualRetrieved, box.Status, StatusRetrieved) {
			return fmt.Errorf("%w: box cannot be marked as retrieved from %s", ErrConflict, box.Status)
		}
		if err := tx.UpdateBoxStatus(ctx, box.ID, StatusRetrieved); err != nil {
			return err
		}
		ch = StatusChange{BoxID: box.ID, BoxNumber: box.Number, OldStatus: box.Status, NewStatus: StatusRetrieved}
		u.transition(TriggerManualRetrieved, StatusRetrieved)
		u.audit(audit.ActionManualMarkBoxRetrieved, audit.SubjectBox, box.ID,
			map[string]any{"status": string(box.Status)},
			map[string]any{"status": string(StatusRetrieved), "note": manualRetrievedNote},
		)
		return nil
	})
	if err != nil {
		return StatusChange{}, err
	}
	e.logger.Info("box manually marked retrieved", "box_id", ch.BoxID, "by", actor.UserID)
	return ch, nil
}

// CreateRetrieval opens a retrieval for a stored box. The box status is not changed.
func (e *Engine) CreateRetrieval(ctx context.Context, actor Actor, in NewRetrieval) (r Retrieval, err error) {
	ctx, span := e.span(ctx, "CreateRetrieval", actor, attribute.String("box.id", in.BoxID))
	defer func() { endSpan(span, err) }()

	in.ClientID = strings.TrimSpace(in.ClientID)
	in.BoxID = strings.TrimSpace(in.BoxID)
	if in.ClientID == "" || in.BoxID == "" || in.RetrievalDate.IsZero() {
		return Retrieval{}, fmt.Errorf("%w: client id, box id and retrieval date are required", ErrInvalidInput)
	}
	if !actor.owns(in.ClientID) {
		return Retrieval{}, ErrForbidden
	}

	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		if _, err := tx.ClientByID(ctx, in.ClientID); err != nil {
			return notFound(err, "client")
		}
		box, err := tx.LockBox(ctx, in.BoxID)
		if err != nil {
			return notFound(err, "box")
		}
		if box.ClientID != in.ClientID {
			return fmt.Errorf("%w: box does not belong to this client", ErrConflict)
		}
		if !Retrievable(box.Status) {
			switch box.Status {
			case StatusRetrieved:
				return fmt.Errorf("%w: box has already been retrieved", ErrConflict)
			case StatusDestroyed:
				return fmt.Errorf("%w: box has been destroyed and cannot be retrieved", ErrConflict)
			}
			return fmt.Errorf("%w: box in status %s cannot be retrieved", ErrConflict, box.Status)
		}

		r = Retrieval{
			ID:             ids.New(),
			ClientID:       in.ClientID,
			BoxID:          box.ID,
			BoxNumber:      box.Number,
			RetrievalDate:  in.RetrievalDate.UTC(),
			RetrievedBy:    strings.TrimSpace(in.RetrievedBy),
			Reason:         strings.TrimSpace(in.Reason),
			StaffSignature: strings.TrimSpace(in.StaffSignature),
			CreatedBy:      actor.UserID,
			CreatedAt:      e.now().UTC(),
		}
		if err := tx.InsertRetrieval(ctx, r); err != nil {
			return err
		}
		u.audit(audit.ActionCreateRetrieval, audit.SubjectRetrieval, r.ID, nil, map[string]any{
			"client_id":      r.ClientID,
			"box_id":         r.BoxID,
			"box_number":     box.Number,
			"retrieval_date": r.RetrievalDate.Format(time.DateOnly),
			"status":         "pending_signature",
		})
		return nil
	})
	if err != nil {
		return Retrieval{}, err
	}
	e.logger.Info("retrieval created", "retrieval_id", r.ID, "box_id", r.BoxID, "by", actor.UserID)
	return r, nil
}

func checkSignatures(actor Actor, sigs Signatures) error {
	if actor.isClient() {
		if sigs.Staff != nil {
			return fmt.Errorf("%w: clients can only provide the client signature", ErrInvalidInput)
		}
		if sigs.Client == nil {
			return fmt.Errorf("%w: client signature is required", ErrInvalidInput)
		}
	}
	if sigs.Staff == nil && sigs.Client == nil {
		return fmt.Errorf("%w: at least one signature must be provided", ErrInvalidInput)
	}
	if sigs.Staff != nil && strings.TrimSpace(*sigs.Staff) == "" {
		return fmt.Errorf("%w: staff signature must not be empty", ErrInvalidInput)
	}
	if sigs.Client != nil && strings.TrimSpace(*sigs.Client) == "" {
		return fmt.Errorf("%w: client signature must not be empty", ErrInvalidInput)
	}
	return nil
}

// SignRetrieval writes signatures onto a retrieval. The first client
// signature on a retrieval whose box is stored moves the box to retrieved in
// the same transaction. Later client signatures are stored without touching
// the box.
func (e *Engine) SignRetrieval(ctx context.Context, actor Actor, retrievalID string, sigs Signatures) (res SignResult, err error) {
	ctx, span := e.span(ctx, "SignRetrieval", actor, attribute.String("retrieval.id", retrievalID))
	defer func() { endSpan(span, err) }()

	err = e.run(ctx, actor, func(tx Tx, u *unit) error {
		r, err := tx.LockRetrieval(ctx, retrievalID)
		if err != nil {
			return notFound(err, "retrieval")
		}
		if !actor.owns(r.ClientID) {
			return ErrForbidden
		}
		if err := checkSignatures(actor, sigs); err != nil {
			return err
		}
		box, err := tx.LockBox(ctx, r.BoxID)
		if err != nil {
			return notFound(err, "box")
		}

		hadStaff, hadClient := r.HasStaffSignature(), r.HasClientSignature()
		staff, client := r.StaffSignature, r.ClientSignature
		if sigs.Staff != nil {
			staff = strings.TrimSpace(*sigs.Staff)
		}
		if sigs.Client != nil {
			client = strings.TrimSpace(*sigs.Client)
		}
		if err := tx.UpdateSignatures(ctx, r.ID, staff, client); err != nil {
			return err
		}

		changed := false
		if sigs.Client != nil && !hadClient && ValidTransition(TriggerClientSignature, box.Status, StatusRetrieved) {
			if err := tx.UpdateBoxStatus(ctx, box.ID, StatusRetrieved); err != nil {
				return err
			}
			changed = true
			box.Status = StatusRetrieved
		}

		res = SignResult{
			RetrievalID:        r.ID,
			BoxID:              box.ID,
			BoxNumber:          box.Number,
			RetrievalCompleted: sigs.Client != nil,
			BoxStatusChanged:   changed,
			BoxStatus:          box.Status,
		}
		u.audit(audit.ActionUpdateRetrievalSignatures, audit.SubjectRetrieval, r.ID,
			map[string]any{"had_staff_signature": hadStaff, "had_client_signature": hadClient},
			map[string]any{
				"has_staff_signature":  staff != "",
				"has_client_signature": client != "",
				"box_status_changed":   changed,
				"new_box_status":       string(box.Status),
			},
		)
		if changed {
			u.transition(TriggerClientSignature, StatusRetrieved)
			u.audit(audit.ActionBoxStatusChangeOnRetrieval, audit.SubjectBox, box.ID,
				map[string]any{"status": string(StatusStored)},
				map[string]any{
					"status":       string(StatusRetrieved),
					"triggered_by": string(TriggerClientSignature),
					"retrieval_id": r.ID,
				},
			)
		}
		return nil
	})
	if err != nil {
		return SignResult{}, err
	}
	if res.BoxStatusChanged {
		e.logger.Info("box retrieved on client signature", "box_id", res.BoxID, "retrieval_id", res.RetrievalID, "by", actor.UserID)
	}
	return res, nil
}

// AttachArtifact stores the path of the signed retrieval document.
func (e *Engine) AttachArtifact(ctx context.Context, actor Actor, retrievalID, path string) (err error) {
	ctx, span := e.span(ctx, "AttachArtifact", actor, attribute.String("retrieval.id", retrievalID))
	defer func() { endSpan(span, err) }()

	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: pdf path is required", ErrInvalidInput)
	}
	return e.run(ctx, actor, func(tx Tx, u *unit) error {
		r, err := tx.LockRetrieval(ctx, retrievalID)
		if err != nil {
			return notFound(err, "retrieval")
		}
		if !actor.owns(r.ClientID) {
			return ErrForbidden
		}
		if err := tx.UpdateArtifact(ctx, r.ID, path); err != nil {
			return err
		}
		u.audit(audit.ActionUpdateRetrievalPDF, audit.SubjectRetrieval, r.ID,
			map[string]any{"pdf_path": r.ArtifactPath},
			map[string]any{"pdf_path": path},
		)
		return nil
	})
}

// DeleteRetrieval removes a retrieval. The box keeps its status.
func (e *Engine) DeleteRetrieval(ctx context.Context, actor Actor, retrievalID string) (err error) {
	ctx, span := e.span(ctx, "DeleteRetrieval", actor, attribute.String("retrieval.id", retrievalID))
	defer func() { endSpan(span, err) }()

	return e.run(ctx, actor, func(tx Tx, u *unit) error {
		r, err := tx.LockRetrieval(ctx, retrievalID)
		if err != nil {
			return notFound(err, "retrieval")
		}
		if !actor.owns(r.ClientID) {
			return ErrForbidden
		}
		if err := tx.DeleteRetrieval(ctx, r.ID); err != nil {
			return err
		}
		u.audit(audit.ActionDeleteRetrieval, audit.SubjectRetrieval, r.ID,
			map[string]any{"client_id": r.ClientID, "box_id": r.BoxID},
			nil,
		)
		return nil
	})
}

// GetRetrieval returns a retrieval. Clients only see their own.
func (e *Engine) GetRetrieval(ctx context.Context, actor Actor, id string) (Retrieval, error) {
	r, err := e.store.Retrieval(ctx, id)
	if err != nil {
		return Retrieval{}, notFound(err, "retrieval")
	}
	if !actor.owns(r.ClientID) {
		return Retrieval{}, ErrForbidden
	}
	return r, nil
}

// ListRetrievals pages through retrievals. A client listing is pinned to its
// own tenant and asking for another tenant is forbidden.
func (e *Engine) ListRetrievals(ctx context.Context, actor Actor, q RetrievalQuery) (Page[Retrieval], error) {
	q, err := q.Normalize()
	if err != nil {
		return Page[Retrieval]{}, err
	}
	if actor.isClient() {
		if q.ClientID != "" && !actor.owns(q.ClientID) {
			return Page[Retrieval]{}, ErrForbidden
		}
		if actor.ClientID == "" {
			return Page[Retrieval]{}, ErrForbidden
		}
		q.ClientID = actor.ClientID
	}
	items, total, err := e.store.ListRetrievals(ctx, q)
	if err != nil {
		return Page[Retrieval]{}, err
	}
	if items == nil {
		items = []Retrieval{}
	}
	return Page[Retrieval]{Items: items, Total: total, Page: q.Page, Limit: q.Limit}, nil
}
