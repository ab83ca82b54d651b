package memory

import (
	"context"
	"maps"
	"slices"
	"strings"

	"github.com/Siwa-Docsecure/base/internal/records"
)

type recordData struct {
	clients    map[string]records.Client
	locations  map[string]records.StorageLocation
	boxes      map[string]records.Box
	retrievals map[string]records.Retrieval
}

func newRecordData() recordData {
	return recordData{
		clients:    make(map[string]records.Client),
		locations:  make(map[string]records.StorageLocation),
		boxes:      make(map[string]records.Box),
		retrievals: make(map[string]records.Retrieval),
	}
}

func (d recordData) clone() recordData {
	return recordData{
		clients:    maps.Clone(d.clients),
		locations:  maps.Clone(d.locations),
		boxes:      maps.Clone(d.boxes),
		retrievals: maps.Clone(d.retrievals),
	}
}

// InTx runs fn against a copy of the record state and keeps the copy only
// when fn succeeds.
func (s *Store) InTx(ctx context.Context, fn func(tx records.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &tx{data: s.data.clone()}
	if err := fn(t); err != nil {
		return err
	}
	s.data = t.data
	return nil
}

func (s *Store) Client(ctx context.Context, id string) (records.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.data.clients[id]
	if !ok {
		return records.Client{}, records.ErrNotFound
	}
	return c, nil
}

func (s *Store) ClientExists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.clients[id]
	return ok, nil
}

func (s *Store) Box(ctx context.Context, id string) (records.Box, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data.boxes[id]
	if !ok {
		return records.Box{}, records.ErrNotFound
	}
	return b, nil
}

func (s *Store) Retrieval(ctx context.Context, id string) (records.Retrieval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.data.retrievals[id]
	if !ok {
		return records.Retrieval{}, records.ErrNotFound
	}
	r.BoxNumber = s.data.boxes[r.BoxID].Number
	return r, nil
}

func (s *Store) ListRetrievals(ctx context.Context, q records.RetrievalQuery) ([]records.Retrieval, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(q.Search)
	var matched []records.Retrieval
	for _, r := range s.data.retrievals {
		r.BoxNumber = s.data.boxes[r.BoxID].Number
		switch {
		case q.ClientID != "" && r.ClientID != q.ClientID:
			continue
		case q.BoxID != "" && r.BoxID != q.BoxID:
			continue
		case !q.From.IsZero() && r.RetrievalDate.Before(q.From):
			continue
		case !q.Before.IsZero() && !r.RetrievalDate.Before(q.Before):
			continue
		case q.AwaitingClientSignature && r.HasClientSignature():
			continue
		case search != "" && !matchesSearch(r, search):
			continue
		}
		matched = append(matched, r)
	}

	slices.SortFunc(matched, func(a, b records.Retrieval) int {
		ka, kb := a.RetrievalDate, b.RetrievalDate
		if q.Sort == records.SortCreatedAt {
			ka, kb = a.CreatedAt, b.CreatedAt
		}
		c := ka.Compare(kb)
		if c == 0 {
			c = strings.Compare(a.ID, b.ID)
		}
		if q.Order == records.OrderDesc {
			c = -c
		}
		return c
	})

	total := len(matched)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return matched[start:end], total, nil
}

func matchesSearch(r records.Retrieval, search string) bool {
	for _, field := range []string{r.BoxNumber, r.RetrievedBy, r.Reason} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

type tx struct {
	data recordData
}

func (t *tx) ClientByID(ctx context.Context, id string) (records.Client, error) {
	c, ok := t.data.clients[id]
	if !ok {
		return records.Client{}, records.ErrNotFound
	}
	return c, nil
}

func (t *tx) InsertClient(ctx context.Context, c records.Client) error {
	for _, existing := range t.data.clients {
		if existing.Code == c.Code {
			return records.ErrConflict
		}
	}
	t.data.clients[c.ID] = c
	return nil
}

func (t *tx) LocationByID(ctx context.Context, id string) (records.StorageLocation, error) {
	l, ok := t.data.locations[id]
	if !ok {
		return records.StorageLocation{}, records.ErrNotFound
	}
	return l, nil
}

func (t *tx) InsertLocation(ctx context.Context, l records.StorageLocation) error {
	t.data.locations[l.ID] = l
	return nil
}

func (t *tx) LockBox(ctx context.Context, id string) (records.Box, error) {
	b, ok := t.data.boxes[id]
	if !ok {
		return records.Box{}, records.ErrNotFound
	}
	return b, nil
}

func (t *tx) BoxNumberTaken(ctx context.Context, number string) (bool, error) {
	for _, b := range t.data.boxes {
		if b.Number == number {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) InsertBox(ctx context.Context, b records.Box) error {
	if taken, _ := t.BoxNumberTaken(ctx, b.Number); taken {
		return records.ErrConflict
	}
	t.data.boxes[b.ID] = b
	return nil
}

func (t *tx) UpdateBoxStatus(ctx context.Context, id string, status records.BoxStatus) error {
	b, ok := t.data.boxes[id]
	if !ok {
		return records.ErrNotFound
	}
	b.Status = status
	t.data.boxes[id] = b
	return nil
}

func (t *tx) LockRetrieval(ctx context.Context, id string) (records.Retrieval, error) {
	r, ok := t.data.retrievals[id]
	if !ok {
		return records.Retrieval{}, records.ErrNotFound
	}
	return r, nil
}

func (t *tx) InsertRetrieval(ctx context.Context, r records.Retrieval) error {
	t.data.retrievals[r.ID] = r
	return nil
}

func (t *tx) UpdateSignatures(ctx context.Context, id, staff, client string) error {
	r, ok := t.data.retrievals[id]
	if !ok {
		return records.ErrNotFound
	}
	r.StaffSignature = staff
	r.ClientSignature = client
	t.data.retrievals[id] = r
	return nil
}

func (t *tx) UpdateArtifact(ctx context.Context, id, path string) error {
	r, ok := t.data.retrievals[id]
	if !ok {
		return records.ErrNotFound
	}
	r.ArtifactPath = path
	t.data.retrievals[id] = r
	return nil
}

func (t *tx) DeleteRetrieval(ctx context.Context, id string) error {
	if _, ok := t.data.retrievals[id]; !ok {
		return records.ErrNotFound
	}
	delete(t.data.retrievals, id)
	return nil
}

// SetLocationAvailable flips a storage location's availability.
func (s *Store) SetLocationAvailable(id string, available bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.data.locations[id]
	if !ok {
		return false
	}
	l.Available = available
	s.data.locations[id] = l
	return true
}
