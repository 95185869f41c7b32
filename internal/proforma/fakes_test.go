package proforma

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type memRepo struct {
	mu      sync.Mutex
	docs    map[uuid.UUID]Document
	updates int
}

func newMemRepo() *memRepo {
	return &memRepo{docs: make(map[uuid.UUID]Document)}
}

func (r *memRepo) Insert(_ context.Context, doc Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.docs {
		if existing.Number == doc.Number {
			return fmt.Errorf("%w: %s", ErrNumberCollision, doc.Number)
		}
	}
	r.docs[doc.ID] = doc.Clone()
	return nil
}

func (r *memRepo) Get(_ context.Context, id uuid.UUID) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := doc.Clone()
	return &c, nil
}

func (r *memRepo) GetByNumber(_ context.Context, number string) (*Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, doc := range r.docs {
		if doc.Number == number {
			c := doc.Clone()
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (r *memRepo) Update(_ context.Context, doc Document, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.docs[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return ErrVersionConflict
	}
	r.docs[doc.ID] = doc.Clone()
	r.updates++
	return nil
}

func (r *memRepo) List(_ context.Context, filter ListFilter) ([]Document, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []Document
	for _, doc := range r.docs {
		if filter.Status != nil && doc.Status != *filter.Status {
			continue
		}
		if filter.Search != "" &&
			!strings.Contains(doc.Number, filter.Search) &&
			!strings.Contains(strings.ToLower(doc.Recipient.DisplayName()), strings.ToLower(filter.Search)) {
			continue
		}
		matched = append(matched, doc.Clone())
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Number > matched[j].Number })
	total := len(matched)
	if filter.Offset >= total {
		return []Document{}, total, nil
	}
	end := filter.Offset + filter.Limit
	if end > total {
		end = total
	}
	return matched[filter.Offset:end], total, nil
}

func (r *memRepo) ListExpirable(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ids []uuid.UUID
	for id, doc := range r.docs {
		if doc.Status == StatusSent && doc.ValidUntil.Before(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *memRepo) put(doc Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.ID] = doc.Clone()
}

func (r *memRepo) updateCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// conflictRepo reports a version conflict on every update.
type conflictRepo struct {
	*memRepo
}

func (conflictRepo) Update(context.Context, Document, int64) error {
	return ErrVersionConflict
}

type fakeCatalog map[string]Work

func (c fakeCatalog) GetWork(_ context.Context, id string) (Work, error) {
	w, ok := c[id]
	if !ok {
		return Work{}, fmt.Errorf("%w: %s", ErrCatalogMiss, id)
	}
	return w, nil
}

type fakeOrders struct {
	mu    sync.Mutex
	calls int
	err   error
	delay time.Duration
}

func (o *fakeOrders) CreateFromProforma(_ context.Context, doc Document) (string, error) {
	if o.delay > 0 {
		time.Sleep(o.delay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if o.err != nil {
		return "", o.err
	}
	return fmt.Sprintf("ord-%s-%d", doc.Number, o.calls), nil
}

func (o *fakeOrders) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (n *fakeNotifier) Notify(_ context.Context, note Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, note)
	return nil
}

func (n *fakeNotifier) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationKind, 0, len(n.sent))
	for _, note := range n.sent {
		out = append(out, note.Kind)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memSequence struct {
	mu  sync.Mutex
	seq int64
	err error
}

func (s *memSequence) Next(_ context.Context, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.seq++
	return FormatNumber(at.Year(), s.seq), nil
}

var errBoom = errors.New("boom")

func testCatalog() fakeCatalog {
	reduced := decimal.RequireFromString("0.055")
	return fakeCatalog{
		"w-1": {ID: "w-1", Title: "Manuel CP", ISBN: "978-1", AuthorName: "A. Mba", InternalCode: "LAHA-1", PriceHT: decimal.RequireFromString("1000")},
		"w-2": {ID: "w-2", Title: "Cahier CE1", ISBN: "978-2", AuthorName: "B. Ona", InternalCode: "LAHA-2", PriceHT: decimal.RequireFromString("500")},
		"w-3": {ID: "w-3", Title: "Dictionnaire", PriceHT: decimal.RequireFromString("12000"), TaxRate: &reduced},
	}
}
