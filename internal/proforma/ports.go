package proforma

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Work is the catalog view needed to snapshot a line.
type Work struct {
	ID           string
	Title        string
	ISBN         string
	AuthorName   string
	InternalCode string
	PriceHT      decimal.Decimal
	TaxRate      *decimal.Decimal
}

// CatalogLookup resolves catalog works. Implementations return an error
// wrapping ErrCatalogMiss when the work is unknown or unpublished.
type CatalogLookup interface {
	GetWork(ctx context.Context, id string) (Work, error)
}

// OrderService creates a firm order from an accepted proforma and returns
// its identifier.
type OrderService interface {
	CreateFromProforma(ctx context.Context, doc Document) (string, error)
}

// NotificationKind identifies the lifecycle event being notified.
type NotificationKind string

const (
	NotificationSent     NotificationKind = "PROFORMA_SENT"
	NotificationAccepted NotificationKind = "PROFORMA_ACCEPTED"
	NotificationExpired  NotificationKind = "PROFORMA_EXPIRED"
)

// Notification is handed to the Notifier after a transition committed.
type Notification struct {
	ID       uuid.UUID
	Kind     NotificationKind
	Document Document
}

// Notifier informs recipients (or the document creator) of lifecycle events.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// DocumentRenderer produces the printable (PDF) rendition of a proforma.
type DocumentRenderer interface {
	Render(ctx context.Context, doc Document) ([]byte, error)
}

// Clock abstracts time for validity comparisons.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Locker provides a mutual exclusion keyed by name, held at most ttl.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// ListFilter narrows List results.
type ListFilter struct {
	Status *Status
	Search string
	Limit  int
	Offset int
}

// Repository persists proformas. Update stores doc (whose Version the caller
// already bumped) only when the stored version still equals expectedVersion,
// and returns ErrVersionConflict otherwise.
type Repository interface {
	Insert(ctx context.Context, doc Document) error
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	GetByNumber(ctx context.Context, number string) (*Document, error)
	Update(ctx context.Context, doc Document, expectedVersion int64) error
	List(ctx context.Context, filter ListFilter) ([]Document, int, error)
	ListExpirable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
