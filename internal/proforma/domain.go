package proforma

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status is the legal state of a proforma.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusAccepted  Status = "ACCEPTED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusSent, StatusAccepted, StatusExpired, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no action is possible from s.
func (s Status) Terminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

// LineItem is one ordered line of a proforma. The descriptive fields are a
// snapshot of the catalog taken at creation time.
type LineItem struct {
	BookReference string          `json:"book_reference"`
	Title         string          `json:"title"`
	ISBN          string          `json:"isbn,omitempty"`
	AuthorName    string          `json:"author_name,omitempty"`
	InternalCode  string          `json:"internal_code,omitempty"`
	Quantity      int             `json:"quantity"`
	UnitPriceHT   decimal.Decimal `json:"unit_price_ht"`
	DiscountRate  decimal.Decimal `json:"discount_rate"`
	TaxRate       decimal.Decimal `json:"tax_rate"`
	Amounts       LineBreakdown   `json:"amounts"`
}

// Breakdown computes the derived amounts from the line inputs.
func (l LineItem) Breakdown() (LineBreakdown, error) {
	return ComputeLine(l.UnitPriceHT, l.Quantity, l.DiscountRate, l.TaxRate)
}

// Document is the proforma aggregate root.
type Document struct {
	ID                 uuid.UUID        `json:"id"`
	Number             string           `json:"proforma_number"`
	Recipient          Recipient        `json:"recipient"`
	Items              []LineItem       `json:"items"`
	PromoDiscountRate  *decimal.Decimal `json:"promo_discount_rate,omitempty"`
	PromoCode          *string          `json:"promo_code,omitempty"`
	Totals             Totals           `json:"totals"`
	Status             Status           `json:"status"`
	OrderID            *string          `json:"order_id,omitempty"`
	Currency           string           `json:"currency"`
	Country            string           `json:"country"`
	OrderType          *string          `json:"order_type,omitempty"`
	Notes              *string          `json:"notes,omitempty"`
	CreatedBy          string           `json:"created_by"`
	IssuedAt           *time.Time       `json:"issued_at,omitempty"`
	ValidUntil         time.Time        `json:"valid_until"`
	SentAt             *time.Time       `json:"sent_at,omitempty"`
	AcceptedAt         *time.Time       `json:"accepted_at,omitempty"`
	ExpiredAt          *time.Time       `json:"expired_at,omitempty"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason *string          `json:"cancellation_reason,omitempty"`
	ConvertedAt        *time.Time       `json:"converted_at,omitempty"`
	Version            int64            `json:"version"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// Converted reports whether an order was created from this proforma.
func (d *Document) Converted() bool {
	return d.OrderID != nil && *d.OrderID != ""
}

// Recompute re-derives every line breakdown and the document totals.
func (d *Document) Recompute() error {
	items := make([]LineItem, len(d.Items))
	for i, item := range d.Items {
		b, err := item.Breakdown()
		if err != nil {
			return fmt.Errorf("line %d: %w", i+1, err)
		}
		item.Amounts = b
		items[i] = item
	}
	totals, err := Aggregate(items, d.PromoDiscountRate)
	if err != nil {
		return err
	}
	if err := totals.Reconcile(); err != nil {
		return err
	}
	d.Items = items
	d.Totals = totals
	return nil
}

// SetItems replaces the items and recomputes the totals. The document is
// left untouched on error.
func (d *Document) SetItems(items []LineItem) error {
	next := d.Clone()
	next.Items = append([]LineItem(nil), items...)
	if err := next.Recompute(); err != nil {
		return err
	}
	d.Items, d.Totals = next.Items, next.Totals
	return nil
}

// SetPromo replaces the promo rate and recomputes the totals. A nil rate
// removes the promo.
func (d *Document) SetPromo(rate *decimal.Decimal) error {
	next := d.Clone()
	next.PromoDiscountRate = copyDecimal(rate)
	if err := next.Recompute(); err != nil {
		return err
	}
	d.PromoDiscountRate, d.Totals = next.PromoDiscountRate, next.Totals
	d.Items = next.Items
	return nil
}

// Clone returns a deep copy that shares no mutable state with d.
func (d *Document) Clone() Document {
	c := *d
	c.Items = append([]LineItem(nil), d.Items...)
	c.PromoDiscountRate = copyDecimal(d.PromoDiscountRate)
	c.PromoCode = copyPtr(d.PromoCode)
	c.OrderID = copyPtr(d.OrderID)
	c.OrderType = copyPtr(d.OrderType)
	c.Notes = copyPtr(d.Notes)
	c.IssuedAt = copyPtr(d.IssuedAt)
	c.SentAt = copyPtr(d.SentAt)
	c.AcceptedAt = copyPtr(d.AcceptedAt)
	c.ExpiredAt = copyPtr(d.ExpiredAt)
	c.CancelledAt = copyPtr(d.CancelledAt)
	c.CancellationReason = copyPtr(d.CancellationReason)
	c.ConvertedAt = copyPtr(d.ConvertedAt)
	return c
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyDecimal(p *decimal.Decimal) *decimal.Decimal {
	return copyPtr(p)
}
