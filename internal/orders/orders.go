// Package orders creates firm orders from accepted proformas.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/laha-editions/proforma/internal/platform/db"
	"github.com/laha-editions/proforma/internal/proforma"
)

// StatusPending is the status of a freshly created order.
const StatusPending = "PENDING"

// Item is one order line.
type Item struct {
	WorkID   string
	Quantity int
	Price    decimal.Decimal
}

// Order is the firm order derived from a proforma.
type Order struct {
	ID         uuid.UUID
	ProformaID uuid.UUID
	Status     string
	OrderType  *string
	Recipient  proforma.Recipient
	TotalTTC   decimal.Decimal
	CreatedBy  string
	CreatedAt  time.Time
	Items      []Item
}

// FromProforma maps an accepted proforma to a pending order. Lines keep the
// unit price before tax.
func FromProforma(doc proforma.Document, now time.Time) (Order, error) {
	if doc.Status != proforma.StatusAccepted {
		return Order{}, fmt.Errorf("orders: proforma %s is %s, not ACCEPTED", doc.Number, doc.Status)
	}
	if len(doc.Items) == 0 {
		return Order{}, fmt.Errorf("orders: proforma %s has no items", doc.Number)
	}
	items := make([]Item, 0, len(doc.Items))
	for _, line := range doc.Items {
		items = append(items, Item{
			WorkID:   line.BookReference,
			Quantity: line.Quantity,
			Price:    line.UnitPriceHT,
		})
	}
	return Order{
		ID:         uuid.New(),
		ProformaID: doc.ID,
		Status:     StatusPending,
		OrderType:  doc.OrderType,
		Recipient:  doc.Recipient,
		TotalTTC:   doc.Totals.TotalTTC,
		CreatedBy:  doc.CreatedBy,
		CreatedAt:  now,
		Items:      items,
	}, nil
}

// PostgresService implements proforma.OrderService on the orders tables.
type PostgresService struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewPostgresService constructs the order service.
func NewPostgresService(pool *pgxpool.Pool) *PostgresService {
	return &PostgresService{pool: pool, now: func() time.Time { return time.Now().UTC() }}
}

// CreateFromProforma inserts the order and its lines in one transaction. A
// retry for a proforma that already produced an order returns that order.
func (s *PostgresService) CreateFromProforma(ctx context.Context, doc proforma.Document) (string, error) {
	order, err := FromProforma(doc, s.now())
	if err != nil {
		return "", err
	}
	recipient, err := json.Marshal(order.Recipient)
	if err != nil {
		return "", fmt.Errorf("orders: encode recipient: %w", err)
	}

	var orderID uuid.UUID
	err = db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `SELECT id FROM orders WHERE proforma_id = $1`, order.ProformaID).Scan(&orderID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("orders: lookup existing: %w", err)
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (id, proforma_id, status, order_type, recipient, total_ttc, created_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8)`,
			order.ID, order.ProformaID, order.Status, order.OrderType, recipient,
			order.TotalTTC.String(), order.CreatedBy, order.CreatedAt,
		); err != nil {
			return fmt.Errorf("orders: insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (order_id, line_no, work_id, quantity, price)
				VALUES ($1, $2, $3, $4, $5::numeric)`,
				order.ID, i+1, item.WorkID, item.Quantity, item.Price.String())
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("orders: insert items: %w", err)
		}
		orderID = order.ID
		return nil
	}, db.WithRetries(3, retryableInsert))
	if err != nil {
		return "", err
	}
	return orderID.String(), nil
}

// retryableInsert also retries a duplicate insert: the rerun finds the order
// committed by the concurrent caller.
func retryableInsert(err error) bool {
	return db.IsSerializationFailure(err) || db.IsUniqueViolation(err)
}
