package proforma

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/laha-editions/proforma/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PostgresRepository stores proformas in the proformas table.
type PostgresRepository struct {
	db dbtx
}

// NewRepository constructs a Postgres backed Repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

const selectColumns = `
	id, proforma_number, recipient, items,
	promo_discount_rate::text, promo_code,
	subtotal_ht::text, discount_total::text, taxable_base::text, tax_total::text, total_ttc::text,
	status, order_id, currency, country, order_type, notes, created_by,
	issued_at, valid_until, sent_at, accepted_at, expired_at, cancelled_at,
	cancellation_reason, converted_at, version, created_at, updated_at`

// Insert stores a new proforma.
func (r *PostgresRepository) Insert(ctx context.Context, doc Document) error {
	recipient, items, err := encodeJSONColumns(doc)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO proformas (
			id, proforma_number, recipient_kind, recipient_name, recipient, items,
			promo_discount_rate, promo_code,
			subtotal_ht, discount_total, taxable_base, tax_total, total_ttc,
			status, order_id, currency, country, order_type, notes, created_by,
			issued_at, valid_until, sent_at, accepted_at, expired_at, cancelled_at,
			cancellation_reason, converted_at, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7::numeric, $8,
			$9::numeric, $10::numeric, $11::numeric, $12::numeric, $13::numeric,
			$14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26,
			$27, $28, $29, $30, $31
		)`,
		doc.ID, doc.Number, string(doc.Recipient.Kind()), doc.Recipient.DisplayName(), recipient, items,
		decimalArg(doc.PromoDiscountRate), doc.PromoCode,
		doc.Totals.SubtotalHT.String(), doc.Totals.DiscountTotal.String(), doc.Totals.TaxableBase.String(),
		doc.Totals.TaxTotal.String(), doc.Totals.TotalTTC.String(),
		string(doc.Status), doc.OrderID, doc.Currency, doc.Country, doc.OrderType, doc.Notes, doc.CreatedBy,
		doc.IssuedAt, doc.ValidUntil, doc.SentAt, doc.AcceptedAt, doc.ExpiredAt, doc.CancelledAt,
		doc.CancellationReason, doc.ConvertedAt, doc.Version, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrNumberCollision, doc.Number)
		}
		return fmt.Errorf("insert proforma: %w", err)
	}
	return nil
}

// Get loads a proforma by id.
func (r *PostgresRepository) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM proformas WHERE id = $1`, id)
	return scanDocument(row)
}

// GetByNumber loads a proforma by its number.
func (r *PostgresRepository) GetByNumber(ctx context.Context, number string) (*Document, error) {
	row := r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM proformas WHERE proforma_number = $1`, number)
	return scanDocument(row)
}

// Update writes doc when the stored version equals expectedVersion.
func (r *PostgresRepository) Update(ctx context.Context, doc Document, expectedVersion int64) error {
	recipient, items, err := encodeJSONColumns(doc)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE proformas SET
			recipient_kind = $3, recipient_name = $4, recipient = $5, items = $6,
			promo_discount_rate = $7::numeric, promo_code = $8,
			subtotal_ht = $9::numeric, discount_total = $10::numeric, taxable_base = $11::numeric,
			tax_total = $12::numeric, total_ttc = $13::numeric,
			status = $14, order_id = $15, notes = $16,
			issued_at = $17, valid_until = $18, sent_at = $19, accepted_at = $20,
			expired_at = $21, cancelled_at = $22, cancellation_reason = $23, converted_at = $24,
			version = $25, updated_at = $26
		WHERE id = $1 AND version = $2`,
		doc.ID, expectedVersion,
		string(doc.Recipient.Kind()), doc.Recipient.DisplayName(), recipient, items,
		decimalArg(doc.PromoDiscountRate), doc.PromoCode,
		doc.Totals.SubtotalHT.String(), doc.Totals.DiscountTotal.String(), doc.Totals.TaxableBase.String(),
		doc.Totals.TaxTotal.String(), doc.Totals.TotalTTC.String(),
		string(doc.Status), doc.OrderID, doc.Notes,
		doc.IssuedAt, doc.ValidUntil, doc.SentAt, doc.AcceptedAt,
		doc.ExpiredAt, doc.CancelledAt, doc.CancellationReason, doc.ConvertedAt,
		doc.Version, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update proforma: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM proformas WHERE id = $1)`, doc.ID).Scan(&exists); err != nil {
			return fmt.Errorf("update proforma: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s expected version %d", ErrVersionConflict, doc.Number, expectedVersion)
	}
	return nil
}

// List returns a filtered page ordered by creation date, newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	var (
		conditions []string
		args       []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		conditions = append(conditions, fmt.Sprintf("(proforma_number ILIKE $%d OR recipient_name ILIKE $%d)", len(args), len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM proformas "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proformas: %w", err)
	}

	args = append(args, filter.Limit, filter.Offset)
	query := fmt.Sprintf("SELECT %s FROM proformas %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d",
		selectColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proformas: %w", err)
	}
	defer rows.Close()

	docs := make([]Document, 0, filter.Limit)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list proformas: %w", err)
	}
	return docs, total, nil
}

// ListExpirable returns SENT proformas whose validity ended before now.
func (r *PostgresRepository) ListExpirable(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id FROM proformas
		WHERE status = $1 AND valid_until < $2
		ORDER BY valid_until
		LIMIT $3`, string(StatusSent), now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expirable proformas: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("list expirable proformas: %w", err)
	}
	return ids, nil
}

func scanDocument(row pgx.Row) (*Document, error) {
	var (
		doc                                              Document
		recipient, items                                 []byte
		promo                                            *string
		subtotal, discount, taxable, tax, ttc, statusRaw string
	)
	err := row.Scan(
		&doc.ID, &doc.Number, &recipient, &items,
		&promo, &doc.PromoCode,
		&subtotal, &discount, &taxable, &tax, &ttc,
		&statusRaw, &doc.OrderID, &doc.Currency, &doc.Country, &doc.OrderType, &doc.Notes, &doc.CreatedBy,
		&doc.IssuedAt, &doc.ValidUntil, &doc.SentAt, &doc.AcceptedAt, &doc.ExpiredAt, &doc.CancelledAt,
		&doc.CancellationReason, &doc.ConvertedAt, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan proforma: %w", err)
	}

	doc.Status = Status(statusRaw)
	if err := json.Unmarshal(recipient, &doc.Recipient); err != nil {
		return nil, fmt.Errorf("%w: decode recipient of %s: %v", ErrIntegrity, doc.Number, err)
	}
	if err := json.Unmarshal(items, &doc.Items); err != nil {
		return nil, fmt.Errorf("%w: decode items of %s: %v", ErrIntegrity, doc.Number, err)
	}
	if promo != nil {
		rate, err := decimal.NewFromString(*promo)
		if err != nil {
			return nil, fmt.Errorf("%w: promo rate of %s: %v", ErrIntegrity, doc.Number, err)
		}
		doc.PromoDiscountRate = &rate
	}
	amounts := []struct {
		raw    string
		target *decimal.Decimal
	}{
		{subtotal, &doc.Totals.SubtotalHT},
		{discount, &doc.Totals.DiscountTotal},
		{taxable, &doc.Totals.TaxableBase},
		{tax, &doc.Totals.TaxTotal},
		{ttc, &doc.Totals.TotalTTC},
	}
	for _, a := range amounts {
		v, err := decimal.NewFromString(a.raw)
		if err != nil {
			return nil, fmt.Errorf("%w: totals of %s: %v", ErrIntegrity, doc.Number, err)
		}
		*a.target = v
	}
	return &doc, nil
}

func encodeJSONColumns(doc Document) ([]byte, []byte, error) {
	recipient, err := json.Marshal(doc.Recipient)
	if err != nil {
		return nil, nil, fmt.Errorf("encode recipient: %w", err)
	}
	items := doc.Items
	if items == nil {
		items = []LineItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, nil, fmt.Errorf("encode items: %w", err)
	}
	return recipient, encoded, nil
}

func decimalArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
