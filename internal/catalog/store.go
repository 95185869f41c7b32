// Package catalog resolves published works for proforma lines.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/laha-editions/proforma/internal/proforma"
)

// Source loads works from the system of record.
type Source interface {
	GetWork(ctx context.Context, id string) (proforma.Work, error)
}

// PostgresStore reads the works table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetWork returns a published work or an error wrapping proforma.ErrCatalogMiss.
func (s *PostgresStore) GetWork(ctx context.Context, id string) (proforma.Work, error) {
	var (
		w     proforma.Work
		price string
		tax   *string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, isbn, author_name, internal_code, price_ht::text, tax_rate::text
		FROM works
		WHERE id = $1 AND published`, id).
		Scan(&w.ID, &w.Title, &w.ISBN, &w.AuthorName, &w.InternalCode, &price, &tax)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return proforma.Work{}, fmt.Errorf("%w: %s", proforma.ErrCatalogMiss, id)
		}
		return proforma.Work{}, fmt.Errorf("catalog: get work %s: %w", id, err)
	}
	if w.PriceHT, err = decimal.NewFromString(price); err != nil {
		return proforma.Work{}, fmt.Errorf("catalog: price of %s: %w", id, err)
	}
	if tax != nil {
		rate, err := decimal.NewFromString(*tax)
		if err != nil {
			return proforma.Work{}, fmt.Errorf("catalog: tax rate of %s: %w", id, err)
		}
		w.TaxRate = &rate
	}
	return w, nil
}
