package proforma

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// NumberGenerator allocates proforma numbers. Numbers are never reused.
type NumberGenerator interface {
	Next(ctx context.Context, at time.Time) (string, error)
}

// FormatNumber renders the PF-{YYYY}-{NNNNNN} reference.
func FormatNumber(year int, seq int64) string {
	return fmt.Sprintf("PF-%04d-%06d", year, seq)
}

// PostgresSequence allocates numbers from the document_sequences table.
type PostgresSequence struct {
	pool *pgxpool.Pool
}

// NewPostgresSequence constructs a Postgres backed generator.
func NewPostgresSequence(pool *pgxpool.Pool) *PostgresSequence {
	return &PostgresSequence{pool: pool}
}

// Next increments the yearly sequence atomically.
func (g *PostgresSequence) Next(ctx context.Context, at time.Time) (string, error) {
	year := at.UTC().Year()
	var seq int64
	err := g.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (doc_type, period, seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (doc_type, period)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, "PF", fmt.Sprintf("%04d", year)).Scan(&seq)
	if err != nil {
		return "", fmt.Errorf("proforma: next number: %w", err)
	}
	return FormatNumber(year, seq), nil
}

// RedisSequence allocates numbers with INCR on a yearly key.
type RedisSequence struct {
	client *redis.Client
	prefix string
}

// NewRedisSequence constructs a Redis backed generator.
func NewRedisSequence(client *redis.Client) *RedisSequence {
	return &RedisSequence{client: client, prefix: "proforma:seq"}
}

// Next increments the yearly counter atomically.
func (g *RedisSequence) Next(ctx context.Context, at time.Time) (string, error) {
	year := at.UTC().Year()
	seq, err := g.client.Incr(ctx, fmt.Sprintf("%s:%04d", g.prefix, year)).Result()
	if err != nil {
		return "", fmt.Errorf("proforma: next number: %w", err)
	}
	return FormatNumber(year, seq), nil
}
