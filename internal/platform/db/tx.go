package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

type txConfig struct {
	options   pgx.TxOptions
	attempts  int
	retryable func(error) bool
}

// TxOption tunes WithTx.
type TxOption func(*txConfig)

// WithIsolation overrides the RepeatableRead default.
func WithIsolation(level pgx.TxIsoLevel) TxOption {
	return func(c *txConfig) { c.options.IsoLevel = level }
}

// WithRetries runs fn up to attempts times while retryable accepts the error.
// A nil retryable keeps IsSerializationFailure.
func WithRetries(attempts int, retryable func(error) bool) TxOption {
	return func(c *txConfig) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if retryable != nil {
			c.retryable = retryable
		}
	}
}

// WithTx runs fn in a RepeatableRead transaction, committing when fn returns
// nil. Serialization failures are retried up to three attempts in total.
func WithTx(ctx context.Context, db Beginner, fn func(pgx.Tx) error, opts ...TxOption) error {
	cfg := txConfig{
		options:   pgx.TxOptions{IsoLevel: pgx.RepeatableRead},
		attempts:  3,
		retryable: IsSerializationFailure,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = runTx(ctx, db, cfg.options, fn)
		if err == nil || attempt >= cfg.attempts || !cfg.retryable(err) || ctx.Err() != nil {
			return err
		}
	}
}

func runTx(ctx context.Context, db Beginner, options pgx.TxOptions, fn func(pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, options)
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

// IsSerializationFailure reports whether err aborted a transaction that is
// safe to run again.
func IsSerializationFailure(err error) bool {
	code := errorCode(err)
	return code == pgerrcode.SerializationFailure || code == pgerrcode.DeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	return errorCode(err) == pgerrcode.UniqueViolation
}

func errorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
