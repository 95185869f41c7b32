package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNoAddress is returned when a contact has no e-mail on file.
var ErrNoAddress = errors.New("notify: no e-mail address on file")

// Contact is a registered addressee.
type Contact struct {
	Name  string
	Email string
}

//go:generate mockgen -source=directory.go -destination=mock_directory_test.go -package=notify Directory

// Directory resolves registered schools, partners, clients and users.
type Directory interface {
	Contact(ctx context.Context, kind, id string) (Contact, error)
}

// PostgresDirectory reads the contacts table.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory constructs the directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

// Contact returns the contact identified by kind and id.
func (d *PostgresDirectory) Contact(ctx context.Context, kind, id string) (Contact, error) {
	var (
		c     Contact
		email *string
	)
	err := d.pool.QueryRow(ctx, `SELECT name, email FROM contacts WHERE kind = $1 AND id = $2`, kind, id).
		Scan(&c.Name, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Contact{}, fmt.Errorf("%w: %s %s unknown", ErrNoAddress, kind, id)
		}
		return Contact{}, fmt.Errorf("notify: contact %s %s: %w", kind, id, err)
	}
	if email == nil || *email == "" {
		return Contact{}, fmt.Errorf("%w: %s %s", ErrNoAddress, kind, id)
	}
	c.Email = *email
	return c, nil
}
