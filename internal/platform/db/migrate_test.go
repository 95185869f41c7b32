package db

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laha-editions/proforma/migrations"
)

func readAll(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestMigrationSourceOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_orders.up.sql":   {Data: []byte("CREATE TABLE b();")},
		"0001_init.up.sql":     {Data: []byte("CREATE TABLE a();")},
		"0001_init.down.sql":   {Data: []byte("DROP TABLE a;")},
		"0002_orders.down.sql": {Data: []byte("DROP TABLE b;")},
	}
	source, err := iofs.New(fsys, ".")
	require.NoError(t, err)
	defer source.Close()

	first, err := source.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := source.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	_, err = source.Next(next)
	assert.True(t, errors.Is(err, fs.ErrNotExist), "%v", err)

	down, identifier, err := source.ReadDown(first)
	require.NoError(t, err)
	assert.Equal(t, "init", identifier)
	assert.Equal(t, "DROP TABLE a;", readAll(t, down))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	source, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer source.Close()

	version, err := source.First()
	require.NoError(t, err)
	for {
		up, _, err := source.ReadUp(version)
		require.NoErrorf(t, err, "up %d", version)
		upSQL := readAll(t, up)
		assert.NotEmpty(t, strings.TrimSpace(upSQL), "up %d", version)

		down, _, err := source.ReadDown(version)
		require.NoErrorf(t, err, "down %d", version)
		assert.NotEmpty(t, strings.TrimSpace(readAll(t, down)), "down %d", version)

		next, err := source.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		version = next
	}
}

func TestEmbeddedSchemaKeepsPromoPrecision(t *testing.T) {
	source, err := iofs.New(migrations.FS, ".")
	require.NoError(t, err)
	defer source.Close()

	up, _, err := source.ReadUp(1)
	require.NoError(t, err)
	schema := readAll(t, up)
	assert.Contains(t, schema, "proformas")
	assert.NotContains(t, schema, "promo_discount_rate NUMERIC(")
}

func TestMigrateLoggerWritesStructuredLines(t *testing.T) {
	var buf strings.Builder
	logger := migrateLogger{logger: slog.New(slog.NewTextHandler(&buf, nil))}

	logger.Printf("Finished 1/u proformas (read 2ms, ran 40ms)\n")

	assert.False(t, logger.Verbose())
	assert.Contains(t, buf.String(), "Finished 1/u proformas")
	assert.Contains(t, buf.String(), "component=migrate")
}
