//go:build integration

package proforma_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laha-editions/proforma/internal/catalog"
	"github.com/laha-editions/proforma/internal/orders"
	"github.com/laha-editions/proforma/internal/platform/db/dbtest"
	"github.com/laha-editions/proforma/internal/proforma"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu    sync.Mutex
	kinds []proforma.NotificationKind
}

func (n *recordingNotifier) Notify(_ context.Context, note proforma.Notification) error {
	n.mu.Lock()
	n.kinds = append(n.kinds, note.Kind)
	n.mu.Unlock()
	return nil
}

func seedCatalog(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO works (id, title, isbn, author_name, internal_code, price_ht, tax_rate, published) VALUES
			('w-1', 'Lecture CP', '978-1', 'A. Auteur', 'C-1', 1000, NULL, TRUE),
			('w-2', 'Calcul CE1', '978-2', 'B. Auteur', 'C-2', 500, NULL, TRUE),
			('w-off', 'Retiré', '978-3', '', '', 800, NULL, FALSE)`)
	require.NoError(t, err)
}

func newPostgresService(t *testing.T, pool *pgxpool.Pool, clock proforma.Clock, notifier proforma.Notifier) *proforma.Service {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return proforma.NewService(proforma.Dependencies{
		Repository: proforma.NewRepository(pool),
		Numbers:    proforma.NewPostgresSequence(pool),
		Catalog:    catalog.NewLookup(catalog.NewPostgresStore(pool), nil, logger),
		Orders:     orders.NewPostgresService(pool),
		Notifier:   notifier,
		Clock:      clock,
		Logger:     logger,
		Metrics:    proforma.NewMetrics(prometheus.NewRegistry()),
	}, proforma.DefaultServiceConfig())
}

func TestPostgresLifecycleEndToEnd(t *testing.T) {
	pool := dbtest.Postgres(t)
	seedCatalog(t, pool)
	ctx := context.Background()
	clock := &stepClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	svc := newPostgresService(t, pool, clock, notifier)

	res, err := svc.Create(ctx, proforma.CreateInput{
		Recipient: proforma.SchoolRecipient("sch-1"),
		Items: []proforma.ItemInput{
			{BookReference: "w-1", Quantity: 3},
			{BookReference: "w-2", Quantity: 4},
		},
		InitialStatus: proforma.StatusSent,
		CreatedBy:     "u-1",
	})
	require.NoError(t, err)
	doc := res.Document
	assert.Equal(t, "PF-2026-000001", doc.Number)
	assert.True(t, decimal.RequireFromString("5900").Equal(doc.Totals.TotalTTC), doc.Totals.TotalTTC.String())

	stored, err := svc.GetByNumber(ctx, doc.Number)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, stored.ID)
	assert.Equal(t, proforma.StatusSent, stored.Status)
	assert.True(t, doc.Totals.TotalTTC.Equal(stored.Totals.TotalTTC))
	require.Len(t, stored.Items, 2)
	assert.Equal(t, "Lecture CP", stored.Items[0].Title)

	_, err = svc.Transition(ctx, doc.ID, proforma.ActionAccept, "")
	require.NoError(t, err)
	converted, err := svc.Transition(ctx, doc.ID, proforma.ActionConvert, "")
	require.NoError(t, err)
	require.NotNil(t, converted.Document.OrderID)

	var (
		orderProforma uuid.UUID
		lines         int
	)
	require.NoError(t, pool.QueryRow(ctx, `SELECT proforma_id FROM orders WHERE id::text = $1`, *converted.Document.OrderID).Scan(&orderProforma))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE o.proforma_id = $1`, doc.ID).Scan(&lines))
	assert.Equal(t, doc.ID, orderProforma)
	assert.Equal(t, 2, lines)

	_, err = svc.Transition(ctx, doc.ID, proforma.ActionConvert, "")
	assert.ErrorIs(t, err, proforma.ErrAlreadyConverted)

	notifier.mu.Lock()
	assert.Equal(t, []proforma.NotificationKind{proforma.NotificationSent, proforma.NotificationAccepted}, notifier.kinds)
	notifier.mu.Unlock()
}

func TestPostgresRejectsUnpublishedWork(t *testing.T) {
	pool := dbtest.Postgres(t)
	seedCatalog(t, pool)
	svc := newPostgresService(t, pool, proforma.SystemClock{}, &recordingNotifier{})

	_, err := svc.Create(context.Background(), proforma.CreateInput{
		Recipient: proforma.ClientRecipient("c-1"),
		Items:     []proforma.ItemInput{{BookReference: "w-off", Quantity: 1}},
		CreatedBy: "u-1",
	})
	assert.ErrorIs(t, err, proforma.ErrCatalogMiss)
}

func TestPostgresNumbersAreUniqueUnderConcurrency(t *testing.T) {
	pool := dbtest.Postgres(t)
	numbers := proforma.NewPostgresSequence(pool)
	at := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[string]struct{})
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := numbers.Next(context.Background(), at)
			assert.NoError(t, err)
			mu.Lock()
			seen[n] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers)
	assert.Contains(t, seen, "PF-2026-000020")
}

func TestPostgresUpdateDetectsStaleVersion(t *testing.T) {
	pool := dbtest.Postgres(t)
	seedCatalog(t, pool)
	svc := newPostgresService(t, pool, proforma.SystemClock{}, &recordingNotifier{})
	repo := proforma.NewRepository(pool)
	ctx := context.Background()

	res, err := svc.Create(ctx, proforma.CreateInput{
		Recipient: proforma.PartnerRecipient("p-1"),
		Items:     []proforma.ItemInput{{BookReference: "w-1", Quantity: 1}},
		CreatedBy: "u-1",
	})
	require.NoError(t, err)

	doc := res.Document.Clone()
	doc.Version++
	require.NoError(t, repo.Update(ctx, doc, res.Document.Version))

	stale := res.Document.Clone()
	stale.Version++
	assert.ErrorIs(t, repo.Update(ctx, stale, res.Document.Version), proforma.ErrVersionConflict)

	missing := res.Document.Clone()
	missing.ID = uuid.New()
	assert.ErrorIs(t, repo.Update(ctx, missing, missing.Version), proforma.ErrNotFound)
}

func TestPostgresExpireSweepAndList(t *testing.T) {
	pool := dbtest.Postgres(t)
	seedCatalog(t, pool)
	ctx := context.Background()
	clock := &stepClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	svc := newPostgresService(t, pool, clock, notifier)

	for _, status := range []proforma.Status{proforma.StatusSent, proforma.StatusSent, proforma.StatusDraft} {
		_, err := svc.Create(ctx, proforma.CreateInput{
			Recipient:     proforma.GuestRecipient(proforma.GuestIdentity{Name: "Famille Ndong"}),
			Items:         []proforma.ItemInput{{BookReference: "w-2", Quantity: 2}},
			InitialStatus: status,
			CreatedBy:     "u-1",
		})
		require.NoError(t, err)
	}

	clock.Advance(31 * 24 * time.Hour)
	expired, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	again, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Zero(t, again)

	status := proforma.StatusExpired
	docs, total, err := svc.List(ctx, proforma.ListFilter{Status: &status, Search: "ndong"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, docs, 2)
}

func TestPostgresKeepsFullPromoPrecision(t *testing.T) {
	pool := dbtest.Postgres(t)
	seedCatalog(t, pool)
	svc := newPostgresService(t, pool, proforma.SystemClock{}, &recordingNotifier{})
	ctx := context.Background()

	promo := decimal.RequireFromString("0.1234567")
	res, err := svc.Create(ctx, proforma.CreateInput{
		Recipient:         proforma.SchoolRecipient("sch-2"),
		Items:             []proforma.ItemInput{{BookReference: "w-1", Quantity: 3}, {BookReference: "w-2", Quantity: 1}},
		PromoDiscountRate: &promo,
		InitialStatus:     proforma.StatusSent,
		CreatedBy:         "u-1",
	})
	require.NoError(t, err)

	stored, err := svc.Get(ctx, res.Document.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.PromoDiscountRate)
	assert.True(t, promo.Equal(*stored.PromoDiscountRate), stored.PromoDiscountRate.String())

	recomputed, err := svc.Recompute(ctx, res.Document.ID)
	require.NoError(t, err)
	assert.True(t, res.Document.Totals.TotalTTC.Equal(recomputed.Totals.TotalTTC),
		"persisted %s recomputed %s", res.Document.Totals.TotalTTC, recomputed.Totals.TotalTTC)
	assert.True(t, res.Document.Totals.DiscountTotal.Equal(recomputed.Totals.DiscountTotal))
}
