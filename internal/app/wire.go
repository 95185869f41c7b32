package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/laha-editions/proforma/internal/catalog"
	"github.com/laha-editions/proforma/internal/notify"
	"github.com/laha-editions/proforma/internal/orders"
	"github.com/laha-editions/proforma/internal/proforma"
)

// ServiceParams groups the infrastructure the proforma service runs on.
type ServiceParams struct {
	Config     *Config
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Queue      notify.Enqueuer
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// NewProformaService wires the proforma service onto Postgres, Redis and the
// job queue. The API and the worker share this wiring.
func NewProformaService(p ServiceParams) *proforma.Service {
	var numbers proforma.NumberGenerator
	switch p.Config.NumberSource {
	case NumberSourceRedis:
		numbers = proforma.NewRedisSequence(p.Redis)
	default:
		numbers = proforma.NewPostgresSequence(p.Pool)
	}

	lookup := catalog.NewLookup(
		catalog.NewPostgresStore(p.Pool),
		catalog.NewCache(p.Redis, p.Config.CatalogCacheTTL),
		p.Logger,
	)

	return proforma.NewService(proforma.Dependencies{
		Repository: proforma.NewRepository(p.Pool),
		Numbers:    numbers,
		Catalog:    lookup,
		Orders:     orders.NewPostgresService(p.Pool),
		Notifier:   notify.NewNotifier(p.Queue, notify.NewPostgresDirectory(p.Pool)),
		Clock:      proforma.SystemClock{},
		Locker:     proforma.NewRedisLocker(p.Redis),
		Logger:     p.Logger,
		Metrics:    proforma.NewMetrics(p.Registerer),
	}, p.Config.ServiceConfig())
}
