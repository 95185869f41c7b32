package catalog

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/laha-editions/proforma/internal/proforma"
)

// Lookup implements proforma.CatalogLookup over a Source with a Redis read
// through cache. Concurrent misses on the same work share one load.
type Lookup struct {
	source Source
	cache  *Cache
	logger *slog.Logger
	group  singleflight.Group
}

// NewLookup wires the lookup. cache may be nil.
func NewLookup(source Source, cache *Cache, logger *slog.Logger) *Lookup {
	if logger == nil {
		logger = slog.Default()
	}
	return &Lookup{source: source, cache: cache, logger: logger}
}

// GetWork returns the work identified by id.
func (l *Lookup) GetWork(ctx context.Context, id string) (proforma.Work, error) {
	if w, ok, err := l.cache.Get(ctx, id); err != nil {
		l.logger.Warn("catalog cache read failed", slog.String("work_id", id), slog.Any("error", err))
	} else if ok {
		return w, nil
	}

	resultChan := l.group.DoChan(id, func() (interface{}, error) {
		w, err := l.source.GetWork(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := l.cache.Put(ctx, w); err != nil {
			l.logger.Warn("catalog cache write failed", slog.String("work_id", id), slog.Any("error", err))
		}
		return w, nil
	})
	select {
	case <-ctx.Done():
		return proforma.Work{}, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return proforma.Work{}, res.Err
		}
		return res.Val.(proforma.Work), nil
	}
}
