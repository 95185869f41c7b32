package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/laha-editions/proforma/internal/proforma"
)

const cacheVersionKey = "catalog:version"

// Cache keeps work snapshots in Redis under a global version so a single
// Bump invalidates every entry.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

type cachedWork struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	ISBN         string           `json:"isbn"`
	AuthorName   string           `json:"author_name"`
	InternalCode string           `json:"internal_code"`
	PriceHT      decimal.Decimal  `json:"price_ht"`
	TaxRate      *decimal.Decimal `json:"tax_rate,omitempty"`
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ctx context.Context, id string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("catalog:work:%s:%d", id, ver), nil
}

// Get returns the cached work and whether it was present.
func (c *Cache) Get(ctx context.Context, id string) (proforma.Work, bool, error) {
	if c == nil || c.client == nil {
		return proforma.Work{}, false, nil
	}
	key, err := c.key(ctx, id)
	if err != nil {
		return proforma.Work{}, false, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return proforma.Work{}, false, nil
	}
	if err != nil {
		return proforma.Work{}, false, err
	}
	var cw cachedWork
	if err := json.Unmarshal(payload, &cw); err != nil {
		return proforma.Work{}, false, err
	}
	return proforma.Work(cw), true, nil
}

// Put stores w under the current version.
func (c *Cache) Put(ctx context.Context, w proforma.Work) error {
	if c == nil || c.client == nil {
		return nil
	}
	key, err := c.key(ctx, w.ID)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(cachedWork(w))
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Bump invalidates every cached work.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
