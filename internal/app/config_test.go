package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, NumberSourcePostgres, cfg.NumberSource)
	assert.Equal(t, 720*time.Hour, cfg.DefaultValidity)
	assert.Equal(t, 30*time.Second, cfg.SMTPTimeout)
	assert.False(t, cfg.IsProduction())

	svc := cfg.ServiceConfig()
	assert.True(t, decimal.RequireFromString("0.18").Equal(svc.DefaultTaxRate))
	assert.Equal(t, "FCFA", svc.DefaultCurrency)
	assert.Equal(t, "Gabon", svc.DefaultCountry)
	assert.Equal(t, 500, svc.ExpireBatchSize)
	assert.Equal(t, 30*time.Second, svc.ConvertLockTTL)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PROFORMA_NUMBER_SOURCE", "Redis")
	t.Setenv("PROFORMA_DEFAULT_TAX_RATE", "0.055")
	t.Setenv("PROFORMA_DEFAULT_VALIDITY", "48h")
	t.Setenv("PROFORMA_DEFAULT_CURRENCY", "EUR")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, NumberSourceRedis, cfg.NumberSource)

	svc := cfg.ServiceConfig()
	assert.True(t, decimal.RequireFromString("0.055").Equal(svc.DefaultTaxRate))
	assert.Equal(t, 48*time.Hour, svc.DefaultValidity)
	assert.Equal(t, "EUR", svc.DefaultCurrency)
}

func TestConfigConnectionOptions(t *testing.T) {
	t.Setenv("PG_MAX_CONNS", "25")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	pool := cfg.PoolOptions("proforma-worker")
	assert.Equal(t, int32(25), pool.MaxConns)
	assert.Equal(t, time.Hour, pool.MaxConnLifetime)
	assert.Equal(t, "proforma-worker", pool.ApplicationName)

	redisOpts := cfg.RedisOptions()
	assert.Equal(t, "redis:6379", redisOpts.Addr)
	assert.Equal(t, 4, redisOpts.Asynq().DB)
	assert.Equal(t, "pw", redisOpts.Asynq().Password)
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	cases := map[string]map[string]string{
		"number source":        {"PROFORMA_NUMBER_SOURCE": "mysql"},
		"tax rate not decimal": {"PROFORMA_DEFAULT_TAX_RATE": "abc"},
		"tax rate above one":   {"PROFORMA_DEFAULT_TAX_RATE": "1.5"},
		"negative validity":    {"PROFORMA_DEFAULT_VALIDITY": "-1h"},
		"production no secret": {"APP_ENV": "production", "CRON_SECRET": ""},
	}
	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			assert.Error(t, err)
		})
	}
}
