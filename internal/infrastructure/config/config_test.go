package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "edusuite-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 4096, cfg.Metering.BufferSize)
	assert.Equal(t, 64, cfg.Metering.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Metering.FlushInterval)
	assert.Equal(t, 1.0, cfg.Billing.CurrencyRate)
	assert.Equal(t, int64(2), cfg.Billing.SelfBillBaseOps)
	assert.Equal(t, int64(2), cfg.Billing.SelfBillCreateOps)
	assert.Equal(t, 30, cfg.Billing.FreemiumDays)
	assert.Equal(t, 2, cfg.Scheduler.RunHourUTC)
	assert.Equal(t, "localhost:4317", cfg.Telemetry.CollectorEndpoint)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("EDUSUITE_APP_PORT", "9090")
	t.Setenv("EDUSUITE_DATABASE_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, "db.internal", cfg.Database.Host)
}

func TestLoadRejectsBadOwnerID(t *testing.T) {
	t.Setenv("EDUSUITE_BILLING_PLATFORM_OWNER_ID", "not-a-uuid")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := &Config{}
		applyDefaults(cfg)
		return cfg
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, base().validate())
	})

	t.Run("idle conns cannot exceed open conns", func(t *testing.T) {
		cfg := base()
		cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns + 1
		assert.Error(t, cfg.validate())
	})

	t.Run("negative rate rejected", func(t *testing.T) {
		cfg := base()
		cfg.Billing.Rates = map[string]float64{"DATABASE_OPERATIONS": -1}
		assert.Error(t, cfg.validate())
	})

	t.Run("run hour bounds", func(t *testing.T) {
		cfg := base()
		cfg.Scheduler.RunHourUTC = 24
		assert.Error(t, cfg.validate())
	})

	t.Run("production requires hardening", func(t *testing.T) {
		cfg := base()
		cfg.App.Env = "production"
		assert.Error(t, cfg.validate())

		cfg.Database.Password = "secret"
		cfg.Database.SSLMode = "require"
		cfg.Billing.PlatformOwnerID = "11111111-1111-1111-1111-111111111111"
		assert.NoError(t, cfg.validate())
	})
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "p@ss/word",
		DBName:   "edusuite",
		SSLMode:  "disable",
	}

	dsn := d.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "localhost:5432")
	assert.Contains(t, dsn, "sslmode=disable")
	// Special characters in credentials must be escaped.
	assert.NotContains(t, dsn, "p@ss/word")
}

func TestAsFloatMap(t *testing.T) {
	out := asFloatMap(map[string]interface{}{
		"database_operations": 0.001,
		"cloud_upload_ops":    2,
		"bogus":               "string value",
	})

	assert.Equal(t, 0.001, out["DATABASE_OPERATIONS"])
	assert.Equal(t, 2.0, out["CLOUD_UPLOAD_OPS"])
	_, ok := out["BOGUS"]
	assert.False(t, ok)
}

func TestRedisAddr(t *testing.T) {
	r := RedisConfig{Host: "cache.internal", Port: 6380}
	assert.Equal(t, "cache.internal:6380", r.Addr())
}
