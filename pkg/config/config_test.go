package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "INFO", cfg.LogLevel)
	assert.Equal(t, "ordgate.db", cfg.SQLitePath)
	assert.Equal(t, "policy.yaml", cfg.PolicyBundle)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
	assert.False(t, cfg.OTelEnabled)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("DATABASE_URL", "postgres://ordgate@localhost/ordgate")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("GLOBAL_RPS", "2.5")
	t.Setenv("GLOBAL_BURST", "10")
	t.Setenv("EXPORT_BUCKET", "evidence")
	t.Setenv("EXPORT_PREFIX", "packs/")

	cfg := Load()
	assert.Equal(t, "DEBUG", cfg.LogLevel)
	assert.Equal(t, "postgres://ordgate@localhost/ordgate", cfg.DatabaseURL)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.True(t, cfg.OTelEnabled)
	assert.Equal(t, 2.5, cfg.GlobalRPS)
	assert.Equal(t, 10, cfg.GlobalBurst)
	assert.Equal(t, "evidence", cfg.ExportBucket)
	assert.Equal(t, "packs/", cfg.ExportPrefix)
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("GLOBAL_RPS", "not-a-number")
	t.Setenv("GLOBAL_BURST", "also-not")

	cfg := Load()
	assert.Zero(t, cfg.GlobalRPS)
	assert.Zero(t, cfg.GlobalBurst)
}
