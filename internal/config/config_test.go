package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("POOL_SIZE", "")
	cfg := Load()

	assert.Equal(t, "127.0.0.1:6379", cfg.RedisAddr)
	assert.Equal(t, 2, cfg.PoolSize)
	assert.True(t, cfg.Headless)
	assert.Equal(t, 20, cfg.MaxSteps)
	assert.Equal(t, 3, cfg.RetryBudget)
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.CacheFailureTTL)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HEADLESS", "false")
	t.Setenv("SLOW_MO_MS", "250")
	t.Setenv("POOL_SIZE", "0")
	t.Setenv("RUN_TIMEOUT_SEC", "45")
	t.Setenv("ACTION_TIMEOUT_SEC", "1500ms")
	t.Setenv("RETRY_BUDGET", "not-a-number")
	t.Setenv("APP_ENV", "production")

	cfg := Load()
	assert.False(t, cfg.Headless)
	assert.Equal(t, 250*time.Millisecond, cfg.SlowMo)
	assert.Equal(t, 1, cfg.PoolSize, "pool size is clamped to one")
	assert.Equal(t, 45*time.Second, cfg.RunTimeout)
	assert.Equal(t, 1500*time.Millisecond, cfg.ActionTimeout)
	assert.Equal(t, 3, cfg.RetryBudget, "invalid values fall back to the default")
	assert.True(t, cfg.IsProduction())
}
