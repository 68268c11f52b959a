package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("FORUM_DB_USER", "forum")
	t.Setenv("FORUM_DB_HOST", "localhost")
	t.Setenv("FORUM_DB_NAME", "secure_forum")
	t.Setenv("FORUM_JWT_SECRET", "0123456789abcdef")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "5001", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 10, cfg.DBMaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.DBAcquireTimeout)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("FORUM_PORT", "8080")
	t.Setenv("FORUM_DB_MAX_OPEN_CONNS", "4")
	t.Setenv("FORUM_DB_ACQUIRE_TIMEOUT", "250ms")
	t.Setenv("FORUM_TOKEN_TTL", "2h")
	t.Setenv("FORUM_CORS_ORIGINS", "http://localhost:3000, https://forum.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4, cfg.DBMaxOpenConns)
	assert.Equal(t, 250*time.Millisecond, cfg.DBAcquireTimeout)
	assert.Equal(t, 2*time.Hour, cfg.TokenTTL)
	assert.Equal(t, []string{"http://localhost:3000", "https://forum.example.com"}, cfg.AllowedOrigins())
}

func TestLoadRejectsWeakSecret(t *testing.T) {
	setRequired(t)
	t.Setenv("FORUM_JWT_SECRET", "short")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("FORUM_JWT_SECRET", "0123456789abcdef")
	t.Setenv("FORUM_DB_USER", "")
	t.Setenv("FORUM_DB_HOST", "")
	t.Setenv("FORUM_DB_NAME", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestRateLimitAndCacheConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	rl := LoadRateLimitConfig()
	assert.Equal(t, 1, rl.Capacity)
	assert.Equal(t, 10*time.Second, rl.TTL)
	assert.Equal(t, "ip_route", rl.KeyStrategy)

	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")
	cc := LoadCacheConfig()
	assert.False(t, cc.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cc.Methods)
	assert.Equal(t, "cache:posts", cc.Prefix)
}

func TestRateLimitIntervalFloor(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "500us")
	rl := LoadRateLimitConfig()
	assert.Equal(t, time.Millisecond, rl.RefillInterval)

	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "-1s")
	assert.Equal(t, time.Second, LoadRateLimitConfig().RefillInterval)
}

func TestRateLimitPerUser(t *testing.T) {
	cases := map[string]bool{
		"ip":            false,
		"route":         false,
		"ip_route":      false,
		"user":          true,
		"ip_user":       true,
		"user_route":    true,
		"ip_user_route": true,
	}
	for strategy, want := range cases {
		assert.Equal(t, want, RateLimitConfig{KeyStrategy: strategy}.PerUser(), strategy)
	}
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_TLS", "1")
	rc := LoadRedisConfig()
	assert.Equal(t, "cache:6380", rc.Addr)
	assert.True(t, rc.TLS)
}
