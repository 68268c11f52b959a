package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the optional Redis used for rate limiting and the
// post feed cache.
//
//	REDIS_ADDR            host:port (default localhost:6379)
//	REDIS_HOST/REDIS_PORT take precedence over REDIS_ADDR when both set
//	REDIS_PASSWORD        optional password
//	REDIS_DB              database number (default 0)
//	REDIS_TLS             "true" or "1" enables TLS
//	REDIS_ENABLED         "false" skips Redis entirely
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// LoadRedisConfig reads the REDIS_* variables.
func LoadRedisConfig() RedisConfig {
	addr := os.Getenv("REDIS_ADDR")
	if host, port := os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"); host != "" && port != "" {
		addr = host + ":" + port
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	db := 0
	if n, err := strconv.Atoi(os.Getenv("REDIS_DB")); err == nil {
		db = n
	}
	tlsEnv := os.Getenv("REDIS_TLS")
	return RedisConfig{
		Enabled:  envBool("REDIS_ENABLED", true),
		Addr:     addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TLS:      strings.EqualFold(tlsEnv, "true") || tlsEnv == "1",
	}
}

// NewRedisClient connects and pings Redis.  Callers treat an error as
// "run without Redis": rate limiting and caching then become no-ops.
func NewRedisClient(ctx context.Context, rc RedisConfig) (*redis.Client, error) {
	if !rc.Enabled {
		return nil, fmt.Errorf("redis disabled")
	}
	var tlsConf *tls.Config
	if rc.TLS {
		tlsConf = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      rc.Addr,
		Password:  rc.Password,
		DB:        rc.DB,
		TLSConfig: tlsConf,
	})

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", rc.Addr, err)
	}
	return client, nil
}
