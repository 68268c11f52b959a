package middleware

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/secure-forum/internal/config"
	"github.com/iliyamo/secure-forum/internal/errs"
)

// tokenBucket refills lazily on each call and returns {allowed, remaining, retry_after_ms}.
var tokenBucket = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])
if interval_ms == nil or interval_ms < 1 then
	interval_ms = 1
end

local state = redis.call('HMGET', key, 'tokens', 'last_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
	tokens = capacity
	last = now_ms
end

local steps = math.floor(math.max(0, now_ms - last) / interval_ms)
if steps > 0 then
	tokens = math.min(capacity, tokens + steps * refill)
	last = last + steps * interval_ms
end

local allowed = 0
local retry_ms = 0
if tokens > 0 then
	allowed = 1
	tokens = tokens - 1
else
	retry_ms = math.max(0, interval_ms - (now_ms - last))
end

redis.call('HSET', key, 'tokens', tokens, 'last_ms', last)
redis.call('EXPIRE', key, ttl)
return {allowed, tokens, retry_ms}
`)

// RateLimit is a Redis-backed token bucket.  It is a pass-through when
// disabled or when no Redis client is configured, and it fails open on Redis
// errors so an outage of the limiter never takes the API down.  Strategies
// keyed by user must be mounted after Authenticate; callers without an
// identity are keyed by IP in their place.
func RateLimit(cfg config.RateLimitConfig, rdb redis.Scripter) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			args := []any{
				time.Now().UnixMilli(),
				cfg.Capacity,
				cfg.RefillTokens,
				max(cfg.RefillInterval.Milliseconds(), 1),
				int64(cfg.TTL / time.Second),
			}

			vals, err := tokenBucket.Run(c.Request().Context(), rdb, []string{key}, args...).Int64Slice()
			if err != nil || len(vals) != 3 {
				GetLogger(c).Warn().Err(err).Str("key", key).Msg("rate limiter unavailable")
				return next(c)
			}
			allowed, remaining, retryMs := vals[0] == 1, vals[1], vals[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000))
				h.Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					GetLogger(c).Debug().Str("key", key).Int64("retry_ms", retryMs).Msg("rate limited")
				}
				return errs.NewTooManyRequestsError(fmt.Sprintf("rate limit exceeded, retry in %ds", secs))
			}
			return next(c)
		}
	}
}

func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := currentUserID(c)
	if uid == "" {
		uid = "anon-" + ip
	}
	route := c.Request().Method + " " + c.Path()

	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}

func passThrough(next echo.HandlerFunc) echo.HandlerFunc {
	return next
}
