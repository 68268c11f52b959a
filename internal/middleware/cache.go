package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/secure-forum/internal/config"
)

// Headers that belong to one request and must not be replayed from cache.
var uncachedHeaders = map[string]bool{
	"Content-Length":        true,
	"X-Request-Id":          true,
	"X-Cache":               true,
	"X-Ratelimit-Limit":     true,
	"X-Ratelimit-Remaining": true,
	"Retry-After":           true,
}

type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	limit  int
	over   bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.over {
		if cw.limit > 0 && cw.buf.Len()+len(b) > cw.limit {
			cw.over = true
		} else {
			cw.buf.Write(b)
		}
	}
	return cw.ResponseWriter.Write(b)
}

// ResponseCache caches successful responses in Redis.  Responses larger than
// MaxBodyBytes are served but not stored.  The feed is shared by every
// authenticated caller, so the key does not include the user.
func ResponseCache(cfg config.CacheConfig, rdb redis.Cmdable) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[c.Request().Method] {
				return next(c)
			}
			ctx := c.Request().Context()
			key := cacheKey(cfg, c)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodeEntry(bs); ok {
					for k, vals := range hdr {
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					_, err := c.Response().Write(body)
					return err
				}
			}

			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: cfg.MaxBodyBytes}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}
			if cw.status != http.StatusOK || cw.over {
				return nil
			}

			hdr := make(http.Header)
			for k, vals := range c.Response().Header() {
				if uncachedHeaders[http.CanonicalHeaderKey(k)] {
					continue
				}
				hdr[k] = append([]string(nil), vals...)
			}
			entry, err := encodeEntry(cw.status, hdr, cw.buf.Bytes())
			if err != nil {
				return nil
			}
			// The request context may already be cancelled once the body is flushed.
			if err := rdb.Set(context.WithoutCancel(ctx), key, entry, ttl).Err(); err != nil {
				GetLogger(c).Warn().Err(err).Msg("cache store failed")
			}
			return nil
		}
	}
}

// PurgeCache drops every entry under prefix.  It is called after a write so
// readers see the new post without waiting for the TTL.
func PurgeCache(ctx context.Context, rdb redis.Cmdable, prefix string) error {
	if rdb == nil {
		return nil
	}
	var cursor uint64
	for {
		keys, next, err := rdb.Scan(ctx, cursor, prefix+":*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}

func cacheKey(cfg config.CacheConfig, c echo.Context) string {
	r := c.Request()
	// The raw query is always part of the key.
	parts := []string{"route", c.Path(), "q", r.URL.RawQuery}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "method_route", "method_route_query":
		parts = append([]string{"method", r.Method}, parts...)
	}
	sum := sha1.Sum([]byte(strings.Join(parts, ":")))
	return fmt.Sprintf("%s:%x", cfg.Prefix, sum)
}

// encodeEntry packs [status u32][header length u32][header JSON][body].
func encodeEntry(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	out = append(out, hdr...)
	return append(out, body...), nil
}

func decodeEntry(bs []byte) (int, http.Header, []byte, bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status := int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	hdr := make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, hdr, bs[8+hlen:], true
}
