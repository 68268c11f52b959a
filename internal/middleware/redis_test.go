package middleware

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/secure-forum/internal/config"
	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/model"
)

// fakeScripter answers the token bucket script with a canned reply.  Only
// EvalSha is implemented; the embedded nil interface covers the rest.
type fakeScripter struct {
	redis.Scripter
	reply []any
	err   error
	keys  []string
	args  [][]any
}

func (f *fakeScripter) EvalSha(_ context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	f.keys = append(f.keys, keys...)
	f.args = append(f.args, args)
	return redis.NewCmdResult(f.reply, f.err)
}

type scanPage struct {
	keys []string
	next uint64
}

// fakeCache keeps GET/SET in a map and serves SCAN from fixed pages.
type fakeCache struct {
	redis.Cmdable
	data    map[string][]byte
	ttls    map[string]time.Duration
	pages   map[uint64]scanPage
	match   string
	cursors []uint64
	deleted [][]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCache) Get(_ context.Context, key string) *redis.StringCmd {
	if v, ok := f.data[key]; ok {
		return redis.NewStringResult(string(v), nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (f *fakeCache) Set(_ context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd {
	f.data[key] = append([]byte(nil), value.([]byte)...)
	f.ttls[key] = ttl
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeCache) Scan(_ context.Context, cursor uint64, match string, _ int64) *redis.ScanCmd {
	f.match = match
	f.cursors = append(f.cursors, cursor)
	p := f.pages[cursor]
	return redis.NewScanCmdResult(p.keys, p.next, nil)
}

func (f *fakeCache) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.deleted = append(f.deleted, keys)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func limiterConfig(strategy string) config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:        true,
		Capacity:       5,
		RefillTokens:   1,
		RefillInterval: time.Second,
		TTL:            time.Minute,
		KeyStrategy:    strategy,
		Prefix:         "rl",
	}
}

func allowed(remaining int64) []any { return []any{int64(1), remaining, int64(0)} }

func TestRateLimitAllowsAndSetsHeaders(t *testing.T) {
	rdb := &fakeScripter{reply: allowed(4)}
	c, rec := newContext(http.MethodGet, "/api/posts", "")
	c.SetPath("/api/posts")

	reached := false
	err := RateLimit(limiterConfig("ip_route"), rdb)(func(echo.Context) error { reached = true; return nil })(c)
	require.NoError(t, err)
	assert.True(t, reached)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"rl:ip:192.0.2.1:route:GET /api/posts"}, rdb.keys)

	require.Len(t, rdb.args, 1)
	assert.Equal(t, int64(1000), rdb.args[0][3])
	assert.Equal(t, int64(60), rdb.args[0][4])
}

func TestRateLimitRejectsWhenBucketIsEmpty(t *testing.T) {
	rdb := &fakeScripter{reply: []any{int64(0), int64(0), int64(1500)}}
	c, rec := newContext(http.MethodGet, "/api/posts", "")

	reached := false
	err := RateLimit(limiterConfig("ip"), rdb)(func(echo.Context) error { reached = true; return nil })(c)
	var httpErr *errs.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
	assert.False(t, reached)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestRateLimitFailsOpen(t *testing.T) {
	cases := []struct {
		name  string
		reply []any
		err   error
	}{
		{"redis error", nil, errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")},
		{"short reply", []any{int64(1)}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rdb := &fakeScripter{reply: tc.reply, err: tc.err}
			c, rec := newContext(http.MethodGet, "/api/posts", "")
			reached := false
			err := RateLimit(limiterConfig("ip"), rdb)(func(echo.Context) error { reached = true; return nil })(c)
			require.NoError(t, err)
			assert.True(t, reached)
			assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
		})
	}
}

func TestRateLimitSubMillisecondIntervalSendsOneMillisecond(t *testing.T) {
	rdb := &fakeScripter{reply: allowed(4)}
	cfg := limiterConfig("ip")
	cfg.RefillInterval = 500 * time.Microsecond
	c, _ := newContext(http.MethodGet, "/", "")
	require.NoError(t, RateLimit(cfg, rdb)(func(echo.Context) error { return nil })(c))
	require.Len(t, rdb.args, 1)
	assert.Equal(t, int64(1), rdb.args[0][3])
}

func TestRateLimitUserKeyAfterAuthenticate(t *testing.T) {
	andi := model.Identity{ID: 2, Username: "andi", Role: model.RoleUser}
	dika := model.Identity{ID: 3, Username: "dika", Role: model.RoleUser}

	keyFor := func(strategy string, id *model.Identity) string {
		rdb := &fakeScripter{reply: allowed(4)}
		limit := RateLimit(limiterConfig(strategy), rdb)
		noop := func(echo.Context) error { return nil }

		var h echo.HandlerFunc
		var c echo.Context
		if id != nil {
			c, _ = newContext(http.MethodGet, "/api/posts", "Bearer x.y.z")
			h = Authenticate(&stubVerifier{id: *id})(limit(noop))
		} else {
			c, _ = newContext(http.MethodPost, "/api/login", "")
			h = limit(noop)
		}
		require.NoError(t, h(c))
		require.Len(t, rdb.keys, 1)
		return rdb.keys[0]
	}

	assert.Equal(t, "rl:user:2", keyFor("user", &andi))
	assert.Equal(t, "rl:user:3", keyFor("user", &dika))
	assert.Equal(t, "rl:ip:192.0.2.1:user:2", keyFor("ip_user", &andi))
	assert.Equal(t, "rl:user:anon-192.0.2.1", keyFor("user", nil))
}

func cacheConfig(strategy string) config.CacheConfig {
	return config.CacheConfig{
		Enabled:      true,
		Methods:      map[string]bool{http.MethodGet: true},
		TTL:          time.Minute,
		KeyStrategy:  strategy,
		Prefix:       "cache:posts",
		MaxBodyBytes: 1 << 10,
	}
}

func TestResponseCacheMissThenHit(t *testing.T) {
	rdb := newFakeCache()
	calls := 0
	h := ResponseCache(cacheConfig("route_query"), rdb)(func(c echo.Context) error {
		calls++
		c.Response().Header().Set(RequestIDHeader, "req-1")
		c.Response().Header().Set("X-RateLimit-Limit", "60")
		return c.JSON(http.StatusOK, map[string]any{"success": true, "posts": []string{"a", "b"}})
	})

	serve := func() (*http.Response, string) {
		c, rec := newContext(http.MethodGet, "/api/posts", "")
		c.SetPath("/api/posts")
		require.NoError(t, h(c))
		return rec.Result(), rec.Body.String()
	}

	first, firstBody := serve()
	assert.Equal(t, "MISS", first.Header.Get("X-Cache"))
	require.Len(t, rdb.data, 1)

	for key, entry := range rdb.data {
		assert.Equal(t, time.Minute, rdb.ttls[key])
		status, hdr, body, ok := decodeEntry(entry)
		require.True(t, ok)
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, firstBody, string(body))
		assert.Equal(t, echo.MIMEApplicationJSON, hdr.Get(echo.HeaderContentType))
		for name := range uncachedHeaders {
			assert.Empty(t, hdr.Get(name), name)
		}
	}

	second, secondBody := serve()
	assert.Equal(t, 1, calls)
	assert.Equal(t, "HIT", second.Header.Get("X-Cache"))
	assert.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, firstBody, secondBody)
	assert.Empty(t, second.Header.Get(RequestIDHeader))
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header.Get(echo.HeaderContentType))
}

func TestResponseCacheSkipsStoring(t *testing.T) {
	cases := []struct {
		name   string
		method string
		status int
		body   string
	}{
		{"non-200", http.MethodGet, http.StatusNotFound, "missing"},
		{"over size", http.MethodGet, http.StatusOK, string(make([]byte, 2<<10))},
		{"uncached method", http.MethodPost, http.StatusOK, "created"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rdb := newFakeCache()
			h := ResponseCache(cacheConfig("route_query"), rdb)(func(c echo.Context) error {
				return c.String(tc.status, tc.body)
			})
			c, rec := newContext(tc.method, "/api/posts", "")
			c.SetPath("/api/posts")
			require.NoError(t, h(c))
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.body, rec.Body.String())
			assert.Empty(t, rdb.data)
		})
	}
}

func TestResponseCacheKeyIncludesQuery(t *testing.T) {
	for _, strategy := range []string{"route", "method_route", "route_query", "method_route_query"} {
		t.Run(strategy, func(t *testing.T) {
			rdb := newFakeCache()
			h := ResponseCache(cacheConfig(strategy), rdb)(func(c echo.Context) error {
				return c.String(http.StatusOK, "results for "+c.QueryParam("keyword"))
			})
			for _, kw := range []string{"a", "b"} {
				c, rec := newContext(http.MethodGet, "/api/posts/search?keyword="+kw, "")
				c.SetPath("/api/posts/search")
				require.NoError(t, h(c))
				assert.Equal(t, "results for "+kw, rec.Body.String())
				assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
			}
			assert.Len(t, rdb.data, 2)
		})
	}
}

func TestPurgeCacheFollowsCursorToZero(t *testing.T) {
	rdb := newFakeCache()
	rdb.pages = map[uint64]scanPage{
		0: {keys: []string{"cache:posts:a", "cache:posts:b"}, next: 7},
		7: {keys: nil, next: 3},
		3: {keys: []string{"cache:posts:c"}, next: 0},
	}

	require.NoError(t, PurgeCache(context.Background(), rdb, "cache:posts"))
	assert.Equal(t, "cache:posts:*", rdb.match)
	assert.Equal(t, []uint64{0, 7, 3}, rdb.cursors)
	assert.Equal(t, [][]string{{"cache:posts:a", "cache:posts:b"}, {"cache:posts:c"}}, rdb.deleted)

	assert.NoError(t, PurgeCache(context.Background(), nil, "cache:posts"))
}
