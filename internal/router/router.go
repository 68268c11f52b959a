// Package router assembles the echo instance: the ambient middleware chain,
// the authentication and authorization gates and the forum routes.
package router

import (
	"context"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/iliyamo/secure-forum/internal/config"
	"github.com/iliyamo/secure-forum/internal/events"
	"github.com/iliyamo/secure-forum/internal/handler"
	"github.com/iliyamo/secure-forum/internal/middleware"
	"github.com/iliyamo/secure-forum/internal/model"
	"github.com/iliyamo/secure-forum/internal/repository"
)

// Store is the query executor plus a liveness probe.  *database.Executor
// satisfies it.
type Store interface {
	repository.Executor
	handler.Pinger
}

// Deps carries everything the routes need.  Redis and Events may be nil.
type Deps struct {
	Config    config.Config
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Logger    zerolog.Logger
	Store     Store
	Tokens    interface {
		middleware.TokenVerifier
		handler.TokenIssuer
	}
	Redis  *redis.Client
	Events *events.Publisher
}

// New builds the echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.GlobalErrorHandler

	e.Use(middleware.RequestID())
	e.Use(middleware.ContextLogger(d.Logger))
	e.Use(middleware.RequestLogger())
	e.Use(echomw.Recover())
	e.Use(echomw.Secure())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.Config.AllowedOrigins(),
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Use(echomw.BodyLimit("1M"))

	users := repository.NewUserRepo(d.Store)
	posts := repository.NewPostRepo(d.Store)

	health := handler.NewHealth(d.Store)
	e.GET("/health", health.Check)

	// Gates are attached per route rather than through a sub-group, so
	// unknown /api paths still answer 404 instead of 401.
	gates := []echo.MiddlewareFunc{
		middleware.Authenticate(d.Tokens),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	}

	api := e.Group("/api")
	var public []echo.MiddlewareFunc
	limit := middleware.RateLimit(d.RateLimit, scripter(d.Redis))
	if d.RateLimit.PerUser() {
		// Per-user buckets need the identity, so the limiter runs after the gates.
		public = append(public, limit)
		gates = append(gates, limit)
	} else {
		api.Use(limit)
	}
	api.GET("/health", health.Check, public...)

	RegisterAuth(api, handler.NewAuthHandler(users, d.Tokens, d.Config.BcryptCost), public, gates)
	RegisterPosts(api, handler.NewPostHandler(posts, d.Events, purger(d.Cache, d.Redis)), responseCache(d.Cache, d.Redis), gates)
	RegisterUsers(api, handler.NewUserHandler(users, d.Events, d.Config.BcryptCost), gates)
	return e
}

// RegisterAuth mounts login and registration, which need no session, and
// /me, which does.
func RegisterAuth(g *echo.Group, a *handler.AuthHandler, public, gates []echo.MiddlewareFunc) {
	g.POST("/login", a.Login, public...)
	g.POST("/register", a.Register, public...)
	g.GET("/me", a.Me, gates...)
}

// RegisterPosts mounts the shared feed.  Reads go through the response cache
// after the gates.
func RegisterPosts(g *echo.Group, p *handler.PostHandler, cache echo.MiddlewareFunc, gates []echo.MiddlewareFunc) {
	read := with(gates, cache)
	g.GET("/posts", p.List, read...)
	g.GET("/posts/search", p.Search, read...)
	g.POST("/posts", p.Create, gates...)
}

// RegisterUsers mounts the directory and the ownership-scoped profile routes.
func RegisterUsers(g *echo.Group, u *handler.UserHandler, gates []echo.MiddlewareFunc) {
	g.GET("/users", u.List, gates...)

	owned := with(gates, middleware.RequireOwner("id"))
	g.GET("/users/:id", u.Get, owned...)
	g.PUT("/users/:id", u.Update, owned...)
}

func with(gates []echo.MiddlewareFunc, extra ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(gates)+len(extra))
	out = append(out, gates...)
	return append(out, extra...)
}

func scripter(rdb *redis.Client) redis.Scripter {
	if rdb == nil {
		return nil
	}
	return rdb
}

func responseCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if rdb == nil {
		return middleware.ResponseCache(cfg, nil)
	}
	return middleware.ResponseCache(cfg, rdb)
}

func purger(cfg config.CacheConfig, rdb *redis.Client) func(context.Context) error {
	if rdb == nil || !cfg.Enabled {
		return nil
	}
	return func(ctx context.Context) error {
		return middleware.PurgeCache(ctx, rdb, cfg.Prefix)
	}
}
