package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Keys used with echo.Context Set/Get.
const (
	IdentityKey  = "identity"
	UserIDKey    = "user_id"
	UserRoleKey  = "user_role"
	OwnerIDKey   = "owner_id"
	LoggerKey    = "logger"
	RequestIDKey = "request_id"

	RequestIDHeader = "X-Request-ID"
)

// RequestID reuses an incoming X-Request-ID or generates a UUID, and echoes
// it back on the response.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			rid := c.Request().Header.Get(RequestIDHeader)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Set(RequestIDKey, rid)
			c.Response().Header().Set(RequestIDHeader, rid)
			return next(c)
		}
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c echo.Context) string {
	rid, _ := c.Get(RequestIDKey).(string)
	return rid
}

// ContextLogger derives a request-scoped logger from base and stores it both
// in the echo context and in the request context, where zerolog.Ctx (and so
// the query executor) picks it up.
func ContextLogger(base zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			l := base.With().
				Str("request_id", GetRequestID(c)).
				Str("method", c.Request().Method).
				Str("path", c.Path()).
				Str("ip", c.RealIP()).
				Logger()
			c.Set(LoggerKey, &l)
			c.SetRequest(c.Request().WithContext(l.WithContext(c.Request().Context())))
			return next(c)
		}
	}
}

// GetLogger returns the request-scoped logger, or a no-op logger when
// ContextLogger did not run.
func GetLogger(c echo.Context) *zerolog.Logger {
	if l, ok := c.Get(LoggerKey).(*zerolog.Logger); ok {
		return l
	}
	nop := zerolog.Nop()
	return &nop
}

// currentUserID is the authenticated user id, or "" before Authenticate.
func currentUserID(c echo.Context) string {
	s, _ := c.Get(UserIDKey).(string)
	return s
}
