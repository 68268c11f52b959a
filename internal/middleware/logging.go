package middleware

import (
	"errors"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/iliyamo/secure-forum/internal/errs"
)

// RequestLogger writes one "API" line per request.  The level follows the
// final status: error for 5xx, warn for 4xx, info otherwise.
func RequestLogger() echo.MiddlewareFunc {
	return echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogError:     true,
		LogLatency:   true,
		LogMethod:    true,
		LogUserAgent: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			status := v.Status
			// The global error handler has not written the response yet when
			// the handler returned an error, so take the status from the error.
			if v.Error != nil {
				var httpErr *errs.HTTPError
				var echoErr *echo.HTTPError
				switch {
				case errors.As(v.Error, &httpErr):
					status = httpErr.Status
				case errors.As(v.Error, &echoErr):
					status = echoErr.Code
				default:
					status = 500
				}
			}

			l := GetLogger(c)
			var e *zerolog.Event
			switch {
			case status >= 500:
				e = l.Error().Err(v.Error)
			case status >= 400:
				e = l.Warn()
			default:
				e = l.Info()
			}
			if uid, ok := c.Get(UserIDKey).(string); ok {
				e = e.Str("user_id", uid)
			}
			e.Dur("latency", v.Latency).
				Int("status", status).
				Str("method", v.Method).
				Str("uri", v.URI).
				Str("user_agent", v.UserAgent).
				Msg("API")
			return nil
		},
	})
}
