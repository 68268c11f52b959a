package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secure-forum/internal/errs"
)

// GlobalErrorHandler is installed as echo's HTTPErrorHandler.  Every error
// returned by a gate or handler, and every recovered panic, ends here and is
// written in the errs.HTTPError shape.  Anything that is not already an
// HTTPError becomes a generic 500 so no internal detail reaches the client.
func GlobalErrorHandler(err error, c echo.Context) {
	var httpErr *errs.HTTPError
	var echoErr *echo.HTTPError

	switch {
	case errors.As(err, &httpErr):
	case errors.As(err, &echoErr):
		httpErr = fromEchoError(echoErr)
	default:
		httpErr = errs.NewInternalServerError()
	}

	if httpErr.Status >= http.StatusInternalServerError {
		GetLogger(c).Error().Err(err).Int("status", httpErr.Status).Str("error_code", httpErr.Code).Msg("request failed")
	}

	if c.Response().Committed {
		return
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(httpErr.Status)
		return
	}
	_ = c.JSON(httpErr.Status, httpErr)
}

func fromEchoError(e *echo.HTTPError) *errs.HTTPError {
	status := e.Code
	switch status {
	case http.StatusNotFound:
		return errs.NewNotFoundError("route not found")
	case http.StatusInternalServerError:
		return errs.NewInternalServerError()
	}
	msg := http.StatusText(status)
	if s, ok := e.Message.(string); ok && status < http.StatusInternalServerError {
		msg = s
	}
	return &errs.HTTPError{
		Code:    errs.MakeUpperCaseWithUnderscores(http.StatusText(status)),
		Message: msg,
		Status:  status,
	}
}
