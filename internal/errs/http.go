package errs

import "net/http"

// Codes shared between the gates, handlers and tests.
const (
	CodeMissingToken = "MISSING_TOKEN"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"
	CodeInvalidID    = "INVALID_ID"
)

// NewMissingTokenError is returned when no bearer credential was presented.
func NewMissingTokenError() *HTTPError {
	return newHTTPError(http.StatusUnauthorized, CodeMissingToken, "access token required")
}

// NewInvalidTokenError covers malformed, expired and badly signed tokens alike
// so clients cannot tell which check failed.
func NewInvalidTokenError() *HTTPError {
	return newHTTPError(http.StatusUnauthorized, CodeInvalidToken, "invalid or expired token")
}

// NewUnauthorizedError creates a 401 with the default UNAUTHORIZED code.
func NewUnauthorizedError(message string) *HTTPError {
	return newHTTPError(http.StatusUnauthorized, "", message)
}

// NewForbiddenError creates a 403 for a known caller touching someone else's resource.
func NewForbiddenError(message string) *HTTPError {
	return newHTTPError(http.StatusForbidden, CodeForbidden, message)
}

// NewBadRequestError creates a 400, optionally with a custom code and field errors.
func NewBadRequestError(message string, code string, fields []FieldError) *HTTPError {
	e := newHTTPError(http.StatusBadRequest, code, message)
	e.Errors = fields
	return e
}

// NewNotFoundError creates a 404.
func NewNotFoundError(message string) *HTTPError {
	return newHTTPError(http.StatusNotFound, "", message)
}

// NewConflictError creates a 409.
func NewConflictError(message string) *HTTPError {
	return newHTTPError(http.StatusConflict, "", message)
}

// NewInternalServerError creates a generic 500.  The message never carries
// driver or stack detail.
func NewInternalServerError() *HTTPError {
	return newHTTPError(http.StatusInternalServerError, "", http.StatusText(http.StatusInternalServerError))
}

// NewServiceUnavailableError creates a 503, used when the connection pool
// could not hand out a connection in time.
func NewServiceUnavailableError(message string) *HTTPError {
	return newHTTPError(http.StatusServiceUnavailable, "", message)
}

// NewTooManyRequestsError creates a 429 for callers over their rate budget.
func NewTooManyRequestsError(message string) *HTTPError {
	return newHTTPError(http.StatusTooManyRequests, "", message)
}
