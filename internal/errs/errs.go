// Package errs defines the single error shape returned to API clients.
//
// Every failure that reaches the client, whether raised by a gate, a handler
// or the global error handler, is an *HTTPError serialized as JSON:
//
//	{"code": "FORBIDDEN", "message": "...", "status": 403}
package errs

import (
	"net/http"
	"strings"
)

// FieldError is a field-level validation failure.
type FieldError struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

// HTTPError is the client-facing error.  Code is machine friendly
// (e.g. "INVALID_TOKEN"), Message is human friendly.
type HTTPError struct {
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Status  int          `json:"status"`
	Errors  []FieldError `json:"errors,omitempty"`
}

func (e *HTTPError) Error() string {
	return e.Message
}

// Is reports whether target is an *HTTPError with the same code.  A target
// with an empty code matches any HTTPError.
func (e *HTTPError) Is(target error) bool {
	t, ok := target.(*HTTPError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// WithMessage returns a copy of e with Message replaced.
func (e *HTTPError) WithMessage(message string) *HTTPError {
	return &HTTPError{Code: e.Code, Message: message, Status: e.Status, Errors: e.Errors}
}

// MakeUpperCaseWithUnderscores converts "Bad Request" into "BAD_REQUEST".
func MakeUpperCaseWithUnderscores(str string) string {
	return strings.ToUpper(strings.ReplaceAll(str, " ", "_"))
}

func newHTTPError(status int, code, message string) *HTTPError {
	if code == "" {
		code = MakeUpperCaseWithUnderscores(http.StatusText(status))
	}
	return &HTTPError{Code: code, Message: message, Status: status}
}
