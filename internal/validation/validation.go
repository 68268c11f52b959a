// Package validation binds request payloads and turns validator failures into
// field-level errs.HTTPError responses.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secure-forum/internal/errs"
)

// Validatable is implemented by request payloads.
type Validatable interface {
	Validate() error
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON name so clients can map errors back.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query", "param"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Struct validates s against its `validate` tags.
func Struct(s any) error {
	return validate.Struct(s)
}

// BindAndValidate binds the request into payload (a pointer) and validates it.
func BindAndValidate(c echo.Context, payload Validatable) error {
	if err := c.Bind(payload); err != nil {
		return errs.NewBadRequestError("malformed request body", "", nil)
	}
	if err := payload.Validate(); err != nil {
		return errs.NewBadRequestError("validation failed", "VALIDATION_FAILED", FieldErrors(err))
	}
	return nil
}

// FieldErrors converts validator errors into client-facing field errors.
func FieldErrors(err error) []errs.FieldError {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return []errs.FieldError{{Field: "", Error: err.Error()}}
	}
	out := make([]errs.FieldError, 0, len(ve))
	for _, fe := range ve {
		out = append(out, errs.FieldError{Field: fe.Field(), Error: message(fe)})
	}
	return out
}

func message(fe validator.FieldError) string {
	isString := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if isString {
			return fmt.Sprintf("must be at least %s characters", fe.Param())
		}
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		if isString {
			return fmt.Sprintf("must not exceed %s characters", fe.Param())
		}
		return fmt.Sprintf("must not exceed %s", fe.Param())
	case "email":
		return "must be a valid email address"
	case "alphanum":
		return "must contain only letters and digits"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s:%s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}
