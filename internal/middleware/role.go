package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/model"
)

// RequireRole rejects authenticated callers whose role is not in roles.  It
// must run after Authenticate.  It is used to pin the accepted role set on the
// protected group, not to grant elevated access.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return errs.NewMissingTokenError()
			}
			if !allowed[id.Role] {
				return errs.NewForbiddenError("forbidden")
			}
			return next(c)
		}
	}
}
