package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/model"
)

// Decision is the outcome of the ownership check.
type Decision bool

const (
	Allow Decision = true
	Deny  Decision = false
)

// Authorize allows access iff the resource owner is the caller.  The role is
// deliberately ignored: admins get no override here.
func Authorize(ownerID int64, id model.Identity) Decision {
	return Decision(ownerID == id.ID)
}

// RequireOwner is the authorization gate for routes naming an
// ownership-scoped resource by id in the path parameter param.  It compares
// the path id with the authenticated identity and never reads the store, so a
// concurrent ownership change cannot race it.
func RequireOwner(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ownerID, ok := parseResourceID(c.Param(param))
			if !ok {
				return errs.NewBadRequestError("resource id must be a positive integer", errs.CodeInvalidID, nil)
			}
			id, ok := IdentityFrom(c)
			if !ok {
				return errs.NewMissingTokenError()
			}
			if Authorize(ownerID, id) == Deny {
				GetLogger(c).Warn().Int64("owner_id", ownerID).Msg("ownership check denied")
				return errs.NewForbiddenError("access denied: you can only access your own profile")
			}
			c.Set(OwnerIDKey, ownerID)
			return next(c)
		}
	}
}

// OwnerID returns the path id accepted by RequireOwner.
func OwnerID(c echo.Context) (int64, bool) {
	id, ok := c.Get(OwnerIDKey).(int64)
	return id, ok
}

// parseResourceID accepts only plain base-10 digits, no sign, no spaces.
func parseResourceID(raw string) (int64, bool) {
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
