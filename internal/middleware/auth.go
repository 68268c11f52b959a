package middleware

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/secure-forum/internal/errs"
	"github.com/iliyamo/secure-forum/internal/model"
)

// TokenVerifier turns a raw bearer token into a verified identity.
// *token.Service satisfies it.
type TokenVerifier interface {
	Verify(raw string) (model.Identity, error)
}

// Authenticate is the authentication gate.  A request without a bearer
// credential is rejected with MISSING_TOKEN; a credential that fails
// verification for any reason is rejected with INVALID_TOKEN.  Either way the
// rest of the chain, and so the store, is never reached.  On success the
// identity is attached to the echo context and the request context.
//
// The gate keeps no state between requests.
func Authenticate(v TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok {
				return errs.NewMissingTokenError()
			}
			id, err := v.Verify(raw)
			if err != nil {
				// The client only ever sees INVALID_TOKEN; the log keeps the cause.
				GetLogger(c).Warn().Err(err).Msg("bearer token rejected")
				return errs.NewInvalidTokenError()
			}
			setIdentity(c, id)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity attached by Authenticate.
func IdentityFrom(c echo.Context) (model.Identity, bool) {
	id, ok := c.Get(IdentityKey).(model.Identity)
	return id, ok
}

func setIdentity(c echo.Context, id model.Identity) {
	uid := strconv.FormatInt(id.ID, 10)
	c.Set(IdentityKey, id)
	c.Set(UserIDKey, uid)
	c.Set(UserRoleKey, string(id.Role))

	l := GetLogger(c).With().Str("user_id", uid).Logger()
	c.Set(LoggerKey, &l)

	ctx := model.WithIdentity(c.Request().Context(), id)
	c.SetRequest(c.Request().WithContext(l.WithContext(ctx)))
}

// bearerToken extracts <token> from "Bearer <token>".  The scheme is matched
// case-insensitively.
func bearerToken(header string) (string, bool) {
	scheme, rest, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	raw := strings.TrimSpace(rest)
	return raw, raw != ""
}
