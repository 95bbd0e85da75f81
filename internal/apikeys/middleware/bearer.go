package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	adomain "github.com/corvusHold/certify/internal/apikeys/domain"
	amw "github.com/corvusHold/certify/internal/auth/middleware"
	udomain "github.com/corvusHold/certify/internal/users/domain"
)

const ctxAPIKeyKey = "api_key"

// Authenticator resolves raw API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (adomain.APIKey, error)
}

// Bearer authenticates "Authorization: Bearer ck_..." and records the key
// owner as the request user.
func Bearer(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			k, err := auth.Authenticate(c.Request().Context(), strings.TrimPrefix(h, "Bearer "))
			switch {
			case err == nil:
			case errors.Is(err, adomain.ErrAPIAccessDisabled):
				return c.JSON(http.StatusForbidden, map[string]string{"error": "api access not enabled"})
			case errors.Is(err, adomain.ErrNotFound), errors.Is(err, adomain.ErrKeyInactive),
				errors.Is(err, adomain.ErrKeyExpired), errors.Is(err, udomain.ErrNotFound):
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
			default:
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "authentication failed"})
			}
			c.Set(ctxAPIKeyKey, k)
			amw.WithUserID(c, k.UserID)
			return next(c)
		}
	}
}

// Key returns the API key that authenticated the request.
func Key(c echo.Context) (adomain.APIKey, bool) {
	k, ok := c.Get(ctxAPIKeyKey).(adomain.APIKey)
	return k, ok
}
