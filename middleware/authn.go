package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vibestream/vibestream-server/cache"
	"github.com/vibestream/vibestream-server/domain"
)

// SessionCookieName is the cookie carrying the opaque session ID.
const SessionCookieName = "vibestream_sid"

const (
	principalContextKey = "auth.principal"
	sessionIDContextKey = "auth.session_id"
)

// SessionResolver maps a session cookie value to its principal.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*domain.User, error)
}

// SessionAuth authenticates requests from the session cookie and attaches the
// principal to the request context.
type SessionAuth struct {
	resolver   SessionResolver
	principals *cache.PrincipalCache
}

// NewSessionAuth creates the middleware. principals may be nil to disable the
// read-through cache.
func NewSessionAuth(resolver SessionResolver, principals *cache.PrincipalCache) *SessionAuth {
	return &SessionAuth{resolver: resolver, principals: principals}
}

// Require rejects requests without a valid session with 401 before the
// handler runs.
func (a *SessionAuth) Require() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cookie, err := c.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "User is not authenticated"})
			}

			if a.principals != nil {
				if user, ok := a.principals.Get(cookie.Value); ok {
					SetPrincipal(c, user, cookie.Value)
					return next(c)
				}
			}

			user, err := a.resolver.ResolveSession(c.Request().Context(), cookie.Value)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "User is not authenticated"})
			}

			if a.principals != nil {
				a.principals.Set(cookie.Value, user)
			}
			SetPrincipal(c, user, cookie.Value)
			return next(c)
		}
	}
}

// Invalidate drops a cached principal, called after logout and after writes
// to the principal's token store.
func (a *SessionAuth) Invalidate(sessionID string) {
	if a.principals != nil {
		a.principals.Invalidate(sessionID)
	}
}

// SetPrincipal attaches the authenticated user and their session ID to the
// request context.
func SetPrincipal(c echo.Context, user *domain.User, sessionID string) {
	c.Set(principalContextKey, user)
	c.Set(sessionIDContextKey, sessionID)
}

// Principal retrieves the authenticated user from the request context.
func Principal(c echo.Context) (*domain.User, bool) {
	user, ok := c.Get(principalContextKey).(*domain.User)
	return user, ok && user != nil
}

// SessionID retrieves the current session ID from the request context.
func SessionID(c echo.Context) (string, bool) {
	id, ok := c.Get(sessionIDContextKey).(string)
	return id, ok && id != ""
}
