package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/vibestream/vibestream-server/cache"
	"github.com/vibestream/vibestream-server/domain"
)

const (
	accessTokenContextKey     = "linked_service.access_token"
	tokenExpirationContextKey = "linked_service.token_expiration"
)

// TokenRefresher exchanges a refresh token for a new access token and its
// validity in seconds.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (string, int, error)
}

// LinkedServiceGate guarantees that handlers behind it only ever observe a
// currently valid access token for the target streaming service. Expired
// tokens are refreshed synchronously and persisted before the chain
// continues; requests without a usable link never reach the handler.
type LinkedServiceGate struct {
	users      domain.UserRepository
	refresher  TokenRefresher
	principals *cache.PrincipalCache
	now        func() time.Time
}

// NewLinkedServiceGate creates the gate. principals may be nil when no
// principal cache is in use; when set, a successful refresh drops the
// session's cache entry so the next request re-reads persisted state.
func NewLinkedServiceGate(users domain.UserRepository, refresher TokenRefresher, principals *cache.PrincipalCache) *LinkedServiceGate {
	return &LinkedServiceGate{
		users:      users,
		refresher:  refresher,
		principals: principals,
		now:        time.Now,
	}
}

// Require builds the gate middleware for one streaming service. It must run
// after session authentication.
func (g *LinkedServiceGate) Require(name domain.StreamingService) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			principal, ok := Principal(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "User is not authenticated"})
			}

			svc := principal.LinkedService(name)
			if !svc.Usable() {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"message": name.String() + " service not linked or access and refresh tokens missing",
				})
			}

			// Work on a copy so a failed persist leaves the principal
			// exactly as stored; the record must not carry a token that
			// never reached the database.
			current := *svc

			if current.Expired(g.now()) {
				newToken, expiresIn, err := g.refresher.Refresh(c.Request().Context(), current.RefreshToken)
				if err != nil {
					// The stale record stays in place; the next request
					// retries the refresh.
					return c.JSON(http.StatusBadRequest, echo.Map{"message": err.Error()})
				}

				current.AccessToken = newToken
				current.ExpirationDate = g.now().Add(time.Duration(expiresIn) * time.Second)

				// Persist before attaching: downstream must never observe a
				// token that is not durably saved.
				if err := g.users.UpdateLinkedService(c.Request().Context(), principal.ID, current); err != nil {
					log.Error().Err(err).Str("user_id", principal.ID).Str("service", name.String()).Msg("Failed to persist refreshed token")
					return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to persist refreshed token"})
				}

				// Durably saved; now the in-memory record may follow.
				*svc = current
				if g.principals != nil {
					if sessionID, ok := SessionID(c); ok {
						g.principals.Invalidate(sessionID)
					}
				}
				log.Debug().Str("user_id", principal.ID).Str("service", name.String()).Msg("Access token refreshed")
			}

			c.Set(accessTokenContextKey, current.AccessToken)
			c.Set(tokenExpirationContextKey, current.ExpirationDate)
			return next(c)
		}
	}
}

// AccessToken retrieves the gated access token from the request context.
func AccessToken(c echo.Context) (string, bool) {
	token, ok := c.Get(accessTokenContextKey).(string)
	return token, ok && token != ""
}

// TokenExpiration retrieves the gated token's expiration from the request
// context.
func TokenExpiration(c echo.Context) (time.Time, bool) {
	exp, ok := c.Get(tokenExpirationContextKey).(time.Time)
	return exp, ok
}
