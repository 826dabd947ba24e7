// Package echoapi wires the HTTP surface: auth routes, the Spotify link
// flow, and the gated Spotify proxy controllers.
package echoapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/vibestream/vibestream-server/cache"
	"github.com/vibestream/vibestream-server/domain"
	"github.com/vibestream/vibestream-server/internal/federation"
	"github.com/vibestream/vibestream-server/internal/spotify"
	"github.com/vibestream/vibestream-server/middleware"
	"github.com/vibestream/vibestream-server/services"
)

// StateStore persists single-use OAuth state values across the provider
// redirect.
type StateStore interface {
	Save(ctx context.Context, state string, data cache.LinkState) error
	Consume(ctx context.Context, state string) (*cache.LinkState, error)
}

// Config is the API-facing slice of the server configuration.
type Config struct {
	ClientURL          string
	GoogleCallbackURL  string
	SpotifyCallbackURL string
	SecureCookies      bool
}

// API holds the handler dependencies.
type API struct {
	cfg         Config
	auth        *services.AuthService
	links       *services.LinkService
	google      federation.OAuth2Provider
	spotifyAuth federation.OAuth2Provider
	spotifyAPI  *spotify.Client
	states      StateStore
	sessionAuth *middleware.SessionAuth
	gate        *middleware.LinkedServiceGate
	health      func(ctx context.Context) error
}

func NewAPI(
	cfg Config,
	auth *services.AuthService,
	links *services.LinkService,
	google federation.OAuth2Provider,
	spotifyAuth federation.OAuth2Provider,
	spotifyAPI *spotify.Client,
	states StateStore,
	sessionAuth *middleware.SessionAuth,
	gate *middleware.LinkedServiceGate,
	health func(ctx context.Context) error,
) *API {
	return &API{
		cfg:         cfg,
		auth:        auth,
		links:       links,
		google:      google,
		spotifyAuth: spotifyAuth,
		spotifyAPI:  spotifyAPI,
		states:      states,
		sessionAuth: sessionAuth,
		gate:        gate,
		health:      health,
	}
}

// RegisterRoutes registers all routes on the echo instance.
func (a *API) RegisterRoutes(e *echo.Echo) {
	requireSession := a.sessionAuth.Require()
	requireSpotify := a.gate.Require(domain.ServiceSpotify)

	e.GET("/health", a.HealthHandler)

	e.POST("/api/users", a.RegisterHandler)
	e.POST("/api/auth/login", a.LoginHandler)
	e.POST("/api/auth/logout", a.LogoutHandler, requireSession)
	e.GET("/api/auth/verify", a.VerifyHandler, requireSession)

	e.GET("/api/auth/google", a.GoogleLoginHandler)
	e.GET("/api/auth/google/callback", a.GoogleCallbackHandler)

	e.GET("/api/auth/spotify", a.SpotifyLinkHandler, requireSession)
	e.GET("/api/auth/spotify/callback", a.SpotifyCallbackHandler, requireSession)
	e.DELETE("/api/spotify/link", a.SpotifyUnlinkHandler, requireSession)

	e.GET("/api/spotify/search", a.SearchHandler, requireSession, requireSpotify)
	e.PUT("/api/spotify/play", a.PlayHandler, requireSession, requireSpotify)
	e.PUT("/api/spotify/set", a.SetDeviceHandler, requireSession, requireSpotify)
	e.GET("/api/spotify/audio", a.AudioAnalysisHandler, requireSession, requireSpotify)
	e.GET("/api/spotify/token", a.TokenHandler, requireSession, requireSpotify)
}

// HealthHandler reports process and database liveness.
func (a *API) HealthHandler(c echo.Context) error {
	if a.health != nil {
		if err := a.health(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "OK"})
}

// jsonError maps a domain error to its HTTP status and a JSON body. Mapping
// happens only here, at the edge.
func jsonError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "Internal Server Error"

	var apiErr *spotify.APIError
	var validationErr *domain.ValidationError

	switch {
	case errors.As(err, &validationErr):
		status, message = http.StatusBadRequest, validationErr.Error()
	case errors.As(err, &apiErr):
		status, message = apiErr.Status, apiErr.Message
	case errors.Is(err, domain.ErrUserNotLoggedIn):
		status, message = http.StatusUnauthorized, "User is not authenticated"
	case errors.Is(err, domain.ErrServiceNotLinked):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrRefreshFailed):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, domain.ErrAlreadyLinked):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrEmailTaken), errors.Is(err, domain.ErrUsernameTaken):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, domain.ErrInvalidCredentials):
		status, message = http.StatusUnauthorized, err.Error()
	case errors.Is(err, domain.ErrUserNotFound):
		status, message = http.StatusNotFound, err.Error()
	}

	return c.JSON(status, echo.Map{"message": message})
}

func (a *API) setSessionCookie(c echo.Context, session *domain.Session) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    session.ID,
		Path:     "/",
		Expires:  session.ExpiresAt,
		MaxAge:   int(time.Until(session.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) clearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// Validator adapts go-playground/validator to echo's Validator interface.
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i any) error {
	if err := v.validate.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}
