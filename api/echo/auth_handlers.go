package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vibestream/vibestream-server/cache"
	"github.com/vibestream/vibestream-server/domain"
	"github.com/vibestream/vibestream-server/internal/federation"
	"github.com/vibestream/vibestream-server/middleware"
	"github.com/vibestream/vibestream-server/services"
)

// RegisterRequest is the local-registration body.
type RegisterRequest struct {
	Username     string `json:"username" validate:"required,alphanum"`
	DisplayName  string `json:"displayName" validate:"required,max=50"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8"`
	ProfileImage string `json:"profileImage" validate:"omitempty,url"`
}

// LoginRequest is the local-login body.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RegisterHandler creates a local account.
func (a *API) RegisterHandler(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := a.auth.Register(c.Request().Context(), services.RegisterParams{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		Email:        req.Email,
		Password:     req.Password,
		ProfileImage: req.ProfileImage,
	})
	if err != nil {
		return jsonError(c, err)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "User registered", "user": user})
}

// LoginHandler verifies local credentials and sets the session cookie.
func (a *API) LoginHandler(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, session, err := a.auth.Login(c.Request().Context(), req.Email, req.Password,
		c.Request().UserAgent(), c.RealIP())
	if err != nil {
		return jsonError(c, err)
	}

	a.setSessionCookie(c, session)
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged in", "user": user})
}

// LogoutHandler revokes the session and clears the cookie.
func (a *API) LogoutHandler(c echo.Context) error {
	sessionID, ok := middleware.SessionID(c)
	if !ok {
		return jsonError(c, domain.ErrUserNotLoggedIn)
	}

	if err := a.auth.Logout(c.Request().Context(), sessionID); err != nil {
		return jsonError(c, err)
	}
	a.sessionAuth.Invalidate(sessionID)
	a.clearSessionCookie(c)

	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out"})
}

// VerifyHandler returns the authenticated principal.
func (a *API) VerifyHandler(c echo.Context) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return jsonError(c, domain.ErrUserNotLoggedIn)
	}
	return c.JSON(http.StatusOK, echo.Map{"user": principal})
}

// GoogleLoginHandler starts the Google sign-in flow.
func (a *API) GoogleLoginHandler(c echo.Context) error {
	state, err := federation.GenerateState()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate auth state")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to start sign-in"})
	}

	if err := a.states.Save(c.Request().Context(), state, cache.LinkState{Provider: domain.ProviderGoogle}); err != nil {
		log.Error().Err(err).Msg("Failed to store auth state")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to start sign-in"})
	}

	authURL, err := a.google.AuthCodeURL(state, a.cfg.GoogleCallbackURL,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build Google authorization URL")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to start sign-in"})
	}

	return c.Redirect(http.StatusFound, authURL)
}

// GoogleCallbackHandler completes Google sign-in: code exchange, profile
// fetch, login-or-create, session cookie.
func (a *API) GoogleCallbackHandler(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		log.Warn().Str("error", errParam).Msg("Google consent was denied")
		return c.Redirect(http.StatusFound, a.cfg.ClientURL+"/login")
	}

	ctx := c.Request().Context()
	data, err := a.states.Consume(ctx, c.QueryParam("state"))
	if err != nil || data.Provider != domain.ProviderGoogle {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": federation.ErrInvalidAuthState.Error()})
	}

	token, err := a.google.Exchange(ctx, a.cfg.GoogleCallbackURL, c.QueryParam("code"))
	if err != nil {
		log.Warn().Err(err).Msg("Google code exchange failed")
		return c.JSON(http.StatusBadRequest, echo.Map{"message": federation.ErrExchangeCodeFailed.Error()})
	}

	info, err := a.google.FetchUserInfo(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Google profile fetch failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"message": federation.ErrFetchUserInfoFailed.Error()})
	}

	_, session, err := a.auth.LoginWithGoogle(ctx, info, token, c.Request().UserAgent(), c.RealIP())
	if err != nil {
		return jsonError(c, err)
	}

	a.setSessionCookie(c, session)
	return c.Redirect(http.StatusFound, a.cfg.ClientURL)
}

// SpotifyLinkHandler starts the Spotify link flow for the signed-in user.
// The state is bound to the initiating session so the callback can verify
// that the same user finishes the flow.
func (a *API) SpotifyLinkHandler(c echo.Context) error {
	sessionID, ok := middleware.SessionID(c)
	if !ok {
		return jsonError(c, domain.ErrUserNotLoggedIn)
	}

	state, err := federation.GenerateState()
	if err != nil {
		log.Error().Err(err).Msg("Failed to generate auth state")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to start link flow"})
	}

	if err := a.states.Save(c.Request().Context(), state, cache.LinkState{
		Provider:  domain.ProviderSpotify,
		SessionID: sessionID,
	}); err != nil {
		log.Error().Err(err).Msg("Failed to store auth state")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to start link flow"})
	}

	authURL, err := a.spotifyAuth.AuthCodeURL(state, a.cfg.SpotifyCallbackURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to build Spotify authorization URL")
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "failed to start link flow"})
	}

	return c.Redirect(http.StatusFound, authURL)
}

// SpotifyCallbackHandler completes the link flow: state check, code
// exchange, profile fetch, token-store append.
func (a *API) SpotifyCallbackHandler(c echo.Context) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return jsonError(c, domain.ErrUserNotLoggedIn)
	}
	sessionID, _ := middleware.SessionID(c)

	if errParam := c.QueryParam("error"); errParam != "" {
		log.Warn().Str("error", errParam).Str("email", principal.Email).Msg("Spotify consent was denied")
		return c.Redirect(http.StatusFound, a.cfg.ClientURL)
	}

	ctx := c.Request().Context()
	data, err := a.states.Consume(ctx, c.QueryParam("state"))
	if err != nil || data.Provider != domain.ProviderSpotify || data.SessionID != sessionID {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": federation.ErrInvalidAuthState.Error()})
	}

	token, err := a.spotifyAuth.Exchange(ctx, a.cfg.SpotifyCallbackURL, c.QueryParam("code"))
	if err != nil {
		log.Warn().Err(err).Msg("Spotify code exchange failed")
		return c.JSON(http.StatusBadRequest, echo.Map{"message": federation.ErrExchangeCodeFailed.Error()})
	}

	info, err := a.spotifyAuth.FetchUserInfo(ctx, token)
	if err != nil {
		log.Warn().Err(err).Msg("Spotify profile fetch failed")
		return c.JSON(http.StatusBadGateway, echo.Map{"message": federation.ErrFetchUserInfoFailed.Error()})
	}

	if _, err := a.links.Link(ctx, principal, domain.ServiceSpotify, info, token); err != nil {
		return jsonError(c, err)
	}
	a.sessionAuth.Invalidate(sessionID)

	return c.Redirect(http.StatusFound, a.cfg.ClientURL)
}

// SpotifyUnlinkHandler removes the user's Spotify link.
func (a *API) SpotifyUnlinkHandler(c echo.Context) error {
	principal, ok := middleware.Principal(c)
	if !ok {
		return jsonError(c, domain.ErrUserNotLoggedIn)
	}

	if err := a.links.Unlink(c.Request().Context(), principal, domain.ServiceSpotify); err != nil {
		return jsonError(c, err)
	}
	if sessionID, ok := middleware.SessionID(c); ok {
		a.sessionAuth.Invalidate(sessionID)
	}

	return c.JSON(http.StatusOK, echo.Map{"message": "Spotify unlinked"})
}
