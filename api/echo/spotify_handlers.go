package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vibestream/vibestream-server/internal/spotify"
	"github.com/vibestream/vibestream-server/middleware"
)

// Proxy controllers. Each runs behind the access gate, so the token read
// from the request context is guaranteed valid and already persisted.

// SearchHandler proxies a catalog search.
func (a *API) SearchHandler(c echo.Context) error {
	term := c.QueryParam("term")
	typ := c.QueryParam("type")
	if term == "" || typ == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Search term and type are required"})
	}

	token, _ := middleware.AccessToken(c)
	result, err := a.spotifyAPI.Search(c.Request().Context(), token, term, typ)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSONBlob(http.StatusOK, result)
}

// PlayRequestBody starts playback of the given URIs.
type PlayRequestBody struct {
	URIs       []string `json:"uris" validate:"required,min=1"`
	DeviceID   string   `json:"deviceId"`
	PositionMS int      `json:"positionMs" validate:"omitempty,min=0"`
}

// PlayHandler proxies a playback start.
func (a *API) PlayHandler(c echo.Context) error {
	var req PlayRequestBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, _ := middleware.AccessToken(c)
	err := a.spotifyAPI.Play(c.Request().Context(), token, spotify.PlayRequest{
		URIs:       req.URIs,
		DeviceID:   req.DeviceID,
		PositionMS: req.PositionMS,
	})
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Playback started"})
}

// SetDeviceRequestBody targets the playback SDK's device.
type SetDeviceRequestBody struct {
	DeviceID string `json:"deviceId" validate:"required"`
}

// SetDeviceHandler proxies a playback transfer to the client SDK's device.
func (a *API) SetDeviceHandler(c echo.Context) error {
	var req SetDeviceRequestBody
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid request body"})
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, _ := middleware.AccessToken(c)
	if err := a.spotifyAPI.TransferPlayback(c.Request().Context(), token, req.DeviceID); err != nil {
		return jsonError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "Device set"})
}

// AudioAnalysisHandler proxies the audio analysis that drives the
// beat-synchronized visualizations.
func (a *API) AudioAnalysisHandler(c echo.Context) error {
	trackID := c.QueryParam("trackId")
	if trackID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Track ID is required"})
	}

	token, _ := middleware.AccessToken(c)
	result, err := a.spotifyAPI.AudioAnalysis(c.Request().Context(), token, trackID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSONBlob(http.StatusOK, result)
}

// TokenHandler hands the gated access token to the browser playback SDK.
func (a *API) TokenHandler(c echo.Context) error {
	token, ok := middleware.AccessToken(c)
	if !ok {
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "no access token on request"})
	}
	expiration, _ := middleware.TokenExpiration(c)

	return c.JSON(http.StatusOK, echo.Map{
		"accessToken":     token,
		"tokenExpiration": expiration,
	})
}
