package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vibestream/vibestream-server/domain"
)

// RefreshClient exchanges a refresh token for a new access token against a
// provider's token endpoint, authenticating with HTTP Basic client
// credentials. It is stateless: every call hits the network, nothing is
// cached, and any failure collapses into domain.ErrRefreshFailed so callers
// treat revoked tokens and network faults identically.
type RefreshClient struct {
	ClientID     string
	ClientSecret string
	TokenURL     string
	HTTPClient   *http.Client
}

// NewSpotifyRefreshClient builds a RefreshClient for the Spotify token
// endpoint.
func NewSpotifyRefreshClient(clientID, clientSecret string) *RefreshClient {
	return &RefreshClient{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyTokenURL,
		HTTPClient:   http.DefaultClient,
	}
}

// Refresh performs a single grant_type=refresh_token exchange. It returns the
// new bearer token and its validity in seconds; the caller computes the
// absolute expiration. No retries, no backoff.
func (rc *RefreshClient) Refresh(ctx context.Context, refreshToken string) (string, int, error) {
	if refreshToken == "" {
		return "", 0, fmt.Errorf("%w: empty refresh token", domain.ErrRefreshFailed)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rc.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(rc.ClientID, rc.ClientSecret)

	resp, err := rc.HTTPClient.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("Token refresh request failed")
		return "", 0, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		log.Warn().Int("status", resp.StatusCode).Str("body", string(body)).Msg("Token endpoint rejected refresh")
		return "", 0, fmt.Errorf("%w: status %d", domain.ErrRefreshFailed, resp.StatusCode)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", 0, fmt.Errorf("%w: %v", domain.ErrRefreshFailed, err)
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return "", 0, fmt.Errorf("%w: token endpoint returned an empty grant", domain.ErrRefreshFailed)
	}

	return payload.AccessToken, payload.ExpiresIn, nil
}
