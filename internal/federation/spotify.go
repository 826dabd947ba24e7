// Spotify OAuth2 provider. Endpoint and profile shapes follow
// https://developer.spotify.com/documentation/web-api/reference/
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/vibestream/vibestream-server/domain"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
)

// SpotifyUserInfoEndpoint is a variable so tests can point it at a mock server.
var SpotifyUserInfoEndpoint = "https://api.spotify.com/v1/me"

// defaultSpotifyScopes cover playback control and profile access for the
// browser playback SDK.
var defaultSpotifyScopes = []string{
	"streaming",
	"user-read-email",
	"user-read-private",
	"user-read-playback-state",
	"user-modify-playback-state",
}

// SpotifyProvider implements OAuth2Provider for Spotify account linking.
type SpotifyProvider struct {
	*BaseProvider
}

func NewSpotifyProvider(cfg ProviderConfig) (*SpotifyProvider, error) {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = defaultSpotifyScopes
	}

	return &SpotifyProvider{
		BaseProvider: &BaseProvider{
			provider: domain.ProviderSpotify,
			cfg:      cfg,
			endpoint: oauth2.Endpoint{
				AuthURL:  spotifyAuthURL,
				TokenURL: spotifyTokenURL,
			},
		},
	}, nil
}

// FetchUserInfo retrieves the Spotify profile of the current user.
func (s *SpotifyProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	client := s.httpClient(ctx, token)
	resp, err := client.Get(SpotifyUserInfoEndpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUserInfoFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrFetchUserInfoFailed, resp.StatusCode, string(body))
	}

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUserInfoFailed, err)
	}

	var rawUserInfo struct {
		ID           string `json:"id"`
		DisplayName  string `json:"display_name"`
		Email        string `json:"email"`
		ExternalURLs struct {
			Spotify string `json:"spotify"`
		} `json:"external_urls"`
		Images []struct {
			URL string `json:"url"`
		} `json:"images"`
	}
	if err := json.Unmarshal(rawBody, &rawUserInfo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUserInfoFailed, err)
	}

	var rawDataMap map[string]any
	_ = json.Unmarshal(rawBody, &rawDataMap)

	info := &ExternalUserInfo{
		ProviderUserID: rawUserInfo.ID,
		Email:          rawUserInfo.Email,
		DisplayName:    rawUserInfo.DisplayName,
		ProfileURL:     rawUserInfo.ExternalURLs.Spotify,
		RawData:        rawDataMap,
	}
	if len(rawUserInfo.Images) > 0 {
		info.PictureURL = rawUserInfo.Images[0].URL
	}
	return info, nil
}

var _ OAuth2Provider = (*SpotifyProvider)(nil)
