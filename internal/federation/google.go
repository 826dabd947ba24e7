package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	googleOAuth2 "golang.org/x/oauth2/google"

	"github.com/vibestream/vibestream-server/domain"
)

// GoogleUserInfoEndpoint is a variable so tests can point it at a mock server.
var GoogleUserInfoEndpoint = "https://www.googleapis.com/oauth2/v3/userinfo"

// GoogleProvider implements OAuth2Provider for Google sign-in.
type GoogleProvider struct {
	*BaseProvider
}

// NewGoogleProvider creates a GoogleProvider, ensuring the scopes needed for
// profile information are present.
func NewGoogleProvider(cfg ProviderConfig) (*GoogleProvider, error) {
	for _, required := range []string{"openid", "profile", "email"} {
		found := false
		for _, scope := range cfg.Scopes {
			if scope == required {
				found = true
				break
			}
		}
		if !found {
			cfg.Scopes = append(cfg.Scopes, required)
		}
	}

	return &GoogleProvider{
		BaseProvider: &BaseProvider{
			provider: domain.ProviderGoogle,
			cfg:      cfg,
			endpoint: googleOAuth2.Endpoint,
		},
	}, nil
}

// FetchUserInfo retrieves the Google userinfo profile for the token.
func (g *GoogleProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error) {
	client := g.httpClient(ctx, token)
	resp, err := client.Get(GoogleUserInfoEndpoint)
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
		Sub     string `json:"sub"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
		Email   string `json:"email"`
	}
	if err := json.Unmarshal(rawBody, &rawUserInfo); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchUserInfoFailed, err)
	}

	var rawDataMap map[string]any
	_ = json.Unmarshal(rawBody, &rawDataMap)

	return &ExternalUserInfo{
		ProviderUserID: rawUserInfo.Sub,
		Email:          rawUserInfo.Email,
		DisplayName:    rawUserInfo.Name,
		PictureURL:     rawUserInfo.Picture,
		RawData:        rawDataMap,
	}, nil
}

var _ OAuth2Provider = (*GoogleProvider)(nil)
