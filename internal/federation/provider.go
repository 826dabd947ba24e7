package federation

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/vibestream/vibestream-server/domain"
)

// ExternalUserInfo holds standardized profile information retrieved from an
// external OAuth2 provider.
type ExternalUserInfo struct {
	ProviderUserID string // Unique ID of the user within the provider (Google 'sub', Spotify 'id')
	Email          string
	DisplayName    string
	PictureURL     string
	ProfileURL     string // Link to the provider-side profile page, when the provider exposes one
	RawData        map[string]any
}

// OAuth2Provider is the behavior every supported external provider exposes:
// building the consent URL, exchanging the authorization code, and fetching
// the provider-side profile.
type OAuth2Provider interface {
	// Name returns the provider this implementation serves.
	Name() domain.Provider

	// OAuth2Config returns the oauth2.Config for the provider, bound to the
	// given redirect URL.
	OAuth2Config(redirectURL string) (*oauth2.Config, error)

	// AuthCodeURL generates the authorization URL the user is redirected to.
	AuthCodeURL(state, redirectURL string, opts ...oauth2.AuthCodeOption) (string, error)

	// Exchange trades an authorization code for an OAuth2 token.
	Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error)

	// FetchUserInfo uses an access token to retrieve the provider profile.
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*ExternalUserInfo, error)
}

// ProviderConfig carries the statically configured client credentials for
// one provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// NewProvider is the provider factory. The switch is exhaustive over the
// closed domain.Provider set; ProviderLocal has no external counterpart.
func NewProvider(p domain.Provider, cfg ProviderConfig) (OAuth2Provider, error) {
	switch p {
	case domain.ProviderGoogle:
		return NewGoogleProvider(cfg)
	case domain.ProviderSpotify:
		return NewSpotifyProvider(cfg)
	case domain.ProviderLocal:
		return nil, ErrUnsupportedProvider
	default:
		return nil, ErrUnsupportedProvider
	}
}

// BaseProvider carries the pieces shared by all providers. Specific providers
// embed it and implement FetchUserInfo themselves.
type BaseProvider struct {
	provider domain.Provider
	cfg      ProviderConfig
	endpoint oauth2.Endpoint
}

func (b *BaseProvider) Name() domain.Provider { return b.provider }

func (b *BaseProvider) OAuth2Config(redirectURL string) (*oauth2.Config, error) {
	if b.cfg.ClientID == "" || b.cfg.ClientSecret == "" {
		return nil, ErrProviderMisconfigured
	}
	return &oauth2.Config{
		ClientID:     b.cfg.ClientID,
		ClientSecret: b.cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Scopes:       b.cfg.Scopes,
		Endpoint:     b.endpoint,
	}, nil
}

func (b *BaseProvider) AuthCodeURL(state, redirectURL string, opts ...oauth2.AuthCodeOption) (string, error) {
	conf, err := b.OAuth2Config(redirectURL)
	if err != nil {
		return "", err
	}
	return conf.AuthCodeURL(state, opts...), nil
}

func (b *BaseProvider) Exchange(ctx context.Context, redirectURL, code string) (*oauth2.Token, error) {
	conf, err := b.OAuth2Config(redirectURL)
	if err != nil {
		return nil, err
	}
	return conf.Exchange(ctx, code)
}

// httpClient returns a client authenticated with the given token for calls
// to the provider's API.
func (b *BaseProvider) httpClient(ctx context.Context, token *oauth2.Token) *http.Client {
	conf, err := b.OAuth2Config("")
	if err != nil {
		return oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	}
	return conf.Client(ctx, token)
}

// GenerateState produces an unguessable value for the OAuth2 state parameter.
func GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
