package domain

import (
	"fmt"
	"strings"
)

// Provider identifies an authentication provider a user can sign in with.
// The set is closed: adding a provider means adding a constant here and a
// matching branch in the federation provider factory.
type Provider string

const (
	ProviderLocal   Provider = "local"
	ProviderGoogle  Provider = "google"
	ProviderSpotify Provider = "spotify"
)

// ParseProvider normalizes and validates a provider name.
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(strings.ToLower(s)); p {
	case ProviderLocal, ProviderGoogle, ProviderSpotify:
		return p, nil
	default:
		return "", &ValidationError{Field: "provider", Reason: fmt.Sprintf("unsupported authentication provider %q", s)}
	}
}

func (p Provider) String() string { return string(p) }

// StreamingService identifies a music streaming service that can be linked to
// a user account. Spotify is the only supported service today.
type StreamingService string

const ServiceSpotify StreamingService = "spotify"

// ParseStreamingService normalizes and validates a streaming service name.
func ParseStreamingService(s string) (StreamingService, error) {
	switch svc := StreamingService(strings.ToLower(s)); svc {
	case ServiceSpotify:
		return svc, nil
	default:
		return "", &ValidationError{Field: "serviceName", Reason: fmt.Sprintf("unsupported service provider %q", s)}
	}
}

func (s StreamingService) String() string { return string(s) }
