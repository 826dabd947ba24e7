package federation

import "errors"

var (
	ErrUnsupportedProvider   = errors.New("provider has no external OAuth2 counterpart")
	ErrProviderMisconfigured = errors.New("provider is misconfigured")
	ErrInvalidAuthState      = errors.New("invalid auth state parameter")
	ErrExchangeCodeFailed    = errors.New("failed to exchange authorization code for token")
	ErrFetchUserInfoFailed   = errors.New("failed to fetch user info from provider")
)
