package domain

import (
	"net/url"
	"time"
)

// LinkedService stores a user's credential set for one music streaming
// service: the provider-side profile, the bearer token used for API calls,
// and the refresh token used to mint a new one once it expires. It lives
// embedded on the owning User document and has no identity of its own.
type LinkedService struct {
	ServiceName    StreamingService `bson:"service_name" json:"serviceName"`
	ProfileID      string           `bson:"profile_id" json:"profileId"`
	AccessToken    string           `bson:"access_token" json:"-"`
	RefreshToken   string           `bson:"refresh_token" json:"-"`
	ExpirationDate time.Time        `bson:"expiration_date" json:"expirationDate"`
	ProfileLink    string           `bson:"profile_link,omitempty" json:"profileLink,omitempty"`
	CreatedAt      time.Time        `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time        `bson:"updated_at" json:"updatedAt"`
}

// Validate checks the required-field and format contract of the record.
func (ls *LinkedService) Validate() error {
	if _, err := ParseStreamingService(string(ls.ServiceName)); err != nil {
		return err
	}
	if ls.ProfileID == "" {
		return &ValidationError{Field: "profileId", Reason: "profile ID is required"}
	}
	if ls.AccessToken == "" {
		return &ValidationError{Field: "accessToken", Reason: "access token is required"}
	}
	if ls.RefreshToken == "" {
		return &ValidationError{Field: "refreshToken", Reason: "refresh token is required"}
	}
	if ls.ExpirationDate.IsZero() {
		return &ValidationError{Field: "expirationDate", Reason: "token expiration date is required"}
	}
	if ls.ProfileLink != "" {
		if u, err := url.Parse(ls.ProfileLink); err != nil || u.Scheme == "" || u.Host == "" {
			return &ValidationError{Field: "profileLink", Reason: "invalid URL format for profile link"}
		}
	}
	return nil
}

// Expired reports whether the access token must be treated as invalid at the
// given instant. Expiry is strict: a token expiring exactly now is still valid.
func (ls *LinkedService) Expired(now time.Time) bool {
	return ls.ExpirationDate.Before(now)
}

// Usable reports whether the record carries both credentials the access gate
// needs: a bearer token to forward and a refresh token to fall back on.
func (ls *LinkedService) Usable() bool {
	return ls != nil && ls.AccessToken != "" && ls.RefreshToken != ""
}
