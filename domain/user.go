package domain

import "time"

// AuthMethod records a third-party login identity for a user (e.g. Google),
// including the provider-issued tokens from the most recent sign-in.
type AuthMethod struct {
	AuthProvider   Provider  `bson:"auth_provider" json:"authProvider"`
	ProviderID     string    `bson:"provider_id" json:"providerId"`
	AccessToken    string    `bson:"access_token" json:"-"`
	RefreshToken   string    `bson:"refresh_token,omitempty" json:"-"`
	ExpirationDate time.Time `bson:"expiration_date" json:"expirationDate"`
	CreatedAt      time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updatedAt"`
}

// User is the account aggregate. Linked streaming services and third-party
// auth methods are embedded: they share the user's lifecycle and are never
// queried independently.
type User struct {
	ID             string          `bson:"_id,omitempty" json:"id"`
	Username       string          `bson:"username" json:"username"`
	DisplayName    string          `bson:"display_name" json:"displayName"`
	Email          string          `bson:"email" json:"email"`
	PasswordHash   string          `bson:"password_hash,omitempty" json:"-"`
	ProfileImage   string          `bson:"profile_image,omitempty" json:"profileImage,omitempty"`
	Bio            string          `bson:"bio,omitempty" json:"bio,omitempty"`
	AuthMethods    []AuthMethod    `bson:"auth_methods,omitempty" json:"authMethods,omitempty"`
	LinkedServices []LinkedService `bson:"linked_services,omitempty" json:"-"`
	CreatedAt      time.Time       `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updatedAt"`
}

// LinkedService returns a pointer to the user's link for the given service,
// or nil when the service is not linked. The pointer aliases the slice entry
// so the access gate can update it in place before persisting.
func (u *User) LinkedService(name StreamingService) *LinkedService {
	for i := range u.LinkedServices {
		if u.LinkedServices[i].ServiceName == name {
			return &u.LinkedServices[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the user with its own embedded slices, so the
// copy can be handed to another goroutine or mutated without affecting the
// original.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.AuthMethods = append([]AuthMethod(nil), u.AuthMethods...)
	c.LinkedServices = append([]LinkedService(nil), u.LinkedServices...)
	return &c
}

// AuthMethod returns a pointer to the user's auth method for the given
// provider, or nil.
func (u *User) AuthMethod(p Provider) *AuthMethod {
	for i := range u.AuthMethods {
		if u.AuthMethods[i].AuthProvider == p {
			return &u.AuthMethods[i]
		}
	}
	return nil
}
