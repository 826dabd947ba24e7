package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vibestream/vibestream-server/domain"
	"github.com/vibestream/vibestream-server/internal/federation"
)

// LinkService implements the streaming-service link state machine:
// UNLINKED -> LINKED on a completed consent callback, refused when a link for
// the service already exists, and LINKED -> UNLINKED on explicit unlink.
type LinkService struct {
	users domain.UserRepository
}

func NewLinkService(users domain.UserRepository) *LinkService {
	return &LinkService{users: users}
}

// Link appends a LinkedService built from the provider callback to the
// principal's token store and persists it.
//
// Preconditions: a logged-in principal (this flow links a service to an
// existing identity, it does not create one) and no existing link for the
// service. Both failure modes leave the store untouched.
func (s *LinkService) Link(
	ctx context.Context,
	principal *domain.User,
	name domain.StreamingService,
	info *federation.ExternalUserInfo,
	token *oauth2.Token,
) (*domain.LinkedService, error) {
	if principal == nil {
		return nil, domain.ErrUserNotLoggedIn
	}
	if principal.LinkedService(name) != nil {
		log.Info().Str("email", principal.Email).Str("service", name.String()).Msg("Service already linked for user")
		return nil, domain.ErrAlreadyLinked
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		return nil, &domain.ValidationError{Field: "expirationDate", Reason: "provider returned no token expiry"}
	}

	svc := domain.LinkedService{
		ServiceName:    name,
		ProfileID:      info.ProviderUserID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpirationDate: expiry,
		ProfileLink:    info.ProfileURL,
	}
	if err := svc.Validate(); err != nil {
		return nil, err
	}

	// The repository re-checks uniqueness atomically; the in-memory check
	// above only short-circuits the common case.
	if err := s.users.AddLinkedService(ctx, principal.ID, svc); err != nil {
		return nil, err
	}

	principal.LinkedServices = append(principal.LinkedServices, svc)
	log.Info().Str("email", principal.Email).Str("service", name.String()).Msg("Streaming service linked")
	return principal.LinkedService(name), nil
}

// Unlink removes the principal's link for the service.
func (s *LinkService) Unlink(ctx context.Context, principal *domain.User, name domain.StreamingService) error {
	if principal == nil {
		return domain.ErrUserNotLoggedIn
	}
	if err := s.users.RemoveLinkedService(ctx, principal.ID, name); err != nil {
		return err
	}

	kept := principal.LinkedServices[:0]
	for _, svc := range principal.LinkedServices {
		if svc.ServiceName != name {
			kept = append(kept, svc)
		}
	}
	principal.LinkedServices = kept

	log.Info().Str("email", principal.Email).Str("service", name.String()).Msg("Streaming service unlinked")
	return nil
}
