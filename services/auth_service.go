package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/vibestream/vibestream-server/domain"
	"github.com/vibestream/vibestream-server/internal/auth"
	"github.com/vibestream/vibestream-server/internal/federation"
)

const defaultSessionTTL = 24 * time.Hour

// AuthService handles registration, login (local and Google), and session
// lifecycle.
type AuthService struct {
	users      domain.UserRepository
	sessions   domain.SessionRepository
	hasher     auth.PasswordHasher
	sessionTTL time.Duration
}

func NewAuthService(
	users domain.UserRepository,
	sessions domain.SessionRepository,
	hasher auth.PasswordHasher,
	sessionTTL time.Duration,
) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &AuthService{
		users:      users,
		sessions:   sessions,
		hasher:     hasher,
		sessionTTL: sessionTTL,
	}
}

// RegisterParams are the local-registration inputs.
type RegisterParams struct {
	Username     string
	DisplayName  string
	Email        string
	Password     string
	ProfileImage string
}

// Register creates a local account. Username and email are normalized to
// lowercase before the unique-index check.
func (s *AuthService) Register(ctx context.Context, p RegisterParams) (*domain.User, error) {
	hash, err := s.hasher.Hash(p.Password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Username:     strings.ToLower(strings.TrimSpace(p.Username)),
		DisplayName:  strings.TrimSpace(p.DisplayName),
		Email:        strings.ToLower(strings.TrimSpace(p.Email)),
		PasswordHash: hash,
		ProfileImage: p.ProfileImage,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	log.Info().Str("email", user.Email).Msg("User registered")
	return user, nil
}

// Login verifies local credentials and opens a session.
func (s *AuthService) Login(ctx context.Context, email, password, userAgent, ip string) (*domain.User, *domain.Session, error) {
	user, err := s.users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, nil, domain.ErrInvalidCredentials
		}
		return nil, nil, err
	}
	if user.PasswordHash == "" {
		// Account was created through an OAuth provider and has no local
		// password.
		return nil, nil, domain.ErrInvalidCredentials
	}
	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		return nil, nil, domain.ErrInvalidCredentials
	}

	session, err := s.createSession(ctx, user.ID, userAgent, ip)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// LoginWithGoogle signs a user in from a completed Google OAuth exchange,
// creating the account on first sign-in and upserting the google auth method
// (tokens from the latest consent) either way.
func (s *AuthService) LoginWithGoogle(ctx context.Context, info *federation.ExternalUserInfo, token *oauth2.Token, userAgent, ip string) (*domain.User, *domain.Session, error) {
	email := strings.ToLower(info.Email)

	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		user = &domain.User{
			Username:     info.ProviderUserID,
			DisplayName:  info.DisplayName,
			Email:        email,
			ProfileImage: info.PictureURL,
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, nil, err
		}
		log.Info().Str("email", email).Msg("User created from Google sign-in")
	} else if err != nil {
		return nil, nil, err
	}

	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(time.Hour)
	}
	method := domain.AuthMethod{
		AuthProvider:   domain.ProviderGoogle,
		ProviderID:     info.ProviderUserID,
		AccessToken:    token.AccessToken,
		RefreshToken:   token.RefreshToken,
		ExpirationDate: expiry,
	}
	if err := s.users.UpsertAuthMethod(ctx, user.ID, method); err != nil {
		return nil, nil, err
	}

	session, err := s.createSession(ctx, user.ID, userAgent, ip)
	if err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

// Logout revokes the session.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// ResolveSession maps a session cookie value to the authenticated principal.
// Revoked, expired, and unknown sessions all surface as ErrUserNotLoggedIn.
func (s *AuthService) ResolveSession(ctx context.Context, sessionID string) (*domain.User, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.ErrUserNotLoggedIn
		}
		return nil, err
	}
	if !session.Active(time.Now()) {
		return nil, domain.ErrUserNotLoggedIn
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, domain.ErrUserNotLoggedIn
		}
		return nil, err
	}

	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("Failed to touch session")
	}
	return user, nil
}

// SessionTTL exposes the configured session lifetime for cookie Max-Age.
func (s *AuthService) SessionTTL() time.Duration {
	return s.sessionTTL
}

func (s *AuthService) createSession(ctx context.Context, userID, userAgent, ip string) (*domain.Session, error) {
	now := time.Now().UTC()
	session := &domain.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		UserAgent:  userAgent,
		IPAddress:  ip,
		ExpiresAt:  now.Add(s.sessionTTL),
		CreatedAt:  now,
		LastUsedAt: now,
	}
	if err := s.sessions.Store(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
