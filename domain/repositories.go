package domain

import "context"

// UserRepository persists User aggregates and their embedded sub-documents.
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	// AddLinkedService appends a linked service to the user, enforcing
	// at-most-one-link-per-service atomically. Returns ErrAlreadyLinked when
	// a link for the same service exists, ErrUserNotFound when the user
	// does not.
	AddLinkedService(ctx context.Context, userID string, svc LinkedService) error

	// UpdateLinkedService overwrites the user's existing link for
	// svc.ServiceName. Returns ErrServiceNotLinked when there is none.
	UpdateLinkedService(ctx context.Context, userID string, svc LinkedService) error

	// RemoveLinkedService deletes the user's link for the given service.
	// Returns ErrServiceNotLinked when there is none.
	RemoveLinkedService(ctx context.Context, userID string, name StreamingService) error

	// UpsertAuthMethod replaces the user's auth method for
	// method.AuthProvider, appending it when absent.
	UpsertAuthMethod(ctx context.Context, userID string, method AuthMethod) error
}

// SessionRepository persists login sessions.
type SessionRepository interface {
	Store(ctx context.Context, session *Session) error
	GetByID(ctx context.Context, id string) (*Session, error)
	Revoke(ctx context.Context, id string) error
	Touch(ctx context.Context, id string) error
}
