package domain

import "time"

// Session is a server-side login session referenced by the opaque session
// cookie. Sessions are persisted in MongoDB with a TTL index so expired ones
// are reaped without an application sweep.
type Session struct {
	ID         string    `bson:"_id"`
	UserID     string    `bson:"user_id"`
	UserAgent  string    `bson:"user_agent,omitempty"`
	IPAddress  string    `bson:"ip_address,omitempty"`
	ExpiresAt  time.Time `bson:"expires_at"`
	CreatedAt  time.Time `bson:"created_at"`
	LastUsedAt time.Time `bson:"last_used_at,omitempty"`
	IsRevoked  bool      `bson:"is_revoked,omitempty"`
}

// Active reports whether the session can still authenticate requests.
func (s *Session) Active(now time.Time) bool {
	return s != nil && !s.IsRevoked && s.ExpiresAt.After(now)
}
