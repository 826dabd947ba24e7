package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vibestream/vibestream-server/domain"
)

// ErrStateNotFound is returned when a state value is unknown, already
// consumed, or expired.
var ErrStateNotFound = errors.New("oauth state not found or expired")

// LinkState is what an OAuth state parameter stands for while the user is off
// at the provider's consent page: which provider the flow targets and, for
// link flows, which session initiated it.
type LinkState struct {
	Provider  domain.Provider `json:"provider"`
	SessionID string          `json:"session_id,omitempty"`
}

const defaultStateTTL = 10 * time.Minute

// RedisStateStore persists OAuth state values in Redis so callbacks can land
// on any server instance. Entries are single-use and expire on their own.
type RedisStateStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{
		client: client,
		prefix: "oauth_state:",
		ttl:    defaultStateTTL,
	}
}

func (s *RedisStateStore) key(state string) string {
	return s.prefix + state
}

// Save stores the state with its TTL.
func (s *RedisStateStore) Save(ctx context.Context, state string, data LinkState) error {
	if state == "" {
		return errors.New("state value must not be empty")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal link state: %w", err)
	}
	return s.client.Set(ctx, s.key(state), encoded, s.ttl).Err()
}

// Consume atomically reads and deletes the state, so a state value can only
// ever complete one callback.
func (s *RedisStateStore) Consume(ctx context.Context, state string) (*LinkState, error) {
	val, err := s.client.GetDel(ctx, s.key(state)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}

	var data LinkState
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal link state: %w", err)
	}
	return &data, nil
}
