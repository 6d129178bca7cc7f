package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"concierge/internal/domain/conversation"
	"concierge/pkg/errors"
)

const stateKeyPrefix = "conversation:state:"

// Compile-time check
var _ conversation.StateRepository = (*StateRepository)(nil)

// StateRepository persists the conversation FSM record in Redis with a TTL.
// An expired record silently resets the session to the default state.
type StateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStateRepository creates a Redis-backed session state store
func NewStateRepository(client *redis.Client, ttl time.Duration) *StateRepository {
	return &StateRepository{client: client, ttl: ttl}
}

func stateKey(sessionID string) string {
	return stateKeyPrefix + sessionID
}

// Load returns the stored state, or the default IDLE state when the record
// is absent or expired. A missing session never fails a turn.
func (r *StateRepository) Load(ctx context.Context, sessionID string) (*conversation.SessionState, error) {
	data, err := r.client.Get(ctx, stateKey(sessionID)).Bytes()
	if err == redis.Nil {
		return conversation.NewSessionState(), nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session state: session_id=%s", sessionID)
	}

	var state conversation.SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupt record: reset rather than brick the session
		return conversation.NewSessionState(), nil
	}
	return &state, nil
}

// Save stores the state whole, refreshing the TTL on every write
func (r *StateRepository) Save(ctx context.Context, sessionID string, state *conversation.SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal session state")
	}

	if err := r.client.Set(ctx, stateKey(sessionID), data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save session state: session_id=%s", sessionID)
	}
	return nil
}
