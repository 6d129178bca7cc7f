package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"concierge/internal/domain/session"
	"concierge/pkg/errors"
)

const memoryKeyPrefix = "conversation:memory:"

// Compile-time check
var _ session.Repository = (*SessionMemoryRepository)(nil)

// SessionMemoryRepository persists per-session working memory in Redis
type SessionMemoryRepository struct {
	client *redis.Client
}

// NewSessionMemoryRepository creates a Redis-backed working memory store
func NewSessionMemoryRepository(client *redis.Client) *SessionMemoryRepository {
	return &SessionMemoryRepository{client: client}
}

func memoryKey(sessionID string) string {
	return memoryKeyPrefix + sessionID
}

// Get retrieves working memory; ErrNotFound when absent or expired
func (r *SessionMemoryRepository) Get(ctx context.Context, sessionID string) (*session.Memory, error) {
	data, err := r.client.Get(ctx, memoryKey(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "session memory: session_id=%s", sessionID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load session memory: session_id=%s", sessionID)
	}

	var memory session.Memory
	if err := json.Unmarshal(data, &memory); err != nil {
		return nil, errors.Wrapf(err, "unmarshal session memory: session_id=%s", sessionID)
	}
	return &memory, nil
}

// Save rewrites memory whole, refreshing the TTL
func (r *SessionMemoryRepository) Save(ctx context.Context, memory *session.Memory, ttl time.Duration) error {
	data, err := json.Marshal(memory)
	if err != nil {
		return errors.Wrap(err, "marshal session memory")
	}

	if err := r.client.Set(ctx, memoryKey(memory.SessionID), data, ttl).Err(); err != nil {
		return errors.Wrapf(err, "save session memory: session_id=%s", memory.SessionID)
	}
	return nil
}

// Delete removes working memory when a session ends
func (r *SessionMemoryRepository) Delete(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, memoryKey(sessionID)).Err(); err != nil {
		return errors.Wrapf(err, "delete session memory: session_id=%s", sessionID)
	}
	return nil
}
