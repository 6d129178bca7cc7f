package session

import (
	"context"
	"time"
)

// Repository persists working memory in a TTL-bounded store
type Repository interface {
	// Get retrieves memory for a session; ErrNotFound when absent or expired
	Get(ctx context.Context, sessionID string) (*Memory, error)

	// Save stores memory, refreshing the TTL
	Save(ctx context.Context, memory *Memory, ttl time.Duration) error

	// Delete removes memory when a session ends
	Delete(ctx context.Context, sessionID string) error
}
