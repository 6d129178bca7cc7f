package message

import (
	"context"
	"time"
)

// Repository is the ordered message history source for a session
type Repository interface {
	// Append stores one message at the end of the session log
	Append(ctx context.Context, msg *Message) error

	// ListRecent returns up to limit messages since the optional cutoff,
	// oldest first
	ListRecent(ctx context.Context, sessionID string, since *time.Time, limit int) ([]*Message, error)

	// CountSince counts messages after the optional cutoff
	CountSince(ctx context.Context, sessionID string, since *time.Time) (int, error)
}
