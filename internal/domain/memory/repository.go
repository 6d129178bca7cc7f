package memory

import (
	"context"
)

// Repository handles durable long-term memory rows. Reads exclude expired
// entries; purging them is left to store-level housekeeping.
type Repository interface {
	// Upsert inserts or updates by (session, type, key)
	Upsert(ctx context.Context, entry *Entry) error

	// Append inserts an entry without a key
	Append(ctx context.Context, entry *Entry) error

	// GetSummary returns the non-expired singleton summary, ErrNotFound if none
	GetSummary(ctx context.Context, sessionID string) (*Entry, error)

	// GetTopByType returns up to limit non-expired entries of one type,
	// highest importance first
	GetTopByType(ctx context.Context, sessionID string, entryType EntryType, limit int) ([]*Entry, error)
}
