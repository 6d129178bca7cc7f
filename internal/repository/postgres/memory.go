package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"concierge/internal/domain/memory"
	"concierge/pkg/errors"
)

// Compile-time check
var _ memory.Repository = (*MemoryRepository)(nil)

// MemoryRepository implements memory.Repository using sqlx
type MemoryRepository struct {
	db *sqlx.DB
}

// NewMemoryRepository creates a new long-term memory repository
func NewMemoryRepository(db *sqlx.DB) *MemoryRepository {
	return &MemoryRepository{db: db}
}

// Upsert inserts or updates a keyed entry by (session, type, key)
func (r *MemoryRepository) Upsert(ctx context.Context, entry *memory.Entry) error {
	query := `
		INSERT INTO memory_entries (
			id, session_id, workspace_id, type, key, content,
			importance, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		ON CONFLICT (session_id, type, key) DO UPDATE SET
			content    = EXCLUDED.content,
			importance = EXCLUDED.importance,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.WorkspaceID, entry.Type, entry.Key,
		entry.Content, entry.Importance, entry.CreatedAt, entry.UpdatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "upsert memory entry")
	}
	return nil
}

// Append inserts an unkeyed entry
func (r *MemoryRepository) Append(ctx context.Context, entry *memory.Entry) error {
	query := `
		INSERT INTO memory_entries (
			id, session_id, workspace_id, type, key, content,
			importance, created_at, updated_at, expires_at
		) VALUES (
			$1, $2, $3, $4, NULL, $5, $6, $7, $8, $9
		)`

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.SessionID, entry.WorkspaceID, entry.Type,
		entry.Content, entry.Importance, entry.CreatedAt, entry.UpdatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "append memory entry")
	}
	return nil
}

// GetSummary returns the non-expired singleton summary for the session
func (r *MemoryRepository) GetSummary(ctx context.Context, sessionID string) (*memory.Entry, error) {
	var entry memory.Entry

	query := `
		SELECT * FROM memory_entries
		WHERE session_id = $1 AND type = $2 AND key = $3
		  AND (expires_at IS NULL OR expires_at > NOW())`

	err := r.db.GetContext(ctx, &entry, query, sessionID, memory.EntrySummary, memory.SummaryKey)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "summary: session_id=%s", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get summary")
	}
	return &entry, nil
}

// GetTopByType returns non-expired entries of one type, highest importance first
func (r *MemoryRepository) GetTopByType(ctx context.Context, sessionID string, entryType memory.EntryType, limit int) ([]*memory.Entry, error) {
	var entries []*memory.Entry

	query := `
		SELECT * FROM memory_entries
		WHERE session_id = $1 AND type = $2
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY importance DESC, updated_at DESC
		LIMIT $3`

	err := r.db.SelectContext(ctx, &entries, query, sessionID, entryType, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "get %s entries", entryType)
	}
	return entries, nil
}
