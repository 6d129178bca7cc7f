package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"concierge/internal/domain/message"
	"concierge/pkg/errors"
)

// Compile-time check
var _ message.Repository = (*MessageRepository)(nil)

// MessageRepository implements the ordered conversation log using sqlx
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new message history repository
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Append stores one message at the end of the session log
func (r *MessageRepository) Append(ctx context.Context, msg *message.Message) error {
	query := `
		INSERT INTO messages (id, session_id, workspace_id, role, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.db.ExecContext(ctx, query,
		msg.ID, msg.SessionID, msg.WorkspaceID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "append message")
	}
	return nil
}

// ListRecent returns up to limit messages since the optional cutoff, oldest
// first. The newest messages win when the window overflows.
func (r *MessageRepository) ListRecent(ctx context.Context, sessionID string, since *time.Time, limit int) ([]*message.Message, error) {
	var messages []*message.Message

	query := `
		SELECT * FROM (
			SELECT * FROM messages
			WHERE session_id = $1
			  AND ($2::timestamptz IS NULL OR created_at > $2)
			ORDER BY created_at DESC
			LIMIT $3
		) window
		ORDER BY created_at ASC`

	err := r.db.SelectContext(ctx, &messages, query, sessionID, since, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent messages")
	}
	return messages, nil
}

// CountSince counts messages after the optional cutoff
func (r *MessageRepository) CountSince(ctx context.Context, sessionID string, since *time.Time) (int, error) {
	var count int

	query := `
		SELECT COUNT(*) FROM messages
		WHERE session_id = $1
		  AND ($2::timestamptz IS NULL OR created_at > $2)`

	if err := r.db.GetContext(ctx, &count, query, sessionID, since); err != nil {
		return 0, errors.Wrap(err, "count messages")
	}
	return count, nil
}
