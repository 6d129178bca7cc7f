package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"concierge/internal/domain/handoff"
	"concierge/pkg/errors"
)

// Compile-time check
var _ handoff.Repository = (*HandoffRepository)(nil)

// HandoffRepository implements handoff.Repository using sqlx
type HandoffRepository struct {
	db *sqlx.DB
}

// NewHandoffRepository creates a new handoff request repository
func NewHandoffRepository(db *sqlx.DB) *HandoffRepository {
	return &HandoffRepository{db: db}
}

// Create stores a new escalation request
func (r *HandoffRepository) Create(ctx context.Context, request *handoff.Request) error {
	query := `
		INSERT INTO handoff_requests (
			id, workspace_id, session_id, trigger, reason,
			priority, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := r.db.ExecContext(ctx, query,
		request.ID, request.WorkspaceID, request.SessionID, request.Trigger,
		request.Reason, request.Priority, request.Status, request.CreatedAt, request.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "create handoff request")
	}
	return nil
}

// FindPending returns the newest pending request for a session
func (r *HandoffRepository) FindPending(ctx context.Context, sessionID string) (*handoff.Request, error) {
	var request handoff.Request

	query := `
		SELECT * FROM handoff_requests
		WHERE session_id = $1 AND status = $2
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.GetContext(ctx, &request, query, sessionID, handoff.StatusPending)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "pending handoff: session_id=%s", sessionID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "find pending handoff")
	}
	return &request, nil
}

// UpdateStatus moves a request through its lifecycle
func (r *HandoffRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status handoff.Status) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE handoff_requests SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now().UTC(), id,
	)
	if err != nil {
		return errors.Wrap(err, "update handoff status")
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return errors.Wrapf(errors.ErrNotFound, "handoff request: id=%s", id)
	}
	return nil
}
