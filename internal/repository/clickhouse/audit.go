package clickhouse

import (
	"context"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"concierge/internal/domain/audit"
	"concierge/pkg/errors"
)

// Compile-time check
var _ audit.Repository = (*AuditRepository)(nil)

// AuditRepository writes the append-only turn and tool audit trail to
// ClickHouse. Rows are never updated after insert.
type AuditRepository struct {
	conn driver.Conn
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(conn driver.Conn) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// RecordToolExecution appends one tool call record
func (r *AuditRepository) RecordToolExecution(ctx context.Context, execution *audit.ToolExecution) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO tool_executions (
			id, turn_id, session_id, workspace_id,
			tool_name, category, input, result, success, error,
			duration_ms, state_transition_requested, created_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare tool execution batch")
	}

	err = batch.Append(
		execution.ID.String(), execution.TurnID.String(),
		execution.SessionID, execution.WorkspaceID,
		execution.ToolName, execution.Category,
		execution.Input, execution.Result, execution.Success, execution.Error,
		execution.DurationMs, execution.StateTransitionRequested, execution.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "append tool execution")
	}

	return batch.Send()
}

// RecordTurn appends one turn summary record
func (r *AuditRepository) RecordTurn(ctx context.Context, turn *audit.TurnRecord) error {
	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO turns (
			id, session_id, workspace_id, state, thread,
			tools_used, tokens_used, handoff_triggered, message_sent,
			duration_ms, created_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "prepare turn batch")
	}

	err = batch.Append(
		turn.ID.String(), turn.SessionID, turn.WorkspaceID,
		turn.State, turn.Thread,
		turn.ToolsUsed, turn.TokensUsed, turn.HandoffTriggered, turn.MessageSent,
		turn.DurationMs, turn.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "append turn")
	}

	return batch.Send()
}
