package audit

import (
	"context"
)

// Repository appends audit records. Records are never mutated after the
// fact, and writes are best-effort: the orchestrator logs failures without
// aborting an otherwise-successful turn.
type Repository interface {
	RecordToolExecution(ctx context.Context, execution *ToolExecution) error
	RecordTurn(ctx context.Context, turn *TurnRecord) error
}
