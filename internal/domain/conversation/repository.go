package conversation

import (
	"context"
)

// StateRepository persists SessionState in a TTL-bounded store.
//
// Load returns the default IDLE state when the record is absent or expired;
// it never fails a turn for a missing session. Save refreshes the TTL on
// every write.
type StateRepository interface {
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Save(ctx context.Context, sessionID string, state *SessionState) error
}
