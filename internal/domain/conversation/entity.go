package conversation

import (
	"time"
)

// SessionState is the durable FSM record for one conversation. It is the
// single source of truth for the automation's position between turns and is
// overwritten whole after every turn (last-writer-wins; the deployment
// serializes turns per session).
type SessionState struct {
	State        AgentState `json:"state"`
	Thread       Thread     `json:"thread"`
	FailureCount int        `json:"failure_count"`

	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`

	// Snapshot taken when an informational detour interrupts a task flow
	InterruptedThread *Thread     `json:"interrupted_thread,omitempty"`
	InterruptedState  *AgentState `json:"interrupted_state,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewSessionState returns the default state a session starts from. Expiry of
// a stored record is equivalent to silently resetting to this.
func NewSessionState() *SessionState {
	return &SessionState{
		State:     StateIdle,
		Thread:    ThreadTask,
		UpdatedAt: time.Now().UTC(),
	}
}

// RecordFailure increments the consecutive failure counter
func (s *SessionState) RecordFailure(reason string, at time.Time) {
	s.FailureCount++
	s.LastFailureAt = &at
	s.FailureReason = reason
}

// RecordSuccess resets failure tracking after a fully successful turn
func (s *SessionState) RecordSuccess() {
	s.FailureCount = 0
	s.LastFailureAt = nil
	s.FailureReason = ""
}

// Interrupt snapshots the active task position before an informational detour
func (s *SessionState) Interrupt() {
	thread := s.Thread
	state := s.State
	s.InterruptedThread = &thread
	s.InterruptedState = &state
	s.Thread = ThreadInfo
}

// Resume restores the snapshot taken by Interrupt, if any
func (s *SessionState) Resume() bool {
	if s.InterruptedThread == nil || s.InterruptedState == nil {
		return false
	}
	s.Thread = *s.InterruptedThread
	s.State = *s.InterruptedState
	s.InterruptedThread = nil
	s.InterruptedState = nil
	return true
}
