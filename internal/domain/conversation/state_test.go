package conversation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/pkg/errors"
)

func TestStateMachine_ForwardTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    AgentState
		to      AgentState
		allowed bool
	}{
		{"idle to collecting", StateIdle, StateCollecting, true},
		{"idle skips to executing", StateIdle, StateExecuting, true},
		{"collecting to needs details", StateCollecting, StateNeedsDetails, true},
		{"needs details back to collecting", StateNeedsDetails, StateCollecting, true},
		{"awaiting confirmation to executing", StateAwaitingConfirmation, StateExecuting, true},
		{"executing to done", StateExecuting, StateDone, true},
		{"done restarts", StateDone, StateCollecting, true},
		{"executing cannot rewind", StateExecuting, StateCollecting, false},
		{"done cannot rewind to executing", StateDone, StateExecuting, false},
		{"self transition rejected", StateCollecting, StateCollecting, false},
		{"unknown target rejected", StateIdle, AgentState("BOGUS"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewStateMachine(tt.from)
			assert.Equal(t, tt.allowed, m.CanTransition(tt.to))

			err := m.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, m.State())
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
				assert.Equal(t, tt.from, m.State())
			}
		})
	}
}

func TestStateMachine_HandoffReachableFromEverywhere(t *testing.T) {
	for _, from := range []AgentState{
		StateIdle, StateCollecting, StateNeedsDetails,
		StateAwaitingConfirmation, StateExecuting, StateDone,
	} {
		m := NewStateMachine(from)
		require.True(t, m.CanTransition(StateHandoff), "from %s", from)
		require.NoError(t, m.Transition(StateHandoff))
	}
}

func TestStateMachine_HandoffOnlyLeavesViaRelease(t *testing.T) {
	m := NewStateMachine(StateHandoff)

	for _, target := range []AgentState{StateIdle, StateCollecting, StateDone} {
		assert.False(t, m.CanTransition(target), "HANDOFF -> %s must not be tool-requestable", target)
	}

	require.NoError(t, m.Release())
	assert.Equal(t, StateIdle, m.State())

	// Release is only valid while suspended
	err := m.Release()
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}

func TestSessionState_FailureTracking(t *testing.T) {
	s := NewSessionState()
	now := time.Now().UTC()

	s.RecordFailure("provider timeout", now)
	s.RecordFailure("provider timeout", now.Add(time.Minute))
	assert.Equal(t, 2, s.FailureCount)
	require.NotNil(t, s.LastFailureAt)

	s.RecordSuccess()
	assert.Equal(t, 0, s.FailureCount)
	assert.Nil(t, s.LastFailureAt)
	assert.Empty(t, s.FailureReason)
}

func TestSessionState_InterruptAndResume(t *testing.T) {
	s := NewSessionState()
	s.State = StateCollecting
	s.Thread = ThreadTask

	s.Interrupt()
	assert.Equal(t, ThreadInfo, s.Thread)
	require.NotNil(t, s.InterruptedThread)
	require.NotNil(t, s.InterruptedState)
	assert.Equal(t, ThreadTask, *s.InterruptedThread)
	assert.Equal(t, StateCollecting, *s.InterruptedState)

	require.True(t, s.Resume())
	assert.Equal(t, ThreadTask, s.Thread)
	assert.Equal(t, StateCollecting, s.State)
	assert.Nil(t, s.InterruptedThread)

	// Nothing left to resume
	assert.False(t, s.Resume())
}

func TestSessionState_RoundTripAllStates(t *testing.T) {
	// The redis repository persists SessionState as JSON; a save followed by
	// a load must return an equal record for every reachable state.
	for _, state := range []AgentState{
		StateIdle, StateCollecting, StateNeedsDetails,
		StateAwaitingConfirmation, StateExecuting, StateDone, StateHandoff,
	} {
		now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
		original := &SessionState{
			State:         state,
			Thread:        ThreadTask,
			FailureCount:  1,
			LastFailureAt: &now,
			FailureReason: "tool loop timed out",
			UpdatedAt:     now,
		}
		original.Interrupt()

		data, err := json.Marshal(original)
		require.NoError(t, err)

		var restored SessionState
		require.NoError(t, json.Unmarshal(data, &restored))
		assert.Equal(t, *original, restored, "state %s", state)
	}
}
