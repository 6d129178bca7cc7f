package conversation

import (
	"concierge/pkg/errors"
)

// AgentState represents the automation's position in the conversation flow
type AgentState string

const (
	StateIdle                 AgentState = "IDLE"
	StateCollecting           AgentState = "COLLECTING"
	StateNeedsDetails         AgentState = "NEEDS_DETAILS"
	StateAwaitingConfirmation AgentState = "AWAITING_CONFIRMATION"
	StateExecuting            AgentState = "EXECUTING"
	StateDone                 AgentState = "DONE"
	StateHandoff              AgentState = "HANDOFF"
)

// Valid checks if the state belongs to the closed set
func (s AgentState) Valid() bool {
	switch s {
	case StateIdle, StateCollecting, StateNeedsDetails, StateAwaitingConfirmation,
		StateExecuting, StateDone, StateHandoff:
		return true
	}
	return false
}

// ActiveTask reports whether the state is part of an in-progress task flow
func (s AgentState) ActiveTask() bool {
	switch s {
	case StateCollecting, StateNeedsDetails, StateAwaitingConfirmation, StateExecuting:
		return true
	}
	return false
}

// String returns string representation
func (s AgentState) String() string {
	return string(s)
}

// Thread classifies the topic of the current exchange
type Thread string

const (
	ThreadTask Thread = "TASK"
	ThreadInfo Thread = "INFO"
)

// transitions is permissive forward along the task chain. Skipping
// intermediate states is allowed; HANDOFF is reachable from everywhere but
// left out of the table because it is handled explicitly, and leaving it
// requires the release operation rather than a requested transition.
var transitions = map[AgentState][]AgentState{
	StateIdle:                 {StateCollecting, StateNeedsDetails, StateAwaitingConfirmation, StateExecuting},
	StateCollecting:           {StateNeedsDetails, StateAwaitingConfirmation, StateExecuting, StateDone},
	StateNeedsDetails:         {StateCollecting, StateAwaitingConfirmation, StateExecuting, StateDone},
	StateAwaitingConfirmation: {StateCollecting, StateNeedsDetails, StateExecuting, StateDone},
	StateExecuting:            {StateDone},
	StateDone:                 {StateIdle, StateCollecting},
	StateHandoff:              {},
}

// StateMachine validates and applies agent state transitions
type StateMachine struct {
	state AgentState
}

// NewStateMachine creates a state machine positioned at the given state
func NewStateMachine(initial AgentState) *StateMachine {
	if !initial.Valid() {
		initial = StateIdle
	}
	return &StateMachine{state: initial}
}

// State returns the current state
func (m *StateMachine) State() AgentState {
	return m.state
}

// CanTransition checks whether a transition to target is allowed
func (m *StateMachine) CanTransition(target AgentState) bool {
	if !target.Valid() {
		return false
	}
	if target == StateHandoff {
		// Any state may suspend to operator takeover
		return true
	}
	if m.state == target {
		return false
	}
	for _, allowed := range transitions[m.state] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Transition moves the machine to target or fails with ErrInvalidTransition
func (m *StateMachine) Transition(target AgentState) error {
	if !m.CanTransition(target) {
		return errors.Wrapf(errors.ErrInvalidTransition, "%s -> %s", m.state, target)
	}
	m.state = target
	return nil
}

// Release moves HANDOFF back to IDLE. This is the only way out of HANDOFF
// and is never available to tool-requested transitions.
func (m *StateMachine) Release() error {
	if m.state != StateHandoff {
		return errors.Wrapf(errors.ErrInvalidTransition, "release requires HANDOFF, current state is %s", m.state)
	}
	m.state = StateIdle
	return nil
}
