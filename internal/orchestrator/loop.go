package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"concierge/internal/adapters/ai"
	"concierge/internal/domain/audit"
	"concierge/internal/domain/conversation"
	"concierge/internal/domain/session"
	"concierge/internal/metrics"
	"concierge/internal/tools"
	"concierge/pkg/errors"
)

// loopOutcome is what the bounded tool loop hands back to the turn handler
type loopOutcome struct {
	text             string
	toolsUsed        []string
	promptTokens     int
	completionTokens int

	// set when a tool moved the machine into HANDOFF
	handoffReason string

	// set when a confirmation-gated tool was intercepted
	awaitingConfirmation bool
}

const handoffFallbackText = "I'm connecting you with a member of our team who will take it from here."

// runToolLoop drives the reasoning provider until it produces a final answer,
// dispatching tool calls along the way. Bounded by the iteration cap; hitting
// the cap is not an error and yields the last text produced.
func (o *Orchestrator) runToolLoop(
	ctx context.Context,
	turnID uuid.UUID,
	state *conversation.SessionState,
	mem *session.Memory,
	systemPrompt string,
	history []ai.Message,
) (*loopOutcome, error) {
	machine := conversation.NewStateMachine(state.State)
	schemas := o.toolSchemas()
	messages := history
	outcome := &loopOutcome{}

	for iteration := 0; iteration < o.cfg.MaxIterations; iteration++ {
		resp, err := o.provider.Complete(ctx, ai.CompletionRequest{
			SystemPrompt: systemPrompt,
			Messages:     messages,
			Tools:        schemas,
			MaxTokens:    o.cfg.MaxTokens,
		})
		if err != nil {
			return nil, errors.Wrap(err, "provider completion failed")
		}

		outcome.promptTokens += resp.Usage.PromptTokens
		outcome.completionTokens += resp.Usage.CompletionTokens
		if resp.Text != "" {
			outcome.text = resp.Text
		}

		if len(resp.ToolCalls) == 0 {
			return outcome, nil
		}

		// A token-capped response can still carry complete tool calls; run
		// them instead of dropping the turn with truncated text
		if resp.StopReason != ai.StopReasonToolCalls {
			o.log.Warnw("Provider returned tool calls with unexpected stop reason",
				"session_id", mem.SessionID,
				"stop_reason", resp.StopReason,
			)
		}

		messages = append(messages, ai.Message{
			Role:      ai.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result, stop, err := o.dispatchToolCall(ctx, turnID, machine, state, mem, call, outcome)
			if err != nil {
				return nil, err
			}
			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				ToolCallID: call.ID,
				Content:    result,
			})
			if stop {
				if outcome.text == "" && outcome.handoffReason != "" {
					outcome.text = handoffFallbackText
				}
				return outcome, nil
			}
		}
	}

	// Cap hit: whatever partial text the provider last produced stands
	o.log.Warnw("Tool loop hit iteration cap",
		"session_id", mem.SessionID,
		"cap", o.cfg.MaxIterations,
	)
	return outcome, nil
}

// dispatchToolCall runs one provider-requested tool call. Unknown tools and
// validation failures are surfaced back to the provider as tool errors, never
// to the caller. Returns the textual tool result plus whether the loop must
// stop (handoff entered or confirmation pending).
func (o *Orchestrator) dispatchToolCall(
	ctx context.Context,
	turnID uuid.UUID,
	machine *conversation.StateMachine,
	state *conversation.SessionState,
	mem *session.Memory,
	call ai.ToolCall,
	outcome *loopOutcome,
) (string, bool, error) {
	input := json.RawMessage(call.Arguments)

	tool, ok := o.registry.Get(call.Name)
	if !ok {
		o.auditToolCall(ctx, turnID, mem, call.Name, "", input, tools.Fail("unknown tool"), 0)
		return tools.Fail("unknown tool: " + call.Name).Text(), false, nil
	}

	if err := tool.Validate(input); err != nil {
		result := tools.Fail(err.Error())
		o.auditToolCall(ctx, turnID, mem, call.Name, string(tool.Category()), input, result, 0)
		return result.Text(), false, nil
	}

	// Confirmation-gated tools are never executed inline; a confirmed replay
	// goes through executePendingConfirmation without re-entering this loop
	if tool.RequiresConfirmation() {
		return o.interceptForConfirmation(ctx, machine, state, mem, tool, input, outcome), true, nil
	}

	started := time.Now()
	execCtx, cancel := context.WithTimeout(ctx, o.cfg.ToolCallTimeout)
	result, err := tool.Execute(execCtx, input, &tools.TurnContext{
		SessionID:   mem.SessionID,
		WorkspaceID: mem.WorkspaceID,
		CustomerID:  mem.CustomerID,
		Memory:      mem,
	})
	cancel()
	duration := time.Since(started)

	if err != nil {
		// Infrastructure failure or timeout inside a tool fails the turn
		o.auditToolCall(ctx, turnID, mem, call.Name, string(tool.Category()), input, tools.Fail(err.Error()), duration)
		metrics.RecordToolExecution(call.Name, false, duration)
		return "", false, errors.Wrapf(err, "tool %s failed", call.Name)
	}

	outcome.toolsUsed = append(outcome.toolsUsed, call.Name)
	o.auditToolCall(ctx, turnID, mem, call.Name, string(tool.Category()), input, result, duration)
	metrics.RecordToolExecution(call.Name, result.Success, duration)

	if result.StateTransition != "" {
		o.applyTransition(ctx, machine, state, mem, call.Name, result)
		if machine.State() == conversation.StateHandoff {
			outcome.handoffReason = handoffReasonFrom(result)
			return result.Text(), true, nil
		}
	}

	return result.Text(), false, nil
}

// applyTransition applies a tool-requested transition and persists it
// immediately, so a crash later in the loop cannot lose a committed change.
// Illegal requests are ignored; the textual response is still valid.
func (o *Orchestrator) applyTransition(
	ctx context.Context,
	machine *conversation.StateMachine,
	state *conversation.SessionState,
	mem *session.Memory,
	toolName string,
	result *tools.Result,
) {
	if !machine.CanTransition(result.StateTransition) {
		o.log.Warnw("Ignoring illegal state transition request",
			"session_id", mem.SessionID,
			"tool", toolName,
			"from", machine.State(),
			"to", result.StateTransition,
		)
		return
	}

	if err := machine.Transition(result.StateTransition); err != nil {
		return
	}

	state.State = machine.State()
	state.UpdatedAt = time.Now().UTC()
	if err := o.states.Save(ctx, mem.SessionID, state); err != nil {
		o.log.Errorw("Failed to persist mid-loop state transition",
			"session_id", mem.SessionID,
			"state", state.State,
			"error", err,
		)
	}
	if err := o.sessions.UpdateState(ctx, mem.SessionID, machine.State()); err != nil {
		o.log.Warnw("Failed to sync session memory state",
			"session_id", mem.SessionID,
			"error", err,
		)
	}
	mem.State = machine.State()
}

// interceptForConfirmation holds a confirmation-gated tool: the call is
// stashed in working memory with a token and expiry, the machine moves to
// AWAITING_CONFIRMATION when allowed, and the customer gets the prompt.
func (o *Orchestrator) interceptForConfirmation(
	ctx context.Context,
	machine *conversation.StateMachine,
	state *conversation.SessionState,
	mem *session.Memory,
	tool tools.Tool,
	input json.RawMessage,
	outcome *loopOutcome,
) string {
	prompt := "Please confirm: should I go ahead with " + tool.Name() + "?"
	if mem.Cart != nil && !mem.Cart.IsEmpty() {
		prompt = "Please confirm your order: " + describeCart(mem.Cart)
	}

	mem.PendingConfirmation = &session.PendingConfirmation{
		Tool:      tool.Name(),
		Input:     input,
		Prompt:    prompt,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().UTC().Add(o.cfg.ConfirmationTTL),
	}

	if machine.CanTransition(conversation.StateAwaitingConfirmation) {
		o.applyTransition(ctx, machine, state, mem, tool.Name(), &tools.Result{
			Success:         true,
			StateTransition: conversation.StateAwaitingConfirmation,
		})
	}

	outcome.awaitingConfirmation = true
	outcome.text = prompt
	return tools.Fail("awaiting explicit customer confirmation").Text()
}

func (o *Orchestrator) toolSchemas() []ai.ToolSchema {
	registered := o.registry.List()
	schemas := make([]ai.ToolSchema, 0, len(registered))
	for _, tool := range registered {
		schemas = append(schemas, ai.ToolSchema{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Schema(),
		})
	}
	return schemas
}

func (o *Orchestrator) auditToolCall(
	ctx context.Context,
	turnID uuid.UUID,
	mem *session.Memory,
	toolName, category string,
	input json.RawMessage,
	result *tools.Result,
	duration time.Duration,
) {
	record := &audit.ToolExecution{
		ID:                       uuid.New(),
		TurnID:                   turnID,
		SessionID:                mem.SessionID,
		WorkspaceID:              mem.WorkspaceID,
		ToolName:                 toolName,
		Category:                 category,
		Input:                    string(input),
		Result:                   result.Text(),
		Success:                  result.Success,
		Error:                    result.Error,
		DurationMs:               duration.Milliseconds(),
		StateTransitionRequested: string(result.StateTransition),
		CreatedAt:                time.Now().UTC(),
	}

	// Audit writes never fail a turn
	if err := o.audits.RecordToolExecution(ctx, record); err != nil {
		o.log.Warnw("Failed to record tool execution",
			"session_id", mem.SessionID,
			"tool", toolName,
			"error", err,
		)
	}
}

func handoffReasonFrom(result *tools.Result) string {
	if data, ok := result.Data.(map[string]interface{}); ok {
		if reason, ok := data["reason"].(string); ok && reason != "" {
			return reason
		}
	}
	return "tool requested operator takeover"
}

func describeCart(cart *session.Cart) string {
	var b strings.Builder
	for i, item := range cart.Items {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%s x%d", item.Name, item.Quantity)
	}
	fmt.Fprintf(&b, ". Total %s %s.", cart.Total().String(), cart.Currency)
	return b.String()
}
