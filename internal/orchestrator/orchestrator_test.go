package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/adapters/ai"
	"concierge/internal/domain/audit"
	"concierge/internal/domain/conversation"
	"concierge/internal/domain/handoff"
	"concierge/internal/domain/message"
	"concierge/internal/domain/session"
	"concierge/internal/tools"
	"concierge/pkg/errors"
)

type mockProvider struct {
	responses []*ai.CompletionResponse
	errs      []error
	calls     int
}

func (m *mockProvider) Complete(_ context.Context, _ ai.CompletionRequest) (*ai.CompletionResponse, error) {
	idx := m.calls
	m.calls++
	if idx < len(m.errs) && m.errs[idx] != nil {
		return nil, m.errs[idx]
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	if len(m.responses) > 0 {
		return m.responses[len(m.responses)-1], nil
	}
	return &ai.CompletionResponse{Text: "ok", StopReason: ai.StopReasonStop}, nil
}

type mockStateRepo struct {
	states map[string]*conversation.SessionState
	saves  int
}

func newMockStateRepo() *mockStateRepo {
	return &mockStateRepo{states: make(map[string]*conversation.SessionState)}
}

func (m *mockStateRepo) Load(_ context.Context, sessionID string) (*conversation.SessionState, error) {
	if state, ok := m.states[sessionID]; ok {
		copied := *state
		return &copied, nil
	}
	return conversation.NewSessionState(), nil
}

func (m *mockStateRepo) Save(_ context.Context, sessionID string, state *conversation.SessionState) error {
	copied := *state
	m.states[sessionID] = &copied
	m.saves++
	return nil
}

type mockSessionRepo struct {
	memories map[string]*session.Memory
}

func newMockSessionRepo() *mockSessionRepo {
	return &mockSessionRepo{memories: make(map[string]*session.Memory)}
}

func (m *mockSessionRepo) Get(_ context.Context, sessionID string) (*session.Memory, error) {
	if mem, ok := m.memories[sessionID]; ok {
		return mem, nil
	}
	return nil, errors.ErrNotFound
}

func (m *mockSessionRepo) Save(_ context.Context, memory *session.Memory, _ time.Duration) error {
	m.memories[memory.SessionID] = memory
	return nil
}

func (m *mockSessionRepo) Delete(_ context.Context, sessionID string) error {
	delete(m.memories, sessionID)
	return nil
}

type mockMemoryService struct {
	context string
	updates int
}

func (m *mockMemoryService) BuildContext(_ context.Context, _ string) (string, error) {
	return m.context, nil
}

func (m *mockMemoryService) UpdateFromTurn(_ context.Context, _, _ string) {
	m.updates++
}

type mockHistory struct {
	messages []*message.Message
}

func (m *mockHistory) Append(_ context.Context, msg *message.Message) error {
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockHistory) ListRecent(_ context.Context, sessionID string, since *time.Time, limit int) ([]*message.Message, error) {
	var out []*message.Message
	for _, msg := range m.messages {
		if msg.SessionID != sessionID {
			continue
		}
		if since != nil && !msg.CreatedAt.After(*since) {
			continue
		}
		out = append(out, msg)
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockHistory) CountSince(_ context.Context, sessionID string, since *time.Time) (int, error) {
	msgs, _ := m.ListRecent(context.Background(), sessionID, since, 1<<20)
	return len(msgs), nil
}

type mockAudit struct {
	executions []*audit.ToolExecution
	turns      []*audit.TurnRecord
}

func (m *mockAudit) RecordToolExecution(_ context.Context, execution *audit.ToolExecution) error {
	m.executions = append(m.executions, execution)
	return nil
}

func (m *mockAudit) RecordTurn(_ context.Context, turn *audit.TurnRecord) error {
	m.turns = append(m.turns, turn)
	return nil
}

type mockPolicy struct {
	maxFailures int
	escalations []handoff.Trigger
	resolved    int
}

func (m *mockPolicy) Escalate(_ context.Context, workspaceID, sessionID string, trigger handoff.Trigger, reason string) (*handoff.Request, error) {
	m.escalations = append(m.escalations, trigger)
	return handoff.NewRequest(workspaceID, sessionID, trigger, reason), nil
}

func (m *mockPolicy) Resolve(_ context.Context, _ string) error {
	m.resolved++
	return nil
}

func (m *mockPolicy) MaxConsecutiveFailures() int {
	return m.maxFailures
}

type testTool struct {
	name        string
	category    tools.Category
	confirm     bool
	validateErr error
	execute     func(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error)
	calls       int
}

func (t *testTool) Name() string                          { return t.name }
func (t *testTool) Description() string                   { return t.name }
func (t *testTool) Category() tools.Category              { return t.category }
func (t *testTool) RequiresConfirmation() bool            { return t.confirm }
func (t *testTool) Schema() map[string]interface{}        { return map[string]interface{}{"type": "object"} }
func (t *testTool) IdempotencyKey(json.RawMessage) string { return "" }
func (t *testTool) Validate(json.RawMessage) error        { return t.validateErr }
func (t *testTool) Execute(ctx context.Context, input json.RawMessage, tc *tools.TurnContext) (*tools.Result, error) {
	t.calls++
	return t.execute(ctx, input, tc)
}

type fixture struct {
	orch     *Orchestrator
	provider *mockProvider
	states   *mockStateRepo
	sessions *mockSessionRepo
	memSvc   *mockMemoryService
	history  *mockHistory
	audits   *mockAudit
	policy   *mockPolicy
	registry *tools.Registry
}

func newFixture(t *testing.T, provider *mockProvider, extra ...tools.Tool) *fixture {
	t.Helper()

	f := &fixture{
		provider: provider,
		states:   newMockStateRepo(),
		sessions: newMockSessionRepo(),
		memSvc:   &mockMemoryService{},
		history:  &mockHistory{},
		audits:   &mockAudit{},
		policy:   &mockPolicy{maxFailures: 2},
		registry: tools.NewRegistry(),
	}
	for _, tool := range extra {
		require.NoError(t, f.registry.Register(tool))
	}

	f.orch = New(
		provider,
		f.registry,
		f.states,
		session.NewManager(f.sessions, time.Hour),
		f.memSvc,
		f.history,
		f.audits,
		f.policy,
		Config{MaxIterations: 10, ToolCallTimeout: time.Second, ConfirmationTTL: 10 * time.Minute},
	)
	return f
}

func inbound(text string) InboundMessage {
	return InboundMessage{SessionID: "sess-1", WorkspaceID: "ws-1", CustomerID: "cust-1", Text: text}
}

func toolCallResponse(name, args string) *ai.CompletionResponse {
	return &ai.CompletionResponse{
		StopReason: ai.StopReasonToolCalls,
		ToolCalls:  []ai.ToolCall{{ID: "call-1", Name: name, Arguments: args}},
	}
}

func TestHandleMessage_SimpleTaskFlow(t *testing.T) {
	searchTool := &testTool{
		name:     "search_products",
		category: tools.CategoryQuery,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			return tools.Ok(map[string]interface{}{"found": 1}), nil
		},
	}
	addTool := &testTool{
		name:     "add_to_cart",
		category: tools.CategoryMutation,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			return &tools.Result{Success: true, StateTransition: conversation.StateCollecting}, nil
		},
	}
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		toolCallResponse("search_products", `{"query":"widget"}`),
		toolCallResponse("add_to_cart", `{"quantity":5}`),
		{Text: "Added 5 widgets to your cart.", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider, searchTool, addTool)

	result, err := f.orch.HandleMessage(context.Background(), inbound("I want 5 widgets"))
	require.NoError(t, err)

	assert.True(t, result.ShouldSendMessage)
	assert.Equal(t, conversation.ThreadTask, result.Thread)
	assert.Equal(t, conversation.StateCollecting, result.State)
	assert.Equal(t, []string{"search_products", "add_to_cart"}, result.ToolsUsed)
	assert.Equal(t, "Added 5 widgets to your cart.", result.Response)
	assert.False(t, result.HandoffTriggered)

	// Transition was persisted mid-loop, not just at end of turn
	assert.Equal(t, conversation.StateCollecting, f.states.states["sess-1"].State)
	assert.Len(t, f.audits.executions, 2)
	require.Len(t, f.audits.turns, 1)
	assert.True(t, f.audits.turns[0].MessageSent)
	assert.Equal(t, 1, f.memSvc.updates)
}

func TestHandleMessage_InfoDetourInterruptsTask(t *testing.T) {
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		{Text: "We close at 6pm, Monday to Saturday.", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider)
	f.states.states["sess-1"] = &conversation.SessionState{
		State:  conversation.StateCollecting,
		Thread: conversation.ThreadTask,
	}

	result, err := f.orch.HandleMessage(context.Background(), inbound("what time do you close?"))
	require.NoError(t, err)

	assert.Equal(t, conversation.ThreadInfo, result.Thread)
	saved := f.states.states["sess-1"]
	require.NotNil(t, saved.InterruptedState)
	assert.Equal(t, conversation.StateCollecting, *saved.InterruptedState)
	assert.Equal(t, conversation.ThreadTask, *saved.InterruptedThread)
}

func TestHandleMessage_TaskResumesAfterDetour(t *testing.T) {
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		{Text: "Sure, continuing with your order.", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider)
	interruptedState := conversation.StateCollecting
	interruptedThread := conversation.ThreadTask
	f.states.states["sess-1"] = &conversation.SessionState{
		State:             conversation.StateCollecting,
		Thread:            conversation.ThreadInfo,
		InterruptedState:  &interruptedState,
		InterruptedThread: &interruptedThread,
	}

	result, err := f.orch.HandleMessage(context.Background(), inbound("I want to order 3 widgets"))
	require.NoError(t, err)

	assert.Equal(t, conversation.ThreadTask, result.Thread)
	assert.Nil(t, f.states.states["sess-1"].InterruptedState)
}

func TestHandleMessage_ConsecutiveFailuresEscalate(t *testing.T) {
	provider := &mockProvider{errs: []error{errors.ErrTimeout, errors.ErrTimeout}}
	f := newFixture(t, provider)

	first, err := f.orch.HandleMessage(context.Background(), inbound("I want to buy widgets"))
	require.NoError(t, err)
	assert.False(t, first.HandoffTriggered)
	assert.Equal(t, apologyText, first.Response)
	assert.Equal(t, 1, f.states.states["sess-1"].FailureCount)

	second, err := f.orch.HandleMessage(context.Background(), inbound("I want to buy widgets"))
	require.NoError(t, err)
	assert.True(t, second.HandoffTriggered)
	assert.Equal(t, conversation.StateHandoff, second.State)
	assert.True(t, second.ShouldSendMessage)

	// Exactly one escalation, and the counter survives the handoff
	require.Len(t, f.policy.escalations, 1)
	assert.Equal(t, handoff.TriggerConsecutiveFailures, f.policy.escalations[0])
	assert.Equal(t, 2, f.states.states["sess-1"].FailureCount)
}

func TestHandleMessage_FailureCountCapsAtThreshold(t *testing.T) {
	provider := &mockProvider{errs: []error{
		errors.ErrTimeout, errors.ErrTimeout, errors.ErrTimeout, errors.ErrTimeout,
	}}
	f := newFixture(t, provider)

	_, err := f.orch.HandleMessage(context.Background(), inbound("order widgets"))
	require.NoError(t, err)
	_, err = f.orch.HandleMessage(context.Background(), inbound("order widgets"))
	require.NoError(t, err)

	// Session is suspended now; further messages never reach the provider,
	// so the counter cannot exceed the threshold
	for i := 0; i < 3; i++ {
		result, err := f.orch.HandleMessage(context.Background(), inbound("hello?"))
		require.NoError(t, err)
		assert.False(t, result.ShouldSendMessage)
	}
	assert.Equal(t, 2, f.states.states["sess-1"].FailureCount)
	assert.Equal(t, 2, provider.calls)
}

func TestHandleMessage_HandoffShortCircuit(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, provider)
	f.states.states["sess-1"] = &conversation.SessionState{
		State:  conversation.StateHandoff,
		Thread: conversation.ThreadTask,
	}

	result, err := f.orch.HandleMessage(context.Background(), inbound("anyone there?"))
	require.NoError(t, err)

	assert.False(t, result.ShouldSendMessage)
	assert.Equal(t, conversation.StateHandoff, result.State)
	assert.Zero(t, provider.calls)

	// The customer's message still lands in the log for the operator
	require.Len(t, f.history.messages, 1)
	assert.Equal(t, message.RoleCustomer, f.history.messages[0].Role)
}

func TestHandleMessage_ExplicitHandoffRequest(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, provider)

	result, err := f.orch.HandleMessage(context.Background(), inbound("I want to talk to a real person"))
	require.NoError(t, err)

	assert.True(t, result.HandoffTriggered)
	assert.Equal(t, conversation.StateHandoff, result.State)
	assert.True(t, result.ShouldSendMessage)
	assert.Zero(t, provider.calls)
	require.Len(t, f.policy.escalations, 1)
	assert.Equal(t, handoff.TriggerUserRequest, f.policy.escalations[0])
}

func TestHandleMessage_NegativeSentimentEscalates(t *testing.T) {
	provider := &mockProvider{}
	f := newFixture(t, provider)

	result, err := f.orch.HandleMessage(context.Background(), inbound("this is terrible and completely useless"))
	require.NoError(t, err)

	assert.True(t, result.HandoffTriggered)
	require.Len(t, f.policy.escalations, 1)
	assert.Equal(t, handoff.TriggerNegativeSentiment, f.policy.escalations[0])
}

func TestHandleMessage_UnknownToolFedBackToProvider(t *testing.T) {
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		toolCallResponse("does_not_exist", `{}`),
		{Text: "Let me try another way.", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider)

	result, err := f.orch.HandleMessage(context.Background(), inbound("buy a widget"))
	require.NoError(t, err)

	assert.True(t, result.ShouldSendMessage)
	assert.Equal(t, "Let me try another way.", result.Response)
	assert.Equal(t, 2, provider.calls)
	assert.Zero(t, f.states.states["sess-1"].FailureCount)
}

func TestHandleMessage_IllegalTransitionIgnored(t *testing.T) {
	badTool := &testTool{
		name:     "finish",
		category: tools.CategorySystem,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			// DONE is not reachable from IDLE
			return &tools.Result{Success: true, StateTransition: conversation.StateDone}, nil
		},
	}
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		toolCallResponse("finish", `{}`),
		{Text: "All set.", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider, badTool)

	result, err := f.orch.HandleMessage(context.Background(), inbound("buy widgets"))
	require.NoError(t, err)

	assert.Equal(t, conversation.StateIdle, result.State)
	assert.Equal(t, "All set.", result.Response)
}

func TestHandleMessage_LoopCapYieldsPartialText(t *testing.T) {
	loopTool := &testTool{
		name:     "spin",
		category: tools.CategoryQuery,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			return tools.Ok(nil), nil
		},
	}
	spin := toolCallResponse("spin", `{}`)
	spin.Text = "still working"
	provider := &mockProvider{responses: []*ai.CompletionResponse{spin}}
	f := newFixture(t, provider, loopTool)

	result, err := f.orch.HandleMessage(context.Background(), inbound("buy widgets"))
	require.NoError(t, err)

	assert.Equal(t, 10, provider.calls)
	assert.Equal(t, "still working", result.Response)
	assert.Zero(t, f.states.states["sess-1"].FailureCount)
}

func TestHandleMessage_TruncatedResponseStillRunsToolCalls(t *testing.T) {
	searchTool := &testTool{
		name:     "search_products",
		category: tools.CategoryQuery,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			return tools.Ok(map[string]interface{}{"found": 1}), nil
		},
	}
	// Token cap hit mid-call: the calls are complete even though the stop
	// reason is not tool_calls
	truncated := toolCallResponse("search_products", `{"query":"widget"}`)
	truncated.StopReason = ai.StopReasonLength
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		truncated,
		{Text: "Found the widget you asked about.", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider, searchTool)

	result, err := f.orch.HandleMessage(context.Background(), inbound("buy a widget"))
	require.NoError(t, err)

	assert.Equal(t, []string{"search_products"}, result.ToolsUsed)
	assert.Equal(t, "Found the widget you asked about.", result.Response)
	assert.Equal(t, 2, provider.calls)
}

func TestHandleMessage_ConfirmationInterceptAndExecute(t *testing.T) {
	orderTool := &testTool{
		name:     "create_order",
		category: tools.CategoryMutation,
		confirm:  true,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			return &tools.Result{
				Success:         true,
				Data:            map[string]interface{}{"order_id": "order-7"},
				StateTransition: conversation.StateDone,
			}, nil
		},
	}
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		toolCallResponse("create_order", `{}`),
	}}
	f := newFixture(t, provider, orderTool)
	f.states.states["sess-1"] = &conversation.SessionState{
		State:  conversation.StateCollecting,
		Thread: conversation.ThreadTask,
	}

	first, err := f.orch.HandleMessage(context.Background(), inbound("place my order please"))
	require.NoError(t, err)

	assert.Equal(t, conversation.StateAwaitingConfirmation, first.State)
	assert.Zero(t, orderTool.calls)
	mem := f.sessions.memories["sess-1"]
	require.NotNil(t, mem.PendingConfirmation)
	assert.Equal(t, "create_order", mem.PendingConfirmation.Tool)

	providerCallsBefore := provider.calls
	second, err := f.orch.HandleMessage(context.Background(), inbound("yes"))
	require.NoError(t, err)

	// The confirmed replay runs without another provider round-trip
	assert.Equal(t, providerCallsBefore, provider.calls)
	assert.Equal(t, 1, orderTool.calls)
	assert.Equal(t, conversation.StateDone, second.State)
	assert.Contains(t, second.Response, "order-7")
	assert.Nil(t, f.sessions.memories["sess-1"].PendingConfirmation)
}

func TestHandleMessage_ConfirmationRejected(t *testing.T) {
	orderTool := &testTool{
		name:     "create_order",
		category: tools.CategoryMutation,
		confirm:  true,
		execute: func(_ context.Context, _ json.RawMessage, _ *tools.TurnContext) (*tools.Result, error) {
			return tools.Ok(nil), nil
		},
	}
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		toolCallResponse("create_order", `{}`),
	}}
	f := newFixture(t, provider, orderTool)
	f.states.states["sess-1"] = &conversation.SessionState{
		State:  conversation.StateCollecting,
		Thread: conversation.ThreadTask,
	}

	_, err := f.orch.HandleMessage(context.Background(), inbound("place my order"))
	require.NoError(t, err)

	result, err := f.orch.HandleMessage(context.Background(), inbound("no"))
	require.NoError(t, err)

	assert.Equal(t, cancelledText, result.Response)
	assert.Zero(t, orderTool.calls)
	assert.Nil(t, f.sessions.memories["sess-1"].PendingConfirmation)
	assert.Equal(t, conversation.StateCollecting, result.State)
}

func TestReleaseHandoff(t *testing.T) {
	provider := &mockProvider{responses: []*ai.CompletionResponse{
		{Text: "Welcome back! How can I help?", StopReason: ai.StopReasonStop},
	}}
	f := newFixture(t, provider)
	f.states.states["sess-1"] = &conversation.SessionState{
		State:         conversation.StateHandoff,
		Thread:        conversation.ThreadTask,
		FailureCount:  2,
		FailureReason: "consecutive turn failures",
	}

	require.NoError(t, f.orch.ReleaseHandoff(context.Background(), "sess-1"))

	saved := f.states.states["sess-1"]
	assert.Equal(t, conversation.StateIdle, saved.State)
	assert.Zero(t, saved.FailureCount)
	assert.Empty(t, saved.FailureReason)
	assert.Equal(t, 1, f.policy.resolved)

	// Automation answers again after release
	result, err := f.orch.HandleMessage(context.Background(), inbound("I want to order widgets"))
	require.NoError(t, err)
	assert.True(t, result.ShouldSendMessage)
	assert.Equal(t, 1, provider.calls)
}

func TestReleaseHandoff_NotSuspended(t *testing.T) {
	f := newFixture(t, &mockProvider{})

	err := f.orch.ReleaseHandoff(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransition))
}
