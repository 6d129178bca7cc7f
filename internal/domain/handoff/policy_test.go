package handoff

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/pkg/errors"
)

type mockRepo struct {
	pending  *Request
	created  []*Request
	statuses map[uuid.UUID]Status
}

func newMockRepo() *mockRepo {
	return &mockRepo{statuses: make(map[uuid.UUID]Status)}
}

func (m *mockRepo) Create(_ context.Context, request *Request) error {
	m.created = append(m.created, request)
	m.pending = request
	return nil
}

func (m *mockRepo) FindPending(_ context.Context, _ string) (*Request, error) {
	if m.pending == nil || m.pending.Status != StatusPending {
		return nil, errors.ErrNotFound
	}
	return m.pending, nil
}

func (m *mockRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	m.statuses[id] = status
	if m.pending != nil && m.pending.ID == id {
		m.pending.Status = status
	}
	return nil
}

type mockNotifier struct {
	notified []*Request
	err      error
}

func (m *mockNotifier) NotifyHandoff(_ context.Context, request *Request) error {
	m.notified = append(m.notified, request)
	return m.err
}

func TestPolicy_EscalateCreatesAndNotifies(t *testing.T) {
	repo := newMockRepo()
	notifier := &mockNotifier{}
	policy := NewPolicy(repo, notifier, PolicyConfig{RepeatWindow: 2 * time.Hour})

	request, err := policy.Escalate(context.Background(), "ws-1", "sess-1", TriggerUserRequest, "customer asked for a human")
	require.NoError(t, err)

	assert.Equal(t, StatusPending, request.Status)
	assert.Equal(t, TriggerUserRequest, request.Trigger)
	require.Len(t, repo.created, 1)
	require.Len(t, notifier.notified, 1)
}

func TestPolicy_EscalateReusesYoungPendingRequest(t *testing.T) {
	repo := newMockRepo()
	notifier := &mockNotifier{}
	policy := NewPolicy(repo, notifier, PolicyConfig{RepeatWindow: 2 * time.Hour})

	first, err := policy.Escalate(context.Background(), "ws-1", "sess-1", TriggerConsecutiveFailures, "two provider failures")
	require.NoError(t, err)

	second, err := policy.Escalate(context.Background(), "ws-1", "sess-1", TriggerConsecutiveFailures, "still failing")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, repo.created, 1, "exactly one request row for an unresolved escalation")
	assert.Len(t, notifier.notified, 1, "reuse must not page operators again")
}

func TestPolicy_EscalateExpiresStaleRequest(t *testing.T) {
	repo := newMockRepo()
	notifier := &mockNotifier{}
	policy := NewPolicy(repo, notifier, PolicyConfig{RepeatWindow: 2 * time.Hour})

	stale := NewRequest("ws-1", "sess-1", TriggerUserRequest, "old ask")
	stale.CreatedAt = time.Now().UTC().Add(-3 * time.Hour)
	repo.pending = stale

	fresh, err := policy.Escalate(context.Background(), "ws-1", "sess-1", TriggerUserRequest, "asking again")
	require.NoError(t, err)

	assert.NotEqual(t, stale.ID, fresh.ID)
	assert.Equal(t, StatusExpired, repo.statuses[stale.ID])
	assert.Len(t, notifier.notified, 1, "re-alerts after the cooldown")
}

func TestPolicy_NotificationFailureDoesNotFailEscalation(t *testing.T) {
	repo := newMockRepo()
	notifier := &mockNotifier{err: errors.New("telegram unreachable")}
	policy := NewPolicy(repo, notifier, PolicyConfig{})

	request, err := policy.Escalate(context.Background(), "ws-1", "sess-1", TriggerNegativeSentiment, "customer is upset")
	require.NoError(t, err)
	assert.Equal(t, PriorityHigh, request.Priority)
}

func TestPolicy_ResolveWithoutPendingIsNoop(t *testing.T) {
	policy := NewPolicy(newMockRepo(), &mockNotifier{}, PolicyConfig{})
	assert.NoError(t, policy.Resolve(context.Background(), "sess-1"))
}

func TestPolicy_Resolve(t *testing.T) {
	repo := newMockRepo()
	policy := NewPolicy(repo, &mockNotifier{}, PolicyConfig{})

	request, err := policy.Escalate(context.Background(), "ws-1", "sess-1", TriggerUserRequest, "takeover")
	require.NoError(t, err)

	require.NoError(t, policy.Resolve(context.Background(), "sess-1"))
	assert.Equal(t, StatusResolved, repo.statuses[request.ID])
}
