package session

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain/conversation"
	"concierge/pkg/errors"
)

// mockRepository implements Repository backed by a map
type mockRepository struct {
	store   map[string]*Memory
	saves   int
	getErr  error
	saveErr error
	lastTTL time.Duration
}

func newMockRepository() *mockRepository {
	return &mockRepository{store: make(map[string]*Memory)}
}

func (m *mockRepository) Get(_ context.Context, sessionID string) (*Memory, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	memory, ok := m.store[sessionID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	copied := *memory
	return &copied, nil
}

func (m *mockRepository) Save(_ context.Context, memory *Memory, ttl time.Duration) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.lastTTL = ttl
	copied := *memory
	m.store[memory.SessionID] = &copied
	return nil
}

func (m *mockRepository) Delete(_ context.Context, sessionID string) error {
	delete(m.store, sessionID)
	return nil
}

func TestManager_InitSessionIdempotent(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, 24*time.Hour)
	ctx := context.Background()

	first, err := mgr.InitSession(ctx, "sess-1", "ws-1", "cust-1")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, conversation.StateIdle, first.State)

	second, err := mgr.InitSession(ctx, "sess-1", "ws-1", "cust-1")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, 1, repo.saves, "second init must not create a duplicate")
}

func TestManager_GetSessionMissingReturnsNil(t *testing.T) {
	mgr := NewManager(newMockRepository(), time.Hour)

	memory, err := mgr.GetSession(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, memory)
}

func TestManager_UpdateState(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, time.Hour)
	ctx := context.Background()

	_, err := mgr.InitSession(ctx, "sess-1", "ws-1", "cust-1")
	require.NoError(t, err)

	require.NoError(t, mgr.UpdateState(ctx, "sess-1", conversation.StateCollecting))

	memory, err := mgr.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, conversation.StateCollecting, memory.State)

	err = mgr.UpdateState(ctx, "never-initialized", conversation.StateDone)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestManager_SaveRefreshesTTL(t *testing.T) {
	repo := newMockRepository()
	mgr := NewManager(repo, 24*time.Hour)
	ctx := context.Background()

	memory, err := mgr.InitSession(ctx, "sess-1", "ws-1", "cust-1")
	require.NoError(t, err)

	require.NoError(t, mgr.SaveSession(ctx, memory))
	assert.Equal(t, 24*time.Hour, repo.lastTTL)
}

func TestCart_Totals(t *testing.T) {
	cart := &Cart{Currency: "EUR"}
	cart.AddItem(CartItem{ProductID: "p1", Name: "Widget", Quantity: 5, UnitPrice: decimal.NewFromFloat(2.50)})
	cart.AddItem(CartItem{ProductID: "p2", Name: "Gadget", Quantity: 1, UnitPrice: decimal.NewFromFloat(10.00)})

	assert.True(t, cart.Total().Equal(decimal.NewFromFloat(22.50)))

	// Adding the same product merges the line instead of duplicating it
	cart.AddItem(CartItem{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromFloat(2.50)})
	assert.Len(t, cart.Items, 2)
	assert.Equal(t, 7, cart.Items[0].Quantity)
	assert.True(t, cart.Total().Equal(decimal.NewFromFloat(27.50)))
}

func TestPendingConfirmation_Expiry(t *testing.T) {
	pc := &PendingConfirmation{
		Tool:      "create_order",
		Token:     "tok-1",
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	assert.True(t, pc.Expired(time.Now()))

	pc.ExpiresAt = time.Now().Add(10 * time.Minute)
	assert.False(t, pc.Expired(time.Now()))
}

func TestPendingFlow_Active(t *testing.T) {
	var flow *PendingFlow
	assert.False(t, flow.Active())

	flow = &PendingFlow{}
	assert.False(t, flow.Active())

	flow.QuantityQuery = &QuantityQueryFlow{ProductID: "p1", Name: "Widget"}
	assert.True(t, flow.Active())
}
