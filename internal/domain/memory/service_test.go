package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain/message"
	"concierge/pkg/errors"
)

type mockRepo struct {
	summary *Entry
	byType  map[EntryType][]*Entry
	upserts []*Entry
	appends []*Entry
}

func newMockRepo() *mockRepo {
	return &mockRepo{byType: make(map[EntryType][]*Entry)}
}

func (m *mockRepo) Upsert(_ context.Context, entry *Entry) error {
	m.upserts = append(m.upserts, entry)
	return nil
}

func (m *mockRepo) Append(_ context.Context, entry *Entry) error {
	m.appends = append(m.appends, entry)
	return nil
}

func (m *mockRepo) GetSummary(_ context.Context, _ string) (*Entry, error) {
	if m.summary == nil {
		return nil, errors.ErrNotFound
	}
	return m.summary, nil
}

func (m *mockRepo) GetTopByType(_ context.Context, _ string, entryType EntryType, limit int) ([]*Entry, error) {
	entries := m.byType[entryType]
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

type mockHistory struct {
	count    int
	messages []*message.Message
}

func (m *mockHistory) Append(_ context.Context, _ *message.Message) error { return nil }

func (m *mockHistory) ListRecent(_ context.Context, _ string, _ *time.Time, limit int) ([]*message.Message, error) {
	if len(m.messages) > limit {
		return m.messages[:limit], nil
	}
	return m.messages, nil
}

func (m *mockHistory) CountSince(_ context.Context, _ string, _ *time.Time) (int, error) {
	return m.count, nil
}

type mockExtractor struct {
	calls      int
	extraction *Extraction
	err        error
}

func (m *mockExtractor) Extract(_ context.Context, _ string, _ string) (*Extraction, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.extraction, nil
}

func testConfig() Config {
	return Config{
		MinMessages:   4,
		UpdateCadence: 5,
		SummaryTTL:    time.Hour,
		FactTTL:       time.Hour,
		PreferenceTTL: time.Hour,
		EntityTTL:     time.Hour,
	}
}

func someMessages(n int) []*message.Message {
	msgs := make([]*message.Message, 0, n)
	for i := 0; i < n; i++ {
		msgs = append(msgs, message.New("sess-1", "ws-1", message.RoleCustomer, "I want 5 widgets"))
	}
	return msgs
}

func TestService_BuildContext(t *testing.T) {
	repo := newMockRepo()
	repo.summary = &Entry{Type: EntrySummary, Content: "Customer is assembling a widget order."}
	repo.byType[EntryFact] = []*Entry{
		{Type: EntryFact, Content: "Orders in bulk monthly", Importance: 0.9},
	}
	repo.byType[EntryPreference] = []*Entry{
		{Type: EntryPreference, Content: "Prefers morning deliveries", Importance: 0.8},
	}

	svc := NewService(repo, &mockHistory{}, &mockExtractor{}, testConfig())

	ctx, err := svc.BuildContext(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Contains(t, ctx, "Conversation summary:")
	assert.Contains(t, ctx, "Customer is assembling a widget order.")
	assert.Contains(t, ctx, "- Orders in bulk monthly")
	assert.Contains(t, ctx, "- Prefers morning deliveries")
	assert.NotContains(t, ctx, "Known entities:", "empty sections are omitted")
}

func TestService_UpdateFromTurn_BelowMinimumDoesNothing(t *testing.T) {
	repo := newMockRepo()
	extractor := &mockExtractor{extraction: &Extraction{Summary: "irrelevant"}}
	history := &mockHistory{count: 3, messages: someMessages(3)}

	svc := NewService(repo, history, extractor, testConfig())
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")

	assert.Zero(t, extractor.calls)
	assert.Empty(t, repo.upserts)
}

func TestService_UpdateFromTurn_CadenceAfterSummary(t *testing.T) {
	repo := newMockRepo()
	repo.summary = &Entry{
		Type:      EntrySummary,
		Content:   "previous summary",
		UpdatedAt: time.Now().Add(-time.Hour),
	}
	extractor := &mockExtractor{extraction: &Extraction{Summary: "a refreshed summary of the order"}}

	// Four new messages since the summary: below the cadence of five
	history := &mockHistory{count: 4, messages: someMessages(4)}
	svc := NewService(repo, history, extractor, testConfig())
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")
	assert.Zero(t, extractor.calls)

	history.count = 5
	history.messages = someMessages(5)
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")
	assert.Equal(t, 1, extractor.calls)
	require.Len(t, repo.upserts, 1)
	assert.Equal(t, EntrySummary, repo.upserts[0].Type)
	require.NotNil(t, repo.upserts[0].Key)
	assert.Equal(t, SummaryKey, *repo.upserts[0].Key)
}

func TestService_UpdateFromTurn_RedactsStoredFacts(t *testing.T) {
	repo := newMockRepo()
	extractor := &mockExtractor{extraction: &Extraction{
		Summary: "Customer placed a widget order and shared contact details",
		Facts: []ExtractedEntry{
			{Key: "contact email", Content: "email is jane@example.com for order updates", Importance: 0.7},
		},
	}}
	history := &mockHistory{count: 4, messages: someMessages(4)}

	svc := NewService(repo, history, extractor, testConfig())
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")

	require.Len(t, repo.upserts, 2) // summary + keyed fact
	fact := repo.upserts[1]
	assert.Equal(t, EntryFact, fact.Type)
	assert.NotContains(t, fact.Content, "jane@example.com")
	assert.Contains(t, fact.Content, RedactionToken)
	require.NotNil(t, fact.Key)
	assert.Equal(t, "contact-email", *fact.Key)
	require.NotNil(t, fact.ExpiresAt)
}

func TestService_UpdateFromTurn_DropsFullyRedactedFacts(t *testing.T) {
	repo := newMockRepo()
	extractor := &mockExtractor{extraction: &Extraction{
		Summary: "Customer shared only a raw card number this window",
		Facts: []ExtractedEntry{
			{Content: "4111111111111111", Importance: 0.9},
		},
	}}
	history := &mockHistory{count: 4, messages: someMessages(4)}

	svc := NewService(repo, history, extractor, testConfig())
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")

	require.Len(t, repo.upserts, 1, "only the summary survives")
	assert.Equal(t, EntrySummary, repo.upserts[0].Type)
	assert.Empty(t, repo.appends)
}

func TestService_UpdateFromTurn_ExtractionFailureIsSilent(t *testing.T) {
	repo := newMockRepo()
	extractor := &mockExtractor{err: errors.New("malformed provider output")}
	history := &mockHistory{count: 4, messages: someMessages(4)}

	svc := NewService(repo, history, extractor, testConfig())
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")

	assert.Equal(t, 1, extractor.calls)
	assert.Empty(t, repo.upserts)
	assert.Empty(t, repo.appends)
}

func TestService_UpdateFromTurn_UnkeyedEntriesAppend(t *testing.T) {
	repo := newMockRepo()
	extractor := &mockExtractor{extraction: &Extraction{
		Summary: "Customer mentioned their shop frontage",
		Entities: []ExtractedEntry{
			{Content: "Runs a hardware shop downtown", Importance: 0.6},
		},
	}}
	history := &mockHistory{count: 4, messages: someMessages(4)}

	svc := NewService(repo, history, extractor, testConfig())
	svc.UpdateFromTurn(context.Background(), "sess-1", "ws-1")

	// Entities without an extracted key still get a slug derived from content,
	// so repeated extraction updates in place
	require.Len(t, repo.upserts, 2)
	entity := repo.upserts[1]
	assert.Equal(t, EntryEntity, entity.Type)
	require.NotNil(t, entity.Key)
	assert.Equal(t, "runs-a-hardware-shop-downtown", *entity.Key)
}
