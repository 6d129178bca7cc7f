package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"concierge/internal/domain/message"
	"concierge/pkg/errors"
	"concierge/pkg/logger"
)

// Extraction is the strict structured output expected from the reasoning
// provider when summarizing a conversation window
type Extraction struct {
	Summary     string           `json:"summary"`
	Facts       []ExtractedEntry `json:"facts"`
	Preferences []ExtractedEntry `json:"preferences"`
	Entities    []ExtractedEntry `json:"entities"`
}

// ExtractedEntry is one typed item inside an extraction
type ExtractedEntry struct {
	Key        string  `json:"key"`
	Content    string  `json:"content"`
	Importance float64 `json:"importance"`
}

// Extractor calls the reasoning provider to distill a message window into a
// structured extraction. Malformed provider output surfaces as an error and
// is discarded by the service; summarization is never fatal to a turn.
type Extractor interface {
	Extract(ctx context.Context, previousSummary string, transcript string) (*Extraction, error)
}

// Config tunes extraction cadence, retrieval limits and per-type TTLs
type Config struct {
	MinMessages      int
	UpdateCadence    int
	MaxFacts         int
	MaxPreferences   int
	MaxEntities      int
	SummaryTTL       time.Duration
	FactTTL          time.Duration
	PreferenceTTL    time.Duration
	EntityTTL        time.Duration
	ExtractionWindow int
}

// Service maintains long-term memory: cadence-gated extraction from the
// message log and assembly of the prompt fragment used for provider context
type Service struct {
	repo    Repository
	history message.Repository
	extract Extractor
	cfg     Config
	log     *logger.Logger
}

// NewService creates a long-term memory service
func NewService(repo Repository, history message.Repository, extractor Extractor, cfg Config) *Service {
	if cfg.MaxFacts == 0 {
		cfg.MaxFacts = 8
	}
	if cfg.MaxPreferences == 0 {
		cfg.MaxPreferences = 6
	}
	if cfg.MaxEntities == 0 {
		cfg.MaxEntities = 6
	}
	if cfg.ExtractionWindow == 0 {
		cfg.ExtractionWindow = 12
	}

	return &Service{
		repo:    repo,
		history: history,
		extract: extractor,
		cfg:     cfg,
		log:     logger.Get().With("component", "memory_service"),
	}
}

// BuildContext assembles a prompt fragment from the latest summary plus the
// highest-importance facts, preferences and entities. Expired entries are
// excluded by the repository.
func (s *Service) BuildContext(ctx context.Context, sessionID string) (string, error) {
	var b strings.Builder

	summary, err := s.repo.GetSummary(ctx, sessionID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return "", errors.Wrapf(err, "load summary: session_id=%s", sessionID)
	}
	if summary != nil {
		b.WriteString("Conversation summary:\n")
		b.WriteString(summary.Content)
		b.WriteString("\n")
	}

	sections := []struct {
		entryType EntryType
		heading   string
		limit     int
	}{
		{EntryFact, "Known facts:", s.cfg.MaxFacts},
		{EntryPreference, "Customer preferences:", s.cfg.MaxPreferences},
		{EntryEntity, "Known entities:", s.cfg.MaxEntities},
	}

	for _, section := range sections {
		entries, err := s.repo.GetTopByType(ctx, sessionID, section.entryType, section.limit)
		if err != nil {
			return "", errors.Wrapf(err, "load %s entries: session_id=%s", section.entryType, sessionID)
		}
		if len(entries) == 0 {
			continue
		}

		b.WriteString("\n")
		b.WriteString(section.heading)
		b.WriteString("\n")
		for _, entry := range entries {
			b.WriteString("- ")
			b.WriteString(entry.Content)
			b.WriteString("\n")
		}
	}

	return strings.TrimSpace(b.String()), nil
}

// UpdateFromTurn refreshes long-term memory from the recent message window.
// It triggers once the session has accumulated a minimum number of messages
// since the last summary refresh, and thereafter on a fixed cadence, to
// bound provider calls. Best-effort: every failure is logged and swallowed.
func (s *Service) UpdateFromTurn(ctx context.Context, sessionID, workspaceID string) {
	due, since, err := s.extractionDue(ctx, sessionID)
	if err != nil {
		s.log.Warnw("Skipping memory update", "session_id", sessionID, "error", err)
		return
	}
	if !due {
		return
	}

	previous := ""
	if summary, err := s.repo.GetSummary(ctx, sessionID); err == nil {
		previous = summary.Content
	}

	msgs, err := s.history.ListRecent(ctx, sessionID, since, s.cfg.ExtractionWindow)
	if err != nil {
		s.log.Warnw("Failed to load message window", "session_id", sessionID, "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	extraction, err := s.extract.Extract(ctx, previous, renderTranscript(msgs))
	if err != nil {
		// Malformed or failed extraction is discarded silently
		s.log.Debugw("Extraction discarded", "session_id", sessionID, "error", err)
		return
	}

	s.store(ctx, sessionID, workspaceID, extraction)
}

func (s *Service) extractionDue(ctx context.Context, sessionID string) (bool, *time.Time, error) {
	summary, err := s.repo.GetSummary(ctx, sessionID)
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		return false, nil, err
	}

	var since *time.Time
	threshold := s.cfg.MinMessages
	if summary != nil {
		since = &summary.UpdatedAt
		threshold = s.cfg.UpdateCadence
	}

	count, err := s.history.CountSince(ctx, sessionID, since)
	if err != nil {
		return false, nil, err
	}
	return count >= threshold, since, nil
}

func (s *Service) store(ctx context.Context, sessionID, workspaceID string, extraction *Extraction) {
	now := time.Now().UTC()

	if content := Redact(extraction.Summary); Storable(content) {
		key := SummaryKey
		expires := now.Add(s.cfg.SummaryTTL)
		entry := &Entry{
			ID:          uuid.New(),
			SessionID:   sessionID,
			WorkspaceID: workspaceID,
			Type:        EntrySummary,
			Key:         &key,
			Content:     content,
			Importance:  1,
			CreatedAt:   now,
			UpdatedAt:   now,
			ExpiresAt:   &expires,
		}
		if err := s.repo.Upsert(ctx, entry); err != nil {
			s.log.Warnw("Failed to upsert summary", "session_id", sessionID, "error", err)
		}
	}

	s.storeTyped(ctx, sessionID, workspaceID, EntryFact, extraction.Facts, s.cfg.FactTTL, now)
	s.storeTyped(ctx, sessionID, workspaceID, EntryPreference, extraction.Preferences, s.cfg.PreferenceTTL, now)
	s.storeTyped(ctx, sessionID, workspaceID, EntryEntity, extraction.Entities, s.cfg.EntityTTL, now)
}

func (s *Service) storeTyped(ctx context.Context, sessionID, workspaceID string, entryType EntryType, items []ExtractedEntry, ttl time.Duration, now time.Time) {
	for _, item := range items {
		content := Redact(item.Content)
		if !Storable(content) {
			// Dropped entirely rather than stored half-redacted
			continue
		}

		importance := item.Importance
		if importance < 0 || importance > 1 {
			importance = 0.5
		}

		entry := &Entry{
			ID:          uuid.New(),
			SessionID:   sessionID,
			WorkspaceID: workspaceID,
			Type:        entryType,
			Content:     content,
			Importance:  importance,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if ttl > 0 {
			expires := now.Add(ttl)
			entry.ExpiresAt = &expires
		}

		slugSource := item.Key
		if slugSource == "" {
			slugSource = item.Content
		}
		if slug := Slugify(Redact(slugSource)); slug != "" {
			entry.Key = &slug
		}

		var err error
		if entry.Key != nil {
			err = s.repo.Upsert(ctx, entry)
		} else {
			err = s.repo.Append(ctx, entry)
		}
		if err != nil {
			s.log.Warnw("Failed to store memory entry",
				"session_id", sessionID,
				"type", entryType,
				"error", err,
			)
		}
	}
}

func renderTranscript(msgs []*message.Message) string {
	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	return b.String()
}
