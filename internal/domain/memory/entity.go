package memory

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one durable long-term memory row for a session. Summaries are
// singletons (key "latest"); facts, preferences and entities upsert by key
// when present and append otherwise.
type Entry struct {
	ID          uuid.UUID `db:"id"`
	SessionID   string    `db:"session_id"`
	WorkspaceID string    `db:"workspace_id"`

	Type    EntryType `db:"type"`
	Key     *string   `db:"key"` // nullable, used for idempotent upsert
	Content string    `db:"content"`

	Importance float64 `db:"importance"` // 0-1, for retrieval ranking

	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	ExpiresAt *time.Time `db:"expires_at"` // per-type TTL
}

// EntryType defines the type of long-term memory
type EntryType string

const (
	EntrySummary    EntryType = "summary"
	EntryFact       EntryType = "fact"
	EntryPreference EntryType = "preference"
	EntryEntity     EntryType = "entity"
)

// SummaryKey is the key of the singleton summary entry per session
const SummaryKey = "latest"

// Valid checks if the entry type is known
func (t EntryType) Valid() bool {
	switch t {
	case EntrySummary, EntryFact, EntryPreference, EntryEntity:
		return true
	}
	return false
}

// String returns string representation
func (t EntryType) String() string {
	return string(t)
}

// Slugify normalizes a fact key (or its content when no key was extracted)
// so repeated extraction of the same fact updates it in place
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	var b strings.Builder
	lastDash := true
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 64 {
		slug = strings.TrimSuffix(slug[:64], "-")
	}
	return slug
}
