package memory

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// VectorDimension is the embedding dimensionality stored for each turn.
// Must match the vector column width in the memory_turns migration.
const VectorDimension int32 = 768

// EmbedTimeout bounds a single embedding call.
const EmbedTimeout = 30 * time.Second

// TruncationMarker is appended to turn content that was cut to fit the
// per-turn character budget. It is stored with the content so later
// readers can tell the text is partial.
const TruncationMarker = "[Response truncated for memory storage]"

// Turn is one stored conversation turn within a thread.
type Turn struct {
	ID        uuid.UUID
	ThreadID  string
	Role      Role
	Content   string
	Score     float64 // similarity, populated by Search only
	CreatedAt time.Time
}
