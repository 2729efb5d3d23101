// Package storage provides interfaces and types for the SoulNet row stores.
//
// It defines the per-concern store interfaces (memories, embeddings,
// achievements, interactions) that all backends must satisfy. Every query is
// scoped by user_id; the stores are the multi-tenant isolation boundary.
package storage

import (
	"context"
	"time"
)

// MemoryType classifies a memory entry.
type MemoryType string

const (
	MemoryTypeProfile    MemoryType = "profile"
	MemoryTypePreference MemoryType = "preference"
	MemoryTypeGoal       MemoryType = "goal"
	MemoryTypeSkill      MemoryType = "skill"
	MemoryTypeFact       MemoryType = "fact"
)

// MemoryTypes lists every valid memory type in a fixed order.
func MemoryTypes() []MemoryType {
	return []MemoryType{
		MemoryTypeProfile,
		MemoryTypePreference,
		MemoryTypeGoal,
		MemoryTypeSkill,
		MemoryTypeFact,
	}
}

// Valid reports whether t is one of the defined memory types.
func (t MemoryType) Valid() bool {
	switch t {
	case MemoryTypeProfile, MemoryTypePreference, MemoryTypeGoal, MemoryTypeSkill, MemoryTypeFact:
		return true
	}
	return false
}

// Sentiment labels produced by the sentiment classifier.
const (
	SentimentPositive = "positive"
	SentimentNegative = "negative"
	SentimentNeutral  = "neutral"
)

// Memory is a single user-authored memory entry.
//
// Sentiment and Confidence are set once at creation by the classifier and are
// never mutated afterwards.
type Memory struct {
	// ID is the unique identifier of the memory.
	ID int64

	// UserID identifies the user who owns this memory.
	UserID string

	// Type classifies the memory (profile, preference, goal, skill, fact).
	Type MemoryType

	// Content is the text content of the memory.
	Content string

	// Importance is a user-assigned weight in [1,5].
	Importance int

	// Sentiment is the classifier label (positive, negative, neutral).
	Sentiment string

	// Confidence is the classifier confidence in [0,1].
	Confidence float64

	// Source contains opaque key-value metadata about where the memory
	// came from.
	Source map[string]interface{}

	// CreatedAt is when the memory was created.
	CreatedAt time.Time

	// UpdatedAt is when the memory was last updated.
	UpdatedAt time.Time
}

// MemoryUpdate describes a partial update to a memory. Nil fields are left
// unchanged; Source replaces the stored metadata wholesale when non-nil.
type MemoryUpdate struct {
	Type       *MemoryType
	Content    *string
	Importance *int
	Source     map[string]interface{}
}

// IsEmpty reports whether the update carries no changes.
func (u *MemoryUpdate) IsEmpty() bool {
	return u.Type == nil && u.Content == nil && u.Importance == nil && u.Source == nil
}

// ListMemoriesOptions filters and pages a memory listing.
type ListMemoriesOptions struct {
	// UserID scopes the listing. Required.
	UserID string

	// Type restricts results to a single memory type when non-empty.
	Type MemoryType

	// Limit caps the number of results. Zero means no cap.
	Limit int

	// Offset skips results for pagination.
	Offset int

	// Ascending orders by created_at ascending when true; the default
	// order is created_at descending.
	Ascending bool
}

// MemoryStore persists memory rows.
type MemoryStore interface {
	// InsertMemory inserts a memory. A zero CreatedAt is replaced with the
	// current time.
	InsertMemory(ctx context.Context, memory *Memory) error

	// GetMemory retrieves a memory owned by userID. Returns ErrNotFound if
	// no such row exists or it belongs to another user.
	GetMemory(ctx context.Context, userID string, id int64) (*Memory, error)

	// UpdateMemory applies a partial update to a memory owned by userID
	// and returns the updated row.
	UpdateMemory(ctx context.Context, userID string, id int64, update *MemoryUpdate) (*Memory, error)

	// DeleteMemory deletes a memory owned by userID.
	DeleteMemory(ctx context.Context, userID string, id int64) error

	// ListMemories lists memories according to opts.
	ListMemories(ctx context.Context, opts *ListMemoriesOptions) ([]*Memory, error)

	// CountMemories counts the memories owned by userID.
	CountMemories(ctx context.Context, userID string) (int, error)

	// GetMemoriesByIDs retrieves the memories among ids that are owned by
	// userID. IDs belonging to other users are silently skipped.
	GetMemoriesByIDs(ctx context.Context, userID string, ids []int64) ([]*Memory, error)
}

// MemoryEmbedding is the dense vector for one memory. One row per memory;
// absence means the memory is not yet semantically searchable.
type MemoryEmbedding struct {
	ID        int64
	MemoryID  int64
	Embedding []float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScoredMemory pairs a memory with its similarity score from a vector search.
type ScoredMemory struct {
	Memory *Memory
	Score  float64
}

// EmbeddingStore persists memory embeddings and answers similarity queries.
type EmbeddingStore interface {
	// UpsertEmbedding inserts or replaces the embedding for
	// embedding.MemoryID (idempotent, keyed on memory_id).
	UpsertEmbedding(ctx context.Context, embedding *MemoryEmbedding) error

	// SearchSimilar ranks userID's embedded memories by cosine similarity
	// against the query vector, keeps those with score >= threshold, and
	// returns at most limit results ordered by score descending with
	// created_at descending as tiebreak.
	SearchSimilar(ctx context.Context, userID string, embedding []float64, threshold float64, limit int) ([]*ScoredMemory, error)
}

// Achievement is a permanently-unlocked badge. At most one row exists per
// (user_id, achievement_type), enforced by a unique constraint in every
// backend.
type Achievement struct {
	ID         int64
	UserID     string
	Type       string
	UnlockedAt *time.Time
	Progress   int
	CreatedAt  time.Time
}

// AchievementStore persists achievement rows.
type AchievementStore interface {
	// ListAchievements lists the achievements unlocked by userID, most
	// recently unlocked first.
	ListAchievements(ctx context.Context, userID string) ([]*Achievement, error)

	// UnlockAchievement inserts an achievement row if none exists for
	// (UserID, Type). It returns true when the row was inserted and false
	// when the achievement was already unlocked; a unique-constraint
	// conflict is not an error.
	UnlockAchievement(ctx context.Context, achievement *Achievement) (bool, error)
}

// Interaction is one side of a chat exchange. The transcript is append-only.
type Interaction struct {
	ID        int64
	UserID    string
	Role      string
	Content   string
	Meta      map[string]interface{}
	CreatedAt time.Time
}

// Chat transcript roles.
const (
	RoleUser          = "user"
	RoleConsciousness = "consciousness"
)

// InteractionStore persists chat interactions.
type InteractionStore interface {
	// InsertInteraction appends an interaction to the transcript.
	InsertInteraction(ctx context.Context, interaction *Interaction) error

	// ListInteractions returns the most recent interactions for userID,
	// newest first, capped at limit.
	ListInteractions(ctx context.Context, userID string, limit int) ([]*Interaction, error)
}

// Store is the combined interface implemented by every backend.
type Store interface {
	MemoryStore
	EmbeddingStore
	AchievementStore
	InteractionStore

	// Close closes the store and releases resources.
	Close() error
}
