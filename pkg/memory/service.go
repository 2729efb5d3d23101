// Package memory implements the memory lifecycle: validated creation with
// sentiment enrichment, partial updates, deletion, paged listing and batch
// embedding generation.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/soulnet-ai/soulnet-go/pkg/achievement"
	"github.com/soulnet-ai/soulnet-go/pkg/embedder"
	"github.com/soulnet-ai/soulnet-go/pkg/sentiment"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// MaxBatchSize caps the number of memories per embedding batch.
const MaxBatchSize = 50

// CreateRequest describes a memory to create.
type CreateRequest struct {
	Type       storage.MemoryType
	Content    string
	Importance int
	Source     map[string]interface{}
}

// CreateResult is a created memory plus the achievements it unlocked.
type CreateResult struct {
	Memory          *storage.Memory
	NewAchievements []achievement.Check
}

// UpdateRequest describes a partial update. Nil fields are left unchanged.
type UpdateRequest struct {
	Type       *storage.MemoryType
	Content    *string
	Importance *int
	Source     map[string]interface{}
}

// ListRequest pages and filters a memory listing.
type ListRequest struct {
	Type   storage.MemoryType
	Limit  int
	Offset int
}

// ListResult is one page of memories plus the user's total count.
type ListResult struct {
	Memories []*storage.Memory
	Total    int
}

// BatchResult reports the outcome of a batch embedding run. Items succeed and
// fail independently.
type BatchResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Service coordinates memory persistence with sentiment classification,
// embedding generation and achievement evaluation.
type Service struct {
	memories   storage.MemoryStore
	embeddings storage.EmbeddingStore
	classifier *sentiment.Classifier
	embedder   embedder.Provider
	evaluator  *achievement.Evaluator
	node       *snowflake.Node
	logger     *slog.Logger
}

// NewService creates a memory service.
func NewService(
	memories storage.MemoryStore,
	embeddings storage.EmbeddingStore,
	classifier *sentiment.Classifier,
	provider embedder.Provider,
	evaluator *achievement.Evaluator,
	node *snowflake.Node,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		memories:   memories,
		embeddings: embeddings,
		classifier: classifier,
		embedder:   provider,
		evaluator:  evaluator,
		node:       node,
		logger:     logger,
	}
}

// Create validates and stores a new memory. The content is classified for
// sentiment before insertion; classification never blocks creation. After the
// insert, achievements are re-evaluated and any newly unlocked ones are
// returned. Evaluation failures are logged, not propagated: the memory is
// already persisted at that point.
func (s *Service) Create(ctx context.Context, userID string, req *CreateRequest) (*CreateResult, error) {
	if err := validateCreate(req); err != nil {
		return nil, err
	}

	analysis := s.classifier.Classify(ctx, req.Content)

	now := time.Now()
	mem := &storage.Memory{
		ID:         s.node.Generate().Int64(),
		UserID:     userID,
		Type:       req.Type,
		Content:    req.Content,
		Importance: req.Importance,
		Sentiment:  analysis.Sentiment,
		Confidence: analysis.Confidence,
		Source:     req.Source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.memories.InsertMemory(ctx, mem); err != nil {
		return nil, fmt.Errorf("failed to create memory: %w", err)
	}

	result := &CreateResult{Memory: mem}

	checks, err := s.evaluator.Evaluate(ctx, userID)
	if err != nil {
		s.logger.Warn("achievement evaluation failed after memory creation",
			slog.String("user_id", userID),
			slog.Int64("memory_id", mem.ID),
			slog.Any("error", err))
		return result, nil
	}
	for _, check := range checks {
		if check.IsNew {
			result.NewAchievements = append(result.NewAchievements, check)
		}
	}
	return result, nil
}

// Get retrieves a memory owned by userID.
func (s *Service) Get(ctx context.Context, userID string, id int64) (*storage.Memory, error) {
	mem, err := s.memories.GetMemory(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	return mem, nil
}

// Update applies a partial update. Sentiment and confidence are fixed at
// creation and cannot be changed here, even when the content is.
func (s *Service) Update(ctx context.Context, userID string, id int64, req *UpdateRequest) (*storage.Memory, error) {
	update := &storage.MemoryUpdate{
		Type:       req.Type,
		Content:    req.Content,
		Importance: req.Importance,
		Source:     req.Source,
	}
	if update.IsEmpty() {
		return nil, ErrEmptyUpdate
	}
	if update.Type != nil && !update.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, *update.Type)
	}
	if update.Content != nil && *update.Content == "" {
		return nil, ErrEmptyContent
	}
	if update.Importance != nil && (*update.Importance < 1 || *update.Importance > 5) {
		return nil, ErrInvalidImportance
	}

	mem, err := s.memories.UpdateMemory(ctx, userID, id, update)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update memory: %w", err)
	}
	return mem, nil
}

// Delete removes a memory owned by userID. The backend drops its embedding
// row with it.
func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if err := s.memories.DeleteMemory(ctx, userID, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete memory: %w", err)
	}
	return nil
}

// List returns one page of userID's memories, newest first, plus the user's
// total memory count for pagination.
func (s *Service) List(ctx context.Context, userID string, req *ListRequest) (*ListResult, error) {
	if req.Type != "" && !req.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}

	memories, err := s.memories.ListMemories(ctx, &storage.ListMemoriesOptions{
		UserID: userID,
		Type:   req.Type,
		Limit:  limit,
		Offset: req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	total, err := s.memories.CountMemories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}
	return &ListResult{Memories: memories, Total: total}, nil
}

// GenerateEmbeddings computes and stores embeddings for up to MaxBatchSize of
// userID's memories. Each memory is processed independently: a failure is
// recorded in the result and the batch moves on. IDs that do not resolve to a
// memory owned by userID are counted as failures; if none resolve, the whole
// batch is ErrNotFound.
func (s *Service) GenerateEmbeddings(ctx context.Context, userID string, ids []int64) (*BatchResult, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(ids) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}

	memories, err := s.memories.GetMemoriesByIDs(ctx, userID, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load memories: %w", err)
	}
	if len(memories) == 0 {
		return nil, ErrNotFound
	}
	byID := make(map[int64]*storage.Memory, len(memories))
	for _, m := range memories {
		byID[m.ID] = m
	}

	result := &BatchResult{}
	for _, id := range ids {
		mem, ok := byID[id]
		if !ok {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("memory %d: not found", id))
			continue
		}
		if err := s.embedMemory(ctx, mem); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("memory %d: %v", id, err))
			s.logger.Warn("embedding generation failed",
				slog.String("user_id", userID),
				slog.Int64("memory_id", id),
				slog.Any("error", err))
			continue
		}
		result.Processed++
	}
	return result, nil
}

func (s *Service) embedMemory(ctx context.Context, mem *storage.Memory) error {
	vector, err := s.embedder.Embed(ctx, mem.Content)
	if err != nil {
		return err
	}
	return s.embeddings.UpsertEmbedding(ctx, &storage.MemoryEmbedding{
		ID:        s.node.Generate().Int64(),
		MemoryID:  mem.ID,
		Embedding: vector,
	})
}

func validateCreate(req *CreateRequest) error {
	if req.Content == "" {
		return ErrEmptyContent
	}
	if !req.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidType, req.Type)
	}
	if req.Importance < 1 || req.Importance > 5 {
		return ErrInvalidImportance
	}
	return nil
}
