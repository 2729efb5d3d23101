package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Evaluator checks every unlock condition against a user's memory timeline
// and persists newly satisfied achievements.
//
// Evaluation is idempotent: re-checking an already-unlocked achievement only
// reports IsNew=false. Unlock writes are non-fatal side effects; a failed
// insert is logged and the remaining conditions are still evaluated.
type Evaluator struct {
	achievements storage.AchievementStore
	memories     storage.MemoryStore
	node         *snowflake.Node
	logger       *slog.Logger

	// now is swapped in tests.
	now func() time.Time
}

// NewEvaluator creates an achievement evaluator.
func NewEvaluator(achievements storage.AchievementStore, memories storage.MemoryStore, node *snowflake.Node, logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Evaluator{
		achievements: achievements,
		memories:     memories,
		node:         node,
		logger:       logger,
		now:          time.Now,
	}
}

// Evaluate checks all unlock conditions for userID and unlocks any that are
// newly satisfied. The result order is fixed: primeira_memoria, nostalgico,
// explorador, reflexivo.
func (e *Evaluator) Evaluate(ctx context.Context, userID string) ([]Check, error) {
	existing, err := e.achievements.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("evaluate achievements: %w", err)
	}

	unlockedTypes := make(map[string]bool, len(existing))
	for _, a := range existing {
		unlockedTypes[a.Type] = true
	}

	memories, err := e.memories.ListMemories(ctx, &storage.ListMemoriesOptions{
		UserID:    userID,
		Ascending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate achievements: %w", err)
	}

	timestamps := make([]time.Time, len(memories))
	for i, m := range memories {
		timestamps[i] = m.CreatedAt
	}

	conditions := []struct {
		achievementType string
		satisfied       bool
	}{
		{TypePrimeiraMemoria, len(memories) >= 1},
		{TypeNostalgico, len(memories) >= NostalgicoThreshold},
		{TypeExplorador, hasAllTypes(memories)},
		{TypeReflexivo, MaxConsecutiveDays(timestamps) >= ReflexivoStreakDays},
	}

	results := make([]Check, 0, len(conditions))
	for _, cond := range conditions {
		if cond.satisfied && !unlockedTypes[cond.achievementType] {
			results = append(results, e.unlock(ctx, userID, cond.achievementType))
			continue
		}
		results = append(results, Check{
			Type:     cond.achievementType,
			Unlocked: unlockedTypes[cond.achievementType],
			IsNew:    false,
		})
	}

	return results, nil
}

// unlock persists a newly satisfied achievement. The unique constraint on
// (user_id, achievement_type) makes the write safe under concurrent
// evaluations: the loser of the race observes inserted=false.
func (e *Evaluator) unlock(ctx context.Context, userID, achievementType string) Check {
	now := e.now().UTC()
	inserted, err := e.achievements.UnlockAchievement(ctx, &storage.Achievement{
		ID:         e.node.Generate().Int64(),
		UserID:     userID,
		Type:       achievementType,
		UnlockedAt: &now,
		Progress:   100,
	})
	if err != nil {
		e.logger.Error("failed to unlock achievement",
			"achievement_type", achievementType,
			"user_id", userID,
			"error", err)
		return Check{Type: achievementType, Unlocked: true, IsNew: false}
	}

	return Check{Type: achievementType, Unlocked: true, IsNew: inserted}
}

// Overview merges every achievement definition with the user's unlock state,
// for the achievements listing endpoint.
type Overview struct {
	Achievements   []AchievementState `json:"achievements"`
	TotalUnlocked  int                `json:"totalUnlocked"`
	TotalAvailable int                `json:"totalAvailable"`
}

// AchievementState is one definition merged with the user's unlock state.
type AchievementState struct {
	Definition
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlockedAt"`
	Progress   int        `json:"progress"`
}

// Overview returns the full achievement list for userID.
func (e *Evaluator) Overview(ctx context.Context, userID string) (*Overview, error) {
	unlocked, err := e.achievements.ListAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("achievements overview: %w", err)
	}

	byType := make(map[string]*storage.Achievement, len(unlocked))
	for _, a := range unlocked {
		byType[a.Type] = a
	}

	definitions := Definitions()
	states := make([]AchievementState, 0, len(definitions))
	for _, def := range definitions {
		state := AchievementState{Definition: def}
		if a, ok := byType[def.Type]; ok {
			state.Unlocked = true
			state.UnlockedAt = a.UnlockedAt
			state.Progress = a.Progress
		}
		states = append(states, state)
	}

	return &Overview{
		Achievements:   states,
		TotalUnlocked:  len(unlocked),
		TotalAvailable: len(definitions),
	}, nil
}
