package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-ai/soulnet-go/pkg/achievement"
	"github.com/soulnet-ai/soulnet-go/pkg/llm"
	"github.com/soulnet-ai/soulnet-go/pkg/memory"
	"github.com/soulnet-ai/soulnet-go/pkg/sentiment"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// fakeStore is an in-memory implementation of the store interfaces the
// service touches.
type fakeStore struct {
	memories     []*storage.Memory
	embeddings   map[int64][]float64
	achievements []*storage.Achievement
}

func newFakeStore() *fakeStore {
	return &fakeStore{embeddings: make(map[int64][]float64)}
}

func (s *fakeStore) InsertMemory(_ context.Context, m *storage.Memory) error {
	s.memories = append(s.memories, m)
	return nil
}

func (s *fakeStore) GetMemory(_ context.Context, userID string, id int64) (*storage.Memory, error) {
	for _, m := range s.memories {
		if m.ID == id && m.UserID == userID {
			return m, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) UpdateMemory(_ context.Context, userID string, id int64, update *storage.MemoryUpdate) (*storage.Memory, error) {
	for _, m := range s.memories {
		if m.ID != id || m.UserID != userID {
			continue
		}
		if update.Type != nil {
			m.Type = *update.Type
		}
		if update.Content != nil {
			m.Content = *update.Content
		}
		if update.Importance != nil {
			m.Importance = *update.Importance
		}
		if update.Source != nil {
			m.Source = update.Source
		}
		return m, nil
	}
	return nil, storage.ErrNotFound
}

func (s *fakeStore) DeleteMemory(_ context.Context, userID string, id int64) error {
	for i, m := range s.memories {
		if m.ID == id && m.UserID == userID {
			s.memories = append(s.memories[:i], s.memories[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func (s *fakeStore) ListMemories(_ context.Context, opts *storage.ListMemoriesOptions) ([]*storage.Memory, error) {
	var out []*storage.Memory
	for _, m := range s.memories {
		if m.UserID != opts.UserID {
			continue
		}
		if opts.Type != "" && m.Type != opts.Type {
			continue
		}
		out = append(out, m)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

func (s *fakeStore) CountMemories(_ context.Context, userID string) (int, error) {
	count := 0
	for _, m := range s.memories {
		if m.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (s *fakeStore) GetMemoriesByIDs(_ context.Context, userID string, ids []int64) ([]*storage.Memory, error) {
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var out []*storage.Memory
	for _, m := range s.memories {
		if m.UserID == userID && wanted[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertEmbedding(_ context.Context, e *storage.MemoryEmbedding) error {
	s.embeddings[e.MemoryID] = e.Embedding
	return nil
}

func (s *fakeStore) SearchSimilar(_ context.Context, _ string, _ []float64, _ float64, _ int) ([]*storage.ScoredMemory, error) {
	return nil, nil
}

func (s *fakeStore) ListAchievements(_ context.Context, userID string) ([]*storage.Achievement, error) {
	var out []*storage.Achievement
	for _, a := range s.achievements {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) UnlockAchievement(_ context.Context, a *storage.Achievement) (bool, error) {
	for _, existing := range s.achievements {
		if existing.UserID == a.UserID && existing.Type == a.Type {
			return false, nil
		}
	}
	s.achievements = append(s.achievements, a)
	return true, nil
}

// stubLLM returns one canned completion.
type stubLLM struct {
	response string
	err      error
}

func (p *stubLLM) Generate(_ context.Context, _ string, _ ...llm.GenerateOption) (string, error) {
	return p.response, p.err
}

func (p *stubLLM) GenerateWithMessages(_ context.Context, _ []llm.Message, _ ...llm.GenerateOption) (string, error) {
	return p.response, p.err
}

func (p *stubLLM) Close() error { return nil }

// stubEmbedder fails for contents listed in failFor.
type stubEmbedder struct {
	failFor map[string]bool
}

func (e *stubEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if e.failFor[text] {
		return nil, errors.New("embedding failed")
	}
	return []float64{0.1, 0.2, 0.3}, nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(context.Background(), text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Close() error    { return nil }

func newService(t *testing.T, store *fakeStore, provider llm.Provider, embed *stubEmbedder) *memory.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	classifier := sentiment.NewClassifier(provider, nil)
	evaluator := achievement.NewEvaluator(store, store, node, nil)
	return memory.NewService(store, store, classifier, embed, evaluator, node, nil)
}

func TestCreateValidation(t *testing.T) {
	service := newService(t, newFakeStore(), &stubLLM{}, &stubEmbedder{})

	tests := []struct {
		name    string
		req     *memory.CreateRequest
		wantErr error
	}{
		{
			name:    "empty content",
			req:     &memory.CreateRequest{Type: storage.MemoryTypeFact, Importance: 3},
			wantErr: memory.ErrEmptyContent,
		},
		{
			name:    "invalid type",
			req:     &memory.CreateRequest{Type: "dream", Content: "x", Importance: 3},
			wantErr: memory.ErrInvalidType,
		},
		{
			name:    "importance too low",
			req:     &memory.CreateRequest{Type: storage.MemoryTypeFact, Content: "x", Importance: 0},
			wantErr: memory.ErrInvalidImportance,
		},
		{
			name:    "importance too high",
			req:     &memory.CreateRequest{Type: storage.MemoryTypeFact, Content: "x", Importance: 6},
			wantErr: memory.ErrInvalidImportance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Create(context.Background(), "user-1", tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCreateStoresClassifiedSentiment(t *testing.T) {
	store := newFakeStore()
	provider := &stubLLM{response: `{"sentiment": "positive", "confidence": 0.92}`}
	service := newService(t, store, provider, &stubEmbedder{})

	result, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "Consegui meu primeiro emprego",
		Importance: 5,
	})
	require.NoError(t, err)

	assert.Equal(t, storage.SentimentPositive, result.Memory.Sentiment)
	assert.InDelta(t, 0.92, result.Memory.Confidence, 1e-9)
	require.Len(t, store.memories, 1)
}

func TestCreateSurvivesClassifierFailure(t *testing.T) {
	store := newFakeStore()
	provider := &stubLLM{err: errors.New("provider down")}
	service := newService(t, store, provider, &stubEmbedder{})

	result, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "um dia qualquer",
		Importance: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, storage.SentimentNeutral, result.Memory.Sentiment)
	assert.InDelta(t, 0.5, result.Memory.Confidence, 1e-9)
}

func TestCreateReportsNewAchievements(t *testing.T) {
	store := newFakeStore()
	service := newService(t, store, &stubLLM{response: `{"sentiment": "neutral", "confidence": 0.5}`}, &stubEmbedder{})

	result, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "primeira memoria",
		Importance: 3,
	})
	require.NoError(t, err)

	require.Len(t, result.NewAchievements, 1)
	assert.Equal(t, achievement.TypePrimeiraMemoria, result.NewAchievements[0].Type)
	assert.True(t, result.NewAchievements[0].IsNew)

	// A second memory unlocks nothing further.
	result, err = service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "segunda memoria",
		Importance: 3,
	})
	require.NoError(t, err)
	assert.Empty(t, result.NewAchievements)
}

func TestUpdateValidation(t *testing.T) {
	store := newFakeStore()
	service := newService(t, store, &stubLLM{}, &stubEmbedder{})

	_, err := service.Update(context.Background(), "user-1", 1, &memory.UpdateRequest{})
	assert.ErrorIs(t, err, memory.ErrEmptyUpdate)

	badType := storage.MemoryType("dream")
	_, err = service.Update(context.Background(), "user-1", 1, &memory.UpdateRequest{Type: &badType})
	assert.ErrorIs(t, err, memory.ErrInvalidType)

	empty := ""
	_, err = service.Update(context.Background(), "user-1", 1, &memory.UpdateRequest{Content: &empty})
	assert.ErrorIs(t, err, memory.ErrEmptyContent)

	tooHigh := 9
	_, err = service.Update(context.Background(), "user-1", 1, &memory.UpdateRequest{Importance: &tooHigh})
	assert.ErrorIs(t, err, memory.ErrInvalidImportance)

	fine := 4
	_, err = service.Update(context.Background(), "user-1", 99, &memory.UpdateRequest{Importance: &fine})
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestUpdatePreservesSentiment(t *testing.T) {
	store := newFakeStore()
	service := newService(t, store, &stubLLM{response: `{"sentiment": "positive", "confidence": 0.9}`}, &stubEmbedder{})

	created, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "dia otimo",
		Importance: 4,
	})
	require.NoError(t, err)

	newContent := "dia pessimo na verdade"
	updated, err := service.Update(context.Background(), "user-1", created.Memory.ID, &memory.UpdateRequest{
		Content: &newContent,
	})
	require.NoError(t, err)

	assert.Equal(t, newContent, updated.Content)
	assert.Equal(t, storage.SentimentPositive, updated.Sentiment)
	assert.InDelta(t, 0.9, updated.Confidence, 1e-9)
}

func TestDeleteNotFound(t *testing.T) {
	service := newService(t, newFakeStore(), &stubLLM{}, &stubEmbedder{})
	err := service.Delete(context.Background(), "user-1", 42)
	assert.ErrorIs(t, err, memory.ErrNotFound)
}

func TestListFiltersAndCounts(t *testing.T) {
	store := newFakeStore()
	service := newService(t, store, &stubLLM{response: `{"sentiment": "neutral", "confidence": 0.5}`}, &stubEmbedder{})

	for _, memType := range []storage.MemoryType{storage.MemoryTypeFact, storage.MemoryTypeFact, storage.MemoryTypeGoal} {
		_, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
			Type:       memType,
			Content:    "conteudo",
			Importance: 3,
		})
		require.NoError(t, err)
	}

	result, err := service.List(context.Background(), "user-1", &memory.ListRequest{Type: storage.MemoryTypeFact})
	require.NoError(t, err)
	assert.Len(t, result.Memories, 2)
	assert.Equal(t, 3, result.Total)

	_, err = service.List(context.Background(), "user-1", &memory.ListRequest{Type: "dream"})
	assert.ErrorIs(t, err, memory.ErrInvalidType)
}

func TestGenerateEmbeddingsValidation(t *testing.T) {
	service := newService(t, newFakeStore(), &stubLLM{}, &stubEmbedder{})

	_, err := service.GenerateEmbeddings(context.Background(), "user-1", nil)
	assert.ErrorIs(t, err, memory.ErrEmptyBatch)

	ids := make([]int64, memory.MaxBatchSize+1)
	_, err = service.GenerateEmbeddings(context.Background(), "user-1", ids)
	assert.ErrorIs(t, err, memory.ErrBatchTooLarge)
}

func TestGenerateEmbeddingsPartialFailure(t *testing.T) {
	store := newFakeStore()
	embed := &stubEmbedder{failFor: map[string]bool{"conteudo ruim": true}}
	service := newService(t, store, &stubLLM{response: `{"sentiment": "neutral", "confidence": 0.5}`}, embed)

	good, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "conteudo bom",
		Importance: 3,
	})
	require.NoError(t, err)
	bad, err := service.Create(context.Background(), "user-1", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "conteudo ruim",
		Importance: 3,
	})
	require.NoError(t, err)

	result, err := service.GenerateEmbeddings(context.Background(), "user-1", []int64{
		good.Memory.ID,
		bad.Memory.ID,
		99999, // not owned by anyone
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 2, result.Failed)
	assert.Len(t, result.Errors, 2)
	assert.Contains(t, store.embeddings, good.Memory.ID)
	assert.NotContains(t, store.embeddings, bad.Memory.ID)
}

func TestGenerateEmbeddingsAllUnknownIDs(t *testing.T) {
	store := newFakeStore()
	service := newService(t, store, &stubLLM{response: `{"sentiment": "neutral", "confidence": 0.5}`}, &stubEmbedder{})

	// Memories belong to another user, so none of the IDs resolve.
	other, err := service.Create(context.Background(), "user-2", &memory.CreateRequest{
		Type:       storage.MemoryTypeFact,
		Content:    "conteudo",
		Importance: 3,
	})
	require.NoError(t, err)

	_, err = service.GenerateEmbeddings(context.Background(), "user-1", []int64{other.Memory.ID, 99999})
	assert.ErrorIs(t, err, memory.ErrNotFound)
	assert.Empty(t, store.embeddings)
}
