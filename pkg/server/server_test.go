package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-ai/soulnet-go/pkg/achievement"
	"github.com/soulnet-ai/soulnet-go/pkg/analytics"
	"github.com/soulnet-ai/soulnet-go/pkg/auth"
	"github.com/soulnet-ai/soulnet-go/pkg/chat"
	"github.com/soulnet-ai/soulnet-go/pkg/config"
	"github.com/soulnet-ai/soulnet-go/pkg/llm"
	"github.com/soulnet-ai/soulnet-go/pkg/memory"
	"github.com/soulnet-ai/soulnet-go/pkg/search"
	"github.com/soulnet-ai/soulnet-go/pkg/sentiment"
	"github.com/soulnet-ai/soulnet-go/pkg/server"
	sqliteStore "github.com/soulnet-ai/soulnet-go/pkg/storage/sqlite"
)

// stubValidator accepts the token "good-token" as user-1.
type stubValidator struct{}

func (v *stubValidator) Validate(_ context.Context, token string) (*auth.User, error) {
	if token == "good-token" {
		return &auth.User{ID: "user-1", Email: "ana@example.com"}, nil
	}
	return nil, auth.ErrInvalidToken
}

// stubLLM answers sentiment prompts with a fixed classification and anything
// else with a fixed reply.
type stubLLM struct{}

func (p *stubLLM) Generate(_ context.Context, _ string, _ ...llm.GenerateOption) (string, error) {
	return "ok", nil
}

func (p *stubLLM) GenerateWithMessages(_ context.Context, messages []llm.Message, _ ...llm.GenerateOption) (string, error) {
	if len(messages) > 0 && strings.Contains(messages[0].Content, "Analise o sentimento") {
		return `{"sentiment": "positive", "confidence": 0.9}`, nil
	}
	return "Olá! Como posso ajudar?", nil
}

func (p *stubLLM) Close() error { return nil }

type stubEmbedder struct{}

func (e *stubEmbedder) Embed(_ context.Context, _ string) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (e *stubEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{1, 0, 0}
	}
	return out, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Close() error    { return nil }

func newTestServer(t *testing.T, cfg *config.Config) *server.Server {
	t.Helper()

	store, err := sqliteStore.NewClient(&sqliteStore.Config{
		DBPath: filepath.Join(t.TempDir(), "server_test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	node, err := snowflake.NewNode(2)
	require.NoError(t, err)

	provider := &stubLLM{}
	embed := &stubEmbedder{}
	classifier := sentiment.NewClassifier(provider, nil)
	evaluator := achievement.NewEvaluator(store, store, node, nil)
	memories := memory.NewService(store, store, classifier, embed, evaluator, node, nil)
	searcher := search.NewEngine(embed, store, 0.75)
	assembler := chat.NewAssembler(provider, store, store, node, "gpt-4o-mini", nil)

	return server.New(&server.Options{
		Config:       cfg,
		Validator:    &stubValidator{},
		Memories:     memories,
		Searcher:     searcher,
		Chat:         assembler,
		Achievements: evaluator,
		Analytics:    analytics.NewService(store),
		Interactions: store,
	})
}

func defaultConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Addr: ":0", RateLimit: 100, RateBurst: 200},
	}
}

func doRequest(t *testing.T, srv *server.Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	return payload
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodGet, "/api/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["ok"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodGet, "/api/memories", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/memories", "bad-token", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAndListMemories(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/memories", "good-token",
		`{"type": "fact", "content": "Visitei o Rio de Janeiro", "importance": 4}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	created := decode(t, rec)
	assert.Equal(t, true, created["success"])
	assert.NotEmpty(t, created["id"])
	newAchievements, ok := created["newAchievements"].([]interface{})
	require.True(t, ok)
	assert.Contains(t, newAchievements, achievement.TypePrimeiraMemoria)

	rec = doRequest(t, srv, http.MethodGet, "/api/memories", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	listed := decode(t, rec)
	assert.Equal(t, float64(1), listed["total"])
	memories, ok := listed["memories"].([]interface{})
	require.True(t, ok)
	require.Len(t, memories, 1)
	first, ok := memories[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "positive", first["sentiment"])
}

func TestCreateMemoryValidation(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	tests := []struct {
		name string
		body string
	}{
		{"missing content", `{"type": "fact"}`},
		{"invalid type", `{"type": "dream", "content": "x"}`},
		{"importance out of range", `{"type": "fact", "content": "x", "importance": 7}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodPost, "/api/memories", "good-token", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSearchValidation(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/memories/search", "good-token", `{"query": "  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchFindsEmbeddedMemory(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/memories", "good-token",
		`{"type": "fact", "content": "Aprendi a surfar", "importance": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = doRequest(t, srv, http.MethodPost, "/api/memories/generate-embeddings", "good-token",
		`{"ids": ["`+id+`"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["processed"])

	rec = doRequest(t, srv, http.MethodPost, "/api/memories/search", "good-token", `{"query": "surf"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decode(t, rec)
	assert.Equal(t, float64(1), payload["total"])
	results := payload["memories"].([]interface{})
	require.Len(t, results, 1)
	hit := results[0].(map[string]interface{})
	assert.InDelta(t, 1.0, hit["similarity"].(float64), 1e-9)
}

func TestGenerateEmbeddingsUnknownIDsNotFound(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/memories/generate-embeddings", "good-token",
		`{"ids": ["424242"]}`)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No memories found", decode(t, rec)["error"])
}

func TestChatFlow(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/chat", "good-token", `{"message": "Oi"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	payload := decode(t, rec)
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, "Olá! Como posso ajudar?", payload["reply"])
	assert.Equal(t, true, payload["persisted"])

	rec = doRequest(t, srv, http.MethodGet, "/api/chat/history", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode(t, rec)["interactions"].([]interface{})
	assert.Len(t, history, 2)
}

func TestAchievementsEndpoint(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/memories", "good-token",
		`{"type": "fact", "content": "primeira", "importance": 3}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/achievements", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["totalUnlocked"])
	assert.Equal(t, float64(4), data["totalAvailable"])
	assert.Len(t, data["achievements"].([]interface{}), 4)
}

func TestAnalyticsEndpoint(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodPost, "/api/memories", "good-token",
		`{"type": "goal", "content": "correr uma maratona", "importance": 5}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/analytics", "good-token", "")
	require.Equal(t, http.StatusOK, rec.Code)

	data := decode(t, rec)["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["total_memories"])
	types := data["type_distribution"].(map[string]interface{})
	assert.Equal(t, float64(1), types["goal"])
}

func TestRateLimit(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{Addr: ":0", RateLimit: 0.001, RateBurst: 1},
	}
	srv := newTestServer(t, cfg)

	rec := doRequest(t, srv, http.MethodGet, "/api/memories", "good-token", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/memories", "good-token", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestDeleteMemoryNotFound(t *testing.T) {
	srv := newTestServer(t, defaultConfig())

	rec := doRequest(t, srv, http.MethodDelete, "/api/memories/12345", "good-token", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, srv, http.MethodDelete, "/api/memories/not-a-number", "good-token", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
