// Package search implements semantic search over a user's memory embeddings.
//
// A query is embedded and ranked against the user's stored vectors by cosine
// similarity; only results at or above the relevance threshold are returned.
// The scan itself lives in the storage backend so that SQL-native vector
// search (pgvector) and in-memory scans share one contract.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soulnet-ai/soulnet-go/pkg/embedder"
	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

// Defaults and bounds for search parameters.
const (
	// DefaultThreshold is the minimum cosine similarity for a result.
	DefaultThreshold = 0.75

	// DefaultK is the result count used when the caller does not ask for one.
	DefaultK = 10

	// MaxK caps the result count; larger requests are clamped, not rejected.
	MaxK = 50
)

// ErrEmptyQuery indicates an empty or whitespace-only search query.
var ErrEmptyQuery = errors.New("search query is required")

// Engine answers semantic search queries.
type Engine struct {
	embedder  embedder.Provider
	store     storage.EmbeddingStore
	threshold float64
}

// NewEngine creates a search engine. A non-positive threshold falls back to
// DefaultThreshold.
func NewEngine(provider embedder.Provider, store storage.EmbeddingStore, threshold float64) *Engine {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Engine{
		embedder:  provider,
		store:     store,
		threshold: threshold,
	}
}

// Threshold returns the configured similarity threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Search embeds the query and returns userID's memories with similarity >=
// threshold, most similar first, at most k results. k is clamped to
// [1, MaxK]; a non-positive k means DefaultK. Results never cross user
// boundaries regardless of vector similarity.
func (e *Engine) Search(ctx context.Context, userID, query string, k int) ([]*storage.ScoredMemory, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	k = clampK(k)

	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results, err := e.store.SearchSimilar(ctx, userID, vector, e.threshold, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	// Zero matches is an empty result, not an error.
	return results, nil
}

func clampK(k int) int {
	if k <= 0 {
		return DefaultK
	}
	if k > MaxK {
		return MaxK
	}
	return k
}
