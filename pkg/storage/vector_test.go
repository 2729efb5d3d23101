package storage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soulnet-ai/soulnet-go/pkg/storage"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float64
		b    []float64
		want float64
	}{
		{
			name: "identical vectors",
			a:    []float64{1, 2, 3},
			b:    []float64{1, 2, 3},
			want: 1.0,
		},
		{
			name: "orthogonal vectors",
			a:    []float64{1, 0},
			b:    []float64{0, 1},
			want: 0.0,
		},
		{
			name: "opposite vectors",
			a:    []float64{1, 0},
			b:    []float64{-1, 0},
			want: -1.0,
		},
		{
			name: "mismatched lengths",
			a:    []float64{1, 2, 3},
			b:    []float64{1, 2},
			want: 0.0,
		},
		{
			name: "zero vector",
			a:    []float64{0, 0, 0},
			b:    []float64{1, 2, 3},
			want: 0.0,
		},
		{
			name: "scaled vectors keep similarity",
			a:    []float64{1, 2, 3},
			b:    []float64{2, 4, 6},
			want: 1.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := storage.CosineSimilarity(tt.a, tt.b)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSortScored(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	scored := func(id int64, score float64, createdAt time.Time) *storage.ScoredMemory {
		return &storage.ScoredMemory{
			Memory: &storage.Memory{ID: id, CreatedAt: createdAt},
			Score:  score,
		}
	}

	t.Run("orders by score descending", func(t *testing.T) {
		results := storage.SortScored([]*storage.ScoredMemory{
			scored(1, 0.80, base),
			scored(2, 0.95, base),
			scored(3, 0.90, base),
		}, 0)

		require.Len(t, results, 3)
		assert.Equal(t, int64(2), results[0].Memory.ID)
		assert.Equal(t, int64(3), results[1].Memory.ID)
		assert.Equal(t, int64(1), results[2].Memory.ID)
	})

	t.Run("breaks score ties by recency", func(t *testing.T) {
		results := storage.SortScored([]*storage.ScoredMemory{
			scored(1, 0.9, base),
			scored(2, 0.9, base.Add(time.Hour)),
		}, 0)

		require.Len(t, results, 2)
		assert.Equal(t, int64(2), results[0].Memory.ID)
		assert.Equal(t, int64(1), results[1].Memory.ID)
	})

	t.Run("truncates to limit", func(t *testing.T) {
		results := storage.SortScored([]*storage.ScoredMemory{
			scored(1, 0.80, base),
			scored(2, 0.95, base),
			scored(3, 0.90, base),
		}, 2)

		require.Len(t, results, 2)
		assert.Equal(t, int64(2), results[0].Memory.ID)
	})

	t.Run("zero limit keeps everything", func(t *testing.T) {
		results := storage.SortScored([]*storage.ScoredMemory{
			scored(1, 0.5, base),
		}, 0)
		assert.Len(t, results, 1)
	})
}
