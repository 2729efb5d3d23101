// Package embedder provides the interface for text embedding providers.
package embedder

import "context"

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts a text string into a dense vector embedding.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple texts into embeddings in one call.
	// The result order matches the input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimensionality of the vectors this provider
	// produces.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
