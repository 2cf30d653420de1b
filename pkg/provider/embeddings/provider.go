// Package embeddings defines the Provider interface for text-embedding
// backends.
//
// An embeddings provider maps text to dense float32 vectors. The transcript
// archive uses these vectors to index reconciled transcripts for semantic
// search.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (Dimensions). Vectors from different providers or models
// must never be mixed in the same similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The
	// returned slice has length Dimensions().
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in a single provider
	// call. The result has the same length and order as texts. On error the
	// whole result is nil; partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector this provider
	// produces, constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, for logging
	// and for guarding against mixed-model archives.
	ModelID() string
}
