// Package mock provides a test double for embeddings.Provider.
package mock

import (
	"context"
	"sync"

	"github.com/tandemscribe/tandem/pkg/provider/embeddings"
)

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a canned embeddings provider. When EmbedFunc is set it replaces
// the fixed Vector/Err behaviour for both Embed and EmbedBatch.
type Provider struct {
	mu    sync.Mutex
	texts []string

	// Vector is returned for every embedded text unless EmbedFunc is set.
	Vector []float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// EmbedFunc, when non-nil, computes the vector per text.
	EmbedFunc func(text string) ([]float32, error)

	// Dims is returned by Dimensions. Zero defaults to len(Vector).
	Dims int

	// Model is returned by ModelID.
	Model string
}

// Embed implements embeddings.Provider.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.texts = append(p.texts, texts...)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.Err != nil {
		return nil, p.Err
	}

	result := make([][]float32, len(texts))
	for i, t := range texts {
		if p.EmbedFunc != nil {
			vec, err := p.EmbedFunc(t)
			if err != nil {
				return nil, err
			}
			result[i] = vec
			continue
		}
		result[i] = p.Vector
	}
	return result, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dims != 0 {
		return p.Dims
	}
	return len(p.Vector)
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	if p.Model != "" {
		return p.Model
	}
	return "mock-embed"
}

// Texts returns every text submitted for embedding, in order.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}
