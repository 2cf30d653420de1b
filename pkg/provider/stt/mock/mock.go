// Package mock provides a scripted stt.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/types"
)

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// Provider is a scripted STT provider. Results are returned in order of
// Transcribe calls; once the script is exhausted the last entry repeats.
// When TranscribeFunc is set it takes precedence over the script.
type Provider struct {
	mu      sync.Mutex
	results []Result
	calls   int

	// TranscribeFunc, when non-nil, fully replaces the scripted behaviour.
	TranscribeFunc func(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error)
}

// Result is one scripted Transcribe outcome.
type Result struct {
	Transcript types.Transcript
	Err        error
}

// New returns a Provider that replays the given results in call order.
func New(results ...Result) *Provider {
	return &Provider{results: results}
}

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error) {
	if p.TranscribeFunc != nil {
		return p.TranscribeFunc(ctx, span, cfg)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.results) == 0 {
		p.calls++
		return types.Transcript{}, nil
	}
	idx := p.calls
	if idx >= len(p.results) {
		idx = len(p.results) - 1
	}
	p.calls++
	r := p.results[idx]
	return r.Transcript, r.Err
}

// Calls returns how many times Transcribe has been invoked.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}
