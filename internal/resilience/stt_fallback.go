package resilience

import (
	"context"

	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/types"
)

// STTFallback implements [stt.Provider] with automatic failover across
// multiple STT engines, each protected by its own circuit breaker. It lets a
// reconciliation pass survive an engine outage without the orchestrator
// knowing which concrete engine answered.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred
// engine.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers an additional STT engine, tried after the primary.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Transcribe implements stt.Provider against the first healthy engine.
func (f *STTFallback) Transcribe(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error) {
	return DoWithResult(f.group, func(p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, span, cfg)
	})
}
