// Package refine implements the optional LLM arbitration pass over a merged
// transcript. The model receives the reconciled prose and returns corrected
// prose; the engine never re-aligns the result onto word timestamps, so
// refinement only affects the display text of a transcript.
//
// The LLM is a fallible, best-effort collaborator: an unusable response
// (empty, or wildly different in length from the input) is discarded and the
// input text returned unchanged, so the pipeline stays total.
package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/tandemscribe/tandem/pkg/provider/llm"
	"github.com/tandemscribe/tandem/pkg/types"
)

const (
	defaultTemperature = 0.2

	// A plausible refinement stays within these bounds relative to the
	// input length; anything outside is treated as the model rewriting or
	// truncating the transcript and is discarded.
	minLengthRatio = 0.5
	maxLengthRatio = 2.0
)

const systemPrompt = `You are a transcription editor. You receive the raw text of a speech transcript produced by automatic speech recognition.

Your task: fix grammar, punctuation, and capitalisation, and resolve obviously misrecognized words from context.

Rules:
- Do NOT add content that was not spoken, and do NOT remove or summarise content.
- Do NOT rephrase sentences beyond what grammar and punctuation require.
- Keep the speaker's wording; be conservative with any change.
- Respond with ONLY the corrected transcript text. No preamble, no markdown.`

// Option is a functional option for configuring a Refiner.
type Option func(*Refiner)

// WithTemperature sets the sampling temperature. Default: 0.2.
func WithTemperature(temp float64) Option {
	return func(r *Refiner) { r.temperature = temp }
}

// Refiner sends merged transcript prose through an llm.Provider for a final
// grammar/punctuation/arbitration pass. Safe for concurrent use.
type Refiner struct {
	llm         llm.Provider
	temperature float64
}

// New returns a Refiner backed by the given provider.
func New(provider llm.Provider, opts ...Option) *Refiner {
	r := &Refiner{llm: provider, temperature: defaultTemperature}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Refine sends text to the model and returns the corrected prose. hint is an
// optional instruction appended to the user message, typically the hotword
// vocabulary of the request.
//
// Provider and context errors are returned to the caller, which degrades to
// the pre-refinement text. An implausible response is discarded silently:
// Refine returns the input unchanged with a nil error.
func (r *Refiner) Refine(ctx context.Context, text, hint string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return text, nil
	}

	userMsg := trimmed
	if hint != "" {
		userMsg = fmt.Sprintf("%s\n\nVocabulary likely to appear in this transcript: %s", trimmed, hint)
	}

	maxTokens := 0
	if caps := r.llm.Capabilities(); caps.MaxOutputTokens > 0 {
		maxTokens = caps.MaxOutputTokens
	}

	resp, err := r.llm.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     []types.Message{{Role: "user", Content: userMsg}},
		Temperature:  r.temperature,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("refine: %w", err)
	}

	refined := strings.TrimSpace(resp.Content)
	if !plausible(trimmed, refined) {
		return text, nil
	}
	return refined, nil
}

// plausible reports whether refined looks like a corrected version of input
// rather than a rewrite, refusal, or truncation.
func plausible(input, refined string) bool {
	if refined == "" {
		return false
	}
	ratio := float64(len(refined)) / float64(len(input))
	return ratio >= minLengthRatio && ratio <= maxLengthRatio
}
