// Package whisper provides a local STT provider backed by the whisper.cpp
// CGO bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH environment variables.
//
// The model is loaded once at construction and shared across all Transcribe
// calls; each call creates its own whisper context, so concurrent calls do
// not interfere.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/types"
)

const (
	defaultLanguage = "en"

	// whisper.cpp expects 16 kHz mono float32 input.
	whisperSampleRate = 16000
)

// Compile-time assertion that Provider satisfies stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using whisper.cpp Go bindings (CGO).
type Provider struct {
	model    whisperlib.Model
	language string
}

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code for transcription (e.g., "en",
// "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// New creates a Provider that loads the whisper.cpp model from the given
// file path. The caller must call Close when the provider is no longer
// needed.
func New(modelPath string, opts ...Option) (*Provider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &Provider{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model.
func (p *Provider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe implements stt.Provider. The span is normalised to 16 kHz mono
// before inference. Per-word confidence is derived from whisper's token
// probabilities (see mergeTokens); whisper does not diarize, so Speaker is
// always empty.
//
// whisper.cpp contexts are not cancellable mid-inference; ctx is checked
// before inference starts and again before results are assembled.
func (p *Provider) Transcribe(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	norm, err := span.Normalize(whisperSampleRate)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	samples := norm.Float32Mono()
	if len(samples) == 0 {
		return types.Transcript{}, nil
	}

	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines, so a fresh context per call keeps Transcribe concurrent.
	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	if err := wctx.SetLanguage(lang); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: set language %q: %w", lang, err)
	}
	wctx.SetTokenTimestamps(true)

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}

	var words []types.Word
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		words = append(words, segmentWords(segment)...)
	}

	return types.GroupWords(words), nil
}

// segmentWords converts one whisper segment into timed words via token
// merging.
func segmentWords(segment whisperlib.Segment) []types.Word {
	tokens := make([]token, 0, len(segment.Tokens))
	for _, t := range segment.Tokens {
		tokens = append(tokens, token{
			text:    t.Text,
			p:       float64(t.P),
			startMs: t.Start.Milliseconds(),
			endMs:   t.End.Milliseconds(),
		})
	}
	return mergeTokens(tokens)
}
