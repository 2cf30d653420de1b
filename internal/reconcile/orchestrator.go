package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tandemscribe/tandem/internal/hotword"
	"github.com/tandemscribe/tandem/internal/observe"
	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/types"
)

// Mode selects the reconciliation strategy.
type Mode string

const (
	// ModeParallel runs both STT passes over the whole span and votes on
	// disagreements.
	ModeParallel Mode = "parallel"

	// ModeConfidence runs the primary pass, then re-transcribes only
	// low-confidence spans with the secondary engine.
	ModeConfidence Mode = "confidence"
)

// Request describes one reconciliation of an audio span. All fields are read
// only for the duration of the request; nothing is cached between requests.
type Request struct {
	Audio audio.Span

	Mode Mode

	// ConfidenceThreshold flags words below it in confidence mode. <= 0
	// disables span detection.
	ConfidenceThreshold float64

	// ContextWords pads each low-confidence span on both sides.
	ContextWords int

	// UseLLM enables the final refinement pass.
	UseLLM bool

	// Hotwords is the vocabulary for fuzzy correction and STT keyword
	// boosting, supplied per request.
	Hotwords []string

	// Language is the BCP-47 recognition language, empty for the providers'
	// defaults.
	Language string
}

// Result is the outcome of one reconciliation. The Used* flags and
// FailedSpans tell the caller which stages actually ran, so a silently
// degraded hybrid pass is visible rather than pretending to be complete.
type Result struct {
	// Transcript is the final timed-word transcript.
	Transcript types.Transcript `json:"transcript"`

	// DisplayText is the prose form. It diverges from Transcript's wording
	// only when LLM refinement ran: refined prose is never re-aligned onto
	// word timestamps.
	DisplayText string `json:"displayText"`

	// Mode is the strategy that actually ran, after defaulting.
	Mode Mode `json:"mode"`

	UsedSecondary bool `json:"usedSecondary"`
	UsedLLM       bool `json:"usedLLM"`
	FailedSpans   int  `json:"failedSpans"`
}

// Refiner is the LLM arbitration capability consumed by the orchestrator.
// Implemented by refine.Refiner.
type Refiner interface {
	Refine(ctx context.Context, text, hint string) (string, error)
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSecondary sets the secondary STT engine. Without one, parallel mode
// degrades to a primary-only pass and confidence spans cannot be
// re-transcribed.
func WithSecondary(name string, p stt.Provider) Option {
	return func(o *Orchestrator) {
		o.secondaryName = name
		o.secondary = p
	}
}

// WithRefiner sets the LLM refinement capability.
func WithRefiner(r Refiner) Option {
	return func(o *Orchestrator) { o.refiner = r }
}

// WithMetrics sets the metrics sink. A nil sink disables instrumentation.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs the reconciliation state machine:
//
//	primary → { parallel: secondary ∥, align, merge
//	          | confidence: detect spans, re-transcribe spans ∥, substitute }
//	→ hotword correct → optional LLM refine
//
// Failures of the secondary engine or the LLM degrade to the best available
// intermediate result; only a failed or empty primary pass is fatal. The
// orchestrator is stateless across requests and safe for concurrent use.
type Orchestrator struct {
	primaryName   string
	primary       stt.Provider
	secondaryName string
	secondary     stt.Provider
	refiner       Refiner
	metrics       *observe.Metrics
	logger        *slog.Logger
}

// New creates an Orchestrator around the mandatory primary STT engine.
func New(primaryName string, primary stt.Provider, opts ...Option) (*Orchestrator, error) {
	if primary == nil {
		return nil, errors.New("reconcile: primary provider must not be nil")
	}
	o := &Orchestrator{
		primaryName: primaryName,
		primary:     primary,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Reconcile runs one request end to end. Cancelling ctx propagates to all
// in-flight provider calls and aborts the request; no partial transcript is
// returned on cancellation.
func (o *Orchestrator) Reconcile(ctx context.Context, req Request) (*Result, error) {
	mode := req.Mode
	if mode == "" {
		mode = ModeParallel
	}

	start := time.Now()
	o.metrics.AddInFlight(ctx, 1)
	status := "error"
	defer func() {
		o.metrics.AddInFlight(ctx, -1)
		o.metrics.RecordReconcile(ctx, string(mode), status, time.Since(start).Seconds())
	}()

	dict := hotword.Merge(req.Hotwords)
	sttCfg := stt.RecognitionConfig{
		Language: req.Language,
		Keywords: keywordBoosts(dict),
	}

	res := &Result{Mode: mode}
	var words []types.Word
	var err error

	switch mode {
	case ModeParallel:
		words, err = o.runParallel(ctx, req.Audio, sttCfg, res)
	case ModeConfidence:
		words, err = o.runConfidence(ctx, req, sttCfg, res)
	default:
		return nil, fmt.Errorf("reconcile: unknown mode %q", mode)
	}
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	corrected := hotword.Correct(words, dict)
	o.metrics.AddHotwordCorrections(ctx, countChanged(words, corrected))

	res.Transcript = types.GroupWords(corrected)
	res.DisplayText = res.Transcript.Text()

	if req.UseLLM {
		o.refine(ctx, res, dict)
		// A failing LLM degrades, but a cancelled request must not surface a
		// partial transcript.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	status = "ok"
	if res.FailedSpans > 0 {
		status = "partial"
	}
	return res, nil
}

// runParallel transcribes the whole span with both engines concurrently and
// merges the aligned results. A missing or failing secondary degrades to the
// primary words alone.
func (o *Orchestrator) runParallel(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig, res *Result) ([]types.Word, error) {
	if o.secondary == nil {
		o.logger.Warn("parallel mode without secondary engine, primary-only pass",
			"err", ErrCapabilityUnavailable)
		return o.runPrimary(ctx, span, cfg)
	}

	var primaryT, secondaryT types.Transcript
	var secErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := o.timedTranscribe(gctx, o.primary, o.primaryName, "primary", span, cfg)
		if err != nil {
			return fmt.Errorf("reconcile: primary pass: %w", err)
		}
		primaryT = t
		return nil
	})
	g.Go(func() error {
		t, err := o.timedTranscribe(gctx, o.secondary, o.secondaryName, "secondary", span, cfg)
		if err != nil {
			// Recovered locally; only primary failure aborts the group.
			secErr = err
			return nil
		}
		secondaryT = t
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	primaryWords := primaryT.Words()
	if len(primaryWords) == 0 {
		return nil, ErrEmptyTranscript
	}

	secondaryWords := secondaryT.Words()
	if secErr != nil || len(secondaryWords) == 0 {
		if secErr != nil {
			o.logger.Warn("secondary pass failed, using primary only",
				"provider", o.secondaryName, "err", secErr)
			o.metrics.RecordProviderError(ctx, o.secondaryName, "stt")
		}
		return primaryWords, nil
	}

	alignStart := time.Now()
	pairs, alignErr := Align(primaryWords, secondaryWords)
	o.metrics.RecordAlign(ctx, time.Since(alignStart).Seconds())
	if alignErr != nil {
		o.logger.Warn("alignment fell back to one-sided mapping",
			"primaryWords", len(primaryWords), "secondaryWords", len(secondaryWords),
			"err", alignErr)
	}

	mergeStart := time.Now()
	merged := Merge(pairs)
	o.metrics.RecordMerge(ctx, time.Since(mergeStart).Seconds())

	res.UsedSecondary = true
	return merged, nil
}

// runConfidence transcribes with the primary engine, then re-transcribes
// low-confidence spans concurrently with the secondary engine and splices
// the results back in. Zero detected spans short-circuits to the primary
// words without touching the secondary engine.
func (o *Orchestrator) runConfidence(ctx context.Context, req Request, cfg stt.RecognitionConfig, res *Result) ([]types.Word, error) {
	words, err := o.runPrimary(ctx, req.Audio, cfg)
	if err != nil {
		return nil, err
	}

	spans := DetectLowConfidence(words, req.ConfidenceThreshold, req.ContextWords)
	if len(spans) == 0 {
		return words, nil
	}

	if o.secondary == nil {
		o.logger.Warn("low-confidence spans detected but no secondary engine",
			"spans", len(spans), "err", ErrCapabilityUnavailable)
		res.FailedSpans = len(spans)
		o.metrics.AddFailedSpans(ctx, len(spans))
		return words, nil
	}

	results := make([][]types.Word, len(spans))
	g, gctx := errgroup.WithContext(ctx)
	for i, sp := range spans {
		clip := req.Audio.Clip(words[sp.Start].StartMs, words[sp.End-1].EndMs)
		g.Go(func() error {
			t, err := o.timedTranscribe(gctx, o.secondary, o.secondaryName, "secondary", clip, cfg)
			if err != nil {
				o.logger.Warn("span re-transcription failed",
					"span", i, "provider", o.secondaryName, "err", err)
				o.metrics.RecordProviderError(gctx, o.secondaryName, "stt")
				return nil
			}
			results[i] = t.Words()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	replacements := make(map[int][]types.Word, len(spans))
	for i, r := range results {
		if len(r) > 0 {
			replacements[i] = r
		}
	}

	mergeStart := time.Now()
	out, failed := Substitute(words, spans, replacements)
	o.metrics.RecordMerge(ctx, time.Since(mergeStart).Seconds())

	res.UsedSecondary = len(replacements) > 0
	res.FailedSpans = failed
	o.metrics.AddFailedSpans(ctx, failed)
	return out, nil
}

// runPrimary runs the mandatory primary pass. An empty result is fatal.
func (o *Orchestrator) runPrimary(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) ([]types.Word, error) {
	t, err := o.timedTranscribe(ctx, o.primary, o.primaryName, "primary", span, cfg)
	if err != nil {
		return nil, fmt.Errorf("reconcile: primary pass: %w", err)
	}
	words := t.Words()
	if len(words) == 0 {
		return nil, ErrEmptyTranscript
	}
	return words, nil
}

// refine runs the optional LLM pass over the display text. Failures keep the
// pre-refinement text and leave UsedLLM false.
func (o *Orchestrator) refine(ctx context.Context, res *Result, dict []string) {
	if o.refiner == nil {
		o.logger.Warn("refinement requested but no LLM configured",
			"err", ErrCapabilityUnavailable)
		return
	}

	hint := strings.Join(dict, ", ")

	start := time.Now()
	refined, err := o.refiner.Refine(ctx, res.DisplayText, hint)
	o.metrics.RecordRefine(ctx, time.Since(start).Seconds())
	if err != nil {
		o.logger.Warn("refinement failed, keeping merged text", "err", err)
		o.metrics.RecordProviderError(ctx, "llm", "refine")
		return
	}
	res.DisplayText = refined
	res.UsedLLM = true
}

func (o *Orchestrator) timedTranscribe(ctx context.Context, p stt.Provider, name, role string, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error) {
	start := time.Now()
	t, err := p.Transcribe(ctx, span, cfg)
	o.metrics.RecordSTT(ctx, name, role, time.Since(start).Seconds())
	return t, err
}

func keywordBoosts(dict []string) []types.KeywordBoost {
	if len(dict) == 0 {
		return nil
	}
	boosts := make([]types.KeywordBoost, len(dict))
	for i, term := range dict {
		boosts[i] = types.KeywordBoost{Keyword: term, Boost: 1}
	}
	return boosts
}

func countChanged(before, after []types.Word) int {
	// The corrector can merge split terms, so compare conservatively over
	// the shorter list plus any length delta.
	n := 0
	limit := min(len(before), len(after))
	for i := 0; i < limit; i++ {
		if before[i].Text != after[i].Text {
			n++
		}
	}
	return n + (len(before) - len(after))
}
