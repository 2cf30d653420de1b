package reconcile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/tandemscribe/tandem/internal/reconcile"
	"github.com/tandemscribe/tandem/internal/refine"
	"github.com/tandemscribe/tandem/pkg/audio"
	llmmock "github.com/tandemscribe/tandem/pkg/provider/llm/mock"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	sttmock "github.com/tandemscribe/tandem/pkg/provider/stt/mock"
	"github.com/tandemscribe/tandem/pkg/types"
)

func testSpan() audio.Span {
	return audio.Span{PCM: make([]byte, 32000), SampleRate: 16000, Channels: 1}
}

func transcript(words ...types.Word) types.Transcript {
	return types.GroupWords(words)
}

func TestReconcile_ParallelVoting(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("hello", 0, 300, 0.9),
		word("wrld", 300, 600, 0.3),
	)})
	secondary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("hello", 0, 300, 0.95),
		word("world", 300, 600, 0.9),
	)})

	o, err := reconcile.New("p", primary, reconcile.WithSecondary("s", secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio: testSpan(),
		Mode:  reconcile.ModeParallel,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if got := res.Transcript.Text(); got != "hello world" {
		t.Errorf("Text() = %q, want %q", got, "hello world")
	}
	if !res.UsedSecondary {
		t.Error("UsedSecondary = false, want true")
	}
	if res.UsedLLM {
		t.Error("UsedLLM = true, want false without refinement")
	}
}

func TestReconcile_SecondaryFailureDegradesToPrimary(t *testing.T) {
	t.Parallel()

	primaryWords := []types.Word{
		word("hello", 0, 300, 0.9),
		word("world", 300, 600, 0.9),
	}
	primary := sttmock.New(sttmock.Result{Transcript: transcript(primaryWords...)})
	secondary := sttmock.New(sttmock.Result{Err: errors.New("engine down")})

	o, err := reconcile.New("p", primary, reconcile.WithSecondary("s", secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio: testSpan(),
		Mode:  reconcile.ModeParallel,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.UsedSecondary {
		t.Error("UsedSecondary = true, want false after secondary failure")
	}

	got := res.Transcript.Words()
	if len(got) != len(primaryWords) {
		t.Fatalf("got %d words, want %d", len(got), len(primaryWords))
	}
	for i := range got {
		if got[i] != primaryWords[i] {
			t.Errorf("word %d = %+v, want primary's %+v", i, got[i], primaryWords[i])
		}
	}
}

func TestReconcile_PrimaryFailureIsFatal(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Err: errors.New("engine down")})
	o, err := reconcile.New("p", primary)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := o.Reconcile(context.Background(), reconcile.Request{Audio: testSpan()}); err == nil {
		t.Fatal("Reconcile succeeded with a failing primary engine")
	}
}

func TestReconcile_EmptyPrimaryTranscript(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{})
	o, err := reconcile.New("p", primary)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = o.Reconcile(context.Background(), reconcile.Request{Audio: testSpan()})
	if !errors.Is(err, reconcile.ErrEmptyTranscript) {
		t.Fatalf("err = %v, want ErrEmptyTranscript", err)
	}
}

func TestReconcile_ConfidenceShortCircuit(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("all", 0, 200, 0.9),
		word("good", 200, 400, 0.9),
	)})
	secondary := sttmock.New()

	o, err := reconcile.New("p", primary, reconcile.WithSecondary("s", secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio:               testSpan(),
		Mode:                reconcile.ModeConfidence,
		ConfidenceThreshold: 0.5,
		ContextWords:        2,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if secondary.Calls() != 0 {
		t.Errorf("secondary invoked %d times, want 0 on the fast path", secondary.Calls())
	}
	if res.UsedSecondary {
		t.Error("UsedSecondary = true, want false")
	}
	if got := res.Transcript.Text(); got != "all good" {
		t.Errorf("Text() = %q, want %q", got, "all good")
	}
}

func TestReconcile_ConfidenceSpanSubstitution(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("the", 0, 200, 0.9),
		word("quick", 200, 400, 0.9),
		word("brwn", 400, 600, 0.2),
		word("fox", 600, 800, 0.9),
		word("jumps", 800, 1000, 0.9),
	)})
	secondary := &sttmock.Provider{
		TranscribeFunc: func(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error) {
			// Sub-clip of the low-confidence span; timestamps are relative.
			return transcript(
				word("quick", 0, 200, 0.95),
				word("brown", 200, 400, 0.95),
				word("fox", 400, 600, 0.95),
			), nil
		},
	}

	o, err := reconcile.New("p", primary, reconcile.WithSecondary("s", secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio:               testSpan(),
		Mode:                reconcile.ModeConfidence,
		ConfidenceThreshold: 0.5,
		ContextWords:        1,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !res.UsedSecondary {
		t.Error("UsedSecondary = false, want true")
	}
	if res.FailedSpans != 0 {
		t.Errorf("FailedSpans = %d, want 0", res.FailedSpans)
	}
	if got := res.Transcript.Text(); got != "the quick brown fox jumps" {
		t.Errorf("Text() = %q, want %q", got, "the quick brown fox jumps")
	}

	// Words outside the span keep their exact timestamps.
	words := res.Transcript.Words()
	if words[0] != word("the", 0, 200, 0.9) {
		t.Errorf("words[0] = %+v, changed outside the span", words[0])
	}
	if words[4] != word("jumps", 800, 1000, 0.9) {
		t.Errorf("words[4] = %+v, changed outside the span", words[4])
	}
}

func TestReconcile_ConfidenceSpanFailureKeepsOriginal(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("a", 0, 200, 0.9),
		word("b", 200, 400, 0.1),
		word("c", 400, 600, 0.9),
	)})
	secondary := sttmock.New(sttmock.Result{Err: errors.New("engine down")})

	o, err := reconcile.New("p", primary, reconcile.WithSecondary("s", secondary))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio:               testSpan(),
		Mode:                reconcile.ModeConfidence,
		ConfidenceThreshold: 0.5,
		ContextWords:        0,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.UsedSecondary {
		t.Error("UsedSecondary = true, want false when every span failed")
	}
	if res.FailedSpans != 1 {
		t.Errorf("FailedSpans = %d, want 1", res.FailedSpans)
	}
	if got := res.Transcript.Text(); got != "a b c" {
		t.Errorf("Text() = %q, want original %q", got, "a b c")
	}
}

func TestReconcile_HotwordCorrection(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("the", 0, 200, 0.9),
		word("api", 200, 400, 0.9),
	)})

	o, err := reconcile.New("p", primary)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio:    testSpan(),
		Hotwords: []string{"API"},
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	words := res.Transcript.Words()
	if words[1].Text != "API" {
		t.Errorf("words[1].Text = %q, want %q", words[1].Text, "API")
	}
	if words[1].StartMs != 200 || words[1].EndMs != 400 || words[1].Confidence != 0.9 {
		t.Errorf("correction changed timing or confidence: %+v", words[1])
	}
}

func TestReconcile_LLMFailureKeepsMergedText(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("hello", 0, 300, 0.9),
		word("world", 300, 600, 0.9),
	)})
	refiner := refine.New(&llmmock.Provider{Err: errors.New("llm down")})

	o, err := reconcile.New("p", primary, reconcile.WithRefiner(refiner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio:  testSpan(),
		UseLLM: true,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if res.UsedLLM {
		t.Error("UsedLLM = true, want false after LLM failure")
	}
	if res.DisplayText != "hello world" {
		t.Errorf("DisplayText = %q, want pre-refinement %q", res.DisplayText, "hello world")
	}
}

func TestReconcile_LLMRefinesDisplayTextOnly(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("hello", 0, 300, 0.9),
		word("world", 300, 600, 0.9),
	)})
	refiner := refine.New(&llmmock.Provider{Response: "Hello, world."})

	o, err := reconcile.New("p", primary, reconcile.WithRefiner(refiner))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(context.Background(), reconcile.Request{
		Audio:  testSpan(),
		UseLLM: true,
	})
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if !res.UsedLLM {
		t.Error("UsedLLM = false, want true")
	}
	if res.DisplayText != "Hello, world." {
		t.Errorf("DisplayText = %q, want refined text", res.DisplayText)
	}
	// The timed words keep the pre-refinement wording.
	if got := res.Transcript.Text(); got != "hello world" {
		t.Errorf("Transcript.Text() = %q, want %q", got, "hello world")
	}
}

// cancelDuringRefine cancels the request while the refinement stage runs.
type cancelDuringRefine struct {
	cancel context.CancelFunc
}

func (r cancelDuringRefine) Refine(ctx context.Context, text, hint string) (string, error) {
	r.cancel()
	return "", ctx.Err()
}

func TestReconcile_CancellationDuringRefine(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("hello", 0, 300, 0.9),
		word("world", 300, 600, 0.9),
	)})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	o, err := reconcile.New("p", primary, reconcile.WithRefiner(cancelDuringRefine{cancel: cancel}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := o.Reconcile(ctx, reconcile.Request{
		Audio:  testSpan(),
		UseLLM: true,
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if res != nil {
		t.Errorf("res = %+v, want nil on cancellation", res)
	}
}

func TestReconcile_Cancellation(t *testing.T) {
	t.Parallel()

	primary := sttmock.New(sttmock.Result{Transcript: transcript(
		word("hello", 0, 300, 0.9),
	)})

	o, err := reconcile.New("p", primary)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := o.Reconcile(ctx, reconcile.Request{Audio: testSpan()}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
