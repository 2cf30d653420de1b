package reconcile_test

import (
	"testing"

	"github.com/tandemscribe/tandem/internal/reconcile"
	"github.com/tandemscribe/tandem/pkg/types"
)

func TestSubstitute_RemapsReplacementTimestamps(t *testing.T) {
	t.Parallel()

	base := []types.Word{
		word("the", 0, 200, 0.9),
		word("quick", 200, 400, 0.9),
		word("brwn", 400, 600, 0.2),
		word("fox", 600, 800, 0.9),
		word("jumps", 800, 1000, 0.9),
	}
	spans := []reconcile.Span{{Start: 1, End: 4}}
	// Replacement words carry sub-clip-relative timestamps.
	replacements := map[int][]types.Word{
		0: {
			word("quick", 0, 200, 0.95),
			word("brown", 200, 400, 0.95),
			word("fox", 400, 600, 0.95),
		},
	}

	out, failed := reconcile.Substitute(base, spans, replacements)
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
	if len(out) != 5 {
		t.Fatalf("got %d words, want 5: %+v", len(out), out)
	}

	// Replacement timestamps are offset by the span start (200ms).
	if out[2].Text != "brown" || out[2].StartMs != 400 || out[2].EndMs != 600 {
		t.Errorf("out[2] = %+v, want brown at 400-600", out[2])
	}
	// Words outside the span are untouched, timestamps included.
	if out[0] != base[0] {
		t.Errorf("out[0] = %+v, want untouched %+v", out[0], base[0])
	}
	if out[4] != base[4] {
		t.Errorf("out[4] = %+v, want untouched %+v", out[4], base[4])
	}
}

func TestSubstitute_FailedSpanKeepsOriginalWords(t *testing.T) {
	t.Parallel()

	base := []types.Word{
		word("a", 0, 100, 0.2),
		word("b", 100, 200, 0.2),
		word("c", 200, 300, 0.9),
	}
	spans := []reconcile.Span{{Start: 0, End: 2}}

	out, failed := reconcile.Substitute(base, spans, nil)
	if failed != 1 {
		t.Fatalf("failed = %d, want 1", failed)
	}
	if len(out) != len(base) {
		t.Fatalf("got %d words, want %d", len(out), len(base))
	}
	for i := range base {
		if out[i] != base[i] {
			t.Errorf("out[%d] = %+v, want original %+v", i, out[i], base[i])
		}
	}
}

func TestSubstitute_ClampsBackwardsStart(t *testing.T) {
	t.Parallel()

	base := []types.Word{
		word("intro", 0, 500, 0.9),
		word("x", 500, 700, 0.2),
	}
	spans := []reconcile.Span{{Start: 1, End: 2}}
	// Remapped start would be 500 + (-100)... use a replacement that starts
	// "before zero" relative to the clip boundary overlap.
	replacements := map[int][]types.Word{
		0: {word("why", -200, 200, 0.9)},
	}

	out, failed := reconcile.Substitute(base, spans, replacements)
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
	if out[1].StartMs < out[0].EndMs {
		t.Errorf("out[1].StartMs = %d, must not precede out[0].EndMs = %d",
			out[1].StartMs, out[0].EndMs)
	}
	if out[1].EndMs < out[1].StartMs {
		t.Errorf("out[1] has EndMs %d before StartMs %d", out[1].EndMs, out[1].StartMs)
	}
}

func TestSubstitute_MultipleSpans(t *testing.T) {
	t.Parallel()

	base := []types.Word{
		word("a", 0, 100, 0.2),
		word("b", 100, 200, 0.9),
		word("c", 200, 300, 0.9),
		word("d", 300, 400, 0.2),
	}
	spans := []reconcile.Span{{Start: 0, End: 1}, {Start: 3, End: 4}}
	replacements := map[int][]types.Word{
		0: {word("A", 0, 100, 0.9)},
		1: {word("D", 0, 100, 0.9)},
	}

	out, failed := reconcile.Substitute(base, spans, replacements)
	if failed != 0 {
		t.Fatalf("failed = %d, want 0", failed)
	}
	want := []string{"A", "b", "c", "D"}
	for i, w := range want {
		if out[i].Text != w {
			t.Errorf("out[%d].Text = %q, want %q", i, out[i].Text, w)
		}
	}
	if out[3].StartMs != 300 || out[3].EndMs != 400 {
		t.Errorf("out[3] timing = %d-%d, want 300-400", out[3].StartMs, out[3].EndMs)
	}
}
