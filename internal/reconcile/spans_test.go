package reconcile_test

import (
	"testing"

	"github.com/tandemscribe/tandem/internal/reconcile"
	"github.com/tandemscribe/tandem/pkg/types"
)

// confWords builds a word list with the given confidences, 100ms per word.
func confWords(confs ...float64) []types.Word {
	words := make([]types.Word, len(confs))
	for i, c := range confs {
		words[i] = word("w", int64(i)*100, int64(i+1)*100, c)
	}
	return words
}

func TestDetectLowConfidence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		confs        []float64
		threshold    float64
		contextWords int
		want         []reconcile.Span
	}{
		{
			name:      "all confident returns nil",
			confs:     []float64{0.9, 0.9, 0.9, 0.9},
			threshold: 0.5,
			want:      nil,
		},
		{
			name:      "threshold zero disables detection",
			confs:     []float64{0.1, 0.1},
			threshold: 0,
			want:      nil,
		},
		{
			name:         "single flagged word expands by context",
			confs:        []float64{0.9, 0.9, 0.2, 0.9, 0.9},
			threshold:    0.5,
			contextWords: 1,
			want:         []reconcile.Span{{Start: 1, End: 4}},
		},
		{
			name:         "expansion clamps to bounds",
			confs:        []float64{0.2, 0.9, 0.9, 0.2},
			threshold:    0.5,
			contextWords: 2,
			want:         []reconcile.Span{{Start: 0, End: 4}},
		},
		{
			name:         "near-consecutive flags group into one span",
			confs:        []float64{0.2, 0.9, 0.9, 0.2, 0.9, 0.9, 0.9, 0.9, 0.9},
			threshold:    0.5,
			contextWords: 1,
			want:         []reconcile.Span{{Start: 0, End: 5}},
		},
		{
			name:         "distant flags stay separate spans",
			confs:        []float64{0.2, 0.9, 0.9, 0.9, 0.9, 0.9, 0.9, 0.2},
			threshold:    0.5,
			contextWords: 1,
			want:         []reconcile.Span{{Start: 0, End: 2}, {Start: 6, End: 8}},
		},
		{
			name:         "no context padding",
			confs:        []float64{0.9, 0.2, 0.2, 0.9},
			threshold:    0.5,
			contextWords: 0,
			want:         []reconcile.Span{{Start: 1, End: 3}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := reconcile.DetectLowConfidence(confWords(tt.confs...), tt.threshold, tt.contextWords)
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("span %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestDetectLowConfidence_SortedNonOverlapping(t *testing.T) {
	t.Parallel()

	confs := []float64{0.2, 0.9, 0.2, 0.9, 0.9, 0.9, 0.2, 0.9, 0.2, 0.9, 0.9, 0.9, 0.2}
	spans := reconcile.DetectLowConfidence(confWords(confs...), 0.5, 1)

	for i := 1; i < len(spans); i++ {
		if spans[i].Start < spans[i-1].End {
			t.Errorf("spans overlap: %v and %v", spans[i-1], spans[i])
		}
	}
}
