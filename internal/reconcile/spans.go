package reconcile

import "github.com/tandemscribe/tandem/pkg/types"

// Span is a half-open index range [Start, End) into a word list selected for
// re-transcription.
type Span struct {
	Start int
	End   int
}

// DetectLowConfidence scans words in order and returns the low-confidence
// spans to re-transcribe. A word is flagged when its confidence is below
// threshold; flagged words separated by at most 2*contextWords unflagged
// words form one group, and each group is expanded outward by contextWords
// (clamped to bounds) so the secondary engine gets surrounding context.
// Overlapping or touching expanded spans are merged. Spans are returned
// sorted by Start and non-overlapping.
//
// A threshold <= 0 disables detection and returns nil.
func DetectLowConfidence(words []types.Word, threshold float64, contextWords int) []Span {
	if threshold <= 0 || len(words) == 0 {
		return nil
	}
	if contextWords < 0 {
		contextWords = 0
	}

	maxGap := 2 * contextWords

	var groups []Span
	for i, w := range words {
		if w.Confidence >= threshold {
			continue
		}
		if len(groups) > 0 && i-groups[len(groups)-1].End <= maxGap {
			groups[len(groups)-1].End = i + 1
			continue
		}
		groups = append(groups, Span{Start: i, End: i + 1})
	}
	if len(groups) == 0 {
		return nil
	}

	// Expand by context and merge anything that now overlaps or touches.
	var spans []Span
	for _, g := range groups {
		s := Span{Start: max(0, g.Start-contextWords), End: min(len(words), g.End+contextWords)}
		if len(spans) > 0 && s.Start <= spans[len(spans)-1].End {
			if s.End > spans[len(spans)-1].End {
				spans[len(spans)-1].End = s.End
			}
			continue
		}
		spans = append(spans, s)
	}
	return spans
}
