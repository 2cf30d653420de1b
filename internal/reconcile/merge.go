package reconcile

import (
	"strings"

	"github.com/tandemscribe/tandem/pkg/types"
)

// inclusionFloor is the minimum confidence a one-sided word (present in only
// one pass) needs to survive the merge. An isolated low-confidence insertion
// is more likely an STT hallucination than missed speech. Fixed by design,
// not user-configurable.
const inclusionFloor = 0.3

// Merge resolves an alignment into a single word sequence:
//
//   - both sides present, texts match case-insensitively: primary's timing
//     and speaker, confidence = max of the two;
//   - both sides present, texts differ: whichever side has the higher
//     confidence, ties to primary so output is reproducible;
//   - one side present: that word as-is, kept only if its confidence is at
//     or above the inclusion floor.
//
// Output is non-decreasing in StartMs.
func Merge(pairs []Pair) []types.Word {
	out := make([]types.Word, 0, len(pairs))
	for _, pair := range pairs {
		p, s := pair.Primary, pair.Secondary
		switch {
		case p != nil && s != nil && strings.EqualFold(p.Text, s.Text):
			w := *p
			if s.Confidence > w.Confidence {
				w.Confidence = s.Confidence
			}
			out = append(out, w)
		case p != nil && s != nil:
			if s.Confidence > p.Confidence {
				out = append(out, *s)
			} else {
				out = append(out, *p)
			}
		case p != nil:
			if p.Confidence >= inclusionFloor {
				out = append(out, *p)
			}
		case s != nil:
			if s.Confidence >= inclusionFloor {
				out = append(out, *s)
			}
		}
	}

	// The two passes can disagree slightly on timing where the chosen word
	// switches sides; clamp forward so StartMs stays non-decreasing.
	for i := 1; i < len(out); i++ {
		if out[i].StartMs < out[i-1].StartMs {
			out[i].StartMs = out[i-1].StartMs
			if out[i].EndMs < out[i].StartMs {
				out[i].EndMs = out[i].StartMs
			}
		}
	}
	return out
}
