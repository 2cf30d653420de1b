package reconcile

import "github.com/tandemscribe/tandem/pkg/types"

// Substitute splices re-transcribed span words into base. replacements maps
// a span's index in spans to the words the secondary engine produced for
// that span's audio sub-clip; those words carry sub-clip-relative timestamps
// and are remapped into base's time coordinate by adding the span's start
// offset. A span with no replacement entry keeps its original words and is
// counted in failedSpans.
//
// Words outside every span are copied through untouched, timestamps
// included. A replacement word whose remapped start would precede the
// preceding word's end is clamped forward to keep the output time-ordered.
func Substitute(base []types.Word, spans []Span, replacements map[int][]types.Word) (out []types.Word, failedSpans int) {
	out = make([]types.Word, 0, len(base))
	next := 0

	for si, sp := range spans {
		if sp.Start < next || sp.Start >= sp.End || sp.End > len(base) {
			failedSpans++
			continue
		}
		out = append(out, base[next:sp.Start]...)
		next = sp.End

		repl, ok := replacements[si]
		if !ok {
			out = append(out, base[sp.Start:sp.End]...)
			failedSpans++
			continue
		}

		offset := base[sp.Start].StartMs
		for _, w := range repl {
			w.StartMs += offset
			w.EndMs += offset
			if n := len(out); n > 0 && w.StartMs < out[n-1].EndMs {
				w.StartMs = out[n-1].EndMs
				if w.EndMs < w.StartMs {
					w.EndMs = w.StartMs
				}
			}
			out = append(out, w)
		}
	}

	out = append(out, base[next:]...)
	return out, failedSpans
}
