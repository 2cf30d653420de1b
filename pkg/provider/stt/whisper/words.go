package whisper

import (
	"strings"

	"github.com/tandemscribe/tandem/pkg/types"
)

// token is a provider-internal view of one whisper token, decoupled from the
// binding types so the merge logic can be tested without a loaded model.
type token struct {
	text    string
	p       float64
	startMs int64
	endMs   int64
}

// mergeTokens assembles whisper's subword tokens into whole words.
//
// whisper.cpp marks word boundaries with a leading space on the first token
// of each word. Special tokens such as "[_BEG_]" and "[_TT_...]" carry
// bracketed markers and no spoken text; they are skipped. A merged word's
// confidence is the minimum token probability (a word is only as certain as
// its least certain piece) and its time range spans the first to the last
// contributing token.
func mergeTokens(tokens []token) []types.Word {
	var words []types.Word
	var cur *types.Word

	flush := func() {
		if cur != nil && cur.Text != "" {
			words = append(words, *cur)
		}
		cur = nil
	}

	for _, t := range tokens {
		if isSpecialToken(t.text) {
			continue
		}

		startsWord := strings.HasPrefix(t.text, " ")
		text := strings.TrimSpace(t.text)
		if text == "" {
			continue
		}

		if startsWord || cur == nil {
			flush()
			cur = &types.Word{
				Text:       text,
				StartMs:    t.startMs,
				EndMs:      t.endMs,
				Confidence: t.p,
			}
			continue
		}

		cur.Text += text
		cur.EndMs = t.endMs
		if t.p < cur.Confidence {
			cur.Confidence = t.p
		}
	}
	flush()

	return words
}

// isSpecialToken reports whether text is a whisper control token like
// "[_BEG_]" or "<|endoftext|>" rather than spoken content.
func isSpecialToken(text string) bool {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "[_") && strings.HasSuffix(trimmed, "_]") {
		return true
	}
	return strings.HasPrefix(trimmed, "<|") && strings.HasSuffix(trimmed, "|>")
}
