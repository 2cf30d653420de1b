// Package types defines the shared types used across all Tandem packages.
//
// These types form the lingua franca between STT providers, the reconciliation
// engine, the archive, and the HTTP surface. They are intentionally minimal:
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "strings"

// Word is a single recognised word with millisecond timing relative to the
// start of the audio span it was transcribed from. Words are immutable once
// produced by an STT pass; the reconciliation engine builds new Word values
// rather than mutating existing ones.
type Word struct {
	// Text is the recognised word, including any punctuation the STT engine
	// attached to it.
	Text string `json:"text"`

	// StartMs and EndMs bound the word in time. StartMs <= EndMs always holds
	// for provider output; the engine re-validates this after span splicing.
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`

	// Confidence is the recognition certainty in [0, 1]. Providers that do not
	// report per-word confidence set 1.0 (trusted).
	Confidence float64 `json:"confidence"`

	// Speaker is the diarization tag, or "" when the provider does not
	// distinguish speakers.
	Speaker string `json:"speaker,omitempty"`
}

// Segment is an ordered run of words sharing one speaker tag over a
// contiguous time range.
type Segment struct {
	Speaker string `json:"speaker,omitempty"`
	Words   []Word `json:"words"`
}

// StartMs returns the start time of the segment's first word, or 0 for an
// empty segment.
func (s Segment) StartMs() int64 {
	if len(s.Words) == 0 {
		return 0
	}
	return s.Words[0].StartMs
}

// EndMs returns the end time of the segment's last word, or 0 for an empty
// segment.
func (s Segment) EndMs() int64 {
	if len(s.Words) == 0 {
		return 0
	}
	return s.Words[len(s.Words)-1].EndMs
}

// Text joins the segment's words with single spaces.
func (s Segment) Text() string {
	parts := make([]string, len(s.Words))
	for i, w := range s.Words {
		parts[i] = w.Text
	}
	return strings.Join(parts, " ")
}

// Transcript is the ordered segment list covering one audio span. Segments
// are non-decreasing in start time.
type Transcript struct {
	Segments []Segment `json:"segments"`
}

// IsEmpty reports whether the transcript contains no words at all.
func (t Transcript) IsEmpty() bool {
	for _, s := range t.Segments {
		if len(s.Words) > 0 {
			return false
		}
	}
	return true
}

// Words returns the transcript's words flattened across segments, in order.
func (t Transcript) Words() []Word {
	var n int
	for _, s := range t.Segments {
		n += len(s.Words)
	}
	out := make([]Word, 0, n)
	for _, s := range t.Segments {
		out = append(out, s.Words...)
	}
	return out
}

// Text joins all words of the transcript with single spaces.
func (t Transcript) Text() string {
	var sb strings.Builder
	for _, s := range t.Segments {
		for _, w := range s.Words {
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(w.Text)
		}
	}
	return sb.String()
}

// GroupWords rebuilds a Transcript from a flat word list by grouping
// consecutive words that share a speaker tag into segments. Words must
// already be in time order; GroupWords does not sort.
func GroupWords(words []Word) Transcript {
	var t Transcript
	for _, w := range words {
		n := len(t.Segments)
		if n == 0 || t.Segments[n-1].Speaker != w.Speaker {
			t.Segments = append(t.Segments, Segment{Speaker: w.Speaker})
			n++
		}
		t.Segments[n-1].Words = append(t.Segments[n-1].Words, w)
	}
	return t
}

// KeywordBoost is a vocabulary hint passed to STT providers that support
// recognition biasing. Used to improve recognition of domain terms before
// the fuzzy hotword pass runs.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g., "Kubernetes").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// ModelCapabilities describes what an LLM model supports.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one
	// completion.
	MaxOutputTokens int

	// SupportsStreaming indicates the model supports streaming completions.
	SupportsStreaming bool
}
