package whisper

import (
	"testing"
)

func TestMergeTokens_JoinsSubwords(t *testing.T) {
	t.Parallel()

	// " reconcil" + "iation" is one word split across two tokens.
	tokens := []token{
		{text: " reconcil", p: 0.9, startMs: 0, endMs: 300},
		{text: "iation", p: 0.7, startMs: 300, endMs: 520},
		{text: " engine", p: 0.95, startMs: 540, endMs: 900},
	}

	words := mergeTokens(tokens)
	if len(words) != 2 {
		t.Fatalf("mergeTokens returned %d words, want 2", len(words))
	}

	if words[0].Text != "reconciliation" {
		t.Errorf("words[0].Text = %q, want %q", words[0].Text, "reconciliation")
	}
	if words[0].StartMs != 0 || words[0].EndMs != 520 {
		t.Errorf("words[0] range = [%d, %d], want [0, 520]", words[0].StartMs, words[0].EndMs)
	}
	// Word confidence is the minimum token probability.
	if words[0].Confidence != 0.7 {
		t.Errorf("words[0].Confidence = %f, want 0.7", words[0].Confidence)
	}

	if words[1].Text != "engine" {
		t.Errorf("words[1].Text = %q, want %q", words[1].Text, "engine")
	}
}

func TestMergeTokens_SkipsSpecialTokens(t *testing.T) {
	t.Parallel()

	tokens := []token{
		{text: "[_BEG_]", p: 1},
		{text: " hello", p: 0.8, startMs: 0, endMs: 400},
		{text: "<|endoftext|>", p: 1},
	}

	words := mergeTokens(tokens)
	if len(words) != 1 {
		t.Fatalf("mergeTokens returned %d words, want 1", len(words))
	}
	if words[0].Text != "hello" {
		t.Errorf("words[0].Text = %q, want %q", words[0].Text, "hello")
	}
}

func TestMergeTokens_Empty(t *testing.T) {
	t.Parallel()

	if words := mergeTokens(nil); len(words) != 0 {
		t.Errorf("mergeTokens(nil) returned %d words, want 0", len(words))
	}
}
