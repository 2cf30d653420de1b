package hotword_test

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tandemscribe/tandem/internal/hotword"
	"github.com/tandemscribe/tandem/pkg/types"
)

func word(text string, startMs, endMs int64, conf float64) types.Word {
	return types.Word{Text: text, StartMs: startMs, EndMs: endMs, Confidence: conf}
}

func texts(words []types.Word) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = w.Text
	}
	return out
}

func TestCorrect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   []string
		dict []string
		want []string
	}{
		{
			name: "case-insensitive exact match takes canonical casing",
			in:   []string{"the", "api", "endpoint"},
			dict: []string{"API"},
			want: []string{"the", "API", "endpoint"},
		},
		{
			name: "fuzzy match within budget",
			in:   []string{"using", "kubernets", "today"},
			dict: []string{"Kubernetes"},
			want: []string{"using", "Kubernetes", "today"},
		},
		{
			name: "short terms require exact match",
			in:   []string{"ape", "pie"},
			dict: []string{"API"},
			want: []string{"ape", "pie"},
		},
		{
			name: "unrelated words untouched",
			in:   []string{"completely", "different"},
			dict: []string{"Kubernetes", "PostgreSQL"},
			want: []string{"completely", "different"},
		},
		{
			name: "empty dictionary is a no-op",
			in:   []string{"anything"},
			dict: nil,
			want: []string{"anything"},
		},
		{
			name: "trailing punctuation preserved",
			in:   []string{"love", "postgresql."},
			dict: []string{"PostgreSQL"},
			want: []string{"love", "PostgreSQL."},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var words []types.Word
			for i, text := range tt.in {
				words = append(words, word(text, int64(i)*100, int64(i+1)*100, 0.9))
			}
			got := hotword.Correct(words, tt.dict)
			if !reflect.DeepEqual(texts(got), tt.want) {
				t.Errorf("Correct() texts = %v, want %v", texts(got), tt.want)
			}
		})
	}
}

func TestCorrect_PreservesTimingConfidenceSpeaker(t *testing.T) {
	t.Parallel()

	in := word("api", 200, 400, 0.7)
	in.Speaker = "2"

	got := hotword.Correct([]types.Word{in}, []string{"API"})
	if len(got) != 1 {
		t.Fatalf("got %d words, want 1", len(got))
	}
	want := in
	want.Text = "API"
	if got[0] != want {
		t.Errorf("got %+v, want %+v", got[0], want)
	}
}

func TestCorrect_Idempotent(t *testing.T) {
	t.Parallel()

	dict := []string{"Kubernetes", "API", "GitHub"}
	words := []types.Word{
		word("kubernets", 0, 100, 0.9),
		word("and", 100, 200, 0.9),
		word("git", 200, 300, 0.9),
		word("hub", 300, 400, 0.8),
		word("api", 400, 500, 0.9),
	}

	once := hotword.Correct(words, dict)
	twice := hotword.Correct(once, dict)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestCorrect_MergesSplitTerm(t *testing.T) {
	t.Parallel()

	words := []types.Word{
		word("on", 0, 100, 0.9),
		word("git", 100, 200, 0.9),
		word("hub", 200, 300, 0.6),
		word("today", 300, 400, 0.9),
	}

	got := hotword.Correct(words, []string{"GitHub"})
	if len(got) != 3 {
		t.Fatalf("got %d words, want 3 after merging the split term: %v", len(got), texts(got))
	}
	merged := got[1]
	if merged.Text != "GitHub" {
		t.Errorf("merged.Text = %q, want %q", merged.Text, "GitHub")
	}
	if merged.StartMs != 100 || merged.EndMs != 300 {
		t.Errorf("merged timing = %d-%d, want 100-300", merged.StartMs, merged.EndMs)
	}
	if merged.Confidence != 0.6 {
		t.Errorf("merged.Confidence = %v, want the lower 0.6", merged.Confidence)
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	got := hotword.Merge(
		[]string{"API", "Kubernetes", ""},
		[]string{"api", "PostgreSQL"},
	)
	want := []string{"API", "Kubernetes", "PostgreSQL"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Merge = %v, want %v", got, want)
	}
}

func TestLoadDictionary(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "hotwords.txt")
	content := "# project vocabulary\nKubernetes\n\nPostgreSQL\n  API  \n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := hotword.LoadDictionary(path)
	if err != nil {
		t.Fatalf("LoadDictionary: %v", err)
	}
	want := []string{"Kubernetes", "PostgreSQL", "API"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("LoadDictionary = %v, want %v", got, want)
	}
}

func TestLoadDictionary_Missing(t *testing.T) {
	t.Parallel()

	if _, err := hotword.LoadDictionary(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatal("LoadDictionary succeeded on a missing file")
	}
}
