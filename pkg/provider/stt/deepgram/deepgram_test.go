package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/types"
)

const sampleResponse = `{
  "results": {
    "channels": [
      {
        "alternatives": [
          {
            "transcript": "hello world",
            "confidence": 0.97,
            "words": [
              {"word": "hello", "punctuated_word": "Hello", "start": 0.1, "end": 0.5, "confidence": 0.98, "speaker": 0},
              {"word": "world", "punctuated_word": "world.", "start": 0.55, "end": 0.9, "confidence": 0.91, "speaker": 0}
            ]
          }
        ]
      }
    ]
  }
}`

func TestParseResponse(t *testing.T) {
	t.Parallel()

	got, err := parseResponse([]byte(sampleResponse))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}

	words := got.Words()
	if len(words) != 2 {
		t.Fatalf("parsed %d words, want 2", len(words))
	}

	want := types.Word{Text: "Hello", StartMs: 100, EndMs: 500, Confidence: 0.98, Speaker: "0"}
	if words[0] != want {
		t.Errorf("words[0] = %+v, want %+v", words[0], want)
	}
	if words[1].Text != "world." {
		t.Errorf("words[1].Text = %q, want %q", words[1].Text, "world.")
	}
	if len(got.Segments) != 1 {
		t.Errorf("got %d segments, want 1 (same speaker)", len(got.Segments))
	}
}

func TestParseResponse_EmptyResult(t *testing.T) {
	t.Parallel()

	got, err := parseResponse([]byte(`{"results": {"channels": []}}`))
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}
	if !got.IsEmpty() {
		t.Error("expected empty transcript for empty channel list")
	}
}

func TestTranscribe_SetsAuthAndQuery(t *testing.T) {
	t.Parallel()

	var gotAuth, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = r.URL.RawQuery
		w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	p, err := New("test-key", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	span := audio.Span{PCM: make([]byte, 3200), SampleRate: 16000, Channels: 1}
	cfg := stt.RecognitionConfig{Keywords: []types.KeywordBoost{{Keyword: "Tandem", Boost: 5}}}
	if _, err := p.Transcribe(context.Background(), span, cfg); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if gotAuth != "Token test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Token test-key")
	}
	for _, want := range []string{"model=nova-3", "sample_rate=16000", "diarize=true", "keywords=Tandem%3A5"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestTranscribe_ErrorStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	p, err := New("bad", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	span := audio.Span{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}
	if _, err := p.Transcribe(context.Background(), span, stt.RecognitionConfig{}); err == nil {
		t.Error("Transcribe succeeded on a 401 response")
	}
}
