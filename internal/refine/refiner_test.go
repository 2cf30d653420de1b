package refine_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tandemscribe/tandem/internal/refine"
	"github.com/tandemscribe/tandem/pkg/provider/llm"
	llmmock "github.com/tandemscribe/tandem/pkg/provider/llm/mock"
)

func TestRefine_ReturnsCorrectedProse(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{Response: "Hello, world. How are you?"}
	r := refine.New(mock)

	got, err := r.Refine(context.Background(), "hello world how are you", "")
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "Hello, world. How are you?" {
		t.Errorf("Refine = %q, want the model's corrected text", got)
	}
}

func TestRefine_HintIncludedInPrompt(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{Response: "some corrected text here ok"}
	r := refine.New(mock)

	if _, err := r.Refine(context.Background(), "some transcript text here ok", "Kubernetes, API"); err != nil {
		t.Fatalf("Refine: %v", err)
	}

	userMsg := mock.LastRequest.Messages[len(mock.LastRequest.Messages)-1].Content
	if !strings.Contains(userMsg, "Kubernetes, API") {
		t.Errorf("user message %q missing the vocabulary hint", userMsg)
	}
	if mock.LastRequest.SystemPrompt == "" {
		t.Error("system prompt not set")
	}
}

func TestRefine_ProviderErrorPropagates(t *testing.T) {
	t.Parallel()

	mock := &llmmock.Provider{Err: errors.New("llm down")}
	r := refine.New(mock)

	if _, err := r.Refine(context.Background(), "hello world", ""); err == nil {
		t.Fatal("Refine succeeded with a failing provider")
	}
}

func TestRefine_ImplausibleResponseDiscarded(t *testing.T) {
	t.Parallel()

	input := "this is a reasonably long transcript about nothing in particular"
	tests := []struct {
		name     string
		response string
	}{
		{"empty response", ""},
		{"truncated response", "ok"},
		{"runaway response", strings.Repeat(input+" ", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			r := refine.New(&llmmock.Provider{Response: tt.response})
			got, err := r.Refine(context.Background(), input, "")
			if err != nil {
				t.Fatalf("Refine: %v", err)
			}
			if got != input {
				t.Errorf("Refine = %q, want input returned unchanged", got)
			}
		})
	}
}

func TestRefine_EmptyInputSkipsProvider(t *testing.T) {
	t.Parallel()

	calls := 0
	mock := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			calls++
			return &llm.CompletionResponse{Content: "x"}, nil
		},
	}
	r := refine.New(mock)

	got, err := r.Refine(context.Background(), "   ", "")
	if err != nil {
		t.Fatalf("Refine: %v", err)
	}
	if got != "   " {
		t.Errorf("Refine = %q, want input unchanged", got)
	}
	if calls != 0 {
		t.Errorf("provider called %d times, want 0 for empty input", calls)
	}
}
