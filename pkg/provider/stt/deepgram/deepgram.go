// Package deepgram provides a Deepgram-backed STT provider using the
// prerecorded (batch) HTTP API. It implements the stt.Provider interface.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tandemscribe/tandem/pkg/audio"
	"github.com/tandemscribe/tandem/pkg/provider/stt"
	"github.com/tandemscribe/tandem/pkg/types"
)

const (
	deepgramEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"
	defaultTimeout   = 2 * time.Minute
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en",
// "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithBaseURL overrides the API endpoint, e.g. for an on-prem deployment.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) { p.baseURL = baseURL }
}

// WithHTTPClient replaces the default HTTP client. Mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// Provider implements stt.Provider backed by the Deepgram prerecorded API.
type Provider struct {
	apiKey   string
	model    string
	language string
	baseURL  string
	client   *http.Client
}

// Compile-time interface assertion.
var _ stt.Provider = (*Provider)(nil)

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		baseURL:  deepgramEndpoint,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Transcribe implements stt.Provider. The span is sent as raw linear16 PCM;
// stereo input is downmixed to mono first so word timings stay unambiguous.
func (p *Provider) Transcribe(ctx context.Context, span audio.Span, cfg stt.RecognitionConfig) (types.Transcript, error) {
	norm, err := span.Normalize(span.SampleRate)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: %w", err)
	}
	if len(norm.PCM) == 0 {
		return types.Transcript{}, nil
	}

	reqURL, err := p.buildURL(norm.SampleRate, cfg)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(norm.PCM))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := p.client.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Transcript{}, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	return parseResponse(body)
}

// buildURL constructs the prerecorded endpoint URL for the given audio
// format and recognition config.
func (p *Provider) buildURL(sampleRate int, cfg stt.RecognitionConfig) (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("diarize", "true")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(sampleRate))
	q.Set("channels", "1")

	for _, kw := range cfg.Keywords {
		// Deepgram keyword format: word:boost (e.g., "Kubernetes:5")
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- response parsing ----

// deepgramResponse is the subset of the prerecorded API response Tandem
// consumes.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word           string  `json:"word"`
					PunctuatedWord string  `json:"punctuated_word"`
					Start          float64 `json:"start"`
					End            float64 `json:"end"`
					Confidence     float64 `json:"confidence"`
					Speaker        *int    `json:"speaker"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseResponse converts a prerecorded API response body into a Transcript.
// Only the first alternative of the first channel is used.
func parseResponse(body []byte) (types.Transcript, error) {
	var dr deepgramResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: parse response: %w", err)
	}
	if len(dr.Results.Channels) == 0 || len(dr.Results.Channels[0].Alternatives) == 0 {
		return types.Transcript{}, nil
	}

	alt := dr.Results.Channels[0].Alternatives[0]
	words := make([]types.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		text := w.PunctuatedWord
		if text == "" {
			text = w.Word
		}
		word := types.Word{
			Text:       text,
			StartMs:    int64(w.Start * 1000),
			EndMs:      int64(w.End * 1000),
			Confidence: w.Confidence,
		}
		if w.Speaker != nil {
			word.Speaker = strconv.Itoa(*w.Speaker)
		}
		words = append(words, word)
	}

	return types.GroupWords(words), nil
}

// truncate shortens s to at most n bytes for error messages.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
