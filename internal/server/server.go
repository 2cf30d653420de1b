// Package server exposes the reconciliation engine over HTTP.
//
// Endpoints:
//
//	POST /v1/reconcile             one-shot reconciliation of an audio span
//	GET  /v1/reconcile/stream      WebSocket variant with progress events
//	GET  /v1/search                semantic search over archived transcripts
//	GET  /v1/sessions/{sessionID}  archived transcript history for a session
//	GET  /healthz, /readyz         probes
//	GET  /metrics                  Prometheus scrape endpoint
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tandemscribe/tandem/internal/archive"
	"github.com/tandemscribe/tandem/internal/config"
	"github.com/tandemscribe/tandem/internal/health"
	"github.com/tandemscribe/tandem/internal/observe"
	"github.com/tandemscribe/tandem/internal/reconcile"
	"github.com/tandemscribe/tandem/pkg/audio"
)

// Reconciler is the engine capability the server depends on. Implemented by
// reconcile.Orchestrator.
type Reconciler interface {
	Reconcile(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// Option configures a Server.
type Option func(*Server)

// WithArchive attaches the transcript archive. Without it, search and history
// return 404 and results are not persisted.
func WithArchive(store *archive.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithDefaults sets the per-request defaults applied when a request omits a
// field.
func WithDefaults(defaults config.ReconcileConfig) Option {
	return func(s *Server) { s.defaults = defaults }
}

// WithBaseHotwords sets the base vocabulary merged into every request's
// hotword list.
func WithBaseHotwords(dict []string) Option {
	return func(s *Server) { s.baseHotwords = dict }
}

// WithMetrics sets the metrics sink used by the HTTP middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the HTTP front end for the reconciliation engine. It is stateless
// apart from the optional archive and safe for concurrent use.
type Server struct {
	engine       Reconciler
	store        *archive.Store
	defaults     config.ReconcileConfig
	baseHotwords []string
	health       *health.Handler
	metrics      *observe.Metrics
	logger       *slog.Logger
}

// New creates a Server around the mandatory reconciliation engine.
func New(engine Reconciler, probes *health.Handler, opts ...Option) *Server {
	s := &Server{
		engine: engine,
		health: probes,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the complete route tree wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/reconcile", s.handleReconcile)
	mux.HandleFunc("GET /v1/reconcile/stream", s.handleStream)
	mux.HandleFunc("GET /v1/search", s.handleSearch)
	mux.HandleFunc("GET /v1/sessions/{sessionID}", s.handleHistory)
	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)
	return observe.Middleware(s.metrics)(mux)
}

// audioPayload is the JSON representation of an audio span. PCM is
// little-endian 16-bit samples, base64-encoded on the wire.
type audioPayload struct {
	PCM        []byte `json:"pcm"`
	SampleRate int    `json:"sampleRate"`
	Channels   int    `json:"channels"`
}

// reconcileRequest is the JSON body for POST /v1/reconcile and the WebSocket
// stream. Omitted tuning fields fall back to the server's configured
// defaults.
type reconcileRequest struct {
	Audio audioPayload `json:"audio"`

	Mode                string   `json:"mode,omitempty"`
	ConfidenceThreshold *float64 `json:"confidenceThreshold,omitempty"`
	ContextWords        *int     `json:"contextWords,omitempty"`
	UseLLM              *bool    `json:"useLLM,omitempty"`
	Hotwords            []string `json:"hotwords,omitempty"`
	Language            string   `json:"language,omitempty"`

	// SessionID and ChunkID key the result in the archive. Both must be set
	// for the result to be persisted.
	SessionID string `json:"sessionId,omitempty"`
	ChunkID   string `json:"chunkId,omitempty"`
}

// errorResponse is the JSON body for all error statuses.
type errorResponse struct {
	Error string `json:"error"`
}

// toEngineRequest validates req and converts it into an engine request,
// applying the server defaults for omitted fields.
func (s *Server) toEngineRequest(req *reconcileRequest) (reconcile.Request, error) {
	if len(req.Audio.PCM) == 0 {
		return reconcile.Request{}, errValidation("audio.pcm is required")
	}
	if req.Audio.SampleRate <= 0 {
		return reconcile.Request{}, errValidation("audio.sampleRate must be positive")
	}
	channels := req.Audio.Channels
	if channels == 0 {
		channels = 1
	}
	if channels != 1 && channels != 2 {
		return reconcile.Request{}, errValidation("audio.channels must be 1 or 2")
	}

	mode := reconcile.Mode(req.Mode)
	if mode == "" {
		mode = reconcile.Mode(s.defaults.Mode)
	}
	if mode != "" && mode != reconcile.ModeParallel && mode != reconcile.ModeConfidence {
		return reconcile.Request{}, errValidation("mode must be \"parallel\" or \"confidence\"")
	}

	threshold := s.defaults.ConfidenceThreshold
	if req.ConfidenceThreshold != nil {
		threshold = *req.ConfidenceThreshold
	}
	if threshold < 0 || threshold > 1 {
		return reconcile.Request{}, errValidation("confidenceThreshold must be in [0, 1]")
	}

	contextWords := s.defaults.ContextWords
	if req.ContextWords != nil {
		contextWords = *req.ContextWords
	}
	if contextWords < 0 {
		return reconcile.Request{}, errValidation("contextWords must not be negative")
	}

	useLLM := s.defaults.UseLLM
	if req.UseLLM != nil {
		useLLM = *req.UseLLM
	}

	language := req.Language
	if language == "" {
		language = s.defaults.Language
	}

	hotwords := make([]string, 0, len(s.baseHotwords)+len(req.Hotwords))
	hotwords = append(hotwords, s.baseHotwords...)
	hotwords = append(hotwords, req.Hotwords...)

	return reconcile.Request{
		Audio: audio.Span{
			PCM:        req.Audio.PCM,
			SampleRate: req.Audio.SampleRate,
			Channels:   channels,
		},
		Mode:                mode,
		ConfidenceThreshold: threshold,
		ContextWords:        contextWords,
		UseLLM:              useLLM,
		Hotwords:            hotwords,
		Language:            language,
	}, nil
}

// handleReconcile serves POST /v1/reconcile.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	engineReq, err := s.toEngineRequest(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.engine.Reconcile(r.Context(), engineReq)
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, reconcile.ErrEmptyTranscript) {
			status = http.StatusUnprocessableEntity
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		observe.Logger(r.Context()).Error("reconciliation failed", "err", err)
		writeError(w, status, err.Error())
		return
	}

	s.archiveResult(r.Context(), &req, res)
	writeJSON(w, http.StatusOK, res)
}

// handleSearch serves GET /v1/search?q=...&session=...&limit=....
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "archive is not configured")
		return
	}
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := queryInt(r, "limit", 10)

	results, err := s.store.Search(r.Context(), query, r.URL.Query().Get("session"), limit)
	if err != nil {
		if errors.Is(err, archive.ErrNoEmbedder) {
			writeError(w, http.StatusNotFound, "semantic search requires an embeddings provider")
			return
		}
		observe.Logger(r.Context()).Error("archive search failed", "err", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if results == nil {
		results = []archive.SearchResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

// handleHistory serves GET /v1/sessions/{sessionID}.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "archive is not configured")
		return
	}
	sessionID := r.PathValue("sessionID")
	limit := queryInt(r, "limit", 50)

	records, err := s.store.History(r.Context(), sessionID, limit)
	if err != nil {
		observe.Logger(r.Context()).Error("archive history failed", "err", err)
		writeError(w, http.StatusInternalServerError, "history lookup failed")
		return
	}
	if records == nil {
		records = []archive.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// archiveResult persists res when the archive is configured and the request
// carries both archive keys. Persistence failures are logged, not surfaced;
// the caller already has their transcript.
func (s *Server) archiveResult(ctx context.Context, req *reconcileRequest, res *reconcile.Result) {
	if s.store == nil || req.SessionID == "" || req.ChunkID == "" {
		return
	}
	if err := s.store.Save(ctx, req.SessionID, req.ChunkID, res); err != nil {
		observe.Logger(ctx).Error("archiving transcript failed",
			"session", req.SessionID, "chunk", req.ChunkID, "err", err)
	}
}

// errValidation marks a client-side request error.
type validationError string

func errValidation(msg string) error { return validationError(msg) }

func (e validationError) Error() string { return string(e) }

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding response failed"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
