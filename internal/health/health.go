// Package health provides HTTP liveness and readiness probe handlers.
//
//   - /healthz: liveness; always 200 while the process serves HTTP.
//   - /readyz:  readiness; 200 only when every registered probe passes.
//
// Responses are JSON with a top-level "status" ("ok" or "fail") and a
// per-probe "checks" map carrying each probe's outcome and latency.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// probeTimeout bounds a single readiness probe.
const probeTimeout = 5 * time.Second

// Probe reports whether one dependency is healthy. It must respect context
// cancellation.
type Probe func(ctx context.Context) error

// checkResult is the per-probe entry in the readiness response.
type checkResult struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// response is the JSON body for both probe endpoints.
type response struct {
	Status string                 `json:"status"`
	Checks map[string]checkResult `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. Probes are registered before the server
// starts; the handler is safe for concurrent use afterwards.
type Handler struct {
	mu     sync.Mutex
	probes map[string]Probe
}

// New returns a Handler with no probes registered. A probe-less /readyz
// always reports ready.
func New() *Handler {
	return &Handler{probes: make(map[string]Probe)}
}

// AddProbe registers a named readiness probe. Registering the same name twice
// replaces the earlier probe.
func (h *Handler) AddProbe(name string, p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.probes[name] = p
}

// Healthz is the liveness endpoint. A process that can serve this request is
// alive.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{Status: "ok"})
}

// Readyz runs all registered probes concurrently, each bounded by
// [probeTimeout], and reports 503 when any of them fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	probes := make(map[string]Probe, len(h.probes))
	for name, p := range h.probes {
		probes[name] = p
	}
	h.mu.Unlock()

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		checks = make(map[string]checkResult, len(probes))
		allOK  = true
	)
	for name, probe := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
			defer cancel()

			start := time.Now()
			err := probe(ctx)
			cr := checkResult{Status: "ok", DurationMs: time.Since(start).Milliseconds()}
			if err != nil {
				cr.Status = "fail"
				cr.Error = err.Error()
			}

			mu.Lock()
			checks[name] = cr
			if err != nil {
				allOK = false
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	res := response{Status: "ok", Checks: checks}
	status := http.StatusOK
	if !allOK {
		res.Status = "fail"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
