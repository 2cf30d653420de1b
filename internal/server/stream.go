package server

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// streamEvent is one message on the WebSocket reconciliation stream. The
// client receives a sequence of stage events followed by exactly one "result"
// or "error" event, after which the server closes the connection.
type streamEvent struct {
	// Event is "accepted", "reconciling", "result", or "error".
	Event string `json:"event"`

	// DurationMs is the audio span length, set on "accepted".
	DurationMs int64 `json:"durationMs,omitempty"`

	// Result is the final reconciliation outcome, set on "result".
	Result any `json:"result,omitempty"`

	// Error is the failure description, set on "error".
	Error string `json:"error,omitempty"`
}

// readTimeout bounds how long the server waits for the client's request
// message after the WebSocket upgrade.
const readTimeout = 30 * time.Second

// handleStream serves GET /v1/reconcile/stream. The client upgrades to a
// WebSocket, sends one reconcileRequest as a JSON text message, and receives
// progress events until the final result.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		// Accept already wrote the HTTP error response.
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	ctx := r.Context()

	var req reconcileRequest
	readCtx, cancel := context.WithTimeout(ctx, readTimeout)
	err = wsjson.Read(readCtx, conn, &req)
	cancel()
	if err != nil {
		s.closeWithError(ctx, conn, websocket.StatusPolicyViolation, "reading request: "+err.Error())
		return
	}

	engineReq, err := s.toEngineRequest(&req)
	if err != nil {
		s.closeWithError(ctx, conn, websocket.StatusPolicyViolation, err.Error())
		return
	}

	if err := wsjson.Write(ctx, conn, streamEvent{
		Event:      "accepted",
		DurationMs: engineReq.Audio.DurationMs(),
	}); err != nil {
		return
	}
	if err := wsjson.Write(ctx, conn, streamEvent{Event: "reconciling"}); err != nil {
		return
	}

	res, err := s.engine.Reconcile(ctx, engineReq)
	if err != nil {
		s.logger.Error("stream reconciliation failed", "err", err)
		s.closeWithError(ctx, conn, websocket.StatusInternalError, err.Error())
		return
	}

	s.archiveResult(ctx, &req, res)

	if err := wsjson.Write(ctx, conn, streamEvent{Event: "result", Result: res}); err != nil {
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

// closeWithError sends a final "error" event and closes the connection with
// the given status code.
func (s *Server) closeWithError(ctx context.Context, conn *websocket.Conn, code websocket.StatusCode, msg string) {
	_ = wsjson.Write(ctx, conn, streamEvent{Event: "error", Error: msg})
	conn.Close(code, "")
}
