package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"modeld/internal/bridge"
	"modeld/internal/session"
	"modeld/pkg/types"
)

// streamMode selects how a prefill/decode/messages handler delivers
// per-chunk Responses, generalizing the teacher's single NDJSON /infer
// response into an explicit, query-string-selected mode (spec §4.5: the
// async-to-sync bridge is one of several ways an embedder can consume a
// stream of chunks — NDJSON-over-HTTP is another).
type streamMode int

const (
	streamNone streamMode = iota
	streamNDJSON
)

func streamModeOf(r *http.Request) streamMode {
	switch r.URL.Query().Get("stream") {
	case "ndjson":
		return streamNDJSON
	default:
		return streamNone
	}
}

// streamResponses drives submit (a RunXAsync-shaped call taking just the
// completion callback) through a bridge.Iterator and writes each chunk as
// one NDJSON line, flushing after every line so a client sees tokens as
// they're produced rather than buffered until the terminal chunk — the
// streaming half of spec §4.5's async-to-sync bridge, reused here to drive
// an HTTP response instead of a pull loop.
func streamResponses(w http.ResponseWriter, ctx context.Context, mode streamMode, submit func(cb func(types.Responses))) {
	if mode != streamNDJSON {
		writeJSONError(w, http.StatusBadRequest, "unsupported stream mode")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	it := bridge.New(0)
	submit(it.Callback())

	enc := json.NewEncoder(w)
	for {
		resp, ok, err := it.Next(ctx)
		if err != nil {
			return
		}
		if !ok {
			return
		}
		if encErr := enc.Encode(resp); encErr != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// wsUpgrader mirrors the teacher's lack of origin restriction at this
// layer (CORS, when enabled, is handled by the chi middleware chain
// instead) — callers deploying across origins should front this with
// SetCORSOptions the same way the NDJSON/JSON endpoints are.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// websocketStream upgrades the connection, reads one types.DecodeRequest
// frame to start a decode, then streams each Responses chunk as its own
// websocket text frame until the terminal chunk, mirroring streamResponses
// but for callers that negotiated a websocket instead of chunked NDJSON.
func (h *handler) websocketStream(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var req types.DecodeRequest
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	opts := session.DecodeOptions{MaxOutTokens: req.MaxOutputTokens, StopTokenID: req.StopTokenID}

	it := bridge.New(0)
	sess.RunDecodeAsync(it.Callback(), req.ApplyTemplateInSession, req.TemplateSuffix, opts)

	ctx := r.Context()
	for {
		resp, ok, err := it.Next(ctx)
		if err != nil || !ok {
			return
		}
		if err := conn.WriteJSON(resp); err != nil {
			return
		}
	}
}
