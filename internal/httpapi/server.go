// Package httpapi exposes the Engine/Session API over HTTP (SPEC_FULL §6
// expansion of spec.md's embedder-facing API): session CRUD, prefill/
// decode/message operations (synchronous, NDJSON-streamed, and
// websocket-streamed), cancellation, cloning, and Engine::Benchmark,
// fronted by github.com/go-chi/chi/v5 the same way the teacher's
// NewMux did, instrumented with github.com/prometheus/client_golang and
// logged with github.com/rs/zerolog.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modeld/internal/session"
	"modeld/internal/status"
	"modeld/pkg/types"
)

var validate = validator.New()

// Service is the subset of *pkg/engine.Engine the HTTP layer depends on,
// generalizing the teacher's Service interface (ListModels/Status/Infer/
// Ready) from "one model directory" to "one Engine vending Sessions".
type Service interface {
	CreateSession(cfg types.SessionConfig, opts ...session.Option) (*session.Session, error)
	GetSession(sessionID string) (*session.Session, bool)
	DeleteSession(sessionID string)
	Benchmark(modelPath string, backend types.Backend, prefillN, decodeN int, cacheDir string) (types.BenchmarkInfo, error)
}

// NewMux builds the HTTP router for svc. applier renders wire Messages into
// prefill tokens for the /messages endpoints (spec §1: tokenization/
// templating is an out-of-scope external collaborator); a nil applier
// disables those endpoints (501) while leaving the token-level
// prefill/decode endpoints fully usable.
func NewMux(svc Service, applier session.TemplateApplier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(LoggingMiddleware)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}

	h := &handler{svc: svc, applier: applier}

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	MountSwagger(r)

	r.Route("/v1/sessions", func(r chi.Router) {
		r.Post("/", h.createSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Delete("/", h.deleteSession)
			r.Post("/prefill", h.prefill)
			r.Post("/decode", h.decode)
			r.Post("/messages", h.sendMessage)
			r.Post("/score", h.score)
			r.Post("/clone", h.clone)
			r.Post("/cancel", h.cancel)
			r.Get("/benchmark", h.getBenchmarkInfo)
			r.Get("/stream", h.websocketStream)
		})
	})
	r.Post("/v1/benchmark", h.benchmark)

	return r
}

// handler closes over the Service and TemplateApplier collaborators;
// methods are kept small and delegate to the decodeJSONBody/writeJSON
// helpers in this file and to errors.go,
// mirroring the teacher's style of thin inline handlers in NewMux.
type handler struct {
	svc     Service
	applier session.TemplateApplier
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *handler) readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req types.CreateSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	sess, err := h.svc.CreateSession(req.Config)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, types.CreateSessionResponse{SessionID: sess.ID()})
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	ids := sess.LastTaskIDs()
	out := make([]int64, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	writeJSON(w, http.StatusOK, types.SessionInfoResponse{
		SessionID:   sess.ID(),
		State:       string(sess.State()),
		LastTaskIDs: out,
	})
}

func (h *handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	h.svc.DeleteSession(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) prefill(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req types.PrefillRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	defer watchCancellation(ctx, sess)()
	if stream := streamModeOf(r); stream != streamNone {
		streamResponses(w, ctx, stream, func(cb func(types.Responses)) {
			sess.RunPrefillAsync(req.Tokens, cb)
		})
		return
	}
	resp, err := sess.RunPrefill(req.Tokens)
	writeResponses(w, resp, err)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req types.DecodeRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	opts := session.DecodeOptions{MaxOutTokens: req.MaxOutputTokens, StopTokenID: req.StopTokenID}
	ctx, cancel := requestContext(r)
	defer cancel()
	defer watchCancellation(ctx, sess)()
	if stream := streamModeOf(r); stream != streamNone {
		streamResponses(w, ctx, stream, func(cb func(types.Responses)) {
			sess.RunDecodeAsync(cb, req.ApplyTemplateInSession, req.TemplateSuffix, opts)
		})
		return
	}
	resp, err := sess.RunDecode(req.ApplyTemplateInSession, req.TemplateSuffix, opts)
	writeResponses(w, resp, err)
}

func (h *handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	if h.applier == nil {
		writeJSONError(w, http.StatusNotImplemented, "httpapi: no template applier configured")
		return
	}
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req types.MessageRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	opts := session.DecodeOptions{MaxOutTokens: req.MaxOutputTokens, StopTokenID: req.StopTokenID}
	ctx, cancel := requestContext(r)
	defer cancel()
	defer watchCancellation(ctx, sess)()
	if stream := streamModeOf(r); stream != streamNone {
		streamResponses(w, ctx, stream, func(cb func(types.Responses)) {
			hdl, err := sess.SendMessageAsync(h.applier, req.Message, req.ApplyTemplateInSession, opts, cb)
			if err != nil {
				cb(types.Responses{State: types.TaskFailed, Err: err})
				return
			}
			_ = hdl
		})
		return
	}
	resp, err := sess.SendMessage(h.applier, req.Message, req.ApplyTemplateInSession, opts)
	writeResponses(w, resp, err)
}

func (h *handler) score(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req types.ScoreRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()
	defer watchCancellation(ctx, sess)()
	resp, err := sess.RunTextScoring(req.TargetTokens, req.StoreTokenLengths)
	writeResponses(w, resp, err)
}

func (h *handler) clone(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	var req types.CloneRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	clonedSess, resp, err := sess.Clone(req.DestSessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	// The scheduler-level row for the clone now exists (Clone blocked on
	// its controller); register the facade so a later request can look it
	// up the same way CreateSession's result can.
	if eng, ok := h.svc.(sessionAdopter); ok {
		eng.AdoptSession(clonedSess)
	}
	writeResponses(w, resp, nil)
}

// sessionAdopter lets NewMux's clone handler register the destination of
// Session.Clone without widening Service beyond what every other handler
// needs; only *pkg/engine.Engine implements it today.
type sessionAdopter interface {
	AdoptSession(sess *session.Session)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	sess.CancelProcess()
	w.WriteHeader(http.StatusAccepted)
}

func (h *handler) getBenchmarkInfo(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookupSession(w, r)
	if !ok {
		return
	}
	info, err := sess.GetBenchmarkInfo()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handler) benchmark(w http.ResponseWriter, r *http.Request) {
	var req types.BenchmarkRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	info, err := h.svc.Benchmark(req.ModelPath, req.Backend, req.PrefillN, req.DecodeN, req.CacheDir)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *handler) lookupSession(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	sess, ok := h.svc.GetSession(id)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "session not found: "+id)
		return nil, false
	}
	return sess, true
}

// decodeJSONBody decodes r's body into dst and validates it against dst's
// `validate` struct tags, writing a 400 and returning false on either
// failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeResponses writes the terminal Responses of a synchronous operation.
// A cancelled operation still returns 200 with the Responses body (its
// State and Err already carry the structured cancel_reason_code fields
// spec §4.4 describes) rather than an error envelope, since CancelProcess
// is itself a request the caller made — only operation failures proper
// (executor errors, invalid dependency state) map to an HTTP error status.
func writeResponses(w http.ResponseWriter, resp types.Responses, err error) {
	if err != nil && !status.IsCancelled(err) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

