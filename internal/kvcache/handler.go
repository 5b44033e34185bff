package kvcache

// ContextHandler is the per-session holder of the execution context (spec
// §3 ContextHandler). It owns a SharedProcessedContext pointer, an
// optional owned RuntimeConfig, an optional owned RuntimeState, and an
// optional AudioContext.
//
// Invariant: while a handler is the currently-active one on the executor,
// it does NOT own Config/State in the handler itself — those live on the
// executor; the handler is a "pointer back" only (Active is true and
// Config/State are nil). When parked, Config/State hold the last values
// saved out of the executor.
type ContextHandler struct {
	SessionID string
	Shared    *SharedProcessedContext
	Config    *RuntimeConfig
	State     *RuntimeState
	Audio     *AudioContext
	Active    bool
}

// NewContextHandler constructs a fresh handler over a brand-new
// SharedProcessedContext, owning config/state (it starts parked).
func NewContextHandler(sessionID string, kv KV, config *RuntimeConfig) *ContextHandler {
	return &ContextHandler{
		SessionID: sessionID,
		Shared:    New(kv),
		Config:    config,
		State:     &RuntimeState{},
	}
}

// IsFresh reports whether this handler has no committed history and has
// never run a decode — the "fresh context" test of spec §4.2 step 3(a).
func (h *ContextHandler) IsFresh() bool {
	return h.Shared.Tokens.TokenCount() == 0 && h.currentStep() == 0 && !h.ranDecode()
}

func (h *ContextHandler) currentStep() int {
	if h.State != nil {
		return h.State.CurrentStep
	}
	return 0
}

func (h *ContextHandler) ranDecode() bool {
	if h.State != nil {
		return h.State.RanDecode
	}
	return false
}
