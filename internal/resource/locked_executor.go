package resource

import (
	"context"

	"github.com/rs/zerolog/log"

	"modeld/internal/executor"
	"modeld/internal/kvcache"
	"modeld/internal/registry"
)

// LockedExecutor is the LockedLlmExecutor of spec §4.2: a transparent
// wrapper over the executor that runs the copy-on-write/prefix-matching
// optimizations on every Prefill/Decode/DecodeLogits call before
// delegating, and releases the registry lock on Unlock.
type LockedExecutor struct {
	mgr     *Manager
	lock    *registry.Lock[executor.Backend]
	handler *kvcache.ContextHandler
}

// Handler returns the ContextHandler currently active on the executor.
func (l *LockedExecutor) Handler() *kvcache.ContextHandler { return l.handler }

// Cancel forwards to the backend's best-effort Cancel (spec §4.2 Failure/
// cancellation semantics): the scheduler calls this when a task's
// cancellation flag fires mid-decode, on a best-effort basis only — it
// does not abort an in-flight kernel call already in progress.
func (l *LockedExecutor) Cancel() { l.mgr.backend.Cancel() }

// Unlock releases the executor. Safe to call multiple times.
func (l *LockedExecutor) Unlock() { l.lock.Unlock() }

// Prefill runs the prefill optimization of spec §4.2 before delegating to
// the backend: clamp an out-of-range step, elide any input tokens that
// already match the committed prefix, and — when the active handler is
// not the longest sibling and the residual input diverges from the
// committed suffix — detach to a fresh SharedProcessedContext first so the
// mutation never corrupts a sibling's history.
func (l *LockedExecutor) Prefill(ctx context.Context, tokens []int32) error {
	h := l.handler
	processed := h.Shared.Tokens
	step := l.mgr.backend.GetRuntimeState().CurrentStep
	tokenCount := processed.TokenCount()

	if step > tokenCount {
		log.Warn().Str("session_id", h.SessionID).Int("step", step).Int("token_count", tokenCount).
			Msg("resource manager: clamping out-of-range prefill step")
		step = tokenCount
	}

	if step == tokenCount {
		return l.commitPrefill(ctx, h, tokens, step)
	}

	residual := processed.RemoveMatchingTokens(append([]int32(nil), tokens...), &step)
	tokenCount = processed.TokenCount()
	if step > tokenCount {
		step = tokenCount
	}

	if len(residual) == 0 {
		state := l.mgr.backend.GetRuntimeState()
		state.CurrentStep = step
		l.mgr.backend.UpdateRuntimeState(state)
		return nil
	}

	if step == tokenCount {
		return l.commitPrefill(ctx, h, residual, step)
	}

	if !l.mgr.isLongestSiblingLocked(h, step) {
		l.detach(h)
	}
	return l.commitPrefill(ctx, h, residual, step)
}

func (l *LockedExecutor) commitPrefill(ctx context.Context, h *kvcache.ContextHandler, tokens []int32, step int) error {
	if err := l.mgr.backend.Prefill(ctx, executor.Inputs{Tokens: tokens}); err != nil {
		return err
	}
	h.Shared.Tokens.Append(tokens...)
	state := l.mgr.backend.GetRuntimeState()
	state.CurrentStep = h.Shared.Tokens.TokenCount()
	l.mgr.backend.UpdateRuntimeState(state)
	return nil
}

// Decode runs MaybeTruncateProcessedTokens before delegating.
func (l *LockedExecutor) Decode(ctx context.Context) ([]float32, error) {
	l.maybeTruncate()
	logits, err := l.mgr.backend.Decode(ctx)
	if err != nil {
		return nil, err
	}
	return logits, nil
}

// DecodeLogits runs MaybeTruncateProcessedTokens before delegating.
func (l *LockedExecutor) DecodeLogits(ctx context.Context) ([]float32, error) {
	l.maybeTruncate()
	return l.mgr.backend.DecodeLogits(ctx)
}

// AppendGenerated commits a sampled token ID to the active handler's
// committed prefix, advancing the executor's step by one. Callers run
// this once per decode step after sampling (spec §4.2/§4.4 interplay: the
// resource manager clamps/truncates, the session loop is what knows which
// token was actually sampled).
func (l *LockedExecutor) AppendGenerated(id int32) {
	l.handler.Shared.Tokens.Append(id)
	state := l.mgr.backend.GetRuntimeState()
	state.CurrentStep = l.handler.Shared.Tokens.TokenCount()
	state.RanDecode = true
	l.mgr.backend.UpdateRuntimeState(state)
}

// maybeTruncate implements MaybeTruncateProcessedTokens (spec §4.2): if
// step < TokenCount() and the active handler is not the longest sibling,
// detach to a fresh context before the caller's decode can overwrite a
// suffix shared with siblings.
func (l *LockedExecutor) maybeTruncate() {
	h := l.handler
	step := l.mgr.backend.GetRuntimeState().CurrentStep
	tokenCount := h.Shared.Tokens.TokenCount()
	if step >= tokenCount {
		return
	}
	if !l.mgr.isLongestSiblingLocked(h, step) {
		l.detach(h)
	}
}

// detach gives up h's share of its SharedProcessedContext (spec §4.2
// step 5, §9 copy-on-write). old.Tokens is shared memory — every sibling
// aliases the same *ProcessedTokens pointer — so it must never be mutated
// in place here; instead h gets its own independent copy truncated to its
// own recorded step, leaving the longest sibling's view untouched. The
// underlying KV buffer is best-effort cloned too (falling back to a fresh
// empty one when the backend can't clone, e.g. the llama backend, which
// documents CloneContext as unimplemented and relies on the checkpoint
// store for durable KV round-tripping instead).
func (l *LockedExecutor) detach(h *kvcache.ContextHandler) {
	step := l.mgr.backend.GetRuntimeState().CurrentStep
	old := h.Shared

	kv, err := l.mgr.backend.CloneContext()
	if err != nil || kv == nil {
		kv = l.mgr.backend.NewKV()
	}
	fresh := kvcache.Detach(kv)
	fresh.Tokens = old.Tokens.Clone()
	fresh.Tokens.Truncate(step)

	l.mgr.forgetSiblingLocked(h)
	h.Shared = fresh
	l.mgr.trackSiblingLocked(h)
	old.Release()

	if err := l.mgr.backend.RestoreContext(kv); err != nil {
		log.Debug().Str("session_id", h.SessionID).Err(err).
			Msg("resource manager: backend does not support physical KV restore on detach")
	}
	log.Debug().Str("session_id", h.SessionID).Int64("old_context_id", old.ID).
		Int64("new_context_id", h.Shared.ID).Msg("resource manager: detached non-longest sibling")
}
