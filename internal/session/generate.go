package session

import (
	"sync/atomic"

	"modeld/internal/scheduler"
	"modeld/pkg/types"
)

// Handle is the composed-operation cancellation surface GenerateContentStream
// returns: a GenerateContent call spans two scheduler tasks (prefill then
// decode) submitted one after the other, so a single TaskController cannot
// represent "the whole generation" — Handle.Cancel reaches whichever phase
// is currently in flight.
type Handle struct {
	current atomic.Pointer[scheduler.TaskController]
}

// Cancel cancels the in-flight phase (prefill or decode) of the generation.
// Best-effort, like every cancellation in this system (spec §5).
func (h *Handle) Cancel() {
	if ctrl := h.current.Load(); ctrl != nil {
		ctrl.Cancel()
	}
}

// GenerateContentStream composes RunPrefillAsync and RunDecodeAsync (spec
// §4.4 GenerateContent/GenerateContentStream): it installs a wrapping
// prefill callback that, on prefill Done, submits the decode task and
// forwards its callback to decodeCb; a non-Done prefill terminal state is
// forwarded to decodeCb directly instead (there is no decode phase to run).
func (s *Session) GenerateContentStream(contents []int32, applyTemplateInSession bool, templateSuffix []int32, opts DecodeOptions, decodeCb func(types.Responses)) *Handle {
	h := &Handle{}
	prefillCtrl := s.RunPrefillAsync(contents, func(r types.Responses) {
		if r.State != types.TaskDone {
			decodeCb(r)
			return
		}
		decodeCtrl := s.RunDecodeAsync(decodeCb, applyTemplateInSession, templateSuffix, opts)
		h.current.Store(decodeCtrl)
	})
	h.current.Store(prefillCtrl)
	return h
}

// GenerateContent is the synchronous composed operation: prefill then
// decode, returning the final accumulated Responses (scores normalized by
// token count, as RunDecode does) or the prefill's terminal error if
// prefill itself did not reach Done.
func (s *Session) GenerateContent(contents []int32, applyTemplateInSession bool, templateSuffix []int32, opts DecodeOptions) (types.Responses, error) {
	done := make(chan types.Responses, 1)
	var tokenCount int
	s.GenerateContentStream(contents, applyTemplateInSession, templateSuffix, opts, func(r types.Responses) {
		if r.State == types.TaskProcessing {
			tokenCount++
			return
		}
		if tokenCount > 0 {
			r.Scores = normalizeByTokenCount(r.Scores, tokenCount)
		}
		done <- r
	})
	resp := <-done
	return resp, resp.Err
}
