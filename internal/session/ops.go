package session

import (
	"modeld/internal/scheduler"
	"modeld/pkg/types"
)

// RunPrefillAsync submits a Prefill task chained on the current frontier,
// advances session_state to Prefilled, and replaces the frontier with the
// new task's ID (spec §4.4 RunPrefillAsync). contents is pre-tokenized
// (tokenization is an out-of-scope collaborator — spec §1).
func (s *Session) RunPrefillAsync(contents []int32, cb func(types.Responses)) *scheduler.TaskController {
	preds := s.frontier()
	cancelFlag, gen := s.beginGeneration()
	taskID := s.sched.GetNewTaskId()

	s.setFrontier([]scheduler.TaskID{taskID}, Prefilled)
	ctrl := s.sched.AddPrefillTask(s.id, taskID, contents, preds, cancelFlag, func(r types.Responses) {
		s.clearFrontierOnTerminalError(&r, true, false, taskID, gen)
		if cb != nil {
			cb(r)
		}
	})
	return ctrl
}

// RunPrefill is the synchronous wrapper spec §4.4 describes: submit async,
// block on the controller, return the terminal status.
func (s *Session) RunPrefill(contents []int32) (types.Responses, error) {
	done := make(chan types.Responses, 1)
	s.RunPrefillAsync(contents, func(r types.Responses) { done <- r })
	resp := <-done
	return resp, resp.Err
}

// DecodeOptions overrides a decode call's stop conditions (spec §4.3
// AddDecodeTask); the zero value means "use SessionConfig.MaxOutputTokens,
// no stop token, no constraint provider".
type DecodeOptions struct {
	MaxOutTokens int
	StopTokenID  *int32
	Constraint   scheduler.ConstraintProvider
}

// RunDecodeAsync submits a Decode task chained on the frontier (spec §4.4
// RunDecodeAsync). If applyTemplateInSession is set, it first submits a
// silent tail-prefill carrying the template's suffix tokens (a no-op
// callback) so the decode task's predecessor already reflects the
// assistant-turn-start tokens the template layer appends.
func (s *Session) RunDecodeAsync(cb func(types.Responses), applyTemplateInSession bool, templateSuffix []int32, opts DecodeOptions) *scheduler.TaskController {
	preds := s.frontier()
	cancelFlag, gen := s.beginGeneration()

	if applyTemplateInSession && len(templateSuffix) > 0 {
		tailID := s.sched.GetNewTaskId()
		s.sched.AddPrefillTask(s.id, tailID, templateSuffix, preds, cancelFlag, func(types.Responses) {})
		preds = []scheduler.TaskID{tailID}
	}

	taskID := s.sched.GetNewTaskId()

	// Retain the decode task ID on the frontier even on Done (spec §8
	// scenario S1: "on Done it may retain the decode task ID"). It is set
	// before the task is submitted, so on a terminal error
	// clearFrontierOnTerminalError empties it afterwards, even when the
	// task finishes before AddDecodeTask returns.
	s.setFrontier([]scheduler.TaskID{taskID}, Decoded)
	ctrl := s.sched.AddDecodeTask(s.id, taskID, preds, opts.Constraint, cancelFlag, func(r types.Responses) {
		s.clearFrontierOnTerminalError(&r, false, true, taskID, gen)
		if cb != nil {
			cb(r)
		}
	}, opts.MaxOutTokens, opts.StopTokenID)
	return ctrl
}

// RunDecode is the accumulating synchronous decode spec §4.4 describes: it
// installs a callback that concatenates per-token text, accumulates
// per-token scores, and normalizes the score by token count once the task
// reaches a terminal state, then blocks for that state.
func (s *Session) RunDecode(applyTemplateInSession bool, templateSuffix []int32, opts DecodeOptions) (types.Responses, error) {
	done := make(chan types.Responses, 1)
	var tokenCount int
	s.RunDecodeAsync(func(r types.Responses) {
		if r.State == types.TaskProcessing {
			tokenCount++
			return
		}
		if tokenCount > 0 {
			r.Scores = normalizeByTokenCount(r.Scores, tokenCount)
		}
		done <- r
	}, applyTemplateInSession, templateSuffix, opts)
	resp := <-done
	return resp, resp.Err
}

func normalizeByTokenCount(scores []float64, tokenCount int) []float64 {
	out := make([]float64, len(scores))
	for i, v := range scores {
		out[i] = v / float64(tokenCount)
	}
	return out
}

// RunTextScoringAsync submits a TextScoring task chained on the frontier
// (spec §4.4 RunTextScoring/RunTextScoringAsync). Batch size 1 is enforced
// by the scheduler (a single target token sequence per task); there is no
// session-state transition for scoring (spec §4.4 only names Prefill/
// Decode as driving session_state).
func (s *Session) RunTextScoringAsync(targetTokens []int32, storeTokenLengths bool, cb func(types.Responses)) *scheduler.TaskController {
	preds := s.frontier()
	cancelFlag, gen := s.beginGeneration()
	taskID := s.sched.GetNewTaskId()

	s.setFrontierKeepState([]scheduler.TaskID{taskID})
	ctrl := s.sched.AddTextScoringTask(s.id, taskID, preds, targetTokens, storeTokenLengths, cancelFlag, func(r types.Responses) {
		s.clearFrontierOnTerminalError(&r, false, false, taskID, gen)
		if cb != nil {
			cb(r)
		}
	})
	return ctrl
}

// setFrontierKeepState replaces the frontier without forcing a
// session_state transition (used by RunTextScoringAsync, which spec §4.4
// does not list as a state-machine driver).
func (s *Session) setFrontierKeepState(ids []scheduler.TaskID) {
	s.mu.Lock()
	s.lastTaskIDs = ids
	s.mu.Unlock()
}

// RunTextScoring is the synchronous wrapper over RunTextScoringAsync.
func (s *Session) RunTextScoring(targetTokens []int32, storeTokenLengths bool) (types.Responses, error) {
	done := make(chan types.Responses, 1)
	s.RunTextScoringAsync(targetTokens, storeTokenLengths, func(r types.Responses) { done <- r })
	resp := <-done
	return resp, resp.Err
}
