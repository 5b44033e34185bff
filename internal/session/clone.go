package session

import (
	"modeld/internal/scheduler"
	"modeld/pkg/types"
)

// CloneAsync submits a CloneSession task and returns a new Session bound to
// destSessionID, inheriting the source's session_state and last_task_ids
// (spec §4.4 Clone/CloneAsync). The returned Session's scheduler-level row
// is not created until the CloneSession task itself completes on the
// worker thread — callers that need to submit work against the clone must
// wait on the returned controller first (mirroring RunPrefill/RunDecode's
// own submit-then-wait shape).
func (s *Session) CloneAsync(destSessionID string, cb func(types.Responses)) (*Session, *scheduler.TaskController) {
	preds := s.frontier()
	state := s.State()
	cancelFlag, gen := s.beginGeneration()
	taskID := s.sched.GetNewTaskId()

	ctrl := s.sched.AddCloneSessionTask(s.id, taskID, preds, destSessionID, cancelFlag, func(r types.Responses) {
		s.clearFrontierOnTerminalError(&r, false, false, taskID, gen)
		if cb != nil {
			cb(r)
		}
	})

	clone := New(s.sched, destSessionID, WithLogger(s.logger))
	clone.setFrontier(preds, state)
	return clone, ctrl
}

// Clone is the synchronous wrapper over CloneAsync.
func (s *Session) Clone(destSessionID string) (*Session, types.Responses, error) {
	done := make(chan types.Responses, 1)
	clone, _ := s.CloneAsync(destSessionID, func(r types.Responses) { done <- r })
	resp := <-done
	return clone, resp, resp.Err
}
