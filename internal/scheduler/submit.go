package scheduler

import "modeld/pkg/types"

// AddPrefillTask submits a Prefill task (spec §4.3 AddPrefillTask).
// contents is the pre-tokenized prompt (tokenization is an out-of-scope
// collaborator — spec §1); cancelFlag may be nil, in which case a fresh
// one is allocated.
func (s *Scheduler) AddPrefillTask(sessionID string, taskID TaskID, contents []int32, preds []TaskID, cancelFlag *int32, cb func(types.Responses)) *TaskController {
	rec := &taskRecord{
		id:        taskID,
		sessionID: sessionID,
		kind:      types.TaskPrefill,
		preds:     preds,
		callback:  cb,
		contents:  contents,
	}
	return s.submit(rec, cancelFlag)
}

// AddDecodeTask submits a Decode task (spec §4.3 AddDecodeTask). maxOutTokens
// bounds the decode loop; constraint and stopTokenID are optional early-stop
// signals (constraint providers are out-of-scope collaborators per spec §1).
func (s *Scheduler) AddDecodeTask(sessionID string, taskID TaskID, preds []TaskID, constraint ConstraintProvider, cancelFlag *int32, cb func(types.Responses), maxOutTokens int, stopTokenID *int32) *TaskController {
	rec := &taskRecord{
		id:           taskID,
		sessionID:    sessionID,
		kind:         types.TaskDecode,
		preds:        preds,
		callback:     cb,
		maxOutTokens: maxOutTokens,
		constraint:   constraint,
		stopTokenID:  stopTokenID,
	}
	return s.submit(rec, cancelFlag)
}

// AddTextScoringTask submits a TextScoring task (spec §4.3
// AddTextScoringTask). targetTokens is the pre-tokenized target text;
// spec §7's batch size 1 holds by construction: a task carries exactly
// one target sequence, and the scheduler has no notion of "batch" for
// this task kind.
func (s *Scheduler) AddTextScoringTask(sessionID string, taskID TaskID, preds []TaskID, targetTokens []int32, storeTokenLengths bool, cancelFlag *int32, cb func(types.Responses)) *TaskController {
	rec := &taskRecord{
		id:                taskID,
		sessionID:         sessionID,
		kind:              types.TaskTextScoring,
		preds:             preds,
		callback:          cb,
		contents:          targetTokens,
		storeTokenLengths: storeTokenLengths,
	}
	return s.submit(rec, cancelFlag)
}

// AddCloneSessionTask submits a CloneSession task (spec §4.3
// AddCloneSessionTask). destSessionID is the caller-chosen ID for the new
// session the clone populates.
func (s *Scheduler) AddCloneSessionTask(sessionID string, taskID TaskID, preds []TaskID, destSessionID string, cancelFlag *int32, cb func(types.Responses)) *TaskController {
	rec := &taskRecord{
		id:            taskID,
		sessionID:     sessionID,
		kind:          types.TaskCloneSession,
		preds:         preds,
		callback:      cb,
		destSessionID: destSessionID,
	}
	return s.submit(rec, cancelFlag)
}
