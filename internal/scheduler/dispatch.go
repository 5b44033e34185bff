package scheduler

import (
	"context"
	"math"

	"modeld/internal/resource"
	"modeld/internal/sampler"
	"modeld/internal/status"
	"modeld/internal/textstream"
	"modeld/pkg/types"
)

// execute runs one dequeued task (spec §4.3 "Before running a task that
// targets session S, the worker calls AcquireExecutorWithContextHandler").
// CloneSession is the one kind that does not take that path directly: it
// calls ResourceManager.CloneContextHandler, which acquires the same
// executor lock itself — holding it here too would deadlock against the
// registry's non-reentrant per-resource mutex.
func (s *Scheduler) execute(rec *taskRecord) {
	if rec.controller.IsCancelled() {
		s.completeTask(rec, types.TaskCancelled, types.Responses{State: types.TaskCancelled})
		return
	}

	s.mu.Lock()
	entry, ok := s.sessions[rec.sessionID]
	s.mu.Unlock()
	if !ok {
		s.completeTask(rec, types.TaskFailed, types.Responses{
			State: types.TaskFailed,
			Err:   status.New(status.NotFound, "scheduler: unknown session %q", rec.sessionID),
		})
		return
	}

	s.metrics.dispatched(string(rec.kind))
	s.publisher.Publish(Event{Name: "task_dispatched", SessionID: rec.sessionID, TaskID: int64(rec.id)})

	if rec.kind == types.TaskCloneSession {
		s.dispatchCloneSession(rec, entry)
		return
	}

	locked, err := s.resMgr.AcquireExecutorWithContextHandler(entry.handler)
	if err != nil {
		s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
		return
	}
	defer locked.Unlock()

	switch rec.kind {
	case types.TaskPrefill:
		s.dispatchPrefill(rec, locked)
	case types.TaskDecode:
		s.dispatchDecode(rec, locked, entry)
	case types.TaskTextScoring:
		s.dispatchTextScoring(rec, locked)
	default:
		s.completeTask(rec, types.TaskFailed, types.Responses{
			State: types.TaskFailed,
			Err:   status.New(status.Internal, "scheduler: unknown task kind %q", rec.kind),
		})
	}
}

// dispatchPrefill builds ExecutorInputs from contents and forwards to the
// LockedExecutor's copy-on-write prefill path (spec §4.3 Task dispatch,
// Prefill).
func (s *Scheduler) dispatchPrefill(rec *taskRecord, locked *resource.LockedExecutor) {
	if err := locked.Prefill(context.Background(), rec.contents); err != nil {
		s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
		return
	}
	s.completeTask(rec, types.TaskDone, types.Responses{State: types.TaskDone})
}

// dispatchDecode runs the bounded decode loop (spec §4.3 Task dispatch,
// Decode): one executor.Decode + sample + detokenize + callback per
// iteration, stopping on stop-token match, max_out_tokens, constraint
// termination, cancellation, or executor error. Responses.Scores carries
// the raw cumulative per-candidate log-probability sum at every step,
// including the terminal one — normalizing it by token count is
// RunDecode's job (spec §4.4), one layer up, not this dispatch's.
//
// NumOutputCandidates > 1 is not exercised here: executor.Backend.Decode
// returns one logits row per call, so only batch size 1 is actually
// reachable through this interface today.
func (s *Scheduler) dispatchDecode(rec *taskRecord, locked *resource.LockedExecutor, entry *sessionEntry) {
	entry.mu.Lock()
	params := entry.config.Sampler
	entry.mu.Unlock()

	samp, err := sampler.Create(params.K, params.P, params.Temperature, 1, params.Seed, true)
	if err != nil {
		s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
		return
	}

	maxTokens := rec.maxOutTokens
	if maxTokens <= 0 {
		maxTokens = 1
	}

	var reassembler textstream.Reassembler
	text := ""
	var scoreSum float64
	var generated []int32
	ids := make([]int32, 1)
	scores := make([]float64, 1)

	for i := 0; i < maxTokens; i++ {
		if rec.controller.IsCancelled() {
			locked.Cancel()
			s.completeTask(rec, types.TaskCancelled, types.Responses{
				State: types.TaskCancelled, Texts: []string{text}, Scores: []float64{scoreSum},
			})
			return
		}

		logits, err := locked.Decode(context.Background())
		if err != nil {
			s.completeTask(rec, types.TaskFailed, types.Responses{
				State: types.TaskFailed, Err: err, Texts: []string{text}, Scores: []float64{scoreSum},
			})
			return
		}

		if err := samp.SampleToIdAndScoreBuffer(sampler.Logits{FP32: [][]float32{logits}}, ids, scores); err != nil {
			s.completeTask(rec, types.TaskFailed, types.Responses{
				State: types.TaskFailed, Err: err, Texts: []string{text}, Scores: []float64{scoreSum},
			})
			return
		}

		locked.AppendGenerated(ids[0])
		scoreSum += scores[0]
		generated = append(generated, ids[0])

		if s.detok != nil {
			text += reassembler.Push(s.detok.Piece(ids[0]))
		}

		s.completeCallback(rec, types.Responses{State: types.TaskProcessing, Texts: []string{text}, Scores: []float64{scoreSum}})

		if rec.stopTokenID != nil && ids[0] == *rec.stopTokenID {
			break
		}
		if rec.constraint != nil && rec.constraint.ShouldStop(generated) {
			break
		}
	}

	s.completeTask(rec, types.TaskDone, types.Responses{State: types.TaskDone, Texts: []string{text}, Scores: []float64{scoreSum}})
}

// completeCallback invokes a non-terminal (Processing) Responses directly,
// bypassing the terminal-state bookkeeping completeTask runs — there is
// nothing to resolve in the task DAG until the task actually finishes.
func (s *Scheduler) completeCallback(rec *taskRecord, resp types.Responses) {
	rec.callback(resp)
}

// dispatchTextScoring prefills the target tokens one at a time, reading
// each one's log-probability via DecodeLogits before committing it (spec
// §4.3 Task dispatch, TextScoring).
func (s *Scheduler) dispatchTextScoring(rec *taskRecord, locked *resource.LockedExecutor) {
	if len(rec.contents) == 0 {
		s.completeTask(rec, types.TaskFailed, types.Responses{
			State: types.TaskFailed,
			Err:   status.New(status.InvalidArgument, "scheduler: text scoring target must be non-empty"),
		})
		return
	}

	var scoreSum float64
	var tokenLengths []int
	for _, tok := range rec.contents {
		if rec.controller.IsCancelled() {
			s.completeTask(rec, types.TaskCancelled, types.Responses{State: types.TaskCancelled, Scores: []float64{scoreSum}})
			return
		}

		logits, err := locked.DecodeLogits(context.Background())
		if err != nil {
			s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
			return
		}
		logProb, err := logProbOf(logits, tok)
		if err != nil {
			s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
			return
		}
		scoreSum += logProb
		if rec.storeTokenLengths {
			tokenLengths = append(tokenLengths, 1)
		}
		if err := locked.Prefill(context.Background(), []int32{tok}); err != nil {
			s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
			return
		}
	}

	s.completeTask(rec, types.TaskDone, types.Responses{State: types.TaskDone, Scores: []float64{scoreSum}, TokenLengths: tokenLengths})
}

// dispatchCloneSession registers a new session table row around a clone
// of srcEntry's ContextHandler (spec §4.3 Task dispatch, CloneSession).
func (s *Scheduler) dispatchCloneSession(rec *taskRecord, srcEntry *sessionEntry) {
	srcEntry.mu.Lock()
	srcHandler := srcEntry.handler
	srcConfig := srcEntry.config
	srcEntry.mu.Unlock()

	clone, err := s.resMgr.CloneContextHandler(srcHandler)
	if err != nil {
		s.completeTask(rec, types.TaskFailed, types.Responses{State: types.TaskFailed, Err: err})
		return
	}
	s.registerSessionHandle(rec.destSessionID, srcConfig, clone)
	s.completeTask(rec, types.TaskDone, types.Responses{State: types.TaskDone})
}

// logProbOf computes the log-softmax of logits at tokenID without
// materializing the full probability vector (spec §4.3 TextScoring:
// "accumulate their log-probabilities").
func logProbOf(logits []float32, tokenID int32) (float64, error) {
	if tokenID < 0 || int(tokenID) >= len(logits) {
		return 0, status.New(status.InvalidArgument, "scheduler: target token id %d out of vocab range [0,%d)", tokenID, len(logits))
	}
	maxLogit := float64(logits[0])
	for _, v := range logits {
		if f := float64(v); f > maxLogit {
			maxLogit = f
		}
	}
	var sumExp float64
	for _, v := range logits {
		sumExp += math.Exp(float64(v) - maxLogit)
	}
	logSumExp := maxLogit + math.Log(sumExp)
	return float64(logits[tokenID]) - logSumExp, nil
}
