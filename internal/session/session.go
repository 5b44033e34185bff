// Package session implements the Session facade (spec §4.4): a handle
// bound to one session ID and the Execution Manager, exposing
// RunPrefill(Async)/RunDecode(Async)/RunTextScoring(Async)/
// GenerateContent(Stream)/Clone(Async) plus the session_state state machine
// (Fresh → Prefilled → Decoded) and the last_task_ids dependency frontier.
//
// Grounded on the teacher's internal/manager facade style (one struct per
// stateful resource, thin public methods delegating to package-private
// helpers) generalized from "one model instance" to "one session bound to
// a shared Execution Manager".
package session

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"modeld/internal/scheduler"
	"modeld/internal/status"
	"modeld/pkg/types"
)

// State enumerates session_state (spec §4.4).
type State string

const (
	Fresh     State = "fresh"
	Prefilled State = "prefilled"
	Decoded   State = "decoded"
)

// Session is a facade bound to one session ID and a reference to the
// Execution Manager (spec §4.4 "weak reference to the Execution Manager" —
// realized here as a plain pointer, since Go has no native weak references
// and the scheduler outlives every session bound to it in practice).
type Session struct {
	id     string
	sched  *scheduler.Scheduler
	logger zerolog.Logger

	mu           sync.Mutex
	state        State
	lastTaskIDs  []scheduler.TaskID
	activeCancel *int32
	genSeq       int64
}

// Option configures a Session at construction.
type Option func(*Session)

// WithLogger installs a logger used for the frontier-clearing warning spec
// §4.4 calls for. Default is a disabled logger (no output).
func WithLogger(l zerolog.Logger) Option { return func(s *Session) { s.logger = l } }

// New wraps an already-registered scheduler session (one created via
// Scheduler.RegisterNewSession or as the destination of a CloneSession
// task) in a Session facade, starting in state Fresh with an empty
// frontier.
func New(sched *scheduler.Scheduler, sessionID string, opts ...Option) *Session {
	s := &Session{
		id:     sessionID,
		sched:  sched,
		logger: zerolog.Nop(),
		state:  Fresh,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the bound session ID.
func (s *Session) ID() string { return s.id }

// State returns the current session_state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastTaskIDs returns a snapshot of the current dependency frontier.
func (s *Session) LastTaskIDs() []scheduler.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduler.TaskID(nil), s.lastTaskIDs...)
}

// GetBenchmarkInfo reads the session's bench struct without exposing the
// scheduler's mutable copy (spec §4.4 GetBenchmarkInfo).
func (s *Session) GetBenchmarkInfo() (types.BenchmarkInfo, error) {
	bench, err := s.sched.GetMutableBenchmarkInfo(s.id)
	if err != nil {
		return types.BenchmarkInfo{}, err
	}
	return *bench, nil
}

// GetMutableBenchmarkInfo returns the scheduler's live bench struct, which
// the caller may mutate in place (spec §4.4 GetMutableBenchmarkInfo) — used
// by internal/bench to record init phases and per-turn timings.
func (s *Session) GetMutableBenchmarkInfo() (*types.BenchmarkInfo, error) {
	return s.sched.GetMutableBenchmarkInfo(s.id)
}

// CancelProcess cancels whichever task (prefill, decode, or scoring) is the
// current generation's in-flight work (spec §6 Session::CancelProcess).
// Best-effort, like every cancellation in this system (spec §5): it sets
// the shared flag the worker checks between steps, it does not abort a
// kernel call already in progress.
func (s *Session) CancelProcess() {
	s.mu.Lock()
	flag := s.activeCancel
	s.mu.Unlock()
	if flag != nil {
		atomic.StoreInt32(flag, 1)
	}
}

// beginGeneration allocates the cancel flag and generation_id for one new
// top-level submission (prefill, decode, or scoring), installing it as the
// session's currently-cancellable operation.
func (s *Session) beginGeneration() (*int32, int64) {
	flag := scheduler.NewCancelFlag()
	s.mu.Lock()
	s.activeCancel = flag
	s.genSeq++
	gen := s.genSeq
	s.mu.Unlock()
	return flag, gen
}

// frontier reads and replaces the dependency frontier atomically, returning
// the predecessors a new submission should chain on.
func (s *Session) frontier() []scheduler.TaskID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]scheduler.TaskID(nil), s.lastTaskIDs...)
}

func (s *Session) setFrontier(ids []scheduler.TaskID, state State) {
	s.mu.Lock()
	s.lastTaskIDs = ids
	s.state = state
	s.mu.Unlock()
}

// clearFrontierOnTerminalError implements spec §8 Testable Property 4: if
// a callback observes a terminal non-Done state, last_task_ids becomes
// empty before the callback returns control. opID/gen feed the structured
// cancel-reason fields (spec §4.4) when the terminal state is Cancelled;
// for Failed/DependentTaskFailed/DependentTaskCancelled the warning is
// logged without synthesizing a cancel reason (those already carry their
// own Err from the executor or the scheduler's dependency resolution).
func (s *Session) clearFrontierOnTerminalError(r *types.Responses, isPrefill, isDecode bool, opID scheduler.TaskID, gen int64) {
	if !r.State.IsTerminal() || !r.State.IsError() {
		return
	}
	s.mu.Lock()
	s.lastTaskIDs = nil
	s.mu.Unlock()
	s.logger.Warn().
		Str("session_id", s.id).
		Str("task_state", string(r.State)).
		Msg("session: clearing dependency frontier after terminal error")

	if r.State == types.TaskCancelled && r.Err == nil {
		r.Err = cancelStatus(gen, s.id, isPrefill, isDecode, opID)
	}
}

// cancelStatus builds the structured key=value;... cancellation reason
// spec §4.4 requires, stable across implementations. Cancellation is
// detected by the scheduler's worker loop noticing the cancel flag between
// steps, never by the session facade itself, so origin_component is always
// SCHEDULER; cancel_reason_code names which task kind was in flight (spec
// §8 scenario S3: a decode cancelled mid-flight reports
// DECODE_TASK_CANCELLED_STATE).
func cancelStatus(genID int64, sessionID string, isPrefill, isDecode bool, opID scheduler.TaskID) *status.Status {
	reasonCode := "TEXT_SCORING_TASK_CANCELLED_STATE"
	switch {
	case isPrefill:
		reasonCode = "PREFILL_TASK_CANCELLED_STATE"
	case isDecode:
		reasonCode = "DECODE_TASK_CANCELLED_STATE"
	}
	return status.New(status.Cancelled, "session: operation cancelled").WithFields(map[string]string{
		"cancel_reason_code": reasonCode,
		"origin_component":   "SCHEDULER",
		"generation_id":      strconv.FormatInt(genID, 10),
		"session_id":         sessionID,
		"is_prefill":         strconv.FormatBool(isPrefill),
		"is_decode":          strconv.FormatBool(isDecode),
		"op_id":              strconv.FormatInt(int64(opID), 10),
	})
}
