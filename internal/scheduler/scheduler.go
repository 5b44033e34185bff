// Package scheduler implements the Execution Manager (spec §4.3): a
// monotonic task-ID allocator, a session table, a DAG of pending tasks
// keyed by task ID, and a single cooperative worker goroutine that drains
// ready tasks in FIFO submission order and drives them through the
// Resource Manager.
//
// Grounded on the teacher's internal/manager.Manager for the session-table
// shape (config + optional instrumentation + owned execution context) and
// on internal/manager/queue_admission.go's timer-guarded, non-blocking
// reservation pattern for "submitters never block on the executor" (spec
// §5) — generalized from "one queue slot + one in-flight slot per model"
// to "ready tasks queue, worker drains them one at a time".
package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"modeld/internal/kvcache"
	"modeld/internal/resource"
	"modeld/internal/status"
	"modeld/pkg/types"
)

// Detokenizer turns a sampled token ID into its raw UTF-8 byte piece. The
// tokenizer itself is an out-of-scope external collaborator (spec §1); the
// scheduler only consumes this narrow interface and buffers incomplete
// multi-byte sequences itself via internal/textstream (spec §9, §8
// Testable Property 6).
type Detokenizer interface {
	Piece(id int32) []byte
}

// SessionInfo is the read surface GetSessionInfo returns (spec §4.3).
type SessionInfo struct {
	SessionID string
	Config    types.SessionConfig
	Handler   *kvcache.ContextHandler
}

// sessionEntry is the scheduler's per-session table row (spec §3/§4.3: "a
// table of sessions, each with its SessionConfig, optional BenchmarkInfo,
// and ContextHandler").
type sessionEntry struct {
	mu      sync.Mutex
	config  types.SessionConfig
	bench   *types.BenchmarkInfo
	handler *kvcache.ContextHandler
}

// Scheduler is the Execution Manager.
type Scheduler struct {
	resMgr    *resource.Manager
	detok     Detokenizer
	publisher EventPublisher
	metrics   *Metrics

	nextTaskID int64

	mu         sync.Mutex
	sessions   map[string]*sessionEntry
	tasks      map[TaskID]*taskRecord
	dependents map[TaskID][]TaskID
	results    map[TaskID]types.TaskState
	readyQueue []TaskID

	wake      chan struct{}
	stopCh    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithDetokenizer installs the tokenizer collaborator Decode tasks use to
// turn sampled IDs into streamed text. Omitting it is valid: decode still
// runs, but Responses.Texts stays empty (useful for scoring-only or
// embedding-only deployments with no text output surface).
func WithDetokenizer(d Detokenizer) Option { return func(s *Scheduler) { s.detok = d } }

// WithEventPublisher installs an EventPublisher. Default is NoopPublisher.
func WithEventPublisher(p EventPublisher) Option { return func(s *Scheduler) { s.publisher = p } }

// WithMetrics installs scheduler instrumentation. Default is a Metrics
// registered against no Registerer (counters work, nothing is exported).
func WithMetrics(m *Metrics) Option { return func(s *Scheduler) { s.metrics = m } }

// New constructs a Scheduler around resMgr and starts its single worker
// goroutine. Call Stop to shut the worker down.
func New(resMgr *resource.Manager, opts ...Option) *Scheduler {
	s := &Scheduler{
		resMgr:     resMgr,
		publisher:  NoopPublisher{},
		metrics:    NewMetrics(nil),
		sessions:   make(map[string]*sessionEntry),
		tasks:      make(map[TaskID]*taskRecord),
		dependents: make(map[TaskID][]TaskID),
		results:    make(map[TaskID]types.TaskState),
		wake:       make(chan struct{}, 1),
		stopCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	go s.run()
	return s
}

// Stop shuts the worker goroutine down. Tasks still queued never run;
// their controllers are left undone. Safe to call more than once.
func (s *Scheduler) Stop() {
	s.closeOnce.Do(func() { close(s.stopCh) })
}

// GetNewTaskId allocates the next monotonic task ID (spec §4.3).
func (s *Scheduler) GetNewTaskId() TaskID {
	return TaskID(atomic.AddInt64(&s.nextTaskID, 1))
}

// RegisterNewSession adds a new row to the session table, asking the
// Resource Manager for a fresh ContextHandler (spec §4.3 RegisterNewSession).
func (s *Scheduler) RegisterNewSession(cfg types.SessionConfig, bench *types.BenchmarkInfo) (string, error) {
	sessionID := uuid.NewString()
	handler, err := s.resMgr.CreateContextHandler(sessionID, cfg)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.sessions[sessionID] = &sessionEntry{config: cfg, bench: bench, handler: handler}
	s.mu.Unlock()
	s.metrics.sessionRegistered()
	s.publisher.Publish(Event{Name: "session_registered", SessionID: sessionID})
	return sessionID, nil
}

// registerSessionHandle is used by CloneSession dispatch to register a
// new session row around a ContextHandler the Resource Manager already
// built (so it does not also allocate a second, unrelated one via
// CreateContextHandler).
func (s *Scheduler) registerSessionHandle(sessionID string, cfg types.SessionConfig, handler *kvcache.ContextHandler) {
	s.mu.Lock()
	s.sessions[sessionID] = &sessionEntry{config: cfg, handler: handler}
	s.mu.Unlock()
	s.metrics.sessionRegistered()
	s.publisher.Publish(Event{Name: "session_registered", SessionID: sessionID})
}

// ReleaseSession removes session's row from the table and releases its
// ContextHandler back to the Resource Manager, e.g. its LoRA binding
// becomes eligible for LRU eviction once no other session still holds it.
// Safe to call on an unknown session ID (no-op).
func (s *Scheduler) ReleaseSession(sessionID string) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if ok {
		s.resMgr.ReleaseContextHandler(e.handler)
	}
}

// GetSessionInfo returns a snapshot of session's table row.
func (s *Scheduler) GetSessionInfo(sessionID string) (*SessionInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, status.New(status.NotFound, "scheduler: unknown session %q", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return &SessionInfo{SessionID: sessionID, Config: e.config, Handler: e.handler}, nil
}

// GetMutableBenchmarkInfo returns session's BenchmarkInfo, allocating one
// on first use (spec §4.3 GetMutableBenchmarkInfo).
func (s *Scheduler) GetMutableBenchmarkInfo(sessionID string) (*types.BenchmarkInfo, error) {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil, status.New(status.NotFound, "scheduler: unknown session %q", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bench == nil {
		e.bench = &types.BenchmarkInfo{}
	}
	return e.bench, nil
}

// WaitUntilAllDone blocks until every submitted task (past and future,
// until the wait resolves) has reached a terminal state, or timeout
// elapses (spec §4.3 WaitUntilAllDone).
func (s *Scheduler) WaitUntilAllDone(timeout time.Duration) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	if timeout <= 0 {
		<-done
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return status.New(status.DeadlineExceeded, "scheduler: WaitUntilAllDone timed out after %s", timeout)
	}
}

// submit registers rec in the task DAG (non-blocking, spec §4.3
// "Submission operations ... all non-blocking, under a scheduler mutex"):
// it resolves already-terminal predecessors immediately and only waits on
// ones still in flight.
func (s *Scheduler) submit(rec *taskRecord, cancelFlag *int32) *TaskController {
	ctrl := newTaskController(rec.id, cancelFlag)
	rec.controller = ctrl

	s.mu.Lock()
	s.tasks[rec.id] = rec
	for _, p := range rec.preds {
		if _, terminal := s.results[p]; terminal {
			continue
		}
		rec.pendingPreds++
		s.dependents[p] = append(s.dependents[p], rec.id)
	}
	s.wg.Add(1)
	s.metrics.pendingDelta(1)

	var skipOutcome types.TaskState
	var skip bool
	if rec.pendingPreds == 0 {
		skipOutcome, skip = s.dependencyOutcomeLocked(rec)
		if skip {
			delete(s.tasks, rec.id)
		} else {
			s.enqueueReadyLocked(rec.id)
		}
	}
	s.mu.Unlock()

	s.metrics.submitted(string(rec.kind))
	s.publisher.Publish(Event{Name: "task_submitted", SessionID: rec.sessionID, TaskID: int64(rec.id)})

	if skip {
		s.metrics.pendingDelta(-1)
		s.completeTask(rec, skipOutcome, types.Responses{State: skipOutcome})
	}
	return ctrl
}

// dependencyOutcomeLocked implements spec §4.3 dependency resolution:
// Cancelled/DependentTaskCancelled predecessors outrank Failed/
// DependentTaskFailed ones, both of which skip the task entirely.
func (s *Scheduler) dependencyOutcomeLocked(rec *taskRecord) (types.TaskState, bool) {
	sawCancelled := false
	sawFailed := false
	for _, p := range rec.preds {
		switch s.results[p] {
		case types.TaskCancelled, types.TaskDependentTaskCancelled:
			sawCancelled = true
		case types.TaskFailed, types.TaskDependentTaskFailed:
			sawFailed = true
		}
	}
	switch {
	case sawCancelled:
		return types.TaskDependentTaskCancelled, true
	case sawFailed:
		return types.TaskDependentTaskFailed, true
	default:
		return "", false
	}
}

func (s *Scheduler) enqueueReadyLocked(id TaskID) {
	s.readyQueue = append(s.readyQueue, id)
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run is the single execution thread (spec §4.3/§5): it dequeues ready
// tasks in FIFO order and runs them serially. Never more than one task
// executes at a time.
func (s *Scheduler) run() {
	for {
		s.mu.Lock()
		if len(s.readyQueue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.stopCh:
				return
			}
		}
		id := s.readyQueue[0]
		s.readyQueue = s.readyQueue[1:]
		rec := s.tasks[id]
		delete(s.tasks, id)
		s.mu.Unlock()

		if rec == nil {
			continue
		}
		s.metrics.pendingDelta(-1)
		s.execute(rec)
	}
}

// completeTask finalizes rec with state/resp, invokes its callback, and
// cascades the outcome to any dependents — recursively, since a cascade
// of auto-skipped dependents can itself have dependents. Must be called
// with no scheduler lock held: it calls into submitter-owned callbacks,
// which must never be invoked while holding the scheduler mutex (a
// callback that submits a new task would otherwise deadlock on it).
func (s *Scheduler) completeTask(rec *taskRecord, state types.TaskState, resp types.Responses) {
	resp.State = state
	rec.callback(resp)
	rec.controller.markDone(state)
	s.metrics.completed(string(rec.kind), string(state))
	s.publisher.Publish(Event{Name: "task_terminal", SessionID: rec.sessionID, TaskID: int64(rec.id), Fields: map[string]any{"state": string(state)}})

	s.mu.Lock()
	s.results[rec.id] = state
	deps := s.dependents[rec.id]
	delete(s.dependents, rec.id)
	var toSkip []*taskRecord
	for _, depID := range deps {
		child, ok := s.tasks[depID]
		if !ok {
			continue
		}
		child.pendingPreds--
		if child.pendingPreds > 0 {
			continue
		}
		if outcome, skip := s.dependencyOutcomeLocked(child); skip {
			delete(s.tasks, depID)
			child.skipOutcome = outcome
			toSkip = append(toSkip, child)
		} else {
			s.enqueueReadyLocked(depID)
		}
	}
	s.mu.Unlock()
	s.wg.Done()

	for _, child := range toSkip {
		s.metrics.pendingDelta(-1)
		s.completeTask(child, child.skipOutcome, types.Responses{State: child.skipOutcome})
	}
}
