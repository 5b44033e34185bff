// Package engine implements Engine::Create / Engine::CreateSession /
// Engine::Benchmark (spec §6 Embedder API): the factory that validates
// EngineSettings, builds the Resource Manager and Execution Manager stack
// beneath it exactly once, and vends Session facades bound to that stack.
//
// Grounded on the teacher's cmd/modeld/main.go wiring order
// (registry.LoadDir -> manager.New -> httpapi.NewMux), generalized from
// "scan a directory of GGUF files, manage N loaded instances" to "validate
// one EngineSettings, build exactly one executor + Resource Manager +
// Execution Manager stack, vend Sessions off it" — the same bottom-up
// construction order spec §1 names (Resource Registry -> KV-cache ->
// Resource Manager -> Execution Manager -> Session -> Engine).
package engine

import (
	"sync"

	validator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"modeld/internal/resource"
	"modeld/internal/scheduler"
	"modeld/internal/session"
	"modeld/internal/status"
	"modeld/pkg/types"
)

// validate is shared across Create/CreateSession; go-playground/validator
// instances are safe for concurrent use once built, same as the teacher's
// own usage of the struct tags in pkg/types.
var validate = validator.New()

// Engine owns the Resource Manager and Execution Manager built from one
// EngineSettings (spec §1 "the Engine outlives all sessions; the Resource
// Manager and Execution Manager are owned by the Engine").
type Engine struct {
	settings types.EngineSettings
	resMgr   *resource.Manager
	sched    *scheduler.Scheduler
	logger   zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// config collects constructor options before Create builds the Engine.
type config struct {
	logger       zerolog.Logger
	detok        scheduler.Detokenizer
	publisher    scheduler.EventPublisher
	metrics      *scheduler.Metrics
	maxLoraSlots int
}

// Option configures an Engine at construction.
type Option func(*config)

// WithLogger installs the logger used for Engine- and Session-level
// structured events. Default is a disabled logger (no output).
func WithLogger(l zerolog.Logger) Option { return func(c *config) { c.logger = l } }

// WithDetokenizer installs the scheduler.Detokenizer collaborator Decode
// tasks use to stream text (spec §1: tokenizer is an out-of-scope
// external collaborator). Omitting it is valid — Responses.Texts stays
// empty, useful for a scoring-only or embedding-only deployment.
func WithDetokenizer(d scheduler.Detokenizer) Option { return func(c *config) { c.detok = d } }

// WithEventPublisher installs a scheduler.EventPublisher for lifecycle
// events (session registered, task dispatched, ...). Default is
// scheduler.NoopPublisher.
func WithEventPublisher(p scheduler.EventPublisher) Option {
	return func(c *config) { c.publisher = p }
}

// WithMetrics installs scheduler instrumentation. Default is a Metrics
// instance not registered against any Prometheus registry.
func WithMetrics(m *scheduler.Metrics) Option { return func(c *config) { c.metrics = m } }

// WithMaxLoraSlots bounds how many distinct LoRA adapters the Resource
// Manager keeps loaded at once before evicting the least recently used
// (spec §4.2). n<=0 means unbounded. Default is 4.
func WithMaxLoraSlots(n int) Option { return func(c *config) { c.maxLoraSlots = n } }

// Create validates settings and builds the executor, Resource Manager,
// and Execution Manager (spec §6 Engine::Create).
func Create(settings types.EngineSettings, opts ...Option) (*Engine, error) {
	if err := validate.Struct(settings); err != nil {
		return nil, status.New(status.InvalidArgument, "engine: invalid settings: %v", err)
	}

	cfg := &config{logger: zerolog.Nop(), maxLoraSlots: 4}
	for _, opt := range opts {
		opt(cfg)
	}

	backend, err := newMainExecutor(resolveModelPath(settings.Model), settings.MainExecutor)
	if err != nil {
		return nil, err
	}

	var checkpoints resource.CheckpointStore
	if settings.MainExecutor.CacheDir != "" {
		checkpoints, err = resource.NewBadgerCheckpointStore(settings.MainExecutor.CacheDir)
		if err != nil {
			return nil, status.New(status.Internal, "engine: checkpoint store: %v", err)
		}
	}

	resMgr, err := resource.New(backend, cfg.maxLoraSlots, checkpoints)
	if err != nil {
		return nil, err
	}

	var schedOpts []scheduler.Option
	if cfg.detok != nil {
		schedOpts = append(schedOpts, scheduler.WithDetokenizer(cfg.detok))
	}
	if cfg.publisher != nil {
		schedOpts = append(schedOpts, scheduler.WithEventPublisher(cfg.publisher))
	}
	if cfg.metrics != nil {
		schedOpts = append(schedOpts, scheduler.WithMetrics(cfg.metrics))
	}

	cfg.logger.Info().
		Str("backend", string(settings.MainExecutor.Backend)).
		Int("max_num_tokens", settings.MainExecutor.MaxNumTokens).
		Msg("engine: constructed")

	return &Engine{
		settings: settings,
		resMgr:   resMgr,
		sched:    scheduler.New(resMgr, schedOpts...),
		logger:   cfg.logger,
		sessions: make(map[string]*session.Session),
	}, nil
}

// resolveModelPath prefers the explicit model_path; scoped_file resolution
// (e.g. a platform asset handle materialized to a temp file) is the
// embedder's platform glue and out of scope here (spec §1) — it is passed
// through verbatim as if it already were a filesystem path.
func resolveModelPath(m types.ModelAssets) string {
	if m.ModelPath != "" {
		return m.ModelPath
	}
	return m.ScopedFile
}

// CreateSession validates cfg, falls back to the Engine's default sampler
// settings when cfg.Sampler is unset, registers a new session with the
// Execution Manager, and wraps it in a Session facade (spec §6
// Engine::CreateSession).
func (e *Engine) CreateSession(cfg types.SessionConfig, opts ...session.Option) (*session.Session, error) {
	if cfg.Sampler.Type == "" && e.settings.SamplerParams != nil {
		cfg.Sampler = *e.settings.SamplerParams
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, status.New(status.InvalidArgument, "engine: invalid session config: %v", err)
	}

	sessionID, err := e.sched.RegisterNewSession(cfg, nil)
	if err != nil {
		return nil, err
	}

	sopts := append([]session.Option{session.WithLogger(e.logger)}, opts...)
	sess := session.New(e.sched, sessionID, sopts...)

	e.mu.Lock()
	e.sessions[sessionID] = sess
	e.mu.Unlock()
	return sess, nil
}

// GetSession looks up a Session previously returned by CreateSession (or
// produced as the destination of a Clone) by ID — the lookup an HTTP
// embedder needs between the request that created a session and a later
// request that sends a message to it.
func (e *Engine) GetSession(sessionID string) (*session.Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	sess, ok := e.sessions[sessionID]
	return sess, ok
}

// AdoptSession registers a Session this Engine didn't itself create —
// used for the destination of Session.Clone, which constructs its own
// facade synchronously (see internal/session/clone.go) before the
// scheduler-level row exists.
func (e *Engine) AdoptSession(sess *session.Session) {
	e.mu.Lock()
	e.sessions[sess.ID()] = sess
	e.mu.Unlock()
}

// DeleteSession drops the Engine's reference to a session and tears down
// its underlying scheduler-level session row and ContextHandler, releasing
// any LoRA binding it held back to the Resource Manager (spec §1 names no
// explicit session-teardown operation; this is the facade-level entry
// point embedders call when a session is done).
func (e *Engine) DeleteSession(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
	e.sched.ReleaseSession(sessionID)
}

// Close stops the Execution Manager's worker goroutine. No further tasks
// may be submitted afterward.
func (e *Engine) Close() {
	e.sched.Stop()
}
