// Package resource implements the Resource Manager (spec §4.2): it owns
// the one neural executor backend, mediates every context switch onto it,
// runs the copy-on-write prefill/decode optimizations, assigns and evicts
// LoRA adapters, and optionally checkpoints KV-caches to disk.
//
// Grounded on the teacher's internal/manager.Manager, generalized from "one
// coarse mutex over a map of model instances" to "one registry-scoped lock
// over a single executor resource plus an externally-tracked sibling table"
// (the SharedProcessedContext type itself deliberately carries no
// back-pointers — see internal/kvcache/shared_context.go).
package resource

import (
	"github.com/rs/zerolog/log"

	"modeld/internal/executor"
	"modeld/internal/kvcache"
	"modeld/internal/registry"
	"modeld/internal/status"
	"modeld/pkg/types"
)

// executorResourceID is the single slot the main text executor registers
// under. A Manager owns exactly one of these (spec §4.2 "owns exactly one
// LLM executor"); vision/audio executors, when configured, are tracked
// alongside it but are out of the context-switch critical path below.
const executorResourceID = 0

// Manager is the Resource Manager. All fields below active/siblings/loras
// are only ever touched while holding the registry's executor lock, which
// every public method acquires for its duration.
type Manager struct {
	reg          *registry.Registry
	backend      executor.Backend
	maxLoraSlots int
	checkpoints  CheckpointStore

	active            *kvcache.ContextHandler
	siblings          map[int64][]*kvcache.ContextHandler
	loraByPath        map[string]*loraSlot
	loraByID          map[int]*loraSlot
	loraBySession     map[string]int
	checkpointEnabled map[string]bool
}

// New constructs a Manager around backend. maxLoraSlots<=0 means
// unbounded (no eviction ever runs). checkpoints may be nil to disable
// KV-cache persistence entirely.
func New(backend executor.Backend, maxLoraSlots int, checkpoints CheckpointStore) (*Manager, error) {
	reg := registry.New()
	if err := reg.Register(executorResourceID, backend); err != nil {
		return nil, err
	}
	return &Manager{
		reg:               reg,
		backend:           backend,
		maxLoraSlots:      maxLoraSlots,
		checkpoints:       checkpoints,
		siblings:          make(map[int64][]*kvcache.ContextHandler),
		loraByPath:        make(map[string]*loraSlot),
		loraByID:          make(map[int]*loraSlot),
		loraBySession:     make(map[string]int),
		checkpointEnabled: make(map[string]bool),
	}, nil
}

// CreateContextHandler builds a fresh, parked ContextHandler for a new
// session, resolving its LoRA binding if one is requested (spec §4.2
// CreateContextHandler).
func (m *Manager) CreateContextHandler(sessionID string, cfg types.SessionConfig) (*kvcache.ContextHandler, error) {
	lock, err := registry.Acquire[executor.Backend](m.reg, executorResourceID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	runtimeCfg := &kvcache.RuntimeConfig{
		NumOutputHeads:  maxInt(1, cfg.NumOutputCandidates),
		TokensPerDecode: 1,
	}
	if cfg.LoraPath != "" {
		id, err := m.assignLoraIDLocked(cfg.LoraPath)
		if err != nil {
			return nil, err
		}
		runtimeCfg.LoraID = id
		m.loraBySession[sessionID] = id
	}

	handler := kvcache.NewContextHandler(sessionID, m.backend.NewKV(), runtimeCfg)
	m.trackSiblingLocked(handler)
	if cfg.CheckpointEnabled {
		m.checkpointEnabled[sessionID] = true
	}
	log.Debug().Str("session_id", sessionID).Int64("context_id", handler.Shared.ID).
		Msg("resource manager: created context handler")
	return handler, nil
}

// CloneContextHandler returns a new handler that alias-shares src's
// SharedProcessedContext (spec §4.2 CloneContextHandler). If src is
// currently active, its live config/state are read off the executor;
// otherwise its owned copies are used, and it is an internal invariant
// error for a non-active handler to have none.
func (m *Manager) CloneContextHandler(src *kvcache.ContextHandler) (*kvcache.ContextHandler, error) {
	lock, err := registry.Acquire[executor.Backend](m.reg, executorResourceID)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	var cfg *kvcache.RuntimeConfig
	var state *kvcache.RuntimeState
	if m.active == src {
		cfg = m.backend.GetRuntimeConfig()
		state = m.backend.GetRuntimeState()
	} else {
		if src.Config == nil || src.State == nil {
			return nil, status.New(status.Internal, "resource manager: clone source %s has no owned runtime config/state while inactive", src.SessionID)
		}
		cfg = src.Config.Clone()
		state = src.State.Clone()
	}

	clone := &kvcache.ContextHandler{
		SessionID: src.SessionID,
		Shared:    src.Shared.Alias(),
		Config:    cfg,
		State:     state,
	}
	if src.Audio != nil {
		clone.Audio = src.Audio.Clone()
	}
	m.trackSiblingLocked(clone)
	log.Debug().Str("session_id", src.SessionID).Int64("context_id", clone.Shared.ID).
		Msg("resource manager: cloned context handler")
	return clone, nil
}

// AcquireExecutor returns a scoped lock wrapping the executor with no
// context-switch logic (spec §4.2 AcquireExecutor).
func (m *Manager) AcquireExecutor() (*LockedExecutor, error) {
	lock, err := registry.Acquire[executor.Backend](m.reg, executorResourceID)
	if err != nil {
		return nil, err
	}
	return &LockedExecutor{mgr: m, lock: lock, handler: m.active}, nil
}

// AcquireExecutorWithContextHandler is the central context-switch
// operation (spec §4.2 AcquireExecutorWithContextHandler).
func (m *Manager) AcquireExecutorWithContextHandler(target *kvcache.ContextHandler) (*LockedExecutor, error) {
	lock, err := registry.Acquire[executor.Backend](m.reg, executorResourceID)
	if err != nil {
		return nil, err
	}

	if err := m.switchToLocked(target); err != nil {
		lock.Unlock()
		return nil, err
	}
	return &LockedExecutor{mgr: m, lock: lock, handler: target}, nil
}

func (m *Manager) switchToLocked(target *kvcache.ContextHandler) error {
	old := m.active
	if old == target {
		return nil
	}

	if old != nil && old.Shared.ID == target.Shared.ID {
		// Sibling switch: save live state into the old handler, load the
		// target's owned state into the executor.
		old.Config = m.backend.GetRuntimeConfig()
		old.State = m.backend.GetRuntimeState()
		if target.Config == nil || target.State == nil {
			return status.New(status.Internal, "resource manager: sibling target %s has no owned runtime config/state", target.SessionID)
		}
		m.backend.UpdateRuntimeConfig(target.Config)
		state := target.State.Clone()
		state.ClampStep(target.Shared.Tokens.TokenCount())
		m.backend.UpdateRuntimeState(state)
		target.Config, target.State = nil, nil
		old.Active = false
		target.Active = true
		m.active = target
		log.Debug().Str("from_handler", old.SessionID).Str("to_handler", target.SessionID).
			Str("reason", "sibling").Msg("resource manager: context switch")
		return nil
	}

	// Different processed context: save the old handler's full live
	// context, then either start fresh or restore the target's.
	if old != nil {
		old.Config = m.backend.GetRuntimeConfig()
		old.State = m.backend.GetRuntimeState()
		if kv, err := m.backend.CloneContext(); err == nil {
			old.Shared.KV = kv
		}
		old.Active = false
		m.maybeSaveCheckpointLocked(old)
	}

	if target.IsFresh() {
		if err := m.backend.Reset(); err != nil {
			return err
		}
		cfg := target.Config
		if cfg == nil {
			cfg = &kvcache.RuntimeConfig{}
		}
		m.backend.UpdateRuntimeConfig(cfg)
		m.backend.UpdateRuntimeState(&kvcache.RuntimeState{})
	} else {
		if target.Config == nil || target.State == nil {
			return status.New(status.Internal, "resource manager: switch target %s has no owned runtime config/state", target.SessionID)
		}
		m.maybeRestoreCheckpointLocked(target)
		if target.Shared.KV != nil {
			if err := m.backend.RestoreContext(target.Shared.KV); err != nil {
				log.Debug().Str("session_id", target.SessionID).Err(err).
					Msg("resource manager: backend does not support physical KV restore on context switch")
			}
		}
		m.backend.UpdateRuntimeConfig(target.Config)
		state := target.State.Clone()
		state.ClampStep(target.Shared.Tokens.TokenCount())
		m.backend.UpdateRuntimeState(state)
	}
	target.Config, target.State = nil, nil
	target.Active = true
	m.active = target
	fromID := ""
	if old != nil {
		fromID = old.SessionID
	}
	log.Debug().Str("from_handler", fromID).Str("to_handler", target.SessionID).
		Str("reason", "different_context").Msg("resource manager: context switch")
	return nil
}

// trackSiblingLocked registers handler in the external sibling table,
// keyed by its SharedProcessedContext ID (see package kvcache's note on
// avoiding back-pointers).
func (m *Manager) trackSiblingLocked(handler *kvcache.ContextHandler) {
	id := handler.Shared.ID
	m.siblings[id] = append(m.siblings[id], handler)
}

// forgetSiblingLocked removes handler from the sibling table, e.g. when a
// session ends or a handler detaches to a fresh context.
func (m *Manager) forgetSiblingLocked(handler *kvcache.ContextHandler) {
	id := handler.Shared.ID
	siblings := m.siblings[id]
	for i, h := range siblings {
		if h == handler {
			m.siblings[id] = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	if len(m.siblings[id]) == 0 {
		delete(m.siblings, id)
	}
}

// isLongestSiblingLocked reports whether handler's recorded step is the
// maximum among every handler currently sharing its SharedProcessedContext
// (spec §4.2 step 5, §9 "Longest sibling").
func (m *Manager) isLongestSiblingLocked(handler *kvcache.ContextHandler, step int) bool {
	for _, h := range m.siblings[handler.Shared.ID] {
		if h == handler {
			continue
		}
		if h.State != nil && h.State.CurrentStep > step {
			return false
		}
	}
	return true
}

// ReleaseContextHandler drops handler's reference to its
// SharedProcessedContext and removes it from sibling tracking, e.g. when a
// session is torn down. If the session held a LoRA binding, its reference
// is released too, so the slot becomes eligible for LRU eviction once no
// other session still holds it.
func (m *Manager) ReleaseContextHandler(handler *kvcache.ContextHandler) {
	lock, err := registry.Acquire[executor.Backend](m.reg, executorResourceID)
	if err != nil {
		return
	}
	defer lock.Unlock()
	m.forgetSiblingLocked(handler)
	handler.Shared.Release()
	if m.active == handler {
		m.active = nil
	}
	if id, ok := m.loraBySession[handler.SessionID]; ok {
		delete(m.loraBySession, handler.SessionID)
		m.releaseLoraLocked(id)
	}
}

func (m *Manager) acquireExecutorLockOnly() (*registry.Lock[executor.Backend], error) {
	return registry.Acquire[executor.Backend](m.reg, executorResourceID)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
