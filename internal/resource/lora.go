package resource

import (
	"time"

	"github.com/rs/zerolog/log"

	"modeld/internal/status"
)

// loraSlot tracks one LoRA adapter the executor has loaded, grounded on
// the teacher's Instance.LastUsed/evictUntilFits LRU bookkeeping
// (internal/manager/evict.go), generalized from a VRAM-MB budget over
// model instances to a slot-count budget over LoRA adapters.
type loraSlot struct {
	id       int
	path     string
	refs     int
	lastUsed time.Time
}

// assignLoraIDLocked canonicalizes path to a stable LoRA ID (spec §4.2
// AssignLoraId), loading it on the executor and evicting the
// least-recently-used unreferenced adapter first if the slot table is
// full. Must be called while holding the executor lock.
func (m *Manager) assignLoraIDLocked(path string) (int, error) {
	if slot, ok := m.loraByPath[path]; ok {
		slot.refs++
		slot.lastUsed = time.Now()
		return slot.id, nil
	}

	if m.maxLoraSlots > 0 && len(m.loraByPath) >= m.maxLoraSlots {
		if err := m.evictOneLoraLocked(); err != nil {
			return 0, err
		}
	}

	id, err := m.backend.LoadLoRA(path)
	if err != nil {
		return 0, status.New(status.Internal, "resource manager: load lora %q: %v", path, err)
	}
	slot := &loraSlot{id: id, path: path, refs: 1, lastUsed: time.Now()}
	m.loraByPath[path] = slot
	m.loraByID[id] = slot
	log.Info().Str("path", path).Int("lora_id", id).Msg("resource manager: loaded lora adapter")
	return id, nil
}

// evictOneLoraLocked drops the least-recently-used LoRA adapter with zero
// active references. FailedPrecondition if every slot is currently in
// use — there is nothing safe to evict.
func (m *Manager) evictOneLoraLocked() error {
	var lru *loraSlot
	for _, slot := range m.loraByPath {
		if slot.refs > 0 {
			continue
		}
		if lru == nil || slot.lastUsed.Before(lru.lastUsed) {
			lru = slot
		}
	}
	if lru == nil {
		return status.New(status.FailedPrecondition, "resource manager: lora slot table full and every adapter is in use")
	}
	delete(m.loraByPath, lru.path)
	delete(m.loraByID, lru.id)
	log.Info().Str("path", lru.path).Int("lora_id", lru.id).Msg("resource manager: evicted lora adapter")
	return nil
}

// ReleaseLora decrements the reference count of the adapter loaded under
// id, making it eligible for LRU eviction once it reaches zero.
func (m *Manager) ReleaseLora(id int) {
	lock, err := m.acquireExecutorLockOnly()
	if err != nil {
		return
	}
	defer lock.Unlock()
	m.releaseLoraLocked(id)
}

// releaseLoraLocked is ReleaseLora's body for callers that already hold
// the executor lock (e.g. ReleaseContextHandler tearing down a session's
// LoRA binding alongside its context).
func (m *Manager) releaseLoraLocked(id int) {
	if slot, ok := m.loraByID[id]; ok && slot.refs > 0 {
		slot.refs--
	}
}
