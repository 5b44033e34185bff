package resource

import (
	"errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog/log"

	"modeld/internal/kvcache"
	"modeld/internal/status"
)

// CheckpointStore persists SharedProcessedContext.Serialize() blobs keyed
// by session ID, realizing the "for cloning and checkpointing" half of
// the KV-cache contract (spec §3) that SessionConfig.CheckpointEnabled
// opts a session into (§4.4/§4.2 Domain Stack).
type CheckpointStore interface {
	Save(sessionID string, blob []byte) error
	Load(sessionID string) ([]byte, bool, error)
	Delete(sessionID string) error
	Close() error
}

// badgerCheckpointStore is a CheckpointStore backed by an embedded Badger
// database, grounded on the API usage shape of AleutianLocal's
// services/trace/storage/badger/badger.go (Open with badger.DefaultOptions,
// Update/View transactions) — not its doc-comment style, which is far more
// verbose than this codebase's.
type badgerCheckpointStore struct {
	db *badger.DB
}

// NewBadgerCheckpointStore opens (creating if absent) a Badger database
// under dir for KV-cache checkpoint persistence.
func NewBadgerCheckpointStore(dir string) (CheckpointStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, status.New(status.Internal, "checkpoint store: open %s: %v", dir, err)
	}
	return &badgerCheckpointStore{db: db}, nil
}

func (s *badgerCheckpointStore) Save(sessionID string, blob []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(sessionID), blob)
	})
}

func (s *badgerCheckpointStore) Load(sessionID string) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, status.New(status.Internal, "checkpoint store: load %s: %v", sessionID, err)
	}
	return out, true, nil
}

func (s *badgerCheckpointStore) Delete(sessionID string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(sessionID))
	})
}

func (s *badgerCheckpointStore) Close() error {
	return s.db.Close()
}

// maybeSaveCheckpointLocked persists h's KV buffer when its session opted
// into checkpointing (SessionConfig.CheckpointEnabled). Best-effort: a
// serialize or store failure is logged, not propagated, since losing a
// checkpoint never corrupts the in-memory context switch itself.
func (m *Manager) maybeSaveCheckpointLocked(h *kvcache.ContextHandler) {
	if m.checkpoints == nil || !m.checkpointEnabled[h.SessionID] || h.Shared.KV == nil {
		return
	}
	blob, err := h.Shared.KV.Serialize()
	if err != nil {
		log.Warn().Str("session_id", h.SessionID).Err(err).Msg("resource manager: checkpoint serialize failed")
		return
	}
	if err := m.checkpoints.Save(h.SessionID, blob); err != nil {
		log.Warn().Str("session_id", h.SessionID).Err(err).Msg("resource manager: checkpoint save failed")
	}
}

// maybeRestoreCheckpointLocked loads a previously saved checkpoint into
// h's KV buffer when present, so a session's KV-cache can survive an
// Engine restart even though its in-process SharedProcessedContext was
// lost. No-op if checkpointing isn't enabled for h or nothing was saved.
func (m *Manager) maybeRestoreCheckpointLocked(h *kvcache.ContextHandler) {
	if m.checkpoints == nil || !m.checkpointEnabled[h.SessionID] {
		return
	}
	blob, ok, err := m.checkpoints.Load(h.SessionID)
	if err != nil {
		log.Warn().Str("session_id", h.SessionID).Err(err).Msg("resource manager: checkpoint load failed")
		return
	}
	if !ok {
		return
	}
	if h.Shared.KV == nil {
		h.Shared.KV = m.backend.NewKV()
	}
	if err := h.Shared.KV.Load(blob); err != nil {
		log.Warn().Str("session_id", h.SessionID).Err(err).Msg("resource manager: checkpoint restore failed")
	}
}
