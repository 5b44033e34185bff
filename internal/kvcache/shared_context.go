package kvcache

import "sync/atomic"

var nextContextID int64

// SharedProcessedContext is a reference-counted holder of the materialized
// KV-cache/tokens for one branch of conversation history (spec §3). Two
// ContextHandlers may alias the same SharedProcessedContext (siblings from
// a Session.Clone); a non-longest sibling that needs to mutate must detach
// to a fresh SharedProcessedContext first (copy-on-write).
//
// Per the design notes, sibling bookkeeping (who else shares this cell, who
// is "longest") is kept out of this type to avoid back-pointers; the
// resource manager tracks that externally, keyed by ID.
type SharedProcessedContext struct {
	ID       int64
	refcount int32
	Tokens   *ProcessedTokens
	KV       KV
}

// New constructs a fresh, empty SharedProcessedContext with one reference.
func New(kv KV) *SharedProcessedContext {
	return &SharedProcessedContext{
		ID:       atomic.AddInt64(&nextContextID, 1),
		refcount: 1,
		Tokens:   NewProcessedTokens(),
		KV:       kv,
	}
}

// Alias increments the refcount and returns the same pointer — used when a
// clone shares history with its source rather than copying it.
func (c *SharedProcessedContext) Alias() *SharedProcessedContext {
	atomic.AddInt32(&c.refcount, 1)
	return c
}

// Release decrements the refcount, returning the count remaining.
func (c *SharedProcessedContext) Release() int32 {
	return atomic.AddInt32(&c.refcount, -1)
}

// RefCount returns the current reference count.
func (c *SharedProcessedContext) RefCount() int32 {
	return atomic.LoadInt32(&c.refcount)
}

// Detach returns a brand-new SharedProcessedContext with an empty token
// history and a fresh KV buffer, for a handler that is giving up its share
// of c without copying its contents (used when the active handler is not
// the longest sibling and must vacate the shared cell before a diverging
// mutation — spec §4.2 step 5, §8 Testable Property 2).
func Detach(kv KV) *SharedProcessedContext {
	return New(kv)
}

// Clone returns a deep copy of c with its own refcount of 1: a true
// copy-on-write split, as opposed to Alias which shares storage.
func (c *SharedProcessedContext) Clone(newKV KV) (*SharedProcessedContext, error) {
	out := New(newKV)
	out.Tokens = c.Tokens.Clone()
	if c.KV != nil {
		blob, err := c.KV.Serialize()
		if err != nil {
			return nil, err
		}
		if err := newKV.Load(blob); err != nil {
			return nil, err
		}
	}
	return out, nil
}
