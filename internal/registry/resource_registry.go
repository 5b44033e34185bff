package registry

import (
	"sync"

	"modeld/internal/status"
)

// Resource is any type-erased, individually-locked resource the registry
// holds (the main executor, an optional vision executor, an optional audio
// executor, ...).
type Resource any

// node is the registry's bookkeeping for one resource: its own mutex plus
// the resource it guards. Grounded on the single sync.RWMutex the teacher
// uses to guard its instances map (internal/manager/manager.go), split here
// into one lock per resource so unrelated resources never contend for the
// same lock.
type node struct {
	mu       sync.Mutex
	resource Resource
}

// Registry is a thread-safe mapping from integer resource IDs to
// type-erased, individually-locked resources (spec §4.1).
type Registry struct {
	mu    sync.Mutex
	nodes map[int]*node
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{nodes: make(map[int]*node)}
}

// Register adds resource under id. Fails InvalidArgument on a nil resource,
// AlreadyExists on a duplicate id.
func (r *Registry) Register(id int, resource Resource) error {
	if resource == nil {
		return status.New(status.InvalidArgument, "resource registry: nil resource for id %d", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.nodes[id]; exists {
		return status.New(status.AlreadyExists, "resource registry: id %d already registered", id)
	}
	r.nodes[id] = &node{resource: resource}
	return nil
}

// Unregister removes id from the registry. It is a no-op if id is absent.
func (r *Registry) Unregister(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, id)
}

// HasResource reports whether id is registered.
func (r *Registry) HasResource(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.nodes[id]
	return ok
}

// Lock is a scoped, move-only exclusive hold on one resource. Release
// happens when the caller calls Unlock (typically via defer); Lock must
// not be copied.
type Lock[T any] struct {
	n       *node
	typed   T
	release sync.Once
}

// Value returns the typed pointer guarded by this lock.
func (l *Lock[T]) Value() T { return l.typed }

// Unlock releases the resource's mutex. Safe to call multiple times.
func (l *Lock[T]) Unlock() {
	l.release.Do(func() { l.n.mu.Unlock() })
}

// Acquire returns a scoped exclusive lock wrapping a typed pointer to the
// resource registered under id. Fails NotFound if id is missing,
// InvalidArgument on a type mismatch.
func Acquire[T any](r *Registry, id int) (*Lock[T], error) {
	r.mu.Lock()
	n, ok := r.nodes[id]
	r.mu.Unlock()
	if !ok {
		return nil, status.New(status.NotFound, "resource registry: id %d not found", id)
	}
	n.mu.Lock()
	typed, ok := n.resource.(T)
	if !ok {
		n.mu.Unlock()
		return nil, status.New(status.InvalidArgument, "resource registry: id %d has unexpected type", id)
	}
	return &Lock[T]{n: n, typed: typed}, nil
}

// View returns a read reference to the resource registered under id without
// taking its per-resource lock; the registry's top-level lock is held only
// for the lookup and is released before View returns. It is meant for
// brief invariant checks, not long-lived reads. Callers that need
// to hold the resource across other work must use Acquire instead.
func View[T any](r *Registry, id int) (T, error) {
	var zero T
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.nodes[id]
	if !ok {
		return zero, status.New(status.NotFound, "resource registry: id %d not found", id)
	}
	typed, ok := n.resource.(T)
	if !ok {
		return zero, status.New(status.InvalidArgument, "resource registry: id %d has unexpected type", id)
	}
	return typed, nil
}
