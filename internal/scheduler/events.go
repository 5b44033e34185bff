package scheduler

import (
	"sync"

	"github.com/rs/zerolog"
)

// Event is a scheduler lifecycle event. Grounded on the teacher's
// internal/manager/events.go Event{Name, ModelID, Fields} shape, with
// ModelID generalized to SessionID and TaskID added since this scheduler's
// unit of work is a task, not a model instance.
type Event struct {
	Name      string
	SessionID string
	TaskID    int64
	Fields    map[string]any
}

// EventPublisher receives scheduler events. Implementations must be
// lightweight and non-blocking and must not panic — copied verbatim from
// the teacher's internal/manager/events.go, which already states this
// contract as tersely as it needs to be.
type EventPublisher interface {
	Publish(Event)
}

// NoopPublisher drops every event; it is the default when the caller
// supplies none.
type NoopPublisher struct{}

// Publish implements EventPublisher.
func (NoopPublisher) Publish(Event) {}

// MemoryPublisher stores events in-memory, for tests — grounded on the
// teacher's eventpub_memory.go MemoryPublisher.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

// NewMemoryPublisher constructs an empty MemoryPublisher.
func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

// Publish implements EventPublisher.
func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
}

// Events returns a snapshot of every event published so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// ZerologPublisher logs every event at debug level, for production use
// alongside (not instead of) Prometheus counters — the teacher's
// eventpub_memory.go only ever needed the in-memory sink since its events
// were test-only; this scheduler's events are also an operational signal.
type ZerologPublisher struct {
	logger zerolog.Logger
}

// NewZerologPublisher wraps logger.
func NewZerologPublisher(logger zerolog.Logger) *ZerologPublisher {
	return &ZerologPublisher{logger: logger}
}

// Publish implements EventPublisher.
func (p *ZerologPublisher) Publish(e Event) {
	evt := p.logger.Debug().Str("event", e.Name)
	if e.SessionID != "" {
		evt = evt.Str("session_id", e.SessionID)
	}
	if e.TaskID != 0 {
		evt = evt.Int64("task_id", e.TaskID)
	}
	for k, v := range e.Fields {
		evt = evt.Interface(k, v)
	}
	evt.Msg("scheduler event")
}
