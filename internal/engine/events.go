package engine

import "sync"

// Event is one lifecycle notification from the engine.
// Minimal and stable: name + model id and optional fields via key/values.
type Event struct {
	Name    string         `json:"name"`
	ModelID string         `json:"model_id,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// EventPublisher receives engine lifecycle events. Implementations should
// be lightweight and non-blocking; Publish must not panic.
type EventPublisher interface {
	Publish(Event)
}

// noopPublisher is the default; it drops events.
type noopPublisher struct{}

func (noopPublisher) Publish(Event) {}

// MemoryPublisher stores recent events in memory, capped to a fixed count.
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	max    int
}

// NewMemoryPublisher keeps the most recent max events (256 when max <= 0).
func NewMemoryPublisher(max int) *MemoryPublisher {
	if max <= 0 {
		max = 256
	}
	return &MemoryPublisher{max: max}
}

func (p *MemoryPublisher) Publish(e Event) {
	p.mu.Lock()
	p.events = append(p.events, e)
	if len(p.events) > p.max {
		p.events = p.events[len(p.events)-p.max:]
	}
	p.mu.Unlock()
}

// Events returns a copy of the retained events, oldest first.
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}
