package events

import "vaultstrat/core/types"

// Event represents a structured state change emitted by a strategy.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the archive, the
// simulator output).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// typed is implemented by events that render into the generic attribute form.
type typed interface {
	Event() *types.Event
}

// Render converts evt into its generic form. Events without an attribute
// rendering produce a bare record carrying only the type.
func Render(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if t, ok := evt.(typed); ok {
		if rendered := t.Event(); rendered != nil {
			return rendered
		}
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// MultiEmitter fans every event out to each wrapped emitter in order.
type MultiEmitter []Emitter

// Emit implements the Emitter interface.
func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}
