// Package events defines the event taxonomy the state machine emits after
// every successful operation (spec §6). Each concrete event knows how to
// flatten itself into the wire-level types.Event envelope; the state
// machine stamps BlockHeight and OpID on the result.
package events

import "github.com/AndeLabs/zkUSD/core/types"

// Event is anything that can describe itself as a wire-level types.Event.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to a downstream collaborator (the EventSink of
// spec §6). Emit is non-blocking fire-and-forget: the core never waits on a
// subscriber.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event; useful for read-only queries and tests
// that don't care about the emitted log.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Collector accumulates events in memory. It is the Emitter the state
// machine hands each operation so it can return that operation's event list
// to the caller once apply() completes.
type Collector struct {
	events []Event
}

func (c *Collector) Emit(e Event) {
	c.events = append(c.events, e)
}

func (c *Collector) Events() []Event {
	return c.events
}
