package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// Event tags a request payload with its kind.
type Event string

// Mux dispatches requests on the "event" field of their payload. Requests
// with a missing or unregistered event are rejected with ErrUnknownEvent.
type Mux struct {
	mu       sync.RWMutex
	handlers map[Event]Handler
}

func NewMux() *Mux {
	return &Mux{handlers: make(map[Event]Handler)}
}

// Handle registers h for ev. It panics if ev is empty or already registered.
func (m *Mux) Handle(ev Event, h Handler) {
	if ev == "" {
		panic("rpc: empty event")
	}
	if h == nil {
		panic("rpc: nil handler")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.handlers[ev]; ok {
		panic(fmt.Sprintf("rpc: multiple registrations for event %q", ev))
	}
	m.handlers[ev] = h
}

func (m *Mux) HandleFunc(ev Event, f func(ctx context.Context, env *Envelope) (any, error)) {
	m.Handle(ev, HandlerFunc(f))
}

// Events lists the registered events.
func (m *Mux) Events() []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]Event, 0, len(m.handlers))
	for ev := range m.handlers {
		events = append(events, ev)
	}
	return events
}

func (m *Mux) ServeRPC(ctx context.Context, env *Envelope) (any, error) {
	var tag struct {
		Event Event `json:"event"`
	}
	if err := json.Unmarshal(env.Payload, &tag); err != nil {
		return nil, fmt.Errorf("%w: payload is not an event object: %v", ErrUnknownEvent, err)
	}

	m.mu.RLock()
	h, ok := m.handlers[tag.Event]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, tag.Event)
	}
	return h.ServeRPC(ctx, env)
}
