// Copyright 2024-2026 Aiku AI

package chat

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler receives events from an EventSink.
type Handler func(Event)

// Handle adapts a typed function to a Handler. Events of other types are
// ignored.
func Handle[E Event](fn func(E)) Handler {
	return func(evt Event) {
		if typed, ok := evt.(E); ok {
			fn(typed)
		}
	}
}

// Subscription is the token returned by Subscribe.
type Subscription struct {
	Kind EventKind
	ID   string
}

type subscriber struct {
	id      string
	handler Handler
}

// EventSink fans session events out to observers. Handlers for a kind run in
// subscription order; a panicking handler is logged and skipped.
type EventSink struct {
	mu   sync.RWMutex
	subs map[EventKind][]subscriber
	log  zerolog.Logger
}

// NewEventSink creates an empty sink.
func NewEventSink(log zerolog.Logger) *EventSink {
	return &EventSink{
		subs: make(map[EventKind][]subscriber),
		log:  log.With().Str("component", "event_sink").Logger(),
	}
}

// Subscribe registers handler for kind.
func (s *EventSink) Subscribe(kind EventKind, handler Handler) Subscription {
	sub := subscriber{id: uuid.NewString(), handler: handler}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[kind] = append(s.subs[kind], sub)
	return Subscription{Kind: kind, ID: sub.id}
}

// Unsubscribe removes a subscription. It reports whether it was present.
func (s *EventSink) Unsubscribe(sub Subscription) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[sub.Kind]
	for i, existing := range list {
		if existing.id == sub.ID {
			// Copy so an in-flight Emit keeps its snapshot intact.
			updated := make([]subscriber, 0, len(list)-1)
			updated = append(updated, list[:i]...)
			updated = append(updated, list[i+1:]...)
			s.subs[sub.Kind] = updated
			return true
		}
	}
	return false
}

// Count returns the number of subscribers for kind.
func (s *EventSink) Count(kind EventKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[kind])
}

// Emit delivers evt to every subscriber of its kind.
func (s *EventSink) Emit(evt Event) {
	s.mu.RLock()
	list := s.subs[evt.Kind()]
	s.mu.RUnlock()
	for _, sub := range list {
		s.deliver(sub, evt)
	}
}

func (s *EventSink) deliver(sub subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("event_kind", evt.Kind().String()).
				Str("subscription_id", sub.id).
				Str("panic", fmt.Sprint(r)).
				Msg("Event handler panicked")
		}
	}()
	sub.handler(evt)
}
