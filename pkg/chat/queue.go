// Copyright 2024-2026 Aiku AI

package chat

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// serialQueue runs queued functions one at a time in FIFO order. The caller
// that finds the queue idle drains it; callers that arrive while it is being
// drained (including from inside a queued function) only enqueue.
type serialQueue struct {
	mu      sync.Mutex
	pending []func()
	running bool
	log     zerolog.Logger
}

func (q *serialQueue) Do(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	for len(q.pending) > 0 {
		next := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		q.run(next)
		q.mu.Lock()
	}
	q.pending = nil
	q.running = false
	q.mu.Unlock()
}

func (q *serialQueue) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error().Str("panic", fmt.Sprint(r)).Msg("Queued event handler panicked")
		}
	}()
	fn()
}
