package service

import (
	"context"

	"github.com/readstack/readstack/internal/domain"
)

// defaultStreamBuffer bounds the event channel; a slow consumer applies
// backpressure to the orchestrator rather than growing an unbounded queue.
const defaultStreamBuffer = 8

// Emitter serializes stage events onto a bounded, single-consumer channel.
// It enforces the terminal-event contract: nothing is emitted after a
// complete or error event. Emit is single-writer; the orchestrator owns it.
type Emitter struct {
	ch       chan domain.StageEvent
	terminal bool
}

// NewEmitter creates an emitter with the given buffer size (0 uses the default)
func NewEmitter(buffer int) *Emitter {
	if buffer <= 0 {
		buffer = defaultStreamBuffer
	}
	return &Emitter{ch: make(chan domain.StageEvent, buffer)}
}

// Events returns the consumer side of the stream
func (e *Emitter) Events() <-chan domain.StageEvent {
	return e.ch
}

// Emit forwards an event to the consumer, blocking under backpressure.
// It returns false when the caller context is done or a terminal event has
// already been sent; events emitted before cancellation are never rolled back.
func (e *Emitter) Emit(ctx context.Context, ev domain.StageEvent) bool {
	if e.terminal {
		return false
	}

	select {
	case e.ch <- ev:
		if ev.Terminal() {
			e.terminal = true
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// Close ends the stream. The orchestrator calls it exactly once, after the
// terminal event.
func (e *Emitter) Close() {
	close(e.ch)
}
