package agent

import (
	"sync"

	"github.com/capitalize-ai/support-agent/internal/model"
)

// Stream is a single-producer, single-consumer ordered event channel.
//
// Once the consumer detaches, Emit drops events instead of blocking, so the
// run keeps going and persisting without anyone listening.
type Stream struct {
	ch        chan model.Event
	detached  chan struct{}
	closeOnce sync.Once
	detach    sync.Once
}

// NewStream creates a stream with the given buffer size.
func NewStream(buffer int) *Stream {
	return &Stream{
		ch:       make(chan model.Event, buffer),
		detached: make(chan struct{}),
	}
}

// Events returns the channel the consumer reads from. It is closed after
// the producer calls Close.
func (s *Stream) Events() <-chan model.Event {
	return s.ch
}

// Emit delivers ev, or drops it if the consumer has detached.
func (s *Stream) Emit(ev model.Event) {
	select {
	case <-s.detached:
		return
	default:
	}

	select {
	case s.ch <- ev:
	case <-s.detached:
	}
}

// Detach is called by the consumer when it stops reading.
func (s *Stream) Detach() {
	s.detach.Do(func() { close(s.detached) })
}

// Close is called by the producer after its last event.
func (s *Stream) Close() {
	s.closeOnce.Do(func() { close(s.ch) })
}
