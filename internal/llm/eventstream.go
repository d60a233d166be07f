package llm

import (
	"context"
	"io"
	"sync"
)

// eventStream adapts a producer function to the Stream interface.
// The producer runs in its own goroutine and writes events to a channel;
// Recv drains that channel until the producer returns. A producer error
// is delivered from Recv after the buffered events are consumed.
type eventStream struct {
	events chan Event
	ctx    context.Context
	cancel context.CancelFunc

	mu  sync.Mutex
	err error
	// set once the producer goroutine has returned
	finished bool
}

// newEventStream starts producer in a goroutine and returns a Stream over
// its events. Cancelling ctx (or calling Close) stops the producer via its
// derived context.
func newEventStream(ctx context.Context, producer func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		events: make(chan Event, 64),
		ctx:    ctx,
		cancel: cancel,
	}
	go func() {
		err := producer(ctx, s.events)
		s.mu.Lock()
		s.err = err
		s.finished = true
		s.mu.Unlock()
		close(s.events)
	}()
	return s
}

func (s *eventStream) Recv() (Event, error) {
	event, ok := <-s.events
	if !ok {
		s.mu.Lock()
		err := s.err
		s.mu.Unlock()
		if err != nil {
			return Event{}, err
		}
		return Event{}, io.EOF
	}
	return event, nil
}

func (s *eventStream) Close() error {
	s.cancel()
	// Drain so a producer blocked on send can observe cancellation and exit.
	go func() {
		for range s.events {
		}
	}()
	return nil
}
