package notifications

import (
	"context"
	"sync"
)

// feedStream is the channel plumbing shared by the Stream implementations.
// A single pump goroutine owns the events channel.
type feedStream struct {
	events chan Notification
	errs   chan error
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// pumpFunc forwards records through emit until it returns.
// emit reports false once the stream is closing.
type pumpFunc func(ctx context.Context, emit func(Notification) bool) error

func startFeedStream(ctx context.Context, pump pumpFunc, cleanup func()) *feedStream {
	ctx, cancel := context.WithCancel(ctx)
	s := &feedStream{
		events: make(chan Notification),
		errs:   make(chan error, 1),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	emit := func(n Notification) bool {
		select {
		case s.events <- n:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		if cleanup != nil {
			defer cleanup()
		}

		if err := pump(ctx, emit); err != nil && ctx.Err() == nil {
			s.errs <- err
		}
	}()

	return s
}

func (s *feedStream) Events() <-chan Notification { return s.events }

func (s *feedStream) Errors() <-chan error { return s.errs }

// Close stops the pump and waits for it to exit. It is safe to call more than once.
func (s *feedStream) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}
