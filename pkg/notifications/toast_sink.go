package notifications

import (
	"context"
	"slices"
	"sync"
	"time"
)

// ToastSink holds ephemeral pop-up notifications that dismiss themselves after
// a fixed duration. Clicking a toast hands its URL to the navigate callback;
// the sink never navigates itself.
type ToastSink struct {
	duration time.Duration
	navigate func(url string)
	onChange func()

	active []toast
	seq    uint64
	closed bool
	mu     sync.Mutex
}

type toast struct {
	n     Notification
	gen   uint64
	timer *time.Timer
}

// ToastSinkOption configures a ToastSink.
type ToastSinkOption func(*ToastSink)

// WithToastDuration sets the auto-dismiss delay.
func WithToastDuration(d time.Duration) ToastSinkOption {
	return func(s *ToastSink) {
		if d > 0 {
			s.duration = d
		}
	}
}

// WithToastNavigate sets the callback that receives the URL of a clicked toast.
func WithToastNavigate(fn func(url string)) ToastSinkOption {
	return func(s *ToastSink) {
		s.navigate = fn
	}
}

// WithToastOnChange registers a callback invoked whenever a toast appears or goes away.
// It runs without the sink lock held.
func WithToastOnChange(fn func()) ToastSinkOption {
	return func(s *ToastSink) {
		s.onChange = fn
	}
}

// NewToastSink creates an empty toast sink.
func NewToastSink(opts ...ToastSinkOption) *ToastSink {
	s := &ToastSink{duration: DefaultConfig().ToastDuration}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *ToastSink) OnNotification(_ context.Context, n Notification) error {
	s.mu.Lock()
	if s.closed || s.indexOf(n.ID) >= 0 {
		s.mu.Unlock()
		return nil
	}

	s.seq++
	id, gen := n.ID, s.seq
	s.active = append(s.active, toast{
		n:     n,
		gen:   gen,
		timer: time.AfterFunc(s.duration, func() { s.expire(id, gen) }),
	})
	s.mu.Unlock()

	s.changed()
	return nil
}

// Active returns the visible toasts, oldest first.
func (s *ToastSink) Active() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Notification, len(s.active))
	for i, t := range s.active {
		out[i] = t.n
	}
	return out
}

// Dismiss removes the toast with the given id and reports whether it was visible.
func (s *ToastSink) Dismiss(id string) bool {
	_, ok := s.remove(id)
	if ok {
		s.changed()
	}
	return ok
}

// Click dismisses the toast and passes its URL to the navigate callback.
// It reports whether the toast was visible.
func (s *ToastSink) Click(id string) bool {
	n, ok := s.remove(id)
	if !ok {
		return false
	}
	s.changed()

	if n.URL != "" && s.navigate != nil {
		s.navigate(n.URL)
	}
	return true
}

// Close dismisses every toast and stops accepting new ones.
func (s *ToastSink) Close() error {
	s.mu.Lock()
	for _, t := range s.active {
		t.timer.Stop()
	}
	s.active = nil
	s.closed = true
	s.mu.Unlock()
	return nil
}

// expire dismisses a toast when its own timer fires. A timer that fired while a
// newer toast with the same id replaced it leaves the newer one alone.
func (s *ToastSink) expire(id string, gen uint64) bool {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 || s.active[i].gen != gen {
		s.mu.Unlock()
		return false
	}
	s.active = slices.Delete(s.active, i, i+1)
	s.mu.Unlock()

	s.changed()
	return true
}

func (s *ToastSink) remove(id string) (Notification, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return Notification{}, false
	}
	t := s.active[i]
	t.timer.Stop()
	s.active = slices.Delete(s.active, i, i+1)
	return t.n, true
}

// Must be called with lock held.
func (s *ToastSink) indexOf(id string) int {
	return slices.IndexFunc(s.active, func(t toast) bool { return t.n.ID == id })
}

func (s *ToastSink) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
