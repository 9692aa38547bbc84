package notifications

import (
	"context"
	"slices"
	"sync"
)

// ListSink keeps the most recent notifications of a scope, newest first.
// Delivering the same id twice has no effect.
type ListSink struct {
	items    []Notification
	ids      map[string]struct{}
	capacity int
	onChange func()
	mu       sync.RWMutex
}

// ListSinkOption configures a ListSink.
type ListSinkOption func(*ListSink)

// WithListCapacity bounds the list; the oldest entries are dropped beyond it.
func WithListCapacity(n int) ListSinkOption {
	return func(s *ListSink) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithListOnChange registers a callback invoked after every change to the list.
// It runs without the list lock held.
func WithListOnChange(fn func()) ListSinkOption {
	return func(s *ListSink) {
		s.onChange = fn
	}
}

// NewListSink creates an empty list.
func NewListSink(opts ...ListSinkOption) *ListSink {
	s := &ListSink{
		ids:      make(map[string]struct{}),
		capacity: DefaultConfig().ListCapacity,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *ListSink) OnNotification(_ context.Context, n Notification) error {
	if !s.insert(n) {
		return nil
	}
	s.changed()
	return nil
}

// Load seeds the list, typically with the result of a store query.
func (s *ListSink) Load(items []Notification) {
	changed := false
	for _, n := range items {
		if s.insert(n) {
			changed = true
		}
	}
	if changed {
		s.changed()
	}
}

// Items returns a snapshot of the list, newest first.
func (s *ListSink) Items() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

// Len returns the number of entries.
func (s *ListSink) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// UnreadCount returns the number of unread entries.
func (s *ListSink) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.items {
		if !n.Read {
			count++
		}
	}
	return count
}

// MarkRead marks local entries as read. It does not touch the store.
func (s *ListSink) MarkRead(ids ...string) {
	s.mu.Lock()
	marked := false
	for i := range s.items {
		if !s.items[i].Read && slices.Contains(ids, s.items[i].ID) {
			s.items[i].Read = true
			marked = true
		}
	}
	s.mu.Unlock()

	if marked {
		s.changed()
	}
}

// MarkAllRead marks every local entry as read.
func (s *ListSink) MarkAllRead() {
	s.mu.Lock()
	marked := false
	for i := range s.items {
		if !s.items[i].Read {
			s.items[i].Read = true
			marked = true
		}
	}
	s.mu.Unlock()

	if marked {
		s.changed()
	}
}

func (s *ListSink) insert(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[n.ID]; exists {
		return false
	}

	// Newest first; a late record is placed by its timestamp.
	pos, _ := slices.BinarySearchFunc(s.items, n, func(item, target Notification) int {
		if item.CreatedAt.After(target.CreatedAt) {
			return -1
		}
		return 1
	})
	if pos >= s.capacity {
		return false
	}

	s.items = slices.Insert(s.items, pos, n)
	s.ids[n.ID] = struct{}{}

	for len(s.items) > s.capacity {
		last := s.items[len(s.items)-1]
		delete(s.ids, last.ID)
		s.items = s.items[:len(s.items)-1]
	}
	return true
}

func (s *ListSink) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}
