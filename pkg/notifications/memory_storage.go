package notifications

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
)

// MemoryStorage is an in-memory implementation of the Storage interface.
// Suitable for development, tests and single-process deployments.
type MemoryStorage struct {
	records []Notification // insertion order
	index   map[string]int // id -> position in records
	feed    *broadcast.MemoryBroadcaster[Notification]
	closed  bool
	mu      sync.RWMutex
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*memoryStorageOptions)

type memoryStorageOptions struct {
	feedBuffer int
}

// WithMemoryFeedBuffer sets the per-subscriber buffer of the insert feed.
// A subscriber that falls further behind is disconnected.
func WithMemoryFeedBuffer(size int) MemoryStorageOption {
	return func(o *memoryStorageOptions) {
		if size > 0 {
			o.feedBuffer = size
		}
	}
}

// NewMemoryStorage creates a new in-memory notification storage.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	o := memoryStorageOptions{feedBuffer: DefaultConfig().MemoryFeedBuffer}
	for _, opt := range opts {
		opt(&o)
	}

	return &MemoryStorage{
		index: make(map[string]int),
		feed:  broadcast.NewMemoryBroadcaster[Notification](o.feedBuffer),
	}
}

func (s *MemoryStorage) Insert(ctx context.Context, n Notification) (Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Notification{}, ErrStorageClosed
	}
	if n.ID == "" {
		return Notification{}, ErrMissingID
	}
	if _, exists := s.index[n.ID]; exists {
		return Notification{}, ErrNotificationExists
	}

	s.index[n.ID] = len(s.records)
	s.records = append(s.records, n)

	// Publishing under the lock keeps feed order equal to insertion order.
	_ = s.feed.Broadcast(ctx, broadcast.Message[Notification]{Data: n})

	return n, nil
}

func (s *MemoryStorage) Query(ctx context.Context, f Filter) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	var filtered []Notification
	for i := len(s.records) - 1; i >= 0; i-- {
		if f.Matches(s.records[i]) {
			filtered = append(filtered, s.records[i].Normalize())
		}
	}

	// Records were collected newest-inserted first; the stable sort keeps that
	// order among equal timestamps.
	slices.SortStableFunc(filtered, func(a, b Notification) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})

	return paginate(filtered, f.Offset, f.Limit), nil
}

func (s *MemoryStorage) MarkRead(ctx context.Context, ids ...string) error {
	return s.update(ids, func(n *Notification) { n.Read = true })
}

func (s *MemoryStorage) MarkSent(ctx context.Context, ids ...string) error {
	return s.update(ids, func(n *Notification) { n.Sent = true })
}

func (s *MemoryStorage) MarkAllRead(ctx context.Context, scope Scope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	for i := range s.records {
		if scope.Matches(s.records[i]) {
			s.records[i].Read = true
		}
	}
	return nil
}

func (s *MemoryStorage) CountUnread(ctx context.Context, scope Scope) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStorageClosed
	}

	count := 0
	for _, n := range s.records {
		if !n.Read && scope.Matches(n) {
			count++
		}
	}
	return count, nil
}

// SubscribeToInserts subscribes to records inserted after the call returns.
func (s *MemoryStorage) SubscribeToInserts(ctx context.Context, scope Scope) (Stream, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStorageClosed
	}

	sub := s.feed.Subscribe(ctx)
	pump := func(ctx context.Context, emit func(Notification) bool) error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-sub.Receive(ctx):
				if !ok {
					return ErrConnectionLost
				}
				if scope.Matches(msg.Data) && !emit(msg.Data.Normalize()) {
					return nil
				}
			}
		}
	}

	return startFeedStream(ctx, pump, func() { _ = sub.Close() }), nil
}

// DropSubscribers disconnects every open insert feed while keeping the storage
// usable. Subscribers observe a lost connection.
func (s *MemoryStorage) DropSubscribers() {
	s.feed.DisconnectAll()
}

// Len returns the number of stored records.
func (s *MemoryStorage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Close releases the insert feed. Subsequent calls fail with ErrStorageClosed.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	return s.feed.Close()
}

func (s *MemoryStorage) update(ids []string, apply func(*Notification)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStorageClosed
	}

	for _, id := range ids {
		if i, ok := s.index[id]; ok {
			apply(&s.records[i])
		}
	}
	return nil
}

func paginate(items []Notification, offset, limit int) []Notification {
	if offset >= len(items) {
		return []Notification{}
	}
	items = items[max(offset, 0):]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
