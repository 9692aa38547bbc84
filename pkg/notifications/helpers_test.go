package notifications

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingSink stores every notification it receives.
type recordingSink struct {
	mu    sync.Mutex
	items []Notification
	err   error
}

func (s *recordingSink) OnNotification(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, n)
	return s.err
}

func (s *recordingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *recordingSink) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.items))
	for i, n := range s.items {
		ids[i] = n.ID
	}
	return ids
}

func (s *recordingSink) handler() EventHandler {
	return func(ctx context.Context, n Notification) {
		_ = s.OnNotification(ctx, n)
	}
}

// stateRecorder collects the target state of every transition.
type stateRecorder struct {
	mu     sync.Mutex
	states []FeedState
}

func (r *stateRecorder) observe(_, to FeedState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, to)
}

func (r *stateRecorder) States() []FeedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]FeedState, len(r.states))
	copy(out, r.states)
	return out
}

func (r *stateRecorder) Seen(state FeedState) bool {
	for _, s := range r.States() {
		if s == state {
			return true
		}
	}
	return false
}

// isSubsequence reports whether want appears in got in order, not necessarily adjacent.
func isSubsequence(got, want []FeedState) bool {
	i := 0
	for _, s := range got {
		if i < len(want) && s == want[i] {
			i++
		}
	}
	return i == len(want)
}

// flakyStorage fails or stalls SubscribeToInserts a set number of times.
type flakyStorage struct {
	*MemoryStorage
	failures atomic.Int32
	stalls   atomic.Int32
	attempts atomic.Int32
	failWith error
}

func (s *flakyStorage) SubscribeToInserts(ctx context.Context, scope Scope) (Stream, error) {
	s.attempts.Add(1)
	if s.stalls.Add(-1) >= 0 {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.failures.Add(-1) >= 0 {
		return nil, s.failWith
	}
	return s.MemoryStorage.SubscribeToInserts(ctx, scope)
}

// MockStorage is a testify mock of Storage.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) Insert(ctx context.Context, n Notification) (Notification, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(Notification), args.Error(1)
}

func (m *MockStorage) Query(ctx context.Context, f Filter) ([]Notification, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]Notification), args.Error(1)
}

func (m *MockStorage) MarkRead(ctx context.Context, ids ...string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockStorage) MarkAllRead(ctx context.Context, scope Scope) error {
	args := m.Called(ctx, scope)
	return args.Error(0)
}

func (m *MockStorage) MarkSent(ctx context.Context, ids ...string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockStorage) CountUnread(ctx context.Context, scope Scope) (int, error) {
	args := m.Called(ctx, scope)
	return args.Int(0), args.Error(1)
}

func (m *MockStorage) SubscribeToInserts(ctx context.Context, scope Scope) (Stream, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(Stream), args.Error(1)
}

// MockDedupCache is a testify mock of DedupCache.
type MockDedupCache struct {
	mock.Mock
}

func (m *MockDedupCache) Contains(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupCache) Add(ctx context.Context, key string, ttl time.Duration) error {
	args := m.Called(ctx, key, ttl)
	return args.Error(0)
}

func storeIntent() Intent {
	return Intent{
		RecipientType: RecipientStore,
		RecipientID:   "S1",
		Title:         "New order",
		Message:       "Order O-1 was placed",
		OrderID:       "O-1",
		Priority:      PriorityHigh,
		URL:           "/orders/O-1",
	}
}
