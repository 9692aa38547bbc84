package notifications

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/cache"
)

// persist writes the intent the way the service does and returns the record.
func persist(t *testing.T, store Storage, clock *fakeClock, in Intent) Notification {
	t.Helper()
	n, err := NewWriter(store, WithWriterClock(clock.Now)).Write(context.Background(), in)
	require.NoError(t, err)
	return n
}

// freshGuard has an empty cache, so every decision goes to the store.
func freshGuard(store Storage, clock *fakeClock) *DuplicateGuard {
	return NewDuplicateGuard(store,
		WithGuardClock(clock.Now),
		WithGuardCache(NewMemoryDedupCache(100, cache.WithClock(clock.Now))),
	)
}

func TestDuplicateGuard_StoreWindow(t *testing.T) {
	t.Parallel()

	withOrder := storeIntent()
	withoutOrder := storeIntent()
	withoutOrder.OrderID = ""

	tests := []struct {
		name   string
		intent Intent
		window time.Duration
	}{
		{name: "order correlated uses two minutes", intent: withOrder, window: 2 * time.Minute},
		{name: "uncorrelated uses ten minutes", intent: withoutOrder, window: 10 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := context.Background()
			clock := newFakeClock()
			store := NewMemoryStorage()
			persist(t, store, clock, tt.intent)

			clock.Advance(tt.window - time.Second)
			assert.False(t, freshGuard(store, clock).Accept(ctx, tt.intent), "rejected just before the window ends")

			clock.Advance(2 * time.Second)
			assert.True(t, freshGuard(store, clock).Accept(ctx, tt.intent), "accepted just after the window ends")
		})
	}
}

func TestDuplicateGuard_CacheShortCircuits(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()

	store := &MockStorage{}
	g := NewDuplicateGuard(store, WithGuardClock(clock.Now))

	in := storeIntent()
	g.Remember(ctx, in)

	assert.False(t, g.Accept(ctx, in))
	store.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestDuplicateGuard_CacheTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name   string
		intent Intent
		ttl    time.Duration
	}{
		{name: "order correlated", intent: storeIntent(), ttl: 2 * time.Minute},
		{name: "uncorrelated", intent: Intent{RecipientType: RecipientAdmin, RecipientID: "A1", Title: "Low stock"}, ttl: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dc := &MockDedupCache{}
			dc.On("Add", mock.Anything, BuildDedupKey(tt.intent.RecipientType, tt.intent.RecipientID, tt.intent.Title, tt.intent.OrderID, 50), tt.ttl).
				Return(nil).Once()

			g := NewDuplicateGuard(&MockStorage{}, WithGuardCache(dc))
			g.Remember(ctx, tt.intent)

			dc.AssertExpectations(t)
		})
	}
}

func TestDuplicateGuard_StoreMatchIsCached(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	in := storeIntent()

	store := &MockStorage{}
	store.On("Query", mock.Anything, mock.MatchedBy(func(f Filter) bool {
		return f.RecipientType == RecipientStore &&
			f.RecipientID == "S1" &&
			f.OrderID == "O-1" &&
			f.CreatedAfter.Equal(clock.Now().Add(-2*time.Minute))
	})).Return([]Notification{{
		ID:            "existing",
		RecipientType: RecipientStore,
		RecipientID:   "S1",
		Title:         "New order",
		OrderID:       "O-1",
	}}, nil).Once()

	g := NewDuplicateGuard(store, WithGuardClock(clock.Now))
	assert.False(t, g.Accept(ctx, in))
	assert.False(t, g.Accept(ctx, in), "second rejection comes from the cache")

	store.AssertExpectations(t)
}

func TestDuplicateGuard_DifferentTitleIsNotDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStorage()

	in := storeIntent()
	in.OrderID = ""
	persist(t, store, clock, in)

	other := in
	other.Title = "Order cancelled"
	assert.True(t, freshGuard(store, clock).Accept(ctx, other))

	otherRecipient := in
	otherRecipient.RecipientID = "S2"
	assert.True(t, freshGuard(store, clock).Accept(ctx, otherRecipient))

	correlated := in
	correlated.OrderID = "O-9"
	assert.True(t, freshGuard(store, clock).Accept(ctx, correlated), "an order-correlated intent never matches an uncorrelated record")
}

func TestDuplicateGuard_SameOrderDifferentTitle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStorage()
	g := freshGuard(store, clock)

	placed := storeIntent()
	require.True(t, g.Accept(ctx, placed))
	persist(t, store, clock, placed)
	g.Remember(ctx, placed)

	clock.Advance(30 * time.Second)
	shipped := placed
	shipped.Title = "Order shipped"
	require.True(t, g.Accept(ctx, shipped), "same order, different title inside the window")
	persist(t, store, clock, shipped)
	g.Remember(ctx, shipped)

	clock.Advance(30 * time.Second)
	assert.False(t, g.Accept(ctx, placed))
	assert.False(t, g.Accept(ctx, shipped))
}

func TestDuplicateGuard_StoreFailureAccepts(t *testing.T) {
	t.Parallel()

	store := &MockStorage{}
	store.On("Query", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	g := NewDuplicateGuard(store)
	assert.True(t, g.Accept(context.Background(), storeIntent()))
}

func TestDuplicateGuard_CacheFailureIsMiss(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	dc := &MockDedupCache{}
	dc.On("Contains", mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	dc.On("Add", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))

	store := &MockStorage{}
	store.On("Query", mock.Anything, mock.Anything).Return([]Notification{}, nil)

	g := NewDuplicateGuard(store, WithGuardCache(dc))
	assert.True(t, g.Accept(ctx, storeIntent()))
	assert.NotPanics(t, func() { g.Remember(ctx, storeIntent()) })

	store.AssertNumberOfCalls(t, "Query", 1)
}

func TestDuplicateGuard_ConfiguredPrefix(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStorage()

	cfg := DefaultConfig()
	cfg.TitlePrefixLength = 5

	in := Intent{RecipientType: RecipientCustomer, RecipientID: "C1", Title: "Order shipped"}
	persist(t, store, clock, in)

	similar := in
	similar.Title = "Order delivered"
	g := NewDuplicateGuard(store, WithGuardClock(clock.Now), WithGuardConfig(cfg))
	assert.False(t, g.Accept(ctx, similar), "only the first five runes are compared")
}

func TestMemoryDedupCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	c := NewMemoryDedupCache(2, cache.WithClock(clock.Now))

	require.NoError(t, c.Add(ctx, "short", time.Minute))
	require.NoError(t, c.Add(ctx, "long", 5*time.Minute))

	ok, err := c.Contains(ctx, "short")
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 1, c.Len())

	ok, _ = c.Contains(ctx, "long")
	assert.True(t, ok)

	require.NoError(t, c.Add(ctx, "a", time.Minute))
	require.NoError(t, c.Add(ctx, "b", time.Minute))
	ok, _ = c.Contains(ctx, "long")
	assert.False(t, ok, "oldest key is evicted at capacity")
}
