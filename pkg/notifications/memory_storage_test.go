package notifications

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRecords(t *testing.T, s *MemoryStorage, base time.Time) {
	t.Helper()
	ctx := context.Background()

	records := []Notification{
		{ID: "n1", RecipientType: RecipientStore, RecipientID: "S1", Title: "first", CreatedAt: base},
		{ID: "n2", RecipientType: RecipientStore, RecipientID: "S1", Title: "second", OrderID: "O-1", CreatedAt: base.Add(time.Minute)},
		{ID: "n3", RecipientType: RecipientStore, RecipientID: "S2", Title: "other store", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "n4", RecipientType: RecipientAdmin, RecipientID: "A1", Title: "admin", CreatedAt: base.Add(3 * time.Minute)},
		{ID: "n5", RecipientType: RecipientStore, RecipientID: "S1", Title: "third", Priority: PriorityUrgent, CreatedAt: base.Add(4 * time.Minute)},
	}
	for _, n := range records {
		_, err := s.Insert(ctx, n)
		require.NoError(t, err)
	}
}

func ids(items []Notification) []string {
	out := make([]string, len(items))
	for i, n := range items {
		out[i] = n.ID
	}
	return out
}

func TestMemoryStorage_Insert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStorage()

	_, err := s.Insert(ctx, Notification{RecipientType: RecipientStore, RecipientID: "S1"})
	assert.ErrorIs(t, err, ErrMissingID)

	n := Notification{ID: "n1", RecipientType: RecipientStore, RecipientID: "S1", CreatedAt: time.Now()}
	stored, err := s.Insert(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, n, stored)

	_, err = s.Insert(ctx, n)
	assert.ErrorIs(t, err, ErrNotificationExists)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStorage_Query(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	s := NewMemoryStorage()
	seedRecords(t, s, base)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{name: "all newest first", filter: Filter{}, want: []string{"n5", "n4", "n3", "n2", "n1"}},
		{name: "by recipient", filter: Filter{RecipientType: RecipientStore, RecipientID: "S1"}, want: []string{"n5", "n2", "n1"}},
		{name: "by type", filter: Filter{RecipientType: RecipientStore}, want: []string{"n5", "n3", "n2", "n1"}},
		{name: "by order", filter: Filter{OrderID: "O-1"}, want: []string{"n2"}},
		{name: "created after is exclusive", filter: Filter{CreatedAfter: base.Add(2 * time.Minute)}, want: []string{"n5", "n4"}},
		{name: "limit", filter: Filter{Limit: 2}, want: []string{"n5", "n4"}},
		{name: "offset and limit", filter: Filter{Offset: 1, Limit: 2}, want: []string{"n4", "n3"}},
		{name: "offset past end", filter: Filter{Offset: 10}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Query(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(got))
		})
	}

	got, err := s.Query(ctx, Filter{RecipientID: "S1", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, PriorityUrgent, got[0].Priority)

	got, err = s.Query(ctx, Filter{OrderID: "O-1"})
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, got[0].Priority, "empty priority is read back as medium")
}

func TestMemoryStorage_Query_EqualTimestamps(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStorage()
	at := time.Now()

	for i := range 3 {
		_, err := s.Insert(ctx, Notification{ID: fmt.Sprintf("n%d", i), RecipientType: RecipientStore, RecipientID: "S1", CreatedAt: at})
		require.NoError(t, err)
	}

	got, err := s.Query(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n1", "n0"}, ids(got), "later inserts come first on ties")
}

func TestMemoryStorage_Mutations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStorage()
	seedRecords(t, s, time.Now())

	s1 := Scope{RecipientType: RecipientStore, RecipientID: "S1"}

	count, err := s.CountUnread(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	require.NoError(t, s.MarkRead(ctx, "n1", "missing"))
	count, err = s.CountUnread(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	count, err = s.CountUnread(ctx, Scope{RecipientType: RecipientStore})
	require.NoError(t, err)
	assert.Equal(t, 3, count, "wildcard scope counts every store")

	require.NoError(t, s.MarkAllRead(ctx, s1))
	count, err = s.CountUnread(ctx, s1)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	other, err := s.CountUnread(ctx, Scope{RecipientType: RecipientStore, RecipientID: "S2"})
	require.NoError(t, err)
	assert.Equal(t, 1, other, "other recipients are untouched")

	require.NoError(t, s.MarkSent(ctx, "n3"))
	got, err := s.Query(ctx, Filter{RecipientID: "S2"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, got[0].Sent)
	assert.False(t, got[0].Read)

	unread, err := s.Query(ctx, Filter{OnlyUnread: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"n4", "n3"}, ids(unread))
}

func TestMemoryStorage_SubscribeToInserts(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })

	stream, err := s.SubscribeToInserts(ctx, Scope{RecipientType: RecipientStore, RecipientID: "S1"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = stream.Close() })

	seedRecords(t, s, time.Now())

	var got []string
	for range 3 {
		select {
		case n := <-stream.Events():
			got = append(got, n.ID)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for feed event")
		}
	}
	assert.Equal(t, []string{"n1", "n2", "n5"}, got, "feed is in insert order and scoped")

	_, err = s.SubscribeToInserts(ctx, Scope{RecipientType: "nobody"})
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestMemoryStorage_DropSubscribers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })

	stream, err := s.SubscribeToInserts(ctx, Scope{RecipientType: RecipientStore})
	require.NoError(t, err)

	s.DropSubscribers()

	select {
	case err := <-stream.Errors():
		assert.ErrorIs(t, err, ErrConnectionLost)
	case <-time.After(time.Second):
		t.Fatal("stream did not report the lost connection")
	}

	_, open := <-stream.Events()
	assert.False(t, open)
	require.NoError(t, stream.Close())
	require.NoError(t, stream.Close())
}

func TestMemoryStorage_StreamCloseIsQuiet(t *testing.T) {
	t.Parallel()
	s := NewMemoryStorage()
	t.Cleanup(func() { _ = s.Close() })

	stream, err := s.SubscribeToInserts(context.Background(), Scope{RecipientType: RecipientAdmin})
	require.NoError(t, err)
	require.NoError(t, stream.Close())

	_, open := <-stream.Events()
	assert.False(t, open)
	select {
	case err := <-stream.Errors():
		t.Fatalf("unexpected stream error after Close: %v", err)
	default:
	}
}

func TestMemoryStorage_Closed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := NewMemoryStorage()

	stream, err := s.SubscribeToInserts(ctx, Scope{RecipientType: RecipientStore})
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Insert(ctx, Notification{ID: "n1"})
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = s.Query(ctx, Filter{})
	assert.ErrorIs(t, err, ErrStorageClosed)
	_, err = s.SubscribeToInserts(ctx, Scope{RecipientType: RecipientStore})
	assert.ErrorIs(t, err, ErrStorageClosed)

	_, open := <-stream.Events()
	assert.False(t, open, "open streams end when the storage closes")
	_ = stream.Close()
}
