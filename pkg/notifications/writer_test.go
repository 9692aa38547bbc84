package notifications

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestWriter_Write(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clock := newFakeClock()
	store := NewMemoryStorage()
	w := NewWriter(store, WithWriterClock(clock.Now))

	in := storeIntent()
	in.Priority = ""

	n, err := w.Write(ctx, in)
	require.NoError(t, err)

	_, err = uuid.Parse(n.ID)
	assert.NoError(t, err, "id is a uuid")
	assert.Equal(t, clock.Now(), n.CreatedAt)
	assert.Equal(t, PriorityMedium, n.Priority)
	assert.False(t, n.Read)
	assert.False(t, n.Sent)
	assert.Equal(t, in.Title, n.Title)
	assert.Equal(t, in.OrderID, n.OrderID)
	assert.Equal(t, in.URL, n.URL)

	stored, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, n, stored[0])
}

func TestWriter_IDGenerator(t *testing.T) {
	t.Parallel()
	w := NewWriter(NewMemoryStorage(), WithWriterIDGenerator(func() string { return "fixed" }))

	n, err := w.Write(context.Background(), storeIntent())
	require.NoError(t, err)
	assert.Equal(t, "fixed", n.ID)

	_, err = w.Write(context.Background(), storeIntent())
	assert.ErrorIs(t, err, ErrStoreWriteFailed)
	assert.ErrorIs(t, err, ErrNotificationExists)
}

func TestWriter_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("store failure is wrapped and not retried", func(t *testing.T) {
		t.Parallel()
		cause := errors.New("disk full")
		store := &MockStorage{}
		store.On("Insert", mock.Anything, mock.Anything).Return(Notification{}, cause).Once()

		_, err := NewWriter(store).Write(ctx, storeIntent())
		assert.ErrorIs(t, err, ErrStoreWriteFailed)
		assert.ErrorIs(t, err, cause)
		store.AssertNumberOfCalls(t, "Insert", 1)
	})

	t.Run("invalid intent never reaches the store", func(t *testing.T) {
		t.Parallel()
		store := &MockStorage{}

		_, err := NewWriter(store).Write(ctx, Intent{RecipientType: RecipientStore})
		assert.ErrorIs(t, err, ErrInvalidIntent)
		store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	})
}
