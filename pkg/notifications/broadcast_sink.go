package notifications

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// BroadcastSink republishes notifications to per-recipient broadcasters so that
// host transports (SSE, WebSocket) can stream them to connected clients.
type BroadcastSink struct {
	recipients      *cache.LRUCache[Scope, broadcast.Broadcaster[Notification]]
	bufferSize      int
	maxBroadcasters int
	logger          *slog.Logger
	mu              sync.Mutex
}

// BroadcastSinkOption configures a BroadcastSink.
type BroadcastSinkOption func(*BroadcastSink)

// WithBroadcastLogger sets the logger for the BroadcastSink.
func WithBroadcastLogger(l *slog.Logger) BroadcastSinkOption {
	return func(b *BroadcastSink) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithMaxBroadcasters sets the maximum number of recipient broadcasters.
// When this limit is reached, the least recently used broadcaster is closed.
// Default is 10,000 if not specified.
func WithMaxBroadcasters(limit int) BroadcastSinkOption {
	return func(b *BroadcastSink) {
		if limit > 0 {
			b.maxBroadcasters = limit
		}
	}
}

// NewBroadcastSink creates a broadcast sink with the given per-client buffer size.
func NewBroadcastSink(bufferSize int, opts ...BroadcastSinkOption) *BroadcastSink {
	b := &BroadcastSink{
		bufferSize:      bufferSize,
		maxBroadcasters: 10000,
		logger:          slog.Default(),
	}

	for _, opt := range opts {
		opt(b)
	}

	b.recipients = cache.NewLRUCache[Scope, broadcast.Broadcaster[Notification]](b.maxBroadcasters)
	b.recipients.SetEvictCallback(func(scope Scope, bc broadcast.Broadcaster[Notification]) {
		if err := bc.Close(); err != nil {
			b.logger.LogAttrs(context.Background(), slog.LevelError, "Failed to close evicted broadcaster",
				logger.Scope(scope.RecipientType, scope.RecipientID),
				logger.Error(err),
			)
		}
	})

	return b
}

// OnNotification publishes n to the clients of its recipient.
func (b *BroadcastSink) OnNotification(ctx context.Context, n Notification) error {
	bc := b.broadcaster(Scope{RecipientType: n.RecipientType, RecipientID: n.RecipientID})
	return bc.Broadcast(ctx, broadcast.Message[Notification]{Data: n})
}

// Subscribe returns a subscriber receiving the notifications of one recipient.
// The subscriber's channel closes if it falls behind or the broadcaster is evicted.
func (b *BroadcastSink) Subscribe(ctx context.Context, recipientType RecipientType, recipientID string) broadcast.Subscriber[Notification] {
	return b.broadcaster(Scope{RecipientType: recipientType, RecipientID: recipientID}).Subscribe(ctx)
}

// Close closes all recipient broadcasters.
func (b *BroadcastSink) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	// Clear runs the eviction callback for each broadcaster.
	b.recipients.Clear()
	return nil
}

func (b *BroadcastSink) broadcaster(key Scope) broadcast.Broadcaster[Notification] {
	b.mu.Lock()
	defer b.mu.Unlock()

	bc, exists := b.recipients.Get(key)
	if !exists {
		bc = broadcast.NewMemoryBroadcaster[Notification](b.bufferSize)
		// Put evicts the least recently used broadcaster at capacity.
		b.recipients.Put(key, bc)
	}
	return bc
}
