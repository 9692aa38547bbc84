// Package broadcast provides type-safe, non-blocking one-to-many message fan-out.
//
// MemoryBroadcaster never blocks a publisher: each subscriber owns a buffered
// channel and a subscriber that cannot keep up is closed and dropped. Consumers
// detect that (and every other shutdown path) as a closed Receive channel, which
// lets feed readers treat it like any lost connection and resubscribe.
//
// Basic usage:
//
//	b := broadcast.NewMemoryBroadcaster[notifications.Notification](64)
//	defer b.Close()
//
//	sub := b.Subscribe(ctx)
//	defer sub.Close()
//
//	_ = b.Broadcast(ctx, broadcast.Message[notifications.Notification]{Data: n})
//
//	for msg := range sub.Receive(ctx) {
//		handle(msg.Data)
//	}
//
// Subscribers are removed when their context is cancelled, when they are closed,
// when their buffer overflows, on DisconnectAll, and on Close.
package broadcast
