// Package notifications implements a notification delivery pipeline: duplicate
// suppression, persistence, live feeds with automatic reconnection and
// priority-based routing to sinks.
//
// The package does not render or transport anything itself. Hosts plug in a
// Storage (memory, PostgreSQL or MongoDB) and consume routed notifications
// through Sink implementations.
//
// # Architecture
//
//   - Storage: durable records plus a live insert feed (Stream)
//   - DuplicateGuard: rejects intents matching a recent record, using a
//     DedupCache in front of a store lookback query
//   - Writer: assigns id, timestamp and defaults, then inserts
//   - FeedSubscription: keeps one insert feed per scope alive, reconnecting
//     after failures until closed
//   - Router: drops events outside the scope, delivers to the list sink and,
//     for high and urgent priorities, to the toast sink
//   - Service: the facade tying the pieces together
//
// # Basic Usage
//
//	store := notifications.NewMemoryStorage()
//	svc := notifications.NewService(store)
//	defer svc.Close()
//
//	list := notifications.NewListSink()
//	toasts := notifications.NewToastSink(notifications.WithToastNavigate(openURL))
//
//	sub, err := svc.Subscribe(ctx,
//		notifications.Scope{RecipientType: notifications.RecipientStore, RecipientID: "S1"},
//		notifications.Sinks{List: list, Toast: toasts},
//	)
//	if err != nil {
//		return err
//	}
//	defer sub.Close()
//
//	created, err := svc.Submit(ctx, notifications.Intent{
//		RecipientType: notifications.RecipientStore,
//		RecipientID:   "S1",
//		Title:         "New order",
//		OrderID:       "O-1",
//		Priority:      notifications.PriorityHigh,
//	})
//
// Submit returns false without an error for a suppressed duplicate. Only invalid
// intents (ErrInvalidIntent) and failed writes (ErrStoreWriteFailed) are errors.
//
// # Duplicate Suppression
//
// Intents are compared by their dedup key: recipient type, recipient id, the
// first 50 runes of the title and the order id. A key seen within the lookback
// window (2 minutes for order-correlated intents, 10 minutes otherwise) is
// rejected. The check and the write are not atomic: two producers submitting the
// same intent at the same instant may both succeed.
//
// Share rejections across processes with a RedisDedupCache:
//
//	dedup, _ := notifications.NewRedisDedupCache(redisClient, cfg.RedisKeyPrefix)
//	svc := notifications.NewService(store, notifications.WithDedupCache(dedup))
//
// # Live Feeds
//
// A FeedSubscription moves through idle, connecting, subscribed, erroring and
// reconnecting, and ends in closed. After a lost connection it waits for the
// reconnect delay (3s by default) and tries again, without limit. WithBackfill
// replays records inserted while the feed was down.
//
// # Storage Implementations
//
// MemoryStorage is for tests and single-process use. PostgresStorage feeds
// inserts through LISTEN/NOTIFY; apply Migrations with pg.MigrateFS first.
// MongoStorage uses change streams and needs a replica set.
package notifications
