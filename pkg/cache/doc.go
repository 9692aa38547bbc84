// Package cache provides a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// The cache bounds memory by evicting the least recently used entry once its
// capacity is reached. Entries stored with PutWithTTL additionally expire; expiry
// is lazy: an expired entry is dropped by the first Get or Contains that sees it,
// or in bulk by DeleteExpired. No timers or background goroutines are involved.
//
// # Usage
//
//	seen := cache.NewLRUCache[string, struct{}](10_000)
//
//	seen.PutWithTTL("store|S1|New order|O-1", struct{}{}, 2*time.Minute)
//
//	if seen.Contains("store|S1|New order|O-1") {
//		// duplicate within the window
//	}
//
// Tests and deterministic callers can inject a time source:
//
//	c := cache.NewLRUCache[string, int](100, cache.WithClock(clock.Now))
//
// # Eviction callbacks
//
// SetEvictCallback registers a function that runs for every entry leaving the
// cache (capacity eviction, expiry, Remove and Clear), which is how callers
// release resources held by cached values:
//
//	c := cache.NewLRUCache[string, broadcast.Broadcaster[T]](1000)
//	c.SetEvictCallback(func(_ string, b broadcast.Broadcaster[T]) { _ = b.Close() })
//
// The callback runs with the cache lock held and must not call back into the cache.
package cache
