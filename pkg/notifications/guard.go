package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// DuplicateGuard decides whether an intent duplicates a recent notification.
//
// A key found in the cache is rejected without touching the store. Otherwise the
// store is asked for recent records of the same recipient (and order, when the
// intent carries one) and any candidate with the same dedup key rejects the intent.
// Failures never block submission: a failing cache counts as a miss and a failing
// store query accepts the intent.
//
// Two producers racing on the same intent may both be accepted; the guard does
// not hold a lock across Accept and the following write.
type DuplicateGuard struct {
	store     Storage
	cache     DedupCache
	now       func() time.Time
	logger    *slog.Logger
	metrics   *Metrics
	prefixLen int
	capacity  int

	orderWindow, defaultWindow time.Duration
	orderTTL, defaultTTL       time.Duration
}

// GuardOption configures a DuplicateGuard.
type GuardOption func(*DuplicateGuard)

// WithGuardCache replaces the default in-memory dedup cache.
func WithGuardCache(c DedupCache) GuardOption {
	return func(g *DuplicateGuard) {
		if c != nil {
			g.cache = c
		}
	}
}

// WithGuardClock sets the time source used to compute lookback windows.
func WithGuardClock(now func() time.Time) GuardOption {
	return func(g *DuplicateGuard) {
		if now != nil {
			g.now = now
		}
	}
}

// WithGuardLogger sets the logger for the DuplicateGuard.
func WithGuardLogger(l *slog.Logger) GuardOption {
	return func(g *DuplicateGuard) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithGuardMetrics records guard decisions.
func WithGuardMetrics(m *Metrics) GuardOption {
	return func(g *DuplicateGuard) {
		g.metrics = m
	}
}

// WithGuardConfig applies the windows, cache TTLs and title prefix length from cfg.
// The in-memory cache capacity is honoured only when no cache was supplied.
func WithGuardConfig(cfg Config) GuardOption {
	return func(g *DuplicateGuard) {
		cfg = cfg.withDefaults()
		g.orderWindow = cfg.OrderWindow
		g.defaultWindow = cfg.DefaultWindow
		g.orderTTL = cfg.OrderCacheTTL
		g.defaultTTL = cfg.DefaultCacheTTL
		g.prefixLen = cfg.TitlePrefixLength
		g.capacity = cfg.CacheCapacity
	}
}

// NewDuplicateGuard creates a guard that checks store for recent matches.
func NewDuplicateGuard(store Storage, opts ...GuardOption) *DuplicateGuard {
	cfg := DefaultConfig()
	g := &DuplicateGuard{
		store:         store,
		now:           time.Now,
		logger:        slog.Default(),
		prefixLen:     cfg.TitlePrefixLength,
		capacity:      cfg.CacheCapacity,
		orderWindow:   cfg.OrderWindow,
		defaultWindow: cfg.DefaultWindow,
		orderTTL:      cfg.OrderCacheTTL,
		defaultTTL:    cfg.DefaultCacheTTL,
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.cache == nil {
		g.cache = NewMemoryDedupCache(g.capacity, cache.WithClock(g.now))
	}

	return g
}

// Accept reports whether the intent should be persisted.
// A rejected intent's key is cached so repeats skip the store round-trip.
func (g *DuplicateGuard) Accept(ctx context.Context, in Intent) bool {
	key := g.key(in)

	hit, err := g.cache.Contains(ctx, key)
	if err != nil {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "Dedup cache lookup failed, treating as miss",
			logger.DedupKey(key),
			logger.Error(err),
		)
	}
	if hit {
		g.metrics.decision(DecisionCacheHit)
		g.logger.LogAttrs(ctx, slog.LevelDebug, "Duplicate notification suppressed by cache",
			logger.DedupKey(key),
		)
		return false
	}

	window, ttl := g.windowFor(in)
	candidates, err := g.store.Query(ctx, Filter{
		RecipientType: in.RecipientType,
		RecipientID:   in.RecipientID,
		OrderID:       in.OrderID,
		CreatedAfter:  g.now().Add(-window),
	})
	if err != nil {
		g.metrics.decision(DecisionStoreError)
		g.logger.LogAttrs(ctx, slog.LevelError, "Duplicate check query failed, accepting notification",
			logger.DedupKey(key),
			logger.Error(err),
		)
		return true
	}

	for _, c := range candidates {
		if c.DedupKey(g.prefixLen) != key {
			continue
		}

		g.metrics.decision(DecisionStoreMatch)
		g.logger.LogAttrs(ctx, slog.LevelDebug, "Duplicate notification suppressed by store",
			logger.DedupKey(key),
			logger.NotificationID(c.ID),
		)
		g.add(ctx, key, ttl)
		return false
	}

	g.metrics.decision(DecisionAccepted)
	return true
}

// Remember caches the intent's key after it has been persisted.
func (g *DuplicateGuard) Remember(ctx context.Context, in Intent) {
	_, ttl := g.windowFor(in)
	g.add(ctx, g.key(in), ttl)
}

func (g *DuplicateGuard) add(ctx context.Context, key string, ttl time.Duration) {
	if err := g.cache.Add(ctx, key, ttl); err != nil {
		g.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to cache dedup key",
			logger.DedupKey(key),
			logger.Error(err),
		)
	}
}

func (g *DuplicateGuard) key(in Intent) string {
	return BuildDedupKey(in.RecipientType, in.RecipientID, in.Title, in.OrderID, g.prefixLen)
}

// windowFor returns the lookback window and cache TTL for the intent.
// Order-correlated intents use the tighter pair.
func (g *DuplicateGuard) windowFor(in Intent) (time.Duration, time.Duration) {
	if in.OrderID != "" {
		return g.orderWindow, g.orderTTL
	}
	return g.defaultWindow, g.defaultTTL
}
