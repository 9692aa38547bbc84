package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Service is the entry point for producers and consumers of notifications.
// Construct one per process and share it.
type Service struct {
	store   Storage
	guard   *DuplicateGuard
	writer  *Writer
	cfg     Config
	cache   DedupCache
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics

	subs   map[*Subscription]struct{}
	closed bool
	mu     sync.Mutex
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithConfig sets the pipeline configuration.
func WithConfig(cfg Config) ServiceOption {
	return func(s *Service) {
		s.cfg = cfg.withDefaults()
	}
}

// WithDedupCache replaces the in-memory dedup cache, e.g. with a RedisDedupCache.
func WithDedupCache(c DedupCache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithClock sets the time source for timestamps and dedup windows.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger shared by all pipeline components.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records pipeline counters.
func WithMetrics(m *Metrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService wires the duplicate guard and writer around store.
func NewService(store Storage, opts ...ServiceOption) *Service {
	s := &Service{
		store:  store,
		cfg:    DefaultConfig(),
		now:    time.Now,
		logger: slog.Default(),
		subs:   make(map[*Subscription]struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		s.cache = NewMemoryDedupCache(s.cfg.CacheCapacity, cache.WithClock(s.now))
	}

	s.guard = NewDuplicateGuard(store,
		WithGuardConfig(s.cfg),
		WithGuardCache(s.cache),
		WithGuardClock(s.now),
		WithGuardLogger(s.logger.With(logger.Component("dedup"))),
		WithGuardMetrics(s.metrics),
	)
	s.writer = NewWriter(store,
		WithWriterClock(s.now),
		WithWriterLogger(s.logger.With(logger.Component("writer"))),
	)

	return s
}

// Submit persists the intent unless it duplicates a recent notification.
// It returns true when a record was created and false for a suppressed duplicate.
// Errors are ErrInvalidIntent or ErrStoreWriteFailed wrapped with the cause.
func (s *Service) Submit(ctx context.Context, in Intent) (bool, error) {
	if s.isClosed() {
		return false, ErrServiceClosed
	}

	if err := in.Validate(); err != nil {
		s.metrics.submit(OutcomeInvalid)
		return false, err
	}

	if !s.guard.Accept(ctx, in) {
		s.metrics.submit(OutcomeDuplicate)
		return false, nil
	}

	n, err := s.writer.Write(ctx, in)
	if err != nil {
		s.metrics.submit(OutcomeFailed)
		return false, err
	}
	s.guard.Remember(ctx, in)
	s.metrics.submit(OutcomeCreated)

	s.logger.LogAttrs(ctx, slog.LevelDebug, "Notification created",
		logger.NotificationID(n.ID),
		logger.RecipientType(n.RecipientType),
		logger.RecipientID(n.RecipientID),
		logger.OrderID(n.OrderID),
		logger.Priority(n.Priority),
	)

	return true, nil
}

// Subscribe opens a live feed for scope and routes its events to sinks.
// Options override the configured feed settings.
func (s *Service) Subscribe(ctx context.Context, scope Scope, sinks Sinks, opts ...FeedOption) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceClosed
	}

	router := NewRouter(scope, sinks,
		WithRouterLogger(s.logger.With(logger.Component("router"))),
		WithRouterMetrics(s.metrics),
	)

	base := []FeedOption{
		WithFeedConfig(s.cfg),
		WithFeedClock(s.now),
		WithFeedLogger(s.logger.With(logger.Component("feed"))),
		WithFeedMetrics(s.metrics),
	}
	feed, err := NewFeedSubscription(s.store, scope, router.Handler(), append(base, opts...)...)
	if err != nil {
		return nil, err
	}
	if err := feed.Open(ctx); err != nil {
		return nil, err
	}

	sub := &Subscription{FeedSubscription: feed}
	sub.release = func() {
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()
	}
	s.subs[sub] = struct{}{}

	go func() {
		<-feed.Done()
		sub.once.Do(sub.release)
	}()

	return sub, nil
}

// List returns stored notifications matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Notification, error) {
	items, err := s.store.Query(ctx, f)
	if err != nil {
		return nil, errors.Join(ErrStoreQueryFailed, err)
	}
	return items, nil
}

// CountUnread returns the number of unread notifications in scope.
func (s *Service) CountUnread(ctx context.Context, scope Scope) (int, error) {
	n, err := s.store.CountUnread(ctx, scope)
	if err != nil {
		return 0, errors.Join(ErrStoreQueryFailed, err)
	}
	return n, nil
}

// MarkRead marks the given notifications as read.
func (s *Service) MarkRead(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.MarkRead(ctx, ids...); err != nil {
		return errors.Join(ErrStoreWriteFailed, err)
	}
	return nil
}

// MarkAllRead marks every notification in scope as read.
func (s *Service) MarkAllRead(ctx context.Context, scope Scope) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	if err := s.store.MarkAllRead(ctx, scope); err != nil {
		return errors.Join(ErrStoreWriteFailed, err)
	}
	return nil
}

// MarkSent records that the given notifications were handed to an outer transport.
func (s *Service) MarkSent(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := s.store.MarkSent(ctx, ids...); err != nil {
		return errors.Join(ErrStoreWriteFailed, err)
	}
	return nil
}

// Storage returns the underlying notification storage.
func (s *Service) Storage() Storage {
	return s.store
}

// Close closes every open subscription. The storage is left open.
func (s *Service) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	subs := make([]*Subscription, 0, len(s.subs))
	for sub := range s.subs {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Close()
	}
	return nil
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Subscription is a FeedSubscription opened through a Service.
type Subscription struct {
	*FeedSubscription
	release func()
	once    sync.Once
}

// Close closes the feed and detaches it from the service. Closing twice is a no-op.
func (s *Subscription) Close() error {
	err := s.FeedSubscription.Close()
	s.once.Do(s.release)
	return err
}
