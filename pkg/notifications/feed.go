package notifications

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/statemachine"
)

// FeedState is the connection state of a FeedSubscription.
type FeedState string

const (
	FeedIdle         FeedState = "idle"
	FeedConnecting   FeedState = "connecting"
	FeedSubscribed   FeedState = "subscribed"
	FeedErroring     FeedState = "erroring"
	FeedReconnecting FeedState = "reconnecting"
	FeedClosed       FeedState = "closed"
)

func (s FeedState) Name() string { return string(s) }

var (
	evtOpen      = statemachine.StringEvent("open")
	evtConnected = statemachine.StringEvent("connected")
	evtFail      = statemachine.StringEvent("fail")
	evtRetry     = statemachine.StringEvent("retry")
	evtReconnect = statemachine.StringEvent("reconnect")
	evtClose     = statemachine.StringEvent("close")
)

// backfillSkew widens the reconcile query so records sharing the newest
// delivered timestamp are not missed. Overlap is removed by the seen set.
const backfillSkew = time.Second

// EventHandler receives notifications from a FeedSubscription, one at a time
// and in feed order.
type EventHandler func(ctx context.Context, n Notification)

// StateObserver is called after every state change of a FeedSubscription.
type StateObserver func(from, to FeedState)

// FeedSubscription keeps a live insert feed open for one scope and reconnects
// after failures until it is closed.
//
// A single goroutine owns the connection, so there is never more than one
// reconnect attempt in flight. Retries are unbounded and spaced by the reconnect
// delay. Ids delivered recently are remembered, so records re-emitted after a
// reconnect reach the handler once.
//
// The handler never runs after Close returns. Close waits for the delivery
// goroutine, so it must not be called from inside the handler or a StateObserver.
type FeedSubscription struct {
	store   Storage
	scope   Scope
	onEvent EventHandler
	sm      statemachine.StateMachine
	now     func() time.Time
	logger  *slog.Logger
	metrics *Metrics

	connectTimeout time.Duration
	reconnectDelay time.Duration
	backfill       bool
	backfillLimit  int
	seenCapacity   int
	observers      []StateObserver

	seen  *cache.LRUCache[string, struct{}]
	since time.Time // newest delivered CreatedAt; owned by the loop goroutine

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// FeedOption configures a FeedSubscription.
type FeedOption func(*FeedSubscription)

// WithConnectTimeout bounds a single connect attempt. A timeout is handled
// like any transport error.
func WithConnectTimeout(d time.Duration) FeedOption {
	return func(f *FeedSubscription) {
		if d > 0 {
			f.connectTimeout = d
		}
	}
}

// WithReconnectDelay sets the wait between reconnect attempts.
// Non-positive values keep the default.
func WithReconnectDelay(d time.Duration) FeedOption {
	return func(f *FeedSubscription) {
		if d > 0 {
			f.reconnectDelay = d
		}
	}
}

// WithBackfill makes every reconnect replay records of the scope that were
// inserted while the feed was down.
func WithBackfill() FeedOption {
	return func(f *FeedSubscription) {
		f.backfill = true
	}
}

// WithBackfillLimit caps the number of records replayed per reconnect.
func WithBackfillLimit(n int) FeedOption {
	return func(f *FeedSubscription) {
		if n > 0 {
			f.backfillLimit = n
		}
	}
}

// WithSeenCapacity sets how many delivered ids are remembered for duplicate suppression.
func WithSeenCapacity(n int) FeedOption {
	return func(f *FeedSubscription) {
		if n > 0 {
			f.seenCapacity = n
		}
	}
}

// WithStateObserver registers a callback for state changes.
func WithStateObserver(fn StateObserver) FeedOption {
	return func(f *FeedSubscription) {
		if fn != nil {
			f.observers = append(f.observers, fn)
		}
	}
}

// WithFeedLogger sets the logger for the FeedSubscription.
func WithFeedLogger(l *slog.Logger) FeedOption {
	return func(f *FeedSubscription) {
		if l != nil {
			f.logger = l
		}
	}
}

// WithFeedMetrics records reconnect attempts.
func WithFeedMetrics(m *Metrics) FeedOption {
	return func(f *FeedSubscription) {
		f.metrics = m
	}
}

// WithFeedClock sets the time source used as the initial backfill point.
func WithFeedClock(now func() time.Time) FeedOption {
	return func(f *FeedSubscription) {
		if now != nil {
			f.now = now
		}
	}
}

// WithFeedConfig applies the feed settings from cfg.
func WithFeedConfig(cfg Config) FeedOption {
	return func(f *FeedSubscription) {
		cfg = cfg.withDefaults()
		f.connectTimeout = cfg.ConnectTimeout
		f.reconnectDelay = cfg.ReconnectDelay
		f.backfillLimit = cfg.BackfillLimit
		f.seenCapacity = cfg.SeenCapacity
	}
}

// NewFeedSubscription creates an idle subscription for scope. Call Open to start it.
func NewFeedSubscription(store Storage, scope Scope, onEvent EventHandler, opts ...FeedOption) (*FeedSubscription, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if onEvent == nil {
		return nil, ErrNilEventHandler
	}

	cfg := DefaultConfig()
	f := &FeedSubscription{
		store:          store,
		scope:          scope,
		onEvent:        onEvent,
		now:            time.Now,
		logger:         slog.Default(),
		connectTimeout: cfg.ConnectTimeout,
		reconnectDelay: cfg.ReconnectDelay,
		backfillLimit:  cfg.BackfillLimit,
		seenCapacity:   cfg.SeenCapacity,
	}

	for _, opt := range opts {
		opt(f)
	}

	sm, err := statemachine.New(FeedIdle,
		statemachine.WithTransition(FeedIdle, FeedConnecting, evtOpen),
		statemachine.WithTransition(FeedConnecting, FeedSubscribed, evtConnected),
		statemachine.WithTransition(FeedConnecting, FeedErroring, evtFail),
		statemachine.WithTransition(FeedSubscribed, FeedErroring, evtFail),
		statemachine.WithTransition(FeedErroring, FeedReconnecting, evtRetry),
		statemachine.WithTransition(FeedReconnecting, FeedConnecting, evtReconnect),
		statemachine.WithTransitionFromAny(
			[]statemachine.State{FeedIdle, FeedConnecting, FeedSubscribed, FeedErroring, FeedReconnecting},
			FeedClosed, evtClose,
		),
		statemachine.WithObserver(f.observe),
	)
	if err != nil {
		return nil, err
	}
	f.sm = sm
	f.seen = cache.NewLRUCache[string, struct{}](f.seenCapacity)

	return f, nil
}

// Scope returns the subscription scope.
func (f *FeedSubscription) Scope() Scope {
	return f.scope
}

// State returns the current connection state.
func (f *FeedSubscription) State() FeedState {
	return FeedState(f.sm.Current().Name())
}

// Connected reports whether the feed is currently subscribed.
func (f *FeedSubscription) Connected() bool {
	return f.sm.Is(FeedSubscribed)
}

// Open starts the connection loop. The subscription runs until Close is called
// or ctx is cancelled. Open can be called once.
func (f *FeedSubscription) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.sm.Is(FeedClosed):
		return ErrSubscriptionClosed
	case f.done != nil:
		return ErrSubscriptionActive
	}

	if err := f.sm.Fire(ctx, evtOpen, nil); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.since = f.now()

	go f.run(loopCtx)

	return nil
}

// Close moves the subscription to the closed state, cancels any pending
// reconnect and waits for the loop to exit. Closing twice is a no-op.
func (f *FeedSubscription) Close() error {
	f.mu.Lock()
	fired := f.sm.Fire(context.Background(), evtClose, nil) == nil
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	if fired && cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	return nil
}

// Done returns a channel closed once the loop started by Open has exited,
// whether through Close or cancellation of the Open context. It is nil before Open.
func (f *FeedSubscription) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

func (f *FeedSubscription) run(ctx context.Context) {
	defer close(f.done)
	defer func() { _ = f.sm.Fire(context.WithoutCancel(ctx), evtClose, nil) }()

	lost := false
	for attempt := 1; ; attempt++ {
		stream, err := f.connect(ctx)
		if err == nil {
			if !f.fire(ctx, evtConnected) {
				_ = stream.Close()
				return
			}
			f.logger.LogAttrs(ctx, slog.LevelInfo, "Notification feed subscribed",
				logger.Scope(f.scope.RecipientType, f.scope.RecipientID),
				logger.Attempt(attempt),
			)
			attempt = 0

			if lost && f.backfill {
				f.reconcile(ctx)
			}
			err = f.consume(ctx, stream)
			_ = stream.Close()
		}

		if ctx.Err() != nil {
			return
		}

		lost = true
		f.logger.LogAttrs(ctx, slog.LevelWarn, "Notification feed lost, reconnecting",
			logger.Scope(f.scope.RecipientType, f.scope.RecipientID),
			logger.Duration(f.reconnectDelay),
			logger.Error(err),
		)

		if !f.fire(ctx, evtFail) || !f.fire(ctx, evtRetry) {
			return
		}
		f.metrics.reconnect(f.scope.RecipientType)

		if !sleep(ctx, f.reconnectDelay) || !f.fire(ctx, evtReconnect) {
			return
		}
	}
}

// connect opens a stream, giving up after the connect timeout.
func (f *FeedSubscription) connect(ctx context.Context) (Stream, error) {
	type result struct {
		stream Stream
		err    error
	}

	streamCtx, cancel := context.WithCancel(ctx)
	ch := make(chan result, 1)
	go func() {
		s, err := f.store.SubscribeToInserts(streamCtx, f.scope)
		ch <- result{s, err}
	}()

	timer := time.NewTimer(f.connectTimeout)
	defer timer.Stop()

	var err error
	select {
	case r := <-ch:
		if r.err == nil {
			return &cancelStream{Stream: r.stream, cancel: cancel}, nil
		}
		err = r.err
	case <-timer.C:
		err = ErrConnectTimeout
	case <-ctx.Done():
		err = ctx.Err()
	}

	cancel()
	go func() {
		if r := <-ch; r.stream != nil {
			_ = r.stream.Close()
		}
	}()
	return nil, err
}

func (f *FeedSubscription) consume(ctx context.Context, stream Stream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-stream.Errors():
			return connectionLost(err)
		case n, ok := <-stream.Events():
			if !ok {
				select {
				case err := <-stream.Errors():
					return connectionLost(err)
				default:
					return ErrConnectionLost
				}
			}
			f.deliver(ctx, n)
		}
	}
}

// reconcile replays records inserted while the feed was down, oldest first.
func (f *FeedSubscription) reconcile(ctx context.Context) {
	filter := ScopeFilter(f.scope)
	filter.CreatedAfter = f.since.Add(-backfillSkew)
	filter.Limit = f.backfillLimit

	missed, err := f.store.Query(ctx, filter)
	if err != nil {
		f.logger.LogAttrs(ctx, slog.LevelWarn, "Failed to backfill notification feed",
			logger.Scope(f.scope.RecipientType, f.scope.RecipientID),
			logger.Error(err),
		)
		return
	}

	for i := len(missed) - 1; i >= 0; i-- {
		f.deliver(ctx, missed[i])
	}
}

func (f *FeedSubscription) deliver(ctx context.Context, n Notification) {
	if ctx.Err() != nil {
		return
	}
	if _, dup := f.seen.Put(n.ID, struct{}{}); dup {
		f.logger.LogAttrs(ctx, slog.LevelDebug, "Skipping already delivered notification",
			logger.NotificationID(n.ID),
		)
		return
	}
	if n.CreatedAt.After(f.since) {
		f.since = n.CreatedAt
	}
	f.onEvent(ctx, n.Normalize())
}

// fire reports whether the transition happened; it fails once the subscription is closed.
func (f *FeedSubscription) fire(ctx context.Context, evt statemachine.Event) bool {
	return f.sm.Fire(ctx, evt, nil) == nil
}

func (f *FeedSubscription) observe(ctx context.Context, from, to statemachine.State, _ statemachine.Event) {
	f.logger.LogAttrs(ctx, slog.LevelDebug, "Notification feed state changed",
		logger.Scope(f.scope.RecipientType, f.scope.RecipientID),
		logger.Transition(from.Name(), to.Name()),
	)
	for _, fn := range f.observers {
		fn(FeedState(from.Name()), FeedState(to.Name()))
	}
}

// cancelStream releases the connect context together with the stream.
type cancelStream struct {
	Stream
	cancel context.CancelFunc
}

func (s *cancelStream) Close() error {
	err := s.Stream.Close()
	s.cancel()
	return err
}

func connectionLost(err error) error {
	if err == nil || errors.Is(err, ErrConnectionLost) {
		return ErrConnectionLost
	}
	return errors.Join(ErrConnectionLost, err)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
