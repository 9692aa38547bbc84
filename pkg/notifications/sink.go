package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Sink consumes routed notifications.
type Sink interface {
	OnNotification(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) OnNotification(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Sinks are the delivery targets of a Router.
// List receives every notification in scope; Toast only interrupting ones.
// Either may be nil.
type Sinks struct {
	List  Sink
	Toast Sink
}

// MultiSink fans a notification out to several sinks.
type MultiSink struct {
	sinks  []Sink
	logger *slog.Logger
}

// MultiSinkOption configures a MultiSink.
type MultiSinkOption func(*MultiSink)

// WithMultiSinkLogger sets the logger for the MultiSink.
func WithMultiSinkLogger(l *slog.Logger) MultiSinkOption {
	return func(m *MultiSink) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMultiSink creates a sink delivering to each of sinks in order.
func NewMultiSink(sinks []Sink, opts ...MultiSinkOption) *MultiSink {
	m := &MultiSink{
		sinks:  sinks,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// OnNotification delivers to every sink. A failing sink is logged and skipped.
func (m *MultiSink) OnNotification(ctx context.Context, n Notification) error {
	for i, s := range m.sinks {
		if s == nil {
			continue
		}
		if err := s.OnNotification(ctx, n); err != nil {
			m.logger.LogAttrs(ctx, slog.LevelError, "Failed to deliver notification",
				logger.NotificationID(n.ID),
				logger.RecipientID(n.RecipientID),
				slog.Int("sink_index", i),
				logger.Error(err),
			)
		}
	}
	return nil
}

// NoOpSink discards every notification.
type NoOpSink struct{}

func (NoOpSink) OnNotification(context.Context, Notification) error {
	return nil
}
