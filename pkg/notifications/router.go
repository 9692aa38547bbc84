package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const (
	sinkList  = "list"
	sinkToast = "toast"
)

// Router filters feed events by scope and dispatches them to sinks.
type Router struct {
	scope   Scope
	sinks   Sinks
	logger  *slog.Logger
	metrics *Metrics
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithRouterLogger sets the logger for the Router.
func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRouterMetrics records deliveries and sink failures.
func WithRouterMetrics(m *Metrics) RouterOption {
	return func(r *Router) {
		r.metrics = m
	}
}

// NewRouter creates a router for scope.
func NewRouter(scope Scope, sinks Sinks, opts ...RouterOption) *Router {
	r := &Router{
		scope:  scope,
		sinks:  sinks,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Route delivers n to the list sink and, for high and urgent priorities, to the
// toast sink. Events outside the scope are dropped. Sink failures are logged and
// never returned. Route reports whether n matched the scope.
func (r *Router) Route(ctx context.Context, n Notification) bool {
	if !r.scope.Matches(n) {
		return false
	}

	n = n.Normalize()
	r.dispatch(ctx, sinkList, r.sinks.List, n)
	if n.Priority.Interrupts() {
		r.dispatch(ctx, sinkToast, r.sinks.Toast, n)
	}
	return true
}

// Handler adapts the router to a FeedSubscription event handler.
func (r *Router) Handler() EventHandler {
	return func(ctx context.Context, n Notification) {
		r.Route(ctx, n)
	}
}

func (r *Router) dispatch(ctx context.Context, name string, sink Sink, n Notification) {
	if sink == nil {
		return
	}

	err := sink.OnNotification(ctx, n)
	r.metrics.delivered(name, err)
	if err != nil {
		r.logger.LogAttrs(ctx, slog.LevelError, "Sink rejected notification",
			logger.Sink(name),
			logger.NotificationID(n.ID),
			logger.Priority(n.Priority),
			logger.Error(err),
		)
	}
}
