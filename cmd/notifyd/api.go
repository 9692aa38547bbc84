package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/notifykit/binder"
	"github.com/dmitrymomot/notifykit/handler"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type listRequest struct {
	RecipientType notifications.RecipientType `query:"recipient_type"`
	RecipientID   string                      `query:"recipient_id"`
	OrderID       string                      `query:"order_id"`
	Unread        bool                        `query:"unread"`
	Limit         int                         `query:"limit"`
	Offset        int                         `query:"offset"`
}

// filter clamps the page: a missing or non-positive limit means the default
// page size, never an unbounded read.
func (r listRequest) filter() notifications.Filter {
	limit := r.Limit
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	return notifications.Filter{
		RecipientType: r.RecipientType,
		RecipientID:   r.RecipientID,
		OrderID:       r.OrderID,
		OnlyUnread:    r.Unread,
		Limit:         limit,
		Offset:        max(r.Offset, 0),
	}
}

type scopeRequest struct {
	RecipientType notifications.RecipientType `query:"recipient_type"`
	RecipientID   string                      `query:"recipient_id"`
}

func (r scopeRequest) scope() notifications.Scope {
	return notifications.Scope{RecipientType: r.RecipientType, RecipientID: r.RecipientID}
}

type idsRequest struct {
	IDs []string `json:"ids"`
}

type submitResult struct {
	Created bool `json:"created"`
}

type unreadResult struct {
	Unread int `json:"unread"`
}

type api struct {
	svc    *notifications.Service
	feed   *notifications.BroadcastSink
	logger *slog.Logger
}

func newRouter(a *api, reg prometheus.Gatherer, checks ...httpserver.Check) http.Handler {
	errs := handler.NewErrorHandler(a.logger, handler.WithErrorMapper(apiError))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", httpserver.LivenessHandler())
	r.Get("/readyz", httpserver.ReadinessHandler(a.logger, 2*time.Second, checks...))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/notifications", func(r chi.Router) {
		r.Post("/", handler.Wrap(a.submit,
			handler.WithBinders[notifications.Intent](binder.BindJSON()),
			handler.WithErrorHandler[notifications.Intent](errs),
		))
		r.Get("/", handler.Wrap(a.list,
			handler.WithBinders[listRequest](binder.BindQuery()),
			handler.WithErrorHandler[listRequest](errs),
		))
		r.Get("/unread", handler.Wrap(a.countUnread,
			handler.WithBinders[scopeRequest](binder.BindQuery()),
			handler.WithErrorHandler[scopeRequest](errs),
		))
		r.Post("/read", handler.Wrap(a.markRead,
			handler.WithBinders[idsRequest](binder.BindJSON()),
			handler.WithErrorHandler[idsRequest](errs),
		))
		r.Post("/sent", handler.Wrap(a.markSent,
			handler.WithBinders[idsRequest](binder.BindJSON()),
			handler.WithErrorHandler[idsRequest](errs),
		))
		r.Post("/read-all", handler.Wrap(a.markAllRead,
			handler.WithBinders[notifications.Scope](binder.BindJSON()),
			handler.WithErrorHandler[notifications.Scope](errs),
		))
		r.Get("/stream", handler.Wrap(a.stream,
			handler.WithBinders[scopeRequest](binder.BindQuery()),
			handler.WithErrorHandler[scopeRequest](errs),
		))
	})

	return r
}

// submit answers 201 for a new record and 200 for a suppressed duplicate.
func (a *api) submit(ctx handler.Context, in notifications.Intent) handler.Response {
	created, err := a.svc.Submit(ctx, in)
	if err != nil {
		return handler.Error(err)
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	return handler.JSON(submitResult{Created: created}, handler.WithJSONStatus(status))
}

func (a *api) list(ctx handler.Context, req listRequest) handler.Response {
	f := req.filter()
	items, err := a.svc.List(ctx, f)
	if err != nil {
		return handler.Error(err)
	}
	if items == nil {
		items = []notifications.Notification{}
	}
	return handler.JSON(items, handler.WithJSONMeta(map[string]any{
		"limit":  f.Limit,
		"offset": f.Offset,
	}))
}

func (a *api) countUnread(ctx handler.Context, req scopeRequest) handler.Response {
	n, err := a.svc.CountUnread(ctx, req.scope())
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(unreadResult{Unread: n})
}

func (a *api) markRead(ctx handler.Context, req idsRequest) handler.Response {
	return acknowledge(ctx, a.svc.MarkRead, req.IDs)
}

func (a *api) markSent(ctx handler.Context, req idsRequest) handler.Response {
	return acknowledge(ctx, a.svc.MarkSent, req.IDs)
}

func (a *api) markAllRead(ctx handler.Context, scope notifications.Scope) handler.Response {
	if err := a.svc.MarkAllRead(ctx, scope); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

func acknowledge(ctx context.Context, apply func(context.Context, ...string) error, ids []string) handler.Response {
	if err := apply(ctx, ids...); err != nil {
		return handler.Error(err)
	}
	return handler.Empty()
}

// stream pushes the notifications of one recipient to a Datastar client as
// signal patches until the client disconnects or the server shuts down.
func (a *api) stream(ctx handler.Context, req scopeRequest) handler.Response {
	scope := req.scope()
	err := scope.Validate()
	if err == nil && scope.RecipientID == "" {
		err = notifications.ErrMissingRecipientID
	}
	if err != nil {
		return handler.Error(err)
	}
	if !handler.IsDataStar(ctx.Request()) {
		return handler.Error(handler.NewHTTPError(http.StatusBadRequest, "datastar_required"))
	}

	// Subscribed before the stream headers go out, so nothing published after
	// the client sees the response is missed.
	sub := a.feed.Subscribe(ctx, scope.RecipientType, scope.RecipientID)

	return handler.SSE(func(stream handler.StreamContext) error {
		defer sub.Close()
		a.logger.LogAttrs(stream, slog.LevelDebug, "Notification stream opened",
			logger.Scope(scope.RecipientType, scope.RecipientID),
		)

		for {
			select {
			case <-stream.Done():
				return nil
			case msg, ok := <-sub.Receive(stream):
				if !ok {
					// Dropped as a slow consumer; the client reconnects and reloads the list.
					return nil
				}
				if err := stream.SendSignal("notification", msg.Data); err != nil {
					if stream.Err() != nil {
						return nil
					}
					return err
				}
			}
		}
	})
}

// apiError maps service errors onto HTTP answers. Unmapped errors are
// answered with 500.
func apiError(err error) error {
	switch {
	case errors.Is(err, notifications.ErrInvalidIntent):
		v := handler.NewValidationError()
		if errors.Is(err, notifications.ErrUnknownRecipientType) {
			v.Add("recipient_type", notifications.ErrUnknownRecipientType.Error())
		}
		if errors.Is(err, notifications.ErrMissingRecipientID) {
			v.Add("recipient_id", notifications.ErrMissingRecipientID.Error())
		}
		if errors.Is(err, notifications.ErrUnknownPriority) {
			v.Add("priority", notifications.ErrUnknownPriority.Error())
		}
		return v
	case errors.Is(err, notifications.ErrInvalidScope), errors.Is(err, notifications.ErrMissingRecipientID):
		return handler.NewHTTPError(http.StatusBadRequest, "invalid_scope")
	case errors.Is(err, notifications.ErrServiceClosed):
		return handler.ErrServiceUnavailable
	}
	return nil
}
