package handler_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/handler"
)

func TestSSE(t *testing.T) {
	t.Parallel()

	t.Run("requires a datastar request", func(t *testing.T) {
		t.Parallel()
		resp := handler.SSE(func(stream handler.StreamContext) error { return nil })

		err := resp.Render(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil))
		var httpErr handler.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, http.StatusBadRequest, httpErr.Code)
	})

	t.Run("patches signals", func(t *testing.T) {
		t.Parallel()
		resp := handler.SSE(func(stream handler.StreamContext) error {
			if err := stream.SendSignal("unread", 3); err != nil {
				return err
			}
			return stream.SendSignals(map[string]any{"connected": true})
		})

		req := httptest.NewRequest(http.MethodGet, "/stream", nil)
		req.Header.Set("Accept", handler.DataStarAcceptHeader)
		rec := httptest.NewRecorder()
		require.NoError(t, resp.Render(rec, req))

		assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
		assert.Contains(t, rec.Body.String(), `"unread":3`)
		assert.Contains(t, rec.Body.String(), `"connected":true`)
	})

	t.Run("stops with the request context", func(t *testing.T) {
		t.Parallel()
		resp := handler.SSE(func(stream handler.StreamContext) error {
			<-stream.Done()
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		req := httptest.NewRequest(http.MethodGet, "/stream?datastar=%7B%7D", nil).WithContext(ctx)

		done := make(chan error, 1)
		go func() { done <- resp.Render(httptest.NewRecorder(), req) }()
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("stream did not stop")
		}
	})

	t.Run("stream error reaches the error handler as a signal", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(
			func(ctx handler.Context, _ struct{}) handler.Response {
				return handler.SSE(func(stream handler.StreamContext) error {
					return errors.New("feed closed")
				})
			},
			handler.WithErrorHandler[struct{}](handler.NewErrorHandler(slog.New(slog.DiscardHandler))),
		)

		req := httptest.NewRequest(http.MethodGet, "/stream", nil)
		req.Header.Set("Accept", handler.DataStarAcceptHeader)
		rec := httptest.NewRecorder()
		h(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"code":"internal_server_error"`)
		assert.NotContains(t, rec.Body.String(), "feed closed")
	})
}

func TestIsDataStar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		header map[string]string
		target string
		want   bool
	}{
		{name: "plain request", target: "/", want: false},
		{name: "event stream accept", target: "/", header: map[string]string{"Accept": "text/event-stream"}, want: true},
		{name: "signals in query", target: "/?datastar=%7B%7D", want: true},
		{name: "datastar content type", target: "/", header: map[string]string{"Content-Type": "application/x-datastar"}, want: true},
		{name: "json accept", target: "/", header: map[string]string{"Accept": "application/json"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, handler.IsDataStar(req))
		})
	}
}
