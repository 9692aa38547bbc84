package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/handler"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

type testEnv struct {
	server *httptest.Server
	svc    *notifications.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	log := slog.New(slog.DiscardHandler)
	reg := prometheus.NewRegistry()

	svc := notifications.NewService(notifications.NewMemoryStorage(),
		notifications.WithLogger(log),
		notifications.WithMetrics(notifications.NewMetrics(reg)),
	)
	feed := notifications.NewBroadcastSink(8)

	sub, err := svc.Subscribe(context.Background(), notifications.Scope{RecipientType: notifications.RecipientStore}, notifications.Sinks{List: feed})
	require.NoError(t, err)
	require.Eventually(t, sub.Connected, 2*time.Second, 5*time.Millisecond)

	srv := httptest.NewServer(newRouter(&api{svc: svc, feed: feed, logger: log}, reg))
	t.Cleanup(func() {
		srv.Close()
		_ = svc.Close()
		_ = feed.Close()
	})
	return &testEnv{server: srv, svc: svc}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, handler.JSONResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out handler.JSONResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func orderIntent() notifications.Intent {
	return notifications.Intent{
		RecipientType: notifications.RecipientStore,
		RecipientID:   "S1",
		Title:         "New order",
		OrderID:       "O-1",
		Priority:      notifications.PriorityHigh,
		URL:           "/orders/O-1",
	}
}

func TestAPI_Submit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/notifications/", orderIntent())
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, map[string]any{"created": true}, body.Data)

	resp, body = env.do(t, http.MethodPost, "/notifications/", orderIntent())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, map[string]any{"created": false}, body.Data)

	resp, body = env.do(t, http.MethodPost, "/notifications/", notifications.Intent{RecipientType: "robot"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "validation_error", body.Error.Code)
	assert.Contains(t, body.Error.Details, "recipient_type")
	assert.Contains(t, body.Error.Details, "recipient_id")
	assert.NotContains(t, body.Error.Details, "priority")
}

func TestAPI_RejectsMalformedRequests(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/notifications/?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "bad_request", body.Error.Code)

	resp, body = env.do(t, http.MethodPost, "/notifications/", map[string]any{"recipient_type": "store", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "bad_request", body.Error.Code)

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/notifications/read", strings.NewReader(`ids=1`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, raw.Body.Close())
	assert.Equal(t, http.StatusUnsupportedMediaType, raw.StatusCode)
}

func TestAPI_ListLimit(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	for i := range maxListLimit + 5 {
		in := orderIntent()
		in.OrderID = fmt.Sprintf("O-%d", i)
		_, err := env.svc.Submit(context.Background(), in)
		require.NoError(t, err)
	}

	tests := []struct {
		query  string
		want   int
		limit  float64
		offset float64
	}{
		{query: "", want: defaultListLimit, limit: defaultListLimit},
		{query: "&limit=0", want: defaultListLimit, limit: defaultListLimit},
		{query: "&limit=-3", want: defaultListLimit, limit: defaultListLimit},
		{query: "&limit=7&offset=-2", want: 7, limit: 7},
		{query: "&limit=100000", want: maxListLimit, limit: maxListLimit},
		{query: "&limit=10&offset=500", want: 5, limit: 10, offset: 500},
	}
	for _, tt := range tests {
		resp, body := env.do(t, http.MethodGet, "/notifications/?recipient_type=store&recipient_id=S1"+tt.query, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, tt.query)
		items, ok := body.Data.([]any)
		require.True(t, ok, tt.query)
		assert.Len(t, items, tt.want, tt.query)
		assert.Equal(t, tt.limit, body.Meta["limit"], tt.query)
		assert.Equal(t, tt.offset, body.Meta["offset"], tt.query)
	}
}

func TestAPI_ListAndAcknowledge(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	_, err := env.svc.Submit(context.Background(), orderIntent())
	require.NoError(t, err)

	resp, body := env.do(t, http.MethodGet, "/notifications/?recipient_type=store&recipient_id=S1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	items, ok := body.Data.([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	id := items[0].(map[string]any)["id"].(string)

	_, body = env.do(t, http.MethodGet, "/notifications/unread?recipient_type=store&recipient_id=S1", nil)
	assert.Equal(t, map[string]any{"unread": float64(1)}, body.Data)

	resp, _ = env.do(t, http.MethodPost, "/notifications/read", idsRequest{IDs: []string{id}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/notifications/sent", idsRequest{IDs: []string{id}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, body = env.do(t, http.MethodGet, "/notifications/unread?recipient_type=store&recipient_id=S1", nil)
	assert.Equal(t, map[string]any{"unread": float64(0)}, body.Data)

	resp, _ = env.do(t, http.MethodPost, "/notifications/read-all", notifications.Scope{RecipientType: notifications.RecipientStore})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, body = env.do(t, http.MethodGet, "/notifications/unread?recipient_type=robot", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_scope", body.Error.Code)
}

func TestAPI_Stream(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/notifications/stream?recipient_type=store&recipient_id=S1", nil)
	require.NoError(t, err)
	req.Header.Set("Accept", handler.DataStarAcceptHeader)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	// The subscriber is registered before the SSE headers are flushed.
	_, err = env.svc.Submit(context.Background(), orderIntent())
	require.NoError(t, err)

	scanner := bufio.NewScanner(resp.Body)
	found := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "data: signals") && strings.Contains(line, `"New order"`) {
			found = true
			break
		}
	}
	assert.True(t, found, "notification patch received")
}

func TestAPI_StreamRequiresRecipient(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/notifications/stream?recipient_type=store", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_scope", body.Error.Code)

	resp, body = env.do(t, http.MethodGet, "/notifications/stream?recipient_type=store&recipient_id=S1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, body.Error)
	assert.Equal(t, "datastar_required", body.Error.Code)
}

func TestAPI_HealthAndMetrics(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, err = env.svc.Submit(context.Background(), orderIntent())
	require.NoError(t, err)

	resp, err = http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `notifykit_submits_total{outcome="created"} 1`)
}
