package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/starfederation/datastar-go/datastar"
)

// Context is the request context handed to a HandlerFunc. It delegates the
// context.Context methods to the request's context.
type Context interface {
	context.Context
	Request() *http.Request
	ResponseWriter() http.ResponseWriter
	// SSE returns the Datastar event generator of the request, starting the
	// event stream on first use. It is nil for non-Datastar requests.
	SSE() *datastar.ServerSentEventGenerator
	// SSEStarted reports whether SSE has already written the stream headers.
	SSEStarted() bool
}

// NewContext creates a Context for the request.
func NewContext(w http.ResponseWriter, r *http.Request) Context {
	return &httpContext{w: w, r: r}
}

type contextKey struct{}

// contextFrom returns the Context Wrap attached to the request, or a fresh one.
func contextFrom(w http.ResponseWriter, r *http.Request) Context {
	if c, ok := r.Context().Value(contextKey{}).(*httpContext); ok {
		return c
	}
	return NewContext(w, r)
}

type httpContext struct {
	w http.ResponseWriter
	r *http.Request

	mu  sync.Mutex
	sse *datastar.ServerSentEventGenerator
}

func (c *httpContext) Request() *http.Request { return c.r }

func (c *httpContext) ResponseWriter() http.ResponseWriter { return c.w }

func (c *httpContext) SSE() *datastar.ServerSentEventGenerator {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sse == nil && IsDataStar(c.r) {
		c.sse = NewSSE(c.w, c.r)
	}
	return c.sse
}

func (c *httpContext) SSEStarted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sse != nil
}

func (c *httpContext) Deadline() (time.Time, bool) { return c.r.Context().Deadline() }

func (c *httpContext) Done() <-chan struct{} { return c.r.Context().Done() }

func (c *httpContext) Err() error { return c.r.Context().Err() }

func (c *httpContext) Value(key any) any { return c.r.Context().Value(key) }
