package handler

import (
	"encoding/json"
	"net/http"

	"github.com/starfederation/datastar-go/datastar"
)

// StreamContext extends Context with Datastar signal patches over an open
// event stream.
type StreamContext interface {
	Context

	// SendSignal patches a single signal.
	SendSignal(name string, value any) error

	// SendSignals patches several signals in one event.
	//
	//	err := stream.SendSignals(map[string]any{
	//		"unread": 3,
	//		"connected": true,
	//	})
	SendSignals(signals map[string]any) error
}

type streamContext struct {
	Context
	sse *datastar.ServerSentEventGenerator
}

func (c *streamContext) SendSignal(name string, value any) error {
	return c.SendSignals(map[string]any{name: value})
}

func (c *streamContext) SendSignals(signals map[string]any) error {
	if c.sse == nil {
		return ErrSSENotInitialized
	}
	data, err := json.Marshal(signals)
	if err != nil {
		return err
	}
	return c.sse.PatchSignals(data)
}

// StreamHandler runs for the lifetime of an event stream. The stream ends
// when it returns or the client disconnects.
//
//	handler.SSE(func(stream handler.StreamContext) error {
//		for {
//			select {
//			case <-stream.Done():
//				return nil
//			case msg := <-events:
//				if err := stream.SendSignal("notification", msg); err != nil {
//					return err
//				}
//			}
//		}
//	})
type StreamHandler func(stream StreamContext) error

type sseResponse struct {
	handler StreamHandler
}

// Render rejects non-Datastar requests with 400, then opens the stream and
// runs the handler on it.
func (s sseResponse) Render(w http.ResponseWriter, r *http.Request) error {
	if !IsDataStar(r) {
		return NewHTTPError(http.StatusBadRequest, "datastar_required")
	}

	base := contextFrom(w, r)
	sse := base.SSE()
	if sse == nil {
		return ErrSSENotInitialized
	}
	return s.handler(&streamContext{Context: base, sse: sse})
}

// SSE returns a Response that streams Datastar events from h.
func SSE(h StreamHandler) Response {
	return sseResponse{handler: h}
}
