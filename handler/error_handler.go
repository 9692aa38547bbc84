package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dmitrymomot/notifykit/binder"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// ErrorHandlerOption configures NewErrorHandler.
type ErrorHandlerOption func(*errorHandlerConfig)

type errorHandlerConfig struct {
	mapper func(error) error
}

// WithErrorMapper translates application errors into HTTPError or
// ValidationError values before they are rendered. Returning nil keeps the
// original error.
func WithErrorMapper(m func(error) error) ErrorHandlerOption {
	return func(c *errorHandlerConfig) {
		c.mapper = m
	}
}

// NewErrorHandler returns an ErrorHandler that logs the failure and answers
// with the JSON error envelope. Once an event stream has started the error is
// patched as an "error" signal instead, since the status line is already sent.
// Server errors never expose their message to the client.
func NewErrorHandler(log *slog.Logger, opts ...ErrorHandlerOption) ErrorHandler {
	cfg := &errorHandlerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		classified := classifyError(err, cfg.mapper)
		status, detail := errorToDetail(classified)
		if status < http.StatusInternalServerError && detail.Details == nil {
			detail.Message = clientMessage(err)
		}

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(ctx, level, "Request failed",
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			logger.Component("error_handler"),
		)

		if ctx.SSEStarted() {
			data, mErr := json.Marshal(map[string]any{"error": detail})
			if mErr == nil {
				mErr = ctx.SSE().PatchSignals(data)
			}
			if mErr != nil {
				log.LogAttrs(ctx, slog.LevelDebug, "Failed to patch error signal",
					logger.Error(mErr),
					logger.Component("error_handler"),
				)
			}
			return
		}

		if rErr := JSONError(classified).Render(ctx.ResponseWriter(), r); rErr != nil {
			log.LogAttrs(ctx, slog.LevelError, "Failed to render error response",
				logger.Error(rErr),
				logger.Component("error_handler"),
			)
		}
	}
}

// classifyError maps binder failures onto HTTP errors and runs the
// application mapper on everything else.
func classifyError(err error, mapper func(error) error) error {
	switch {
	case errors.Is(err, binder.ErrInvalidJSON), errors.Is(err, binder.ErrInvalidQuery):
		return ErrBadRequest
	case errors.Is(err, binder.ErrUnsupportedMediaType), errors.Is(err, binder.ErrMissingContentType):
		return ErrUnsupportedMediaType
	}
	if mapper != nil {
		if mapped := mapper(err); mapped != nil {
			return mapped
		}
	}
	return err
}

func clientMessage(err error) string {
	return strings.ReplaceAll(err.Error(), "\n", "; ")
}
