package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// Writer turns accepted intents into persisted notifications.
// It does not retry; a failed insert is reported to the caller.
type Writer struct {
	store  Storage
	now    func() time.Time
	newID  func() string
	logger *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithWriterClock sets the time source for CreatedAt.
func WithWriterClock(now func() time.Time) WriterOption {
	return func(w *Writer) {
		if now != nil {
			w.now = now
		}
	}
}

// WithWriterIDGenerator replaces the uuid-based id generator.
func WithWriterIDGenerator(fn func() string) WriterOption {
	return func(w *Writer) {
		if fn != nil {
			w.newID = fn
		}
	}
}

// WithWriterLogger sets the logger for the Writer.
func WithWriterLogger(l *slog.Logger) WriterOption {
	return func(w *Writer) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWriter creates a writer persisting into store.
func NewWriter(store Storage, opts ...WriterOption) *Writer {
	w := &Writer{
		store:  store,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write persists the intent with a fresh id, the current time, medium priority
// when none is given, and read/sent cleared.
// Failures are wrapped in ErrInvalidIntent or ErrStoreWriteFailed.
func (w *Writer) Write(ctx context.Context, in Intent) (Notification, error) {
	if err := in.Validate(); err != nil {
		return Notification{}, err
	}

	n := Notification{
		ID:            w.newID(),
		RecipientType: in.RecipientType,
		RecipientID:   in.RecipientID,
		Title:         in.Title,
		Message:       in.Message,
		OrderID:       in.OrderID,
		Priority:      in.Priority.OrDefault(),
		URL:           in.URL,
		CreatedAt:     w.now().UTC(),
	}

	stored, err := w.store.Insert(ctx, n)
	if err != nil {
		w.logger.LogAttrs(ctx, slog.LevelError, "Failed to store notification",
			logger.NotificationID(n.ID),
			logger.RecipientType(n.RecipientType),
			logger.RecipientID(n.RecipientID),
			logger.OrderID(n.OrderID),
			logger.Error(err),
		)
		return Notification{}, errors.Join(ErrStoreWriteFailed, err)
	}

	return stored, nil
}
