package notifications

import "errors"

var (
	ErrInvalidIntent        = errors.New("invalid notification intent")
	ErrUnknownRecipientType = errors.New("unknown recipient type")
	ErrMissingRecipientID   = errors.New("recipient id is required")
	ErrUnknownPriority      = errors.New("unknown priority")
	ErrInvalidScope         = errors.New("invalid subscription scope")

	ErrStoreWriteFailed     = errors.New("failed to write notification")
	ErrStoreQueryFailed     = errors.New("failed to query notifications")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrNotificationExists   = errors.New("notification already exists")
	ErrMissingID            = errors.New("notification id is required")
	ErrStorageClosed        = errors.New("notification storage is closed")

	ErrConnectionLost     = errors.New("notification feed connection lost")
	ErrConnectTimeout     = errors.New("notification feed connect timed out")
	ErrSubscriptionClosed = errors.New("subscription is closed")
	ErrSubscriptionActive = errors.New("subscription is already open")
	ErrNilEventHandler    = errors.New("event handler is required")
	ErrServiceClosed      = errors.New("notification service is closed")
	ErrNilRedisClient     = errors.New("redis client is required")
)
