package notifications

import (
	"context"
	"time"
)

// Storage is the durable notification store.
//
// Implementations must be safe for concurrent use. Query results are ordered
// newest first by CreatedAt.
type Storage interface {
	// Insert persists a fully populated notification and emits it on the insert feed.
	Insert(ctx context.Context, n Notification) (Notification, error)

	// Query returns the records matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Notification, error)

	// MarkRead sets read=true on the given records. Unknown ids are ignored.
	MarkRead(ctx context.Context, ids ...string) error

	// MarkAllRead sets read=true on every unread record in scope.
	MarkAllRead(ctx context.Context, scope Scope) error

	// MarkSent sets sent=true on the given records. Unknown ids are ignored.
	MarkSent(ctx context.Context, ids ...string) error

	// CountUnread returns the number of unread records in scope.
	CountUnread(ctx context.Context, scope Scope) (int, error)

	// SubscribeToInserts opens a live feed of records inserted into scope from now on.
	// The stream lives until ctx is done or the stream is closed.
	SubscribeToInserts(ctx context.Context, scope Scope) (Stream, error)
}

// Stream is a live insert feed.
//
// Events is closed when the stream ends. When it ends for any reason other than
// Close or context cancellation, the cause is sent on Errors first.
type Stream interface {
	Events() <-chan Notification
	Errors() <-chan error
	Close() error
}

// Filter selects records for Query.
// Zero-valued fields do not constrain the result.
type Filter struct {
	RecipientType RecipientType
	RecipientID   string
	OrderID       string
	CreatedAfter  time.Time // strictly after
	OnlyUnread    bool
	Limit         int // 0 = no limit
	Offset        int
}

// ScopeFilter returns a filter that selects every record in scope.
func ScopeFilter(scope Scope) Filter {
	return Filter{RecipientType: scope.RecipientType, RecipientID: scope.RecipientID}
}

// Matches reports whether n passes the filter, ignoring pagination.
func (f Filter) Matches(n Notification) bool {
	if f.RecipientType != "" && n.RecipientType != f.RecipientType {
		return false
	}
	if f.RecipientID != "" && n.RecipientID != f.RecipientID {
		return false
	}
	if f.OrderID != "" && n.OrderID != f.OrderID {
		return false
	}
	if !f.CreatedAfter.IsZero() && !n.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	if f.OnlyUnread && n.Read {
		return false
	}
	return true
}
