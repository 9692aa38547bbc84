package logger

import (
	"fmt"
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// NotificationID records the notification identifier under the key "notification_id".
// An empty id yields an empty Attr.
func NotificationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("notification_id", id)
}

// RecipientType records the recipient kind (store, admin, customer) under "recipient_type".
func RecipientType(kind any) slog.Attr {
	return slog.String("recipient_type", fmt.Sprint(kind))
}

// RecipientID records the recipient identifier under "recipient_id".
// An empty id yields an empty Attr.
func RecipientID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("recipient_id", id)
}

// OrderID records the correlated order under "order_id".
// An empty id yields an empty Attr.
func OrderID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("order_id", id)
}

// Scope groups a subscription scope under the key "scope".
// A wildcard recipient id is rendered as "*".
func Scope(kind any, id string) slog.Attr {
	if id == "" {
		id = "*"
	}
	return Group("scope",
		slog.String("recipient_type", fmt.Sprint(kind)),
		slog.String("recipient_id", id),
	)
}

// DedupKey records a derived deduplication key under "dedup_key".
func DedupKey(key string) slog.Attr {
	return slog.String("dedup_key", key)
}

// Priority records a notification priority under "priority".
func Priority(p any) slog.Attr {
	return slog.String("priority", fmt.Sprint(p))
}

// State records a state machine state under "state".
func State(name string) slog.Attr {
	return slog.String("state", name)
}

// Transition records a state change as "from -> to" under "transition".
func Transition(from, to string) slog.Attr {
	return slog.String("transition", from+" -> "+to)
}

// Attempt records a (re)connection attempt number under "attempt".
func Attempt(n int) slog.Attr {
	return slog.Int("attempt", n)
}

// Sink records the sink name under "sink".
func Sink(name string) slog.Attr {
	return slog.String("sink", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
