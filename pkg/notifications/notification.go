package notifications

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"
)

// RecipientType identifies which kind of principal a notification targets.
type RecipientType string

const (
	RecipientStore    RecipientType = "store"
	RecipientAdmin    RecipientType = "admin"
	RecipientCustomer RecipientType = "customer"
)

// Valid reports whether t is one of the known recipient types.
func (t RecipientType) Valid() bool {
	switch t {
	case RecipientStore, RecipientAdmin, RecipientCustomer:
		return true
	}
	return false
}

// Priority represents the notification priority level.
// The zero value is treated as PriorityMedium.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is a known priority. The empty priority is valid
// and defaults to medium.
func (p Priority) Valid() bool {
	switch p {
	case "", PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// OrDefault returns p, or PriorityMedium when p is empty.
func (p Priority) OrDefault() Priority {
	if p == "" {
		return PriorityMedium
	}
	return p
}

// Interrupts reports whether notifications of this priority should be shown
// as a pop-up in addition to the persistent list.
func (p Priority) Interrupts() bool {
	return p == PriorityHigh || p == PriorityUrgent
}

// DefaultTitlePrefixLength is the number of title runes that participate in the dedup key.
const DefaultTitlePrefixLength = 50

// Notification is a persisted notification record.
// Only Read and Sent change after creation.
type Notification struct {
	ID            string        `json:"id" bson:"_id"`
	RecipientType RecipientType `json:"recipient_type" bson:"recipient_type"`
	RecipientID   string        `json:"recipient_id" bson:"recipient_id"`
	Title         string        `json:"title" bson:"title"`
	Message       string        `json:"message" bson:"message"`
	OrderID       string        `json:"order_id,omitempty" bson:"order_id,omitempty"`
	Priority      Priority      `json:"priority" bson:"priority"`
	URL           string        `json:"url,omitempty" bson:"url,omitempty"`
	Read          bool          `json:"read" bson:"read"`
	Sent          bool          `json:"sent" bson:"sent"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
}

// Normalize fills read-time defaults on records written by older producers.
func (n Notification) Normalize() Notification {
	n.Priority = n.Priority.OrDefault()
	return n
}

// DedupKey returns the key used to detect duplicates of this record.
func (n Notification) DedupKey(prefixLen int) string {
	return BuildDedupKey(n.RecipientType, n.RecipientID, n.Title, n.OrderID, prefixLen)
}

// Intent is an unpersisted request to create a notification.
type Intent struct {
	RecipientType RecipientType `json:"recipient_type"`
	RecipientID   string        `json:"recipient_id"`
	Title         string        `json:"title"`
	Message       string        `json:"message"`
	OrderID       string        `json:"order_id,omitempty"`
	Priority      Priority      `json:"priority,omitempty"`
	URL           string        `json:"url,omitempty"`
}

// Validate reports why the intent cannot be persisted, wrapped in ErrInvalidIntent.
func (i Intent) Validate() error {
	var errs []error
	if !i.RecipientType.Valid() {
		errs = append(errs, ErrUnknownRecipientType)
	}
	if strings.TrimSpace(i.RecipientID) == "" {
		errs = append(errs, ErrMissingRecipientID)
	}
	if !i.Priority.Valid() {
		errs = append(errs, ErrUnknownPriority)
	}
	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidIntent}, errs...)...)
	}
	return nil
}

// Scope returns the recipient scope the intent targets.
func (i Intent) Scope() Scope {
	return Scope{RecipientType: i.RecipientType, RecipientID: i.RecipientID}
}

// DedupKey returns the duplicate-detection key using the default title prefix length.
func (i Intent) DedupKey() string {
	return BuildDedupKey(i.RecipientType, i.RecipientID, i.Title, i.OrderID, DefaultTitlePrefixLength)
}

// BuildDedupKey derives "type|id|title prefix|order" where the title prefix is the
// first prefixLen runes of title with surrounding whitespace trimmed and a missing
// order is written as "-". Backslashes and "|" inside the parts are escaped with a
// backslash, and a literal "-" order as `\-`, so distinct tuples never share a key.
func BuildDedupKey(recipientType RecipientType, recipientID, title, orderID string, prefixLen int) string {
	if prefixLen <= 0 {
		prefixLen = DefaultTitlePrefixLength
	}
	switch orderID {
	case "":
		orderID = "-"
	case "-":
		orderID = `\-`
	default:
		orderID = dedupEscaper.Replace(orderID)
	}

	var b strings.Builder
	b.Grow(len(recipientType) + len(recipientID) + len(orderID) + prefixLen + 3)
	b.WriteString(dedupEscaper.Replace(string(recipientType)))
	b.WriteByte('|')
	b.WriteString(dedupEscaper.Replace(recipientID))
	b.WriteByte('|')
	b.WriteString(dedupEscaper.Replace(titlePrefix(title, prefixLen)))
	b.WriteByte('|')
	b.WriteString(orderID)
	return b.String()
}

var dedupEscaper = strings.NewReplacer(`\`, `\\`, "|", `\|`)

func titlePrefix(title string, n int) string {
	if utf8.RuneCountInString(title) > n {
		i, count := 0, 0
		for i = range title {
			if count == n {
				break
			}
			count++
		}
		title = title[:i]
	}
	return strings.TrimSpace(title)
}

// Scope is the recipient filter for subscriptions and routing.
// An empty RecipientID matches every recipient of the type.
type Scope struct {
	RecipientType RecipientType `json:"recipient_type"`
	RecipientID   string        `json:"recipient_id,omitempty"`
}

// Validate checks the scope names a known recipient type.
func (s Scope) Validate() error {
	if !s.RecipientType.Valid() {
		return errors.Join(ErrInvalidScope, ErrUnknownRecipientType)
	}
	return nil
}

// Matches reports whether n belongs to the scope.
func (s Scope) Matches(n Notification) bool {
	if n.RecipientType != s.RecipientType {
		return false
	}
	return s.RecipientID == "" || n.RecipientID == s.RecipientID
}

// String renders the scope as "type:id", with "*" for all recipients.
func (s Scope) String() string {
	id := s.RecipientID
	if id == "" {
		id = "*"
	}
	return string(s.RecipientType) + ":" + id
}
