// Package notification stores messages addressed to users and tracks each
// user's read state.
package notification

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/teranos/notify/errors"
)

// Priority orders messages for display; higher is more urgent
type Priority int

const (
	PriorityNone Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityUrgent
)

var priorityNames = []string{"none", "low", "medium", "high", "urgent"}

func (p Priority) String() string {
	if p < PriorityNone || p > PriorityUrgent {
		return "unknown"
	}
	return priorityNames[p]
}

// ParsePriority accepts a priority name, case-insensitively
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Priority(i), nil
		}
	}
	return PriorityNone, errors.NewInvalidRequestError("unknown priority %q", s)
}

// Valid reports whether p is one of the defined priorities
func (p Priority) Valid() bool {
	return p >= PriorityNone && p <= PriorityUrgent
}

// PublishChunkSize bounds how many user rows one INSERT carries
const PublishChunkSize = 100

// Type names a kind of message and the renderer that displays it
type Type struct {
	Name     string `json:"name" yaml:"name"`
	Renderer string `json:"renderer" yaml:"renderer"`
}

// Message is the content shared by every user it is published to
type Message struct {
	ID         string         `json:"id" yaml:"id"`
	Namespace  string         `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Type       string         `json:"msg_type" yaml:"msg_type"`
	FromUserID *int64         `json:"from_user_id,omitempty" yaml:"from_user_id,omitempty"`
	Payload    map[string]any `json:"payload" yaml:"payload"`

	// Hidden from listings until this time
	DeliverNoEarlierThan *time.Time `json:"deliver_no_earlier_than,omitempty" yaml:"deliver_no_earlier_than,omitempty"`
	// Removed by the expiry purge after this time
	ExpiresAt *time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	// Removed from a user's list this many seconds after they read it
	ExpiresSecsAfterRead *int `json:"expires_secs_after_read,omitempty" yaml:"expires_secs_after_read,omitempty"`

	Priority Priority  `json:"priority" yaml:"priority"`
	Created  time.Time `json:"created" yaml:"created"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// Validate checks a message before it is stored
func (m *Message) Validate() error {
	if strings.TrimSpace(m.Type) == "" {
		return errors.NewInvalidRequestError("message type is required")
	}
	if !m.Priority.Valid() {
		return errors.NewInvalidRequestError("priority %d out of range", m.Priority)
	}
	if m.ExpiresSecsAfterRead != nil && *m.ExpiresSecsAfterRead < 0 {
		return errors.NewInvalidRequestError("expires_secs_after_read must be >= 0, got %d", *m.ExpiresSecsAfterRead)
	}
	if m.DeliverNoEarlierThan != nil && m.ExpiresAt != nil && m.ExpiresAt.Before(*m.DeliverNoEarlierThan) {
		return errors.NewInvalidRequestError("message expires before it can be delivered")
	}
	if _, err := json.Marshal(m.Payload); err != nil {
		return errors.Wrapf(errors.ErrInvalidRequest, "payload is not serialisable: %v", err)
	}
	return nil
}

// UserNotification is one user's copy of a message
type UserNotification struct {
	ID          string         `json:"id" yaml:"id"`
	UserID      int64          `json:"user_id" yaml:"user_id"`
	Message     *Message       `json:"msg" yaml:"msg"`
	ReadAt      *time.Time     `json:"read_at,omitempty" yaml:"read_at,omitempty"`
	UserContext map[string]any `json:"user_context,omitempty" yaml:"user_context,omitempty"`
	Created     time.Time      `json:"created" yaml:"created"`
	Modified    time.Time      `json:"modified" yaml:"modified"`
}

// IsRead reports whether the user has read the notification
func (u *UserNotification) IsRead() bool {
	return u.ReadAt != nil
}

// Filters narrows a user's notification list
type Filters struct {
	Read      *bool  // nil = read and unread
	Namespace string // "" = any
	Type      string // "" = any
	Limit     int    // 0 or above the store maximum = store maximum
	Offset    int
}

// ReadOnly returns filters selecting read notifications
func ReadOnly() Filters {
	read := true
	return Filters{Read: &read}
}

// UnreadOnly returns filters selecting unread notifications
func UnreadOnly() Filters {
	read := false
	return Filters{Read: &read}
}
