package db

import (
	"time"

	"github.com/teranos/notify/errors"
)

// TimeLayout is the fixed-width UTC layout timestamps are stored in, so that
// string comparison in SQL matches chronological order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t in TimeLayout
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// FormatTimePtr renders t, or returns nil for a NULL column
func FormatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return FormatTime(*t)
}

// ParseTime reads a stored timestamp
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp %q", s)
	}
	return t.UTC(), nil
}
