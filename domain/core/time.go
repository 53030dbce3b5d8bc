package core

import (
	"time"
)

// TimestampLayout is a fixed-width ISO-8601 layout in UTC. Fixed width keeps lexical
// order equal to chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000Z"

// FileStampLayout is the compact timestamp used as an artifact filename prefix.
const FileStampLayout = "20060102_150405"

// Timestamp represents an ISO-8601 point in time stored as text.
type Timestamp string

// NewTimestamp creates a new timestamp from time.Time
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(TimestampLayout))
}

// String returns the ISO-8601 text.
func (t Timestamp) String() string {
	return string(t)
}

// After reports whether t sorts after u.
func (t Timestamp) After(u Timestamp) bool {
	return t > u
}
