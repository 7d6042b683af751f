package domain

import (
	"fmt"
	"time"
)

// TimestampLayout is the ISO form browsers produce with toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in UTC at millisecond precision.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Truncate(time.Millisecond).Format(TimestampLayout)
}

// ParseTimestamp parses any RFC3339 timestamp, with or without fractions.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("ParseTimestamp: %w", err)
	}
	return t.UTC(), nil
}

// CompareInstants orders a and b at millisecond precision, the resolution
// mutation timestamps are stored with. It returns -1, 0 or +1.
func CompareInstants(a, b time.Time) int {
	am := a.UnixMilli()
	bm := b.UnixMilli()
	switch {
	case am < bm:
		return -1
	case am > bm:
		return 1
	}
	return 0
}

// Snapshot is the whole-document unit exchanged with the remote blob.
type Snapshot struct {
	Transactions []Transaction `json:"transactions"`
	Accounts     []Account     `json:"accounts"`
	LastUpdated  time.Time     `json:"lastUpdated"`
}

// SyncState is the process-wide cloud sync status shown to the user.
type SyncState struct {
	IsConnected bool       `json:"isConnected"`
	IsSyncing   bool       `json:"isSyncing"`
	LastSync    *time.Time `json:"lastSync"`
	Error       *string    `json:"error"`
}

// InsightType tags an advisory message.
type InsightType string

const (
	InsightWarning  InsightType = "warning"
	InsightInfo     InsightType = "info"
	InsightPositive InsightType = "positive"
)

// SpendingInsight is a short advisory message derived from the ledger.
type SpendingInsight struct {
	Title   string      `json:"title"`
	Message string      `json:"message"`
	Type    InsightType `json:"type"`
}
