package device

import (
	"context"
	"time"
)

// State history source values.
const (
	StateHistorySourcePoll    = "poll"
	StateHistorySourceCommand = "command"
)

// StateHistoryEntry is one recorded device snapshot.
//
// Entries provide a local audit trail even when the time-series database
// is unavailable.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// Address is the canonical device address.
	Address string `json:"address"`

	// State is the snapshot at the time the change was published.
	State State `json:"state"`

	// Source identifies what produced the snapshot (poll, command).
	Source string `json:"source"`

	// CreatedAt is the timestamp of the record (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange appends a snapshot for address.
	RecordStateChange(ctx context.Context, address string, state State, source string) error

	// GetHistory returns up to limit entries for address, newest first.
	GetHistory(ctx context.Context, address string, limit int) ([]StateHistoryEntry, error)

	// PruneHistory deletes entries older than olderThan and returns the count removed.
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
}
