package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	// historyTimeLayout is fixed-width so created_at sorts lexically.
	historyTimeLayout = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStateHistoryRepository implements StateHistoryRepository using SQLite.
//
// Snapshots are stored as JSON in the state_history table.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a repository over an open SQLite connection.
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordStateChange inserts a snapshot for address.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - address: Canonical device address
//   - state: Snapshot to persist
//   - source: Origin of the snapshot (defaults to poll)
//
// Returns:
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, address string, state State, source string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	if source == "" {
		source = StateHistorySourcePoll
	}

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		"INSERT INTO state_history (address, state, source, created_at) VALUES (?, ?, ?, ?)",
		address,
		string(stateJSON),
		source,
		time.Now().UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// GetHistory returns recent entries for address, newest first.
// limit defaults to 50 and is clamped to 500.
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, address string, limit int) ([]StateHistoryEntry, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, address, state, source, created_at
		 FROM state_history
		 WHERE address = ?
		 ORDER BY id DESC
		 LIMIT ?`,
		address,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var entry StateHistoryEntry
		var stateJSON, createdAt string

		if err := rows.Scan(&entry.ID, &entry.Address, &stateJSON, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}
		if err := json.Unmarshal([]byte(stateJSON), &entry.State); err != nil {
			return nil, fmt.Errorf("unmarshalling state: %w", err)
		}
		ts, err := time.Parse(historyTimeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		entry.CreatedAt = ts

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than olderThan.
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}
