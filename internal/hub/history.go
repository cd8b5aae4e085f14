package hub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"dtvctl/internal/directv"
)

// HistoryEntry is one recorded client state
type HistoryEntry struct {
	ID          int64     `json:"id"`
	ReceiverID  string    `json:"receiver_id"`
	ClientAddr  string    `json:"client_addr"`
	Authorized  bool      `json:"authorized"`
	Available   bool      `json:"available"`
	Standby     bool      `json:"standby"`
	Channel     string    `json:"channel,omitempty"`
	Title       string    `json:"title,omitempty"`
	ProgramType string    `json:"program_type,omitempty"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// NewHistoryEntry flattens a state snapshot
func NewHistoryEntry(receiverID, clientAddr string, state directv.State) HistoryEntry {
	entry := HistoryEntry{
		ReceiverID: receiverID,
		ClientAddr: clientAddr,
		Authorized: state.Authorized,
		Available:  state.Available,
		Standby:    state.Standby,
		RecordedAt: state.At,
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	if state.Program != nil {
		entry.Channel = state.Program.Channel
		entry.Title = state.Program.Title
		entry.ProgramType = state.Program.ProgramType
	}
	return entry
}

// SameAs reports whether two entries describe the same condition, ignoring time
func (e HistoryEntry) SameAs(other HistoryEntry) bool {
	return e.Authorized == other.Authorized &&
		e.Available == other.Available &&
		e.Standby == other.Standby &&
		e.Channel == other.Channel &&
		e.Title == other.Title &&
		e.ProgramType == other.ProgramType
}

// History stores receiver state changes in SQLite
type History struct {
	db *sql.DB
}

// OpenHistory opens (or creates) the history database. Use ":memory:" in tests.
func OpenHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	history := &History{db: db}
	if err := history.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}

	return history, nil
}

// Close closes the database connection
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS receiver_states (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			receiver_id TEXT NOT NULL,
			client_addr TEXT NOT NULL,
			authorized INTEGER NOT NULL,
			available INTEGER NOT NULL,
			standby INTEGER NOT NULL,
			channel TEXT,
			title TEXT,
			program_type TEXT,
			recorded_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_receiver_states_lookup
			ON receiver_states(receiver_id, client_addr, recorded_at)`,
	}

	for _, query := range queries {
		if _, err := h.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// Record inserts an entry and returns it with its ID
func (h *History) Record(ctx context.Context, entry HistoryEntry) (HistoryEntry, error) {
	query := `INSERT INTO receiver_states
		(receiver_id, client_addr, authorized, available, standby, channel, title, program_type, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := h.db.ExecContext(ctx, query,
		entry.ReceiverID, entry.ClientAddr,
		entry.Authorized, entry.Available, entry.Standby,
		entry.Channel, entry.Title, entry.ProgramType,
		entry.RecordedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return entry, fmt.Errorf("failed to record state: %w", err)
	}

	entry.ID, err = result.LastInsertId()
	if err != nil {
		return entry, fmt.Errorf("failed to get state ID: %w", err)
	}
	return entry, nil
}

// Latest returns the newest entry for a receiver client
func (h *History) Latest(ctx context.Context, receiverID, clientAddr string) (*HistoryEntry, error) {
	query := `SELECT id, receiver_id, client_addr, authorized, available, standby,
			COALESCE(channel, ''), COALESCE(title, ''), COALESCE(program_type, ''), recorded_at
		FROM receiver_states
		WHERE receiver_id = ? AND client_addr = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1`

	entry, err := scanEntry(h.db.QueryRowContext(ctx, query, receiverID, clientAddr))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest state: %w", err)
	}
	return entry, nil
}

// List returns the newest entries for a receiver, newest first. An empty
// clientAddr matches every client; limit <= 0 means 100.
func (h *History) List(ctx context.Context, receiverID, clientAddr string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, receiver_id, client_addr, authorized, available, standby,
			COALESCE(channel, ''), COALESCE(title, ''), COALESCE(program_type, ''), recorded_at
		FROM receiver_states
		WHERE receiver_id = ? AND (? = '' OR client_addr = ?)
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`

	rows, err := h.db.QueryContext(ctx, query, receiverID, clientAddr, clientAddr, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list states: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan state: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// Prune deletes entries recorded before the cutoff and returns how many went
func (h *History) Prune(ctx context.Context, before time.Time) (int64, error) {
	result, err := h.db.ExecContext(ctx, `DELETE FROM receiver_states WHERE recorded_at < ?`, before.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune states: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*HistoryEntry, error) {
	var entry HistoryEntry
	var recordedAt int64
	if err := row.Scan(
		&entry.ID, &entry.ReceiverID, &entry.ClientAddr,
		&entry.Authorized, &entry.Available, &entry.Standby,
		&entry.Channel, &entry.Title, &entry.ProgramType, &recordedAt,
	); err != nil {
		return nil, err
	}
	entry.RecordedAt = time.UnixMilli(recordedAt).UTC()
	return &entry, nil
}
