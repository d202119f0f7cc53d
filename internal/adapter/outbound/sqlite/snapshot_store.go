// Package sqlite persists rule export snapshots to a local SQLite file.
// It backs the engine's export/import seam; everything else the engine
// holds stays in memory for the process lifetime.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/playforge/gameflow/internal/service"
	"github.com/playforge/gameflow/pkg/ruledef"
)

const schema = `
CREATE TABLE IF NOT EXISTS rule_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	exported_at TEXT    NOT NULL,
	rule_count  INTEGER NOT NULL,
	payload     TEXT    NOT NULL
);
CREATE TABLE IF NOT EXISTS statistics_snapshots (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	captured_at TEXT    NOT NULL,
	payload     TEXT    NOT NULL
);
`

// SnapshotStore stores export snapshots in a SQLite database.
type SnapshotStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*SnapshotStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize snapshot schema: %w", err)
	}
	return &SnapshotStore{db: db}, nil
}

// Save stores a snapshot. Older snapshots are retained for history.
func (s *SnapshotStore) Save(snap *ruledef.ExportSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO rule_snapshots (exported_at, rule_count, payload) VALUES (?, ?, ?)`,
		snap.ExportedAt.Format(time.RFC3339Nano), snap.Count, string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	return nil
}

// Load returns the most recently saved snapshot.
func (s *SnapshotStore) Load() (*ruledef.ExportSnapshot, error) {
	var payload string
	err := s.db.QueryRow(
		`SELECT payload FROM rule_snapshots ORDER BY id DESC LIMIT 1`,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no snapshot stored")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap ruledef.ExportSnapshot
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return &snap, nil
}

// SaveStatistics stores a point-in-time statistics capture as JSON.
func (s *SnapshotStore) SaveStatistics(capturedAt time.Time, stats any) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to encode statistics: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO statistics_snapshots (captured_at, payload) VALUES (?, ?)`,
		capturedAt.Format(time.RFC3339Nano), string(payload),
	)
	if err != nil {
		return fmt.Errorf("failed to store statistics: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SnapshotStore) Close() error {
	return s.db.Close()
}

// Compile-time interface verification.
var _ service.SnapshotStore = (*SnapshotStore)(nil)
