// Package sqlite stores execution snapshots in a local SQLite database
// through the pure-Go modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KEPSOAR/DER-SecAgent/internal/core/snapshot"
	"github.com/KEPSOAR/DER-SecAgent/pkg/serialization"
)

// SnapshotSaver implements snapshot.Saver for SQLite. Filter columns are
// stored as plain columns; the state and trace go into one serialized blob.
type SnapshotSaver struct {
	db         *sql.DB
	serializer *serialization.Serializer
	tableName  string
}

// Open opens (or creates) the database at path and its tables. ":memory:"
// gives a private in-memory database.
func Open(ctx context.Context, path string, serializer *serialization.Serializer) (*SnapshotSaver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	s := NewSnapshotSaver(db, serializer)
	if err := s.CreateTables(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewSnapshotSaver wraps an open database. A nil serializer selects
// msgpack with zstd.
func NewSnapshotSaver(db *sql.DB, serializer *serialization.Serializer) *SnapshotSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &SnapshotSaver{
		db:         db,
		serializer: serializer,
		tableName:  "snapshots",
	}
}

// WithTableName overrides the table name. Names other than letters, digits
// and underscores are ignored.
func (s *SnapshotSaver) WithTableName(name string) *SnapshotSaver {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// payload is the serialized part of a row.
type payload struct {
	State   map[string]any `msgpack:"state" json:"state"`
	Visited []string       `msgpack:"visited,omitempty" json:"visited,omitempty"`
	Error   string         `msgpack:"error,omitempty" json:"error,omitempty"`
}

// CreateTables creates the snapshot table and its indexes.
func (s *SnapshotSaver) CreateTables(ctx context.Context) error {
	t := s.tableName
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			execution_id TEXT NOT NULL,
			incident_id INTEGER NOT NULL,
			mode TEXT NOT NULL,
			status TEXT NOT NULL,
			error_kind TEXT NOT NULL DEFAULT '',
			steps INTEGER NOT NULL,
			payload BLOB NOT NULL,
			timestamp INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_incident ON %[1]s (incident_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_execution ON %[1]s (execution_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s (timestamp);
	`, t)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// Save inserts or replaces a snapshot.
func (s *SnapshotSaver) Save(ctx context.Context, snap *snapshot.Snapshot) error {
	if snap == nil {
		return snapshot.ErrInvalidSnapshotID
	}
	if err := snap.Validate(); err != nil {
		return fmt.Errorf("snapshot validation failed: %w", err)
	}
	data, err := s.serializer.Serialize(payload{State: snap.State, Visited: snap.Visited, Error: snap.Error})
	if err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrSaveFailed, err)
	}

	query := fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, execution_id, incident_id, mode, status, error_kind, steps, payload, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.tableName)
	_, err = s.db.ExecContext(ctx, query,
		snap.ID, snap.ExecutionID, snap.IncidentID, snap.Mode, string(snap.Status),
		snap.ErrorKind, snap.Steps, data, snap.Timestamp.UnixNano())
	if err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrSaveFailed, err)
	}
	return nil
}

const columns = "id, execution_id, incident_id, mode, status, error_kind, steps, payload, timestamp"

type scanner interface {
	Scan(dest ...any) error
}

func (s *SnapshotSaver) scan(row scanner) (*snapshot.Snapshot, error) {
	var (
		snap   snapshot.Snapshot
		status string
		data   []byte
		ts     int64
	)
	if err := row.Scan(&snap.ID, &snap.ExecutionID, &snap.IncidentID, &snap.Mode, &status,
		&snap.ErrorKind, &snap.Steps, &data, &ts); err != nil {
		return nil, err
	}
	var p payload
	if err := s.serializer.Deserialize(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", snapshot.ErrLoadFailed, err)
	}
	snap.Status = snapshot.Status(status)
	snap.State = p.State
	if snap.State == nil {
		snap.State = map[string]any{}
	}
	snap.Visited = p.Visited
	snap.Error = p.Error
	snap.Timestamp = time.Unix(0, ts)
	return &snap, nil
}

// Load retrieves a snapshot by ID.
func (s *SnapshotSaver) Load(ctx context.Context, id string) (*snapshot.Snapshot, error) {
	if id == "" {
		return nil, snapshot.ErrInvalidSnapshotID
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", columns, s.tableName)
	snap, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, snapshot.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return snap, nil
}

// List returns snapshots matching filter, newest first.
func (s *SnapshotSaver) List(ctx context.Context, filter snapshot.Filter) ([]*snapshot.Snapshot, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter validation failed: %w", err)
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	var out []*snapshot.Snapshot
	for rows.Next() {
		snap, err := s.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// Delete removes a snapshot by ID.
func (s *SnapshotSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return snapshot.ErrInvalidSnapshotID
	}
	result, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName), id)
	if err != nil {
		return fmt.Errorf("%w: %v", snapshot.ErrDeleteFailed, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return snapshot.ErrSnapshotNotFound
	}
	return nil
}

func (s *SnapshotSaver) buildListQuery(filter snapshot.Filter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if filter.IncidentID != 0 {
		where = append(where, "incident_id = ?")
		args = append(args, filter.IncidentID)
	}
	if filter.ExecutionID != "" {
		where = append(where, "execution_id = ?")
		args = append(args, filter.ExecutionID)
	}
	if filter.Mode != "" {
		where = append(where, "mode = ?")
		args = append(args, filter.Mode)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Before != nil {
		where = append(where, "timestamp < ?")
		args = append(args, filter.Before.UnixNano())
	}

	query := fmt.Sprintf("SELECT %s FROM %s", columns, s.tableName)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, id DESC"

	// sqlite needs a LIMIT before OFFSET; -1 means unbounded
	switch {
	case filter.Limit > 0:
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	case filter.Offset > 0:
		query += " LIMIT -1"
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}
	return query, args
}

// Close closes the database connection
func (s *SnapshotSaver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
