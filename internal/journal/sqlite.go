package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	pakerrors "git.home.luguber.info/inful/pakctl/internal/errors"
	"git.home.luguber.info/inful/pakctl/internal/pakd"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based journal.
// Use ":memory:" for an in-memory database, or a file path for persistent storage.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "open sqlite database")
	}

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "initialize schema")
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS change_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		change_id TEXT NOT NULL,
		ready INTEGER NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		tasks BLOB
	);
	CREATE INDEX IF NOT EXISTS idx_change_id ON change_events(change_id);
	CREATE INDEX IF NOT EXISTS idx_timestamp ON change_events(timestamp);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append adds an observed change update to the journal.
func (s *SQLiteStore) Append(ctx context.Context, update pakd.ChangeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tasksJSON []byte
	if update.Tasks != nil {
		var err error
		tasksJSON, err = json.Marshal(update.Tasks)
		if err != nil {
			return pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "marshal tasks")
		}
	}

	ready := 0
	if update.Ready {
		ready = 1
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO change_events (change_id, ready, error, timestamp, tasks) VALUES (?, ?, ?, ?, ?)",
		update.ID, ready, update.Err, time.Now().Unix(), tasksJSON,
	)
	if err != nil {
		return pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "insert change event")
	}

	return nil
}

// ByChange retrieves all recorded events for a change, oldest first.
func (s *SQLiteStore) ByChange(ctx context.Context, changeID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, change_id, ready, error, timestamp, tasks FROM change_events WHERE change_id = ? ORDER BY id",
		changeID,
	)
	if err != nil {
		return nil, pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "query change events")
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var ready int
		var timestampUnix int64
		var tasksJSON []byte

		if err := rows.Scan(&e.ID, &e.ChangeID, &ready, &e.Error, &timestampUnix, &tasksJSON); err != nil {
			return nil, pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "scan change event")
		}

		e.Ready = ready != 0
		e.Timestamp = time.Unix(timestampUnix, 0)

		if len(tasksJSON) > 0 {
			if err := json.Unmarshal(tasksJSON, &e.Tasks); err != nil {
				return nil, pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "unmarshal tasks")
			}
		}

		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, pakerrors.Wrap(err, pakerrors.CategoryStorage, pakerrors.SeverityError, "iterate rows")
	}

	return events, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
