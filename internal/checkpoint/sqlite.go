package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists records in a single sqlite database. The
// primary key on (batch_id, question_id) enforces append idempotence
// at the storage layer; WAL mode gives atomic, crash-safe appends.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	batch_id     TEXT NOT NULL,
	question_id  TEXT NOT NULL,
	payload      TEXT NOT NULL,
	finalized_at TIMESTAMP NOT NULL,
	PRIMARY KEY (batch_id, question_id)
);
CREATE TABLE IF NOT EXISTS progress (
	batch_id   TEXT PRIMARY KEY,
	finalized  INTEGER NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=10000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reads all finalized records for the batch in append order.
func (s *SQLiteStore) Load(batchID string) (*State, error) {
	rows, err := s.db.Query(
		`SELECT question_id, payload, finalized_at FROM runs WHERE batch_id = ? ORDER BY rowid`,
		batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	defer rows.Close()

	state := NewState(batchID)
	for rows.Next() {
		var (
			qid         string
			payload     string
			finalizedAt time.Time
		)
		if err := rows.Scan(&qid, &payload, &finalizedAt); err != nil {
			return nil, fmt.Errorf("checkpoint: %w", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("checkpoint: corrupt record for %s: %w", qid, err)
		}
		rec.QuestionID = qid
		rec.FinalizedAt = finalizedAt
		state.add(rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("checkpoint: %w", err)
	}
	return state, nil
}

// Append inserts one record; a duplicate question id is rejected with
// ErrAlreadyFinalized via the primary-key constraint.
func (s *SQLiteStore) Append(batchID string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}

	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO runs (batch_id, question_id, payload, finalized_at) VALUES (?, ?, ?, ?)`,
		batchID, rec.QuestionID, string(payload), rec.FinalizedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyFinalized, rec.QuestionID)
	}

	_, err = s.db.Exec(
		`INSERT INTO progress (batch_id, finalized, updated_at) VALUES (?, 1, ?)
		 ON CONFLICT(batch_id) DO UPDATE SET finalized = finalized + 1, updated_at = excluded.updated_at`,
		batchID, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }
