package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// Session is the audit row for one streaming connection. Transcript text is
// never stored.
type Session struct {
	ID        string     `json:"id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Status    string     `json:"status"`
	Chunks    int        `json:"chunks"`
}

// FlushRecord describes one flush of a session's buffer.
type FlushRecord struct {
	SessionID       string    `json:"session_id"`
	Chunk           int       `json:"chunk"`
	Reason          string    `json:"reason"`
	AudioBytes      int       `json:"audio_bytes"`
	PCMBytes        int       `json:"pcm_bytes"`
	Normalize       string    `json:"normalize"`
	TranscriptChars int       `json:"transcript_chars"`
	Sentiment       string    `json:"sentiment"`
	FlushedAt       time.Time `json:"flushed_at"`
}

type SQLiteStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "call-insights.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, path: dbPath}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			chunks INTEGER NOT NULL DEFAULT 0
		);
	`); err != nil {
		return fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS flushes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			chunk_no INTEGER NOT NULL,
			reason TEXT NOT NULL,
			audio_bytes INTEGER NOT NULL,
			pcm_bytes INTEGER NOT NULL,
			normalize TEXT NOT NULL DEFAULT '',
			transcript_chars INTEGER NOT NULL,
			sentiment TEXT NOT NULL,
			flushed_at TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);
	`); err != nil {
		return fmt.Errorf("create flushes table: %w", err)
	}

	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)"); err != nil {
		return fmt.Errorf("create sessions index: %w", err)
	}
	if _, err := s.db.Exec("CREATE INDEX IF NOT EXISTS idx_flushes_session_id ON flushes(session_id, flushed_at)"); err != nil {
		return fmt.Errorf("create flushes index: %w", err)
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Path is the database file backed up by the Drive syncer.
func (s *SQLiteStore) Path() string {
	return s.path
}

// Checkpoint folds the WAL into the main database file so a copy of Path is
// self-contained.
func (s *SQLiteStore) Checkpoint() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	return nil
}

// CreateSession inserts a session row. A reconnect that reuses an id reopens
// the existing row.
func (s *SQLiteStore) CreateSession(id string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, started_at, status) VALUES(?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET started_at = excluded.started_at, ended_at = NULL, status = excluded.status, chunks = 0`,
		id,
		startedAt.UTC().Format(time.RFC3339Nano),
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) EndSession(id string, endedAt time.Time, status string, chunks int) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = ?, chunks = ? WHERE id = ?`,
		endedAt.UTC().Format(time.RFC3339Nano),
		status,
		chunks,
		id,
	)
	if err != nil {
		return fmt.Errorf("end session %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("end session rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *SQLiteStore) RecordFlush(rec FlushRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO flushes(session_id, chunk_no, reason, audio_bytes, pcm_bytes, normalize, transcript_chars, sentiment, flushed_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		rec.Chunk,
		rec.Reason,
		rec.AudioBytes,
		rec.PCMBytes,
		rec.Normalize,
		rec.TranscriptChars,
		rec.Sentiment,
		rec.FlushedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record flush %d for session %s: %w", rec.Chunk, rec.SessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, status, chunks
		 FROM sessions
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	return scanSessions(rows)
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, ended_at, status, chunks FROM sessions WHERE id = ?`,
		id,
	)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	sessions, err := scanSessions(rows)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	if len(sessions) == 0 {
		return Session{}, fmt.Errorf("query session %s: %w", id, sql.ErrNoRows)
	}
	return sessions[0], nil
}

func (s *SQLiteStore) GetFlushes(sessionID string) ([]FlushRecord, error) {
	rows, err := s.db.Query(
		`SELECT session_id, chunk_no, reason, audio_bytes, pcm_bytes, normalize, transcript_chars, sentiment, flushed_at
		 FROM flushes
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query flushes for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	flushes := make([]FlushRecord, 0, 16)
	for rows.Next() {
		var rec FlushRecord
		var ts string
		if err := rows.Scan(&rec.SessionID, &rec.Chunk, &rec.Reason, &rec.AudioBytes, &rec.PCMBytes, &rec.Normalize, &rec.TranscriptChars, &rec.Sentiment, &ts); err != nil {
			return nil, fmt.Errorf("scan flush for session %s: %w", sessionID, err)
		}

		parsedTS, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse flush timestamp for session %s: %w", sessionID, err)
		}
		rec.FlushedAt = parsedTS

		flushes = append(flushes, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flush rows for session %s: %w", sessionID, err)
	}

	return flushes, nil
}

// SentimentCounts tallies flush labels for a session.
func (s *SQLiteStore) SentimentCounts(sessionID string) (map[string]int, error) {
	rows, err := s.db.Query(
		`SELECT sentiment, COUNT(*) FROM flushes WHERE session_id = ? GROUP BY sentiment`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sentiment counts for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	counts := map[string]int{}
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, fmt.Errorf("scan sentiment count: %w", err)
		}
		counts[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sentiment counts: %w", err)
	}
	return counts, nil
}

func scanSessions(rows *sql.Rows) ([]Session, error) {
	sessions := make([]Session, 0, 16)
	for rows.Next() {
		var sess Session
		var startedAt string
		var endedAt sql.NullString
		if err := rows.Scan(&sess.ID, &startedAt, &endedAt, &sess.Status, &sess.Chunks); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}

		parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		sess.StartedAt = parsedStart

		if endedAt.Valid {
			parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			sess.EndedAt = &parsedEnd
		}

		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}
