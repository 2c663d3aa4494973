package infra

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/lockin/internal/domain"
)

const sessionSchemaVersion = "1"

// EncryptedSessionStore implements domain.SessionStore using a SQLCipher
// encrypted SQLite database.
type EncryptedSessionStore struct {
	db     *sql.DB
	dbPath string
}

// NewSessionStore opens (or creates) the encrypted session database.
// The key is used as the raw SQLCipher key.
func NewSessionStore(dbPath string, key []byte) (*EncryptedSessionStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, KeyHex(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedSessionStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedSessionStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		work_topic TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		ended_at INTEGER NOT NULL DEFAULT 0,
		distraction_count INTEGER NOT NULL DEFAULT 0,
		alert_count INTEGER NOT NULL DEFAULT 0,
		analysis_count INTEGER NOT NULL DEFAULT 0,
		analysis_errors INTEGER NOT NULL DEFAULT 0,
		cache_hits INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions (started_at);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`, sessionSchemaVersion)
	return err
}

// Path returns the database file.
func (s *EncryptedSessionStore) Path() string {
	return s.dbPath
}

// NewSessionID returns a fresh random session ID.
func NewSessionID() string {
	return uuid.NewString()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Save inserts or replaces a session. Sessions without an ID get one.
func (s *EncryptedSessionStore) Save(session domain.Session) error {
	if session.ID == "" {
		session.ID = NewSessionID()
	}
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, profile, work_topic, started_at, ended_at,
			distraction_count, alert_count, analysis_count, analysis_errors, cache_hits)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.Profile, session.WorkTopic,
		toMillis(session.StartedAt), toMillis(session.EndedAt),
		session.DistractionCount, session.AlertCount, session.AnalysisCount,
		session.AnalysisErrors, session.CacheHits,
	)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %w", session.ID, err)
	}
	return nil
}

const sessionColumns = `id, profile, work_topic, started_at, ended_at,
	distraction_count, alert_count, analysis_count, analysis_errors, cache_hits`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var sess domain.Session
	var started, ended int64
	err := row.Scan(&sess.ID, &sess.Profile, &sess.WorkTopic, &started, &ended,
		&sess.DistractionCount, &sess.AlertCount, &sess.AnalysisCount,
		&sess.AnalysisErrors, &sess.CacheHits)
	if err != nil {
		return domain.Session{}, err
	}
	sess.StartedAt = fromMillis(started)
	sess.EndedAt = fromMillis(ended)
	return sess, nil
}

// Get returns one session; unknown IDs fail with domain.ErrNotFound.
func (s *EncryptedSessionStore) Get(id string) (*domain.Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// List returns sessions newest first. limit <= 0 returns all of them.
func (s *EncryptedSessionStore) List(limit int) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// Close releases the database connection.
func (s *EncryptedSessionStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var _ domain.SessionStore = (*EncryptedSessionStore)(nil)
