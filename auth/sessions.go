// Package auth gates the admin dashboard behind a password and explicit,
// expiring sessions stored in SQLite.
package auth

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrSessionInvalid  = errors.New("session expired or revoked")
)

// Session is the token handed out at login.
type Session struct {
	Token     uuid.UUID `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its lifetime at t.
func (s *Session) Expired(t time.Time) bool { return !t.Before(s.ExpiresAt) }

// SessionStore persists sessions in a SQLite database.
type SessionStore struct {
	db *sql.DB

	insertStmt *sql.Stmt
	lookupStmt *sql.Stmt
	revokeStmt *sql.Stmt
}

// NewSessionStore opens (or creates) the SQLite database at dbPath, applies
// schema migrations, and prepares common statements.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create session db dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := applyMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	store := &SessionStore{db: db}
	if err := store.prepareStatements(); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// Close releases prepared statements and closes the DB.
func (s *SessionStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.insertStmt, s.lookupStmt, s.revokeStmt} {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Schema migration
// ---------------------------------------------------------------------------

const schemaVersion = 1

func applyMigrations(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS meta (key TEXT PRIMARY KEY, value TEXT);`); err != nil {
		return err
	}

	var current int
	_ = db.QueryRow(`SELECT value FROM meta WHERE key='schema_version';`).Scan(&current)
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
            token TEXT PRIMARY KEY,
            created_at DATETIME NOT NULL,
            expires_at DATETIME NOT NULL,
            revoked_at DATETIME
        );`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	if _, err := tx.Exec(`INSERT INTO meta(key,value) VALUES('schema_version',?)
            ON CONFLICT(key) DO UPDATE SET value=excluded.value;`, schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	return tx.Commit()
}

func (s *SessionStore) prepareStatements() error {
	var err error
	if s.insertStmt, err = s.db.Prepare(`INSERT INTO sessions(token,created_at,expires_at) VALUES(?,?,?)`); err != nil {
		return err
	}
	if s.lookupStmt, err = s.db.Prepare(`SELECT created_at,expires_at,revoked_at FROM sessions WHERE token=?`); err != nil {
		return err
	}
	if s.revokeStmt, err = s.db.Prepare(`UPDATE sessions SET revoked_at=? WHERE token=? AND revoked_at IS NULL`); err != nil {
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// Session lifecycle
// ---------------------------------------------------------------------------

// Create stores a new session valid from now for ttl.
func (s *SessionStore) Create(now time.Time, ttl time.Duration) (*Session, error) {
	token, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	sess := &Session{Token: token, CreatedAt: now.UTC(), ExpiresAt: now.Add(ttl).UTC()}
	if _, err := s.insertStmt.Exec(token.String(), sess.CreatedAt, sess.ExpiresAt); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}
	return sess, nil
}

// Lookup returns the session for token if it exists, is not revoked and has
// not expired at now.
func (s *SessionStore) Lookup(token uuid.UUID, now time.Time) (*Session, error) {
	sess := &Session{Token: token}
	var revoked sql.NullTime
	err := s.lookupStmt.QueryRow(token.String()).Scan(&sess.CreatedAt, &sess.ExpiresAt, &revoked)
	if err == sql.ErrNoRows {
		return nil, ErrSessionInvalid
	}
	if err != nil {
		return nil, err
	}
	if revoked.Valid || sess.Expired(now) {
		return nil, ErrSessionInvalid
	}
	return sess, nil
}

// Revoke invalidates token. Revoking an unknown or already revoked token is
// not an error.
func (s *SessionStore) Revoke(token uuid.UUID, now time.Time) error {
	_, err := s.revokeStmt.Exec(now.UTC(), token.String())
	return err
}

// PurgeExpired deletes sessions that expired before now and returns how many
// were removed.
func (s *SessionStore) PurgeExpired(now time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM sessions WHERE expires_at < ? OR revoked_at IS NOT NULL`, now.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
