package access

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mfourny/offload/pkg/logging"
)

// Store provides SQLite-backed persistence for capability tokens.
// It is the single owner of the backing database: every read and write
// goes through its methods under one mutex, so concurrent callers never
// interleave read-modify-write cycles on the key-value data.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex
	logger logging.Logger
}

// NewStore opens the capability database and runs migrations
func NewStore(dbPath string, logger logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open capability store: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping capability store: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate capability store: %w", err)
	}

	return s, nil
}

// migrate creates the schema if it does not exist
func (s *Store) migrate() error {
	const schema = `
		CREATE TABLE IF NOT EXISTS capabilities (
			path      TEXT PRIMARY KEY,
			token     BLOB NOT NULL,
			volume_id TEXT NOT NULL,
			issued_at TIMESTAMP NOT NULL
		)
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put inserts or replaces the capability for its path
func (s *Store) Put(cap *Capability) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO capabilities (path, token, volume_id, issued_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			token = excluded.token,
			volume_id = excluded.volume_id,
			issued_at = excluded.issued_at
	`
	if _, err := s.db.Exec(query, cap.Path, cap.Token, cap.VolumeID, cap.IssuedAt); err != nil {
		return fmt.Errorf("failed to persist capability: %w", err)
	}

	s.logger.Debug(context.Background(), "capability persisted", logging.Fields{
		"path": cap.Path,
	})
	return nil
}

// Get retrieves the capability for a path, or nil if none is stored
func (s *Store) Get(path string) (*Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		SELECT path, token, volume_id, issued_at
		FROM capabilities WHERE path = ?
	`

	cap := &Capability{}
	var issuedAt time.Time
	err := s.db.QueryRow(query, path).Scan(&cap.Path, &cap.Token, &cap.VolumeID, &issuedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query capability: %w", err)
	}

	cap.IssuedAt = issuedAt
	return cap, nil
}

// Delete removes the capability for a path
func (s *Store) Delete(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM capabilities WHERE path = ?`, path); err != nil {
		return fmt.Errorf("failed to delete capability: %w", err)
	}
	return nil
}

// List returns all stored capabilities ordered by path
func (s *Store) List() ([]Capability, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT path, token, volume_id, issued_at
		FROM capabilities ORDER BY path
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list capabilities: %w", err)
	}
	defer rows.Close()

	var caps []Capability
	for rows.Next() {
		var cap Capability
		if err := rows.Scan(&cap.Path, &cap.Token, &cap.VolumeID, &cap.IssuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan capability row: %w", err)
		}
		caps = append(caps, cap)
	}

	return caps, rows.Err()
}

// Clear removes every stored capability
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM capabilities`); err != nil {
		return fmt.Errorf("failed to clear capabilities: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close capability store: %w", err)
	}
	return nil
}
