package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nori1021/Personalized-Speech-Recognition/internal/types"
)

// Registry is the SQLite-backed user registry: users plus their append-only
// recognition history. A missing database file is an empty registry; the
// schema is created on open.
type Registry struct {
	db *sql.DB
}

// NewRegistry opens (or creates) the registry database.
func NewRegistry(dbPath string) (*Registry, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %v", err)
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS users (
		name TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user TEXT NOT NULL REFERENCES users(name),
		date TEXT NOT NULL,
		input_file TEXT NOT NULL,
		output_text TEXT NOT NULL,
		transcript_file TEXT NOT NULL,
		dataset_dir TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_history_user ON history(user);
	`

	if _, err := db.Exec(createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create registry schema: %v", err)
	}

	return &Registry{db: db}, nil
}

// CreateUser registers a new user name. Names are unique and never renamed.
func (r *Registry) CreateUser(name string) error {
	_, err := r.db.Exec(`INSERT INTO users (name, created_at) VALUES (?, ?)`, name, time.Now())
	if err != nil {
		var exists int
		if r.db.QueryRow(`SELECT COUNT(*) FROM users WHERE name = ?`, name).Scan(&exists) == nil && exists > 0 {
			return fmt.Errorf("%w: %s", types.ErrUserExists, name)
		}
		return fmt.Errorf("failed to create user: %v", err)
	}
	return nil
}

// UserExists reports whether name is registered.
func (r *Registry) UserExists(name string) (bool, error) {
	var count int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM users WHERE name = ?`, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to query user: %v", err)
	}
	return count > 0, nil
}

// ListUsers returns all registered user names in creation order.
func (r *Registry) ListUsers() ([]string, error) {
	rows, err := r.db.Query(`SELECT name FROM users ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %v", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AppendHistory records one successful recognition for user. Called only
// after every file write for the sample has succeeded, so the registry never
// references a half-written sample.
func (r *Registry) AppendHistory(user string, entry types.HistoryEntry) error {
	_, err := r.db.Exec(`
	INSERT INTO history (user, date, input_file, output_text, transcript_file, dataset_dir, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		user, entry.Date, entry.InputFile, entry.OutputText,
		entry.TranscriptFile, entry.DatasetDir, time.Now())
	if err != nil {
		return fmt.Errorf("failed to append history: %v", err)
	}
	return nil
}

// History returns the user's entries in insertion (chronological) order.
func (r *Registry) History(user string) ([]types.HistoryEntry, error) {
	rows, err := r.db.Query(`
	SELECT date, input_file, output_text, transcript_file, dataset_dir
	FROM history WHERE user = ? ORDER BY id`, user)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %v", err)
	}
	defer rows.Close()

	var entries []types.HistoryEntry
	for rows.Next() {
		var e types.HistoryEntry
		if err := rows.Scan(&e.Date, &e.InputFile, &e.OutputText, &e.TranscriptFile, &e.DatasetDir); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}
