package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyContent = errors.New("content cannot be empty")
)

// Store owns the journal database: entries, chat turns, the full-text index
// and embedding blobs all live in one SQLite file.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	s := &Store{db: db}
	if err := s.configure(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configure() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("sqlite pragma %q: %w", p, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS journals (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			entry_kind TEXT NOT NULL DEFAULT 'journal',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			is_archived INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_journals_archived ON journals(is_archived)`,
		`CREATE INDEX IF NOT EXISTS idx_journals_created ON journals(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			journal_id TEXT REFERENCES journals(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL,
			metadata TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_journal ON chat_messages(journal_id, created_at)`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS journals_fts USING fts5(
			title,
			content,
			content='journals',
			content_rowid='rowid',
			tokenize='unicode61'
		)`,
		`CREATE TRIGGER IF NOT EXISTS journals_ai AFTER INSERT ON journals BEGIN
			INSERT INTO journals_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS journals_ad AFTER DELETE ON journals BEGIN
			INSERT INTO journals_fts(journals_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
		END`,
		`CREATE TRIGGER IF NOT EXISTS journals_au AFTER UPDATE ON journals BEGIN
			INSERT INTO journals_fts(journals_fts, rowid, title, content) VALUES('delete', old.rowid, old.title, old.content);
			INSERT INTO journals_fts(rowid, title, content) VALUES (new.rowid, new.title, new.content);
		END`,
		`CREATE TABLE IF NOT EXISTS journal_embeddings (
			journal_id TEXT PRIMARY KEY REFERENCES journals(id) ON DELETE CASCADE,
			embedding BLOB NOT NULL,
			model_version TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// Vacuum reclaims free pages. Run from the weekly maintenance job.
func (s *Store) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec("VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}
