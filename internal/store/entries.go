package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry is one journal entry.
type Entry struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Kind       string    `json:"kind"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
	IsArchived bool      `json:"isArchived"`
}

const entryColumns = "id, title, content, entry_kind, created_at, updated_at, is_archived"

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// CreateEntry inserts a new entry and returns it. Whitespace-only content is
// rejected with ErrEmptyContent.
func (s *Store) CreateEntry(content, title, kind string) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if kind == "" {
		kind = "journal"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ts := now()
	_, err := s.db.Exec(
		`INSERT INTO journals (id, title, content, entry_kind, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, title, content, kind, ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("create entry: %w", err)
	}

	log.Printf("[store] entry created: id=%s", id)
	return &Entry{
		ID:        id,
		Title:     title,
		Content:   content,
		Kind:      kind,
		CreatedAt: parseTime(ts),
		UpdatedAt: parseTime(ts),
	}, nil
}

// GetEntry fetches one entry by id.
func (s *Store) GetEntry(id string) (*Entry, error) {
	row := s.db.QueryRow(`SELECT `+entryColumns+` FROM journals WHERE id = ?`, id)
	return scanEntry(row)
}

// UpdateEntry replaces an entry's content, title and kind wholesale.
// Whitespace-only content never overwrites an existing entry.
func (s *Store) UpdateEntry(id, content, title, kind string) (*Entry, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	if kind == "" {
		kind = "journal"
	}

	s.mu.Lock()
	res, err := s.db.Exec(
		`UPDATE journals SET title = ?, content = ?, entry_kind = ?, updated_at = ? WHERE id = ?`,
		title, content, kind, now(), id,
	)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update entry: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("update entry %s: %w", id, ErrNotFound)
	}

	log.Printf("[store] entry updated: id=%s", id)
	return s.GetEntry(id)
}

// ListEntries returns entries ordered newest first. archived filters by
// archive state when non-nil.
func (s *Store) ListEntries(limit, offset int, archived *bool) ([]Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + entryColumns + ` FROM journals`
	args := []any{}
	if archived != nil {
		query += ` WHERE is_archived = ?`
		args = append(args, boolToInt(*archived))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntryRows(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// ArchiveEntry flags an entry as archived without deleting it.
func (s *Store) ArchiveEntry(id string) (*Entry, error) {
	s.mu.Lock()
	res, err := s.db.Exec(
		`UPDATE journals SET is_archived = 1, updated_at = ? WHERE id = ?`,
		now(), id,
	)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("archive entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("archive entry %s: %w", id, ErrNotFound)
	}
	return s.GetEntry(id)
}

// DeleteEntry removes an entry; chat turns and embeddings cascade.
func (s *Store) DeleteEntry(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM journals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("delete entry %s: %w", id, ErrNotFound)
	}
	log.Printf("[store] entry deleted: id=%s", id)
	return nil
}

type entryScanner interface {
	Scan(dest ...any) error
}

func scanRowEntry(sc entryScanner) (*Entry, error) {
	var e Entry
	var createdAt, updatedAt string
	var archived int
	err := sc.Scan(&e.ID, &e.Title, &e.Content, &e.Kind, &createdAt, &updatedAt, &archived)
	if err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(createdAt)
	e.UpdatedAt = parseTime(updatedAt)
	e.IsArchived = archived != 0
	return &e, nil
}

func scanEntry(row *sql.Row) (*Entry, error) {
	e, err := scanRowEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return e, nil
}

func scanEntryRows(rows *sql.Rows) (*Entry, error) {
	e, err := scanRowEntry(rows)
	if err != nil {
		return nil, fmt.Errorf("scan entry: %w", err)
	}
	return e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
