package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GlobalScope is the journal_id used for the untethered chat session.
// Stored as NULL so entry deletion cascades never touch it.
const GlobalScope = ""

// ChatTurn is one persisted chat message.
type ChatTurn struct {
	ID        string    `json:"id"`
	Scope     string    `json:"scope"` // entry id, or GlobalScope
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	Metadata  string    `json:"metadata,omitempty"` // opaque JSON, e.g. source citations
}

func scopeValue(scope string) any {
	if scope == GlobalScope {
		return nil
	}
	return scope
}

// AppendChatTurn persists one turn for a scope and returns its id.
func (s *Store) AppendChatTurn(scope, role, content, metadata string) (*ChatTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	ts := now()
	var meta any
	if metadata != "" {
		meta = metadata
	}
	_, err := s.db.Exec(
		`INSERT INTO chat_messages (id, journal_id, role, content, created_at, metadata) VALUES (?, ?, ?, ?, ?, ?)`,
		id, scopeValue(scope), role, content, ts, meta,
	)
	if err != nil {
		return nil, fmt.Errorf("append chat turn: %w", err)
	}

	return &ChatTurn{
		ID:        id,
		Scope:     scope,
		Role:      role,
		Content:   content,
		CreatedAt: parseTime(ts),
		Metadata:  metadata,
	}, nil
}

// ListChatHistory returns every turn for a scope in chronological order.
func (s *Store) ListChatHistory(scope string) ([]ChatTurn, error) {
	rows, err := s.db.Query(
		`SELECT id, journal_id, role, content, created_at, metadata
		 FROM chat_messages
		 WHERE journal_id IS ?
		 ORDER BY created_at ASC`,
		scopeValue(scope),
	)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	defer rows.Close()
	return scanTurns(rows)
}

// RecentChatHistory returns the most recent limit turns in chronological
// order, for use as model context.
func (s *Store) RecentChatHistory(scope string, limit int) ([]ChatTurn, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.Query(
		`SELECT id, journal_id, role, content, created_at, metadata
		 FROM chat_messages
		 WHERE journal_id IS ?
		 ORDER BY created_at DESC
		 LIMIT ?`,
		scopeValue(scope), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent chat history: %w", err)
	}
	defer rows.Close()

	turns, err := scanTurns(rows)
	if err != nil {
		return nil, err
	}
	// Reverse into chronological order.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// DeleteChatHistory removes all persisted turns for a scope.
func (s *Store) DeleteChatHistory(scope string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM chat_messages WHERE journal_id IS ?`, scopeValue(scope))
	if err != nil {
		return 0, fmt.Errorf("delete chat history: %w", err)
	}
	return res.RowsAffected()
}

func scanTurns(rows *sql.Rows) ([]ChatTurn, error) {
	var turns []ChatTurn
	for rows.Next() {
		var t ChatTurn
		var journalID, metadata sql.NullString
		var createdAt string
		if err := rows.Scan(&t.ID, &journalID, &t.Role, &t.Content, &createdAt, &metadata); err != nil {
			return nil, fmt.Errorf("scan chat turn: %w", err)
		}
		t.Scope = journalID.String
		t.Metadata = metadata.String
		t.CreatedAt = parseTime(createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}
