package chat

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/store"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one in-memory transcript entry. Assistant messages start
// empty with IsStreaming set and are mutated in place as chunks arrive.
type ChatMessage struct {
	ID          string                `json:"id"`
	Scope       string                `json:"scope,omitempty"`
	Role        string                `json:"role"`
	Content     string                `json:"content"`
	Timestamp   time.Time             `json:"timestamp"`
	IsStreaming bool                  `json:"isStreaming"`
	Sources     []bus.SourceReference `json:"sources,omitempty"`
}

// HistoryReader is the persisted-history surface the log loads from.
// *store.Store satisfies it.
type HistoryReader interface {
	ListChatHistory(scope string) ([]store.ChatTurn, error)
}

type scopeState struct {
	loaded   bool
	loading  chan struct{} // non-nil while a fetch is in flight, closed when it settles
	messages []*ChatMessage
	draft    string
}

// MessageLog holds ordered per-scope chat transcripts plus per-scope unsent
// draft text, so switching entries and returning restores both.
type MessageLog struct {
	mu      sync.Mutex
	history HistoryReader
	scopes  map[string]*scopeState
}

func NewMessageLog(history HistoryReader) *MessageLog {
	return &MessageLog{
		history: history,
		scopes:  make(map[string]*scopeState),
	}
}

func (l *MessageLog) scopeLocked(scope string) *scopeState {
	st, ok := l.scopes[scope]
	if !ok {
		st = &scopeState{}
		l.scopes[scope] = st
	}
	return st
}

// Load fetches persisted history for a scope into memory. Idempotent: a
// scope that is already loaded is not fetched again, and callers racing an
// in-flight load wait for it to settle rather than observing an empty
// transcript.
func (l *MessageLog) Load(scope string) error {
	l.mu.Lock()
	st := l.scopeLocked(scope)
	for st.loading != nil {
		done := st.loading
		l.mu.Unlock()
		<-done
		l.mu.Lock()
	}
	if st.loaded {
		l.mu.Unlock()
		return nil
	}
	st.loading = make(chan struct{})
	l.mu.Unlock()

	turns, err := l.history.ListChatHistory(scope)

	l.mu.Lock()
	defer l.mu.Unlock()
	close(st.loading)
	st.loading = nil
	if err != nil {
		return err
	}

	msgs := make([]*ChatMessage, 0, len(turns))
	for _, t := range turns {
		msgs = append(msgs, &ChatMessage{
			ID:        t.ID,
			Scope:     scope,
			Role:      t.Role,
			Content:   t.Content,
			Timestamp: t.CreatedAt,
			Sources:   parseSources(t.Metadata),
		})
	}
	st.messages = msgs
	st.loaded = true
	return nil
}

// parseSources extracts source citations from stored turn metadata.
// Malformed metadata drops the sources, never the message.
func parseSources(metadata string) []bus.SourceReference {
	if metadata == "" {
		return nil
	}
	var decoded struct {
		Sources []bus.SourceReference `json:"sources"`
	}
	if err := json.Unmarshal([]byte(metadata), &decoded); err != nil {
		log.Printf("[chat] dropping unparseable turn metadata: %v", err)
		return nil
	}
	return decoded.Sources
}

// Append inserts a message at the end of a scope's transcript and returns
// the generated id for later mutation.
func (l *MessageLog) Append(scope, role, content string, streaming bool) string {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := &ChatMessage{
		ID:          uuid.NewString(),
		Scope:       scope,
		Role:        role,
		Content:     content,
		Timestamp:   time.Now().UTC(),
		IsStreaming: streaming,
	}
	st := l.scopeLocked(scope)
	st.messages = append(st.messages, msg)
	return msg.ID
}

// AppendChunk concatenates text onto an existing message. A stale id is a
// no-op, which absorbs chunk events arriving after a Remove.
func (l *MessageLog) AppendChunk(scope, id, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg := l.findLocked(scope, id); msg != nil {
		msg.Content += text
	}
}

// Finalize marks a streaming message complete and attaches its sources.
func (l *MessageLog) Finalize(scope, id string, sources []bus.SourceReference) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg := l.findLocked(scope, id); msg != nil {
		msg.IsStreaming = false
		msg.Sources = sources
	}
}

// Remove deletes a message outright. Used for abandoned in-flight assistant
// placeholders so the transcript never shows partial output as an answer.
func (l *MessageLog) Remove(scope, id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.scopes[scope]
	if !ok {
		return
	}
	for i, msg := range st.messages {
		if msg.ID == id {
			st.messages = append(st.messages[:i], st.messages[i+1:]...)
			return
		}
	}
}

// Clear discards in-memory history for a scope. Persisted records are kept;
// the next Load refetches them.
func (l *MessageLog) Clear(scope string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.scopes, scope)
}

// Messages returns a snapshot copy of a scope's transcript.
func (l *MessageLog) Messages(scope string) []ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.scopes[scope]
	if !ok {
		return nil
	}
	out := make([]ChatMessage, len(st.messages))
	for i, msg := range st.messages {
		out[i] = *msg
	}
	return out
}

// Content returns the current text of one message.
func (l *MessageLog) Content(scope, id string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if msg := l.findLocked(scope, id); msg != nil {
		return msg.Content, true
	}
	return "", false
}

// SetDraft stores a scope's unsent input text.
func (l *MessageLog) SetDraft(scope, text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.scopeLocked(scope).draft = text
}

// Draft returns a scope's unsent input text.
func (l *MessageLog) Draft(scope string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.scopes[scope]
	if !ok {
		return ""
	}
	return st.draft
}

func (l *MessageLog) findLocked(scope, id string) *ChatMessage {
	st, ok := l.scopes[scope]
	if !ok {
		return nil
	}
	for _, msg := range st.messages {
		if msg.ID == id {
			return msg
		}
	}
	return nil
}
