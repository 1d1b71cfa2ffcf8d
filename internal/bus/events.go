package bus

import "time"

// StreamEventKind discriminates events on the inference stream channel.
type StreamEventKind string

const (
	StreamChunk StreamEventKind = "chunk"
	StreamDone  StreamEventKind = "done"
	StreamError StreamEventKind = "error"
)

// StreamEvent is one event published by the inference client. The transport
// carries no request id: attribution to a message is the orchestrator's job.
type StreamEvent struct {
	Kind    StreamEventKind
	Text    string            // chunk text
	Sources []SourceReference // attached to done events when context was used
	Err     string            // error events only
}

// SourceReference cites a journal entry that informed an assistant reply.
type SourceReference struct {
	EntryID        string  `json:"entryId"`
	Date           string  `json:"date"`
	Snippet        string  `json:"snippet"`
	RelevanceScore float64 `json:"relevanceScore"`
}

// Notification kinds fanned out to UI subscribers.
const (
	NoteSaveStatus = "save.status"
	NoteChatChunk  = "chat.chunk"
	NoteChatDone   = "chat.done"
	NoteChatError  = "chat.error"
	NoteSafety     = "chat.safety"
)

// Notification is a UI-facing event. Unused fields are omitted on the wire.
type Notification struct {
	Kind         string            `json:"kind"`
	Scope        string            `json:"scope,omitempty"`
	MessageID    string            `json:"messageId,omitempty"`
	EntryID      string            `json:"entryId,omitempty"`
	Text         string            `json:"text,omitempty"`
	Status       string            `json:"status,omitempty"`
	Level        string            `json:"level,omitempty"`
	Intervention string            `json:"intervention,omitempty"`
	Sources      []SourceReference `json:"sources,omitempty"`
	Err          string            `json:"error,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}
