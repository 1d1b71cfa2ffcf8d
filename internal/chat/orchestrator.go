package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/llm"
	"github.com/inkwell-app/inkwell/internal/safety"
	"github.com/inkwell-app/inkwell/internal/store"
)

var (
	// ErrStreamBusy rejects a send while another stream is active. The
	// event transport carries no request id, so a second concurrent turn
	// would corrupt chunk attribution.
	ErrStreamBusy = errors.New("a chat stream is already active")

	// ErrCrisisBlocked refuses a message outright on a crisis
	// classification. Not sent, not persisted, not logged to transcript.
	ErrCrisisBlocked = errors.New("message blocked by safety filter")
)

// Classifier is the pre-flight safety check run on every outgoing message,
// plus the response augmentation applied when that message was distressed.
type Classifier interface {
	Classify(text string) safety.Result
	AugmentResponse(response string, r safety.Result) string
}

// Streamer initiates a model stream. Content arrives out of band on the
// event bus, not as this call's return value.
type Streamer interface {
	StartStream(ctx context.Context, messages []llm.Message, sources []bus.SourceReference) error
}

// Embedder produces the query vector for retrieval. May be nil, in which
// case retrieval falls back to full-text search only.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TurnStore is the persistence surface the orchestrator reads and writes.
// *store.Store satisfies it.
type TurnStore interface {
	AppendChatTurn(scope, role, content, metadata string) (*store.ChatTurn, error)
	RecentChatHistory(scope string, limit int) ([]store.ChatTurn, error)
	GetEntry(id string) (*store.Entry, error)
	HybridSearch(query string, queryEmbedding []float32, limit int, includeArchived bool) ([]store.HybridResult, error)
	SearchEntries(query string, limit int, includeArchived bool) ([]store.Entry, error)
}

const systemPrompt = `You are Inkwell, a private journaling companion. You help users reflect on their thoughts and feelings through gentle, thoughtful conversation.

GUIDELINES:
- Acknowledge feelings before responding
- Ask guiding questions instead of giving advice
- Reference past entries naturally when relevant
- Keep responses concise and warm (2-4 sentences typically)
- Never be judgmental or dismissive
- Respect user privacy - everything shared stays private
- If the user seems distressed, respond with empathy first

You are NOT a therapist or mental health professional. For serious concerns, gently suggest speaking with a professional.`

const snippetMaxLen = 200

// Orchestrator drives one conversation turn end-to-end and attributes the
// unscoped chunk/done/error events on the bus to the single active stream.
type Orchestrator struct {
	bus          *bus.EventBus
	log          *MessageLog
	store        TurnStore
	llm          Streamer
	safety       Classifier
	embedder     Embedder
	safetyOn     bool
	historyLimit int
	contextLimit int

	mu              sync.Mutex
	streaming       bool
	activeScope     string
	activeMessageID string
	activeSafety    safety.Result
	warningActive   bool
	warningLevel    safety.Level
	warningText     string
}

func NewOrchestrator(b *bus.EventBus, msgLog *MessageLog, st TurnStore, streamer Streamer, classifier Classifier, emb Embedder, cfg *config.Config) *Orchestrator {
	historyLimit := cfg.Chat.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = config.DefaultHistoryLimit
	}
	contextLimit := cfg.Chat.ContextLimit
	if contextLimit <= 0 {
		contextLimit = config.DefaultContextLimit
	}
	return &Orchestrator{
		bus:          b,
		log:          msgLog,
		store:        st,
		llm:          streamer,
		safety:       classifier,
		embedder:     emb,
		safetyOn:     cfg.Safety.Enabled,
		historyLimit: historyLimit,
		contextLimit: contextLimit,
	}
}

// SendMessage runs one turn: safety gate, persist the user turn, insert the
// transcript messages, and start the model stream. Content arrives later via
// the bus and is applied by Run.
func (o *Orchestrator) SendMessage(ctx context.Context, scope, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("send message: empty text")
	}

	turnSafety := safety.Result{Safe: true, Level: safety.LevelSafe}
	if o.safetyOn {
		turnSafety = o.safety.Classify(text)
		switch turnSafety.Level {
		case safety.LevelCrisis:
			o.setWarning(turnSafety)
			o.notifySafety(scope, turnSafety)
			return ErrCrisisBlocked
		case safety.LevelDistress:
			o.setWarning(turnSafety)
			o.notifySafety(scope, turnSafety)
		}
	}

	o.mu.Lock()
	if o.streaming {
		o.mu.Unlock()
		return ErrStreamBusy
	}
	o.streaming = true
	o.mu.Unlock()

	// Persisting the user turn is best-effort. The conversation must not
	// stall on a non-critical write.
	if scope != store.GlobalScope {
		if _, err := o.store.AppendChatTurn(scope, RoleUser, text, ""); err != nil {
			log.Printf("[chat] persist user turn (scope=%s): %v", scope, err)
		}
	}

	o.log.Append(scope, RoleUser, text, false)
	placeholderID := o.log.Append(scope, RoleAssistant, "", true)

	o.mu.Lock()
	o.activeScope = scope
	o.activeMessageID = placeholderID
	o.activeSafety = turnSafety
	o.mu.Unlock()

	messages, sources := o.buildPrompt(ctx, scope, text)
	if err := o.llm.StartStream(ctx, messages, sources); err != nil {
		o.log.Remove(scope, placeholderID)
		o.clearActive()
		o.bus.Notify(bus.Notification{Kind: bus.NoteChatError, Scope: scope, Err: err.Error()})
		return fmt.Errorf("start stream: %w", err)
	}
	return nil
}

// Run applies stream events until the context is cancelled. Subscribed once
// for the orchestrator's lifetime, not per turn.
func (o *Orchestrator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.bus.Stream:
			o.handleStreamEvent(ev)
		}
	}
}

func (o *Orchestrator) handleStreamEvent(ev bus.StreamEvent) {
	o.mu.Lock()
	if !o.streaming {
		// Late event after an error or shutdown. Drop it.
		o.mu.Unlock()
		return
	}
	scope, id := o.activeScope, o.activeMessageID
	turnSafety := o.activeSafety
	o.mu.Unlock()

	switch ev.Kind {
	case bus.StreamChunk:
		o.log.AppendChunk(scope, id, ev.Text)
		o.bus.Notify(bus.Notification{Kind: bus.NoteChatChunk, Scope: scope, MessageID: id, Text: ev.Text})

	case bus.StreamDone:
		// Augmentation keys off the turn that started this stream, not the
		// warning banner, which persists across turns until dismissed.
		if content, ok := o.log.Content(scope, id); ok {
			if augmented := o.safety.AugmentResponse(content, turnSafety); augmented != content {
				o.log.AppendChunk(scope, id, strings.TrimPrefix(augmented, content))
			}
		}
		o.log.Finalize(scope, id, ev.Sources)
		o.clearActive()
		o.persistAssistantTurn(scope, id, ev.Sources)
		o.bus.Notify(bus.Notification{Kind: bus.NoteChatDone, Scope: scope, MessageID: id, Sources: ev.Sources})

	case bus.StreamError:
		o.log.Remove(scope, id)
		o.clearActive()
		o.bus.Notify(bus.Notification{Kind: bus.NoteChatError, Scope: scope, MessageID: id, Err: ev.Err})
	}
}

func (o *Orchestrator) persistAssistantTurn(scope, id string, sources []bus.SourceReference) {
	if scope == store.GlobalScope {
		return
	}
	content, ok := o.log.Content(scope, id)
	if !ok {
		return
	}
	metadata := ""
	if len(sources) > 0 {
		raw, err := json.Marshal(map[string][]bus.SourceReference{"sources": sources})
		if err == nil {
			metadata = string(raw)
		}
	}
	if _, err := o.store.AppendChatTurn(scope, RoleAssistant, content, metadata); err != nil {
		log.Printf("[chat] persist assistant turn (scope=%s): %v", scope, err)
	}
}

// buildPrompt assembles system persona, retrieved context, recent history,
// and the user message. Returns the prompt and the citations to echo back
// on completion.
func (o *Orchestrator) buildPrompt(ctx context.Context, scope, text string) ([]llm.Message, []bus.SourceReference) {
	results := o.ragContext(ctx, scope, text)

	system := systemPrompt
	sources := make([]bus.SourceReference, 0, len(results))
	if len(results) > 0 {
		var b strings.Builder
		b.WriteString(system)
		b.WriteString("\n\nRELEVANT PAST ENTRIES:\n")
		for _, r := range results {
			snippet := truncateSnippet(r.Entry.Content, snippetMaxLen)
			date := r.Entry.CreatedAt.Format("2006-01-02")
			fmt.Fprintf(&b, "[%s]: %s\n", date, snippet)
			sources = append(sources, bus.SourceReference{
				EntryID:        r.Entry.ID,
				Date:           date,
				Snippet:        snippet,
				RelevanceScore: r.Score,
			})
		}
		system = b.String()
	}

	messages := []llm.Message{{Role: "system", Content: system}}

	history, err := o.store.RecentChatHistory(scope, o.historyLimit)
	if err != nil {
		log.Printf("[chat] load history (scope=%s): %v", scope, err)
	}
	for _, turn := range history {
		messages = append(messages, llm.Message{Role: turn.Role, Content: turn.Content})
	}

	messages = append(messages, llm.Message{Role: RoleUser, Content: text})
	return messages, sources
}

// ragContext retrieves entries related to the query. The current entry is
// always pinned first; hybrid search fills the rest, falling back to
// full-text only when no query embedding is available.
func (o *Orchestrator) ragContext(ctx context.Context, scope, query string) []store.HybridResult {
	var results []store.HybridResult
	if scope != store.GlobalScope {
		if entry, err := o.store.GetEntry(scope); err == nil {
			results = append(results, store.HybridResult{Entry: *entry, Score: 1.0, FTSRank: 1, VecRank: 1})
		}
	}

	var found []store.HybridResult
	if o.embedder != nil {
		if vec, err := o.embedder.Embed(ctx, query); err == nil {
			if hits, err := o.store.HybridSearch(query, vec, o.contextLimit, false); err == nil {
				found = hits
			} else {
				log.Printf("[chat] hybrid search: %v", err)
			}
		}
	}
	if found == nil {
		entries, err := o.store.SearchEntries(query, o.contextLimit, false)
		if err != nil {
			log.Printf("[chat] fts search: %v", err)
		}
		for _, e := range entries {
			found = append(found, store.HybridResult{Entry: e})
		}
	}

	for _, r := range found {
		if r.Entry.ID == scope {
			continue
		}
		results = append(results, r)
	}
	if len(results) > o.contextLimit {
		results = results[:o.contextLimit]
	}
	return results
}

func truncateSnippet(content string, maxLen int) string {
	if len(content) <= maxLen {
		return content
	}
	truncated := content[:maxLen]
	if i := strings.LastIndexByte(truncated, ' '); i > 0 {
		truncated = truncated[:i]
	}
	return truncated + "..."
}

// IsStreaming reports whether a stream is active for this scope. A stream
// running for another entry does not block this one's input visually, even
// though only one stream may run system-wide.
func (o *Orchestrator) IsStreaming(scope string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaming && o.activeScope == scope
}

// Busy reports whether any stream is active system-wide.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.streaming
}

// Warning returns the current safety warning state. It persists until
// explicitly dismissed.
func (o *Orchestrator) Warning() (level safety.Level, text string, active bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.warningLevel, o.warningText, o.warningActive
}

// DismissWarning clears the warning state entirely.
func (o *Orchestrator) DismissWarning() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warningActive = false
	o.warningLevel = safety.LevelSafe
	o.warningText = ""
}

func (o *Orchestrator) setWarning(res safety.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.warningActive = true
	o.warningLevel = res.Level
	o.warningText = res.Intervention
}

func (o *Orchestrator) notifySafety(scope string, res safety.Result) {
	o.bus.Notify(bus.Notification{
		Kind:         bus.NoteSafety,
		Scope:        scope,
		Level:        string(res.Level),
		Intervention: res.Intervention,
	})
}

func (o *Orchestrator) clearActive() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.streaming = false
	o.activeScope = ""
	o.activeMessageID = ""
	o.activeSafety = safety.Result{Safe: true, Level: safety.LevelSafe}
}
