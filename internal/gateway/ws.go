package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"

	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/chat"
)

const wsWriteTimeout = 5 * time.Second

// uiCommand is one client request over the websocket.
type uiCommand struct {
	Type    string `json:"type"`
	EntryID string `json:"entryId,omitempty"`
	Scope   string `json:"scope,omitempty"`
	Content string `json:"content,omitempty"`
	Title   string `json:"title,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Text    string `json:"text,omitempty"`
}

// uiReply is a direct response to a client command. Asynchronous progress
// (save status, chunks, safety banners) flows through bus notifications
// broadcast to every client instead.
type uiReply struct {
	Type     string             `json:"type"`
	Scope    string             `json:"scope,omitempty"`
	EntryID  string             `json:"entryId,omitempty"`
	Title    string             `json:"title,omitempty"`
	Draft    string             `json:"draft,omitempty"`
	Messages []chat.ChatMessage `json:"messages,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type wsClient struct {
	conn *websocket.Conn
	id   string
}

func (c *wsClient) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
	defer cancel()
	_ = c.conn.Write(ctx, websocket.MessageText, data)
}

// uiServer bridges the websocket UI to the coordination core.
type uiServer struct {
	gw      *Gateway
	server  *http.Server
	clients sync.Map
	nextID  atomic.Int64
}

func newUIServer(g *Gateway) *uiServer {
	return &uiServer{gw: g}
}

func (s *uiServer) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.gw.cfg.Gateway.Host, s.gw.cfg.Gateway.Port),
		Handler: mux,
	}

	s.gw.bus.Subscribe("webui", func(n bus.Notification) {
		s.broadcast(n)
	})

	go func() {
		log.Printf("[webui] listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[webui] server error: %v", err)
		}
	}()
	return nil
}

func (s *uiServer) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[webui] websocket accept error: %v", err)
		return
	}

	clientID := fmt.Sprintf("webui-%d", s.nextID.Add(1))
	client := &wsClient{conn: conn, id: clientID}
	s.clients.Store(clientID, client)
	log.Printf("[webui] client connected: %s", clientID)

	defer func() {
		s.clients.Delete(clientID)
		conn.CloseNow()
		log.Printf("[webui] client disconnected: %s", clientID)
	}()

	for {
		_, data, err := conn.Read(r.Context())
		if err != nil {
			return
		}

		var cmd uiCommand
		if err := json.Unmarshal(data, &cmd); err != nil {
			continue
		}
		s.handleCommand(r.Context(), client, cmd)
	}
}

func (s *uiServer) handleCommand(ctx context.Context, client *wsClient, cmd uiCommand) {
	g := s.gw
	switch cmd.Type {
	case "edit":
		g.scheduler.ScheduleWrite(cmd.Content, cmd.Title, cmd.Kind, cmd.EntryID)

	case "flush":
		go func() {
			if _, err := g.scheduler.FlushNow(); err != nil {
				log.Printf("[webui] flush: %v", err)
			}
		}()

	case "switchEntry":
		// The outgoing entry's last edit must be durable before the
		// editor re-seeds from the incoming one.
		if _, err := g.scheduler.FlushNow(); err != nil {
			log.Printf("[webui] flush before switch: %v", err)
		}
		g.scheduler.Rebind()
		s.replyTranscript(client, cmd.EntryID)

	case "history":
		s.replyTranscript(client, cmd.Scope)

	case "sendMessage":
		// Deliberately not tied to the connection context: a generation
		// keeps running and completes into the log even if the client
		// that requested it disconnects.
		go func() {
			err := g.orch.SendMessage(context.Background(), cmd.Scope, cmd.Text)
			switch {
			case err == nil, errors.Is(err, chat.ErrCrisisBlocked):
				// Crisis refusal already surfaced as a safety notification.
			case errors.Is(err, chat.ErrStreamBusy):
				client.send(uiReply{Type: "error", Scope: cmd.Scope, Error: err.Error()})
			default:
				log.Printf("[webui] send message: %v", err)
			}
		}()

	case "draft":
		g.msgLog.SetDraft(cmd.Scope, cmd.Text)

	case "dismissWarning":
		g.orch.DismissWarning()
		s.broadcast(bus.Notification{Kind: bus.NoteSafety, Level: "safe"})

	case "generateTitle":
		go func() {
			entry, err := g.store.GetEntry(cmd.EntryID)
			if err != nil {
				client.send(uiReply{Type: "title", EntryID: cmd.EntryID, Error: err.Error()})
				return
			}
			title, err := g.llm.GenerateTitle(ctx, entry.Content)
			if err != nil {
				client.send(uiReply{Type: "title", EntryID: cmd.EntryID, Error: err.Error()})
				return
			}
			client.send(uiReply{Type: "title", EntryID: cmd.EntryID, Title: title})
		}()

	default:
		log.Printf("[webui] unknown command %q from %s", cmd.Type, client.id)
	}
}

func (s *uiServer) replyTranscript(client *wsClient, scope string) {
	if err := s.gw.msgLog.Load(scope); err != nil {
		client.send(uiReply{Type: "history", Scope: scope, Error: err.Error()})
		return
	}
	client.send(uiReply{
		Type:     "history",
		Scope:    scope,
		Messages: s.gw.msgLog.Messages(scope),
		Draft:    s.gw.msgLog.Draft(scope),
	})
}

func (s *uiServer) broadcast(v any) {
	s.clients.Range(func(_, value any) bool {
		value.(*wsClient).send(v)
		return true
	})
}

func (s *uiServer) Stop() error {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("[webui] shutdown error: %v", err)
		}
	}
	s.clients.Range(func(_, value any) bool {
		value.(*wsClient).conn.CloseNow()
		return true
	})
	log.Printf("[webui] stopped")
	return nil
}
