package gateway

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/inkwell-app/inkwell/internal/autosave"
	"github.com/inkwell-app/inkwell/internal/bus"
	"github.com/inkwell-app/inkwell/internal/chat"
	"github.com/inkwell-app/inkwell/internal/config"
	"github.com/inkwell-app/inkwell/internal/index"
	"github.com/inkwell-app/inkwell/internal/llm"
	"github.com/inkwell-app/inkwell/internal/safety"
	"github.com/inkwell-app/inkwell/internal/store"
)

const backfillBatchSize = 200

// Options for creating a Gateway.
type Options struct {
	SignalChan chan os.Signal // for testing signal handling
	Writer     autosave.EntryWriter
	Streamer   chat.Streamer
}

// Gateway wires the coordination core together: the store, the model
// client, the autosave scheduler, the chat orchestrator, the embedding
// indexer, and the websocket UI bridge.
type Gateway struct {
	cfg        *config.Config
	bus        *bus.EventBus
	store      *store.Store
	llm        *llm.Client
	indexer    *index.Indexer
	scheduler  *autosave.Scheduler
	closeGuard *autosave.CloseGuard
	msgLog     *chat.MessageLog
	orch       *chat.Orchestrator
	cron       *rcron.Cron
	ui         *uiServer
	signalChan chan os.Signal
}

// New creates a Gateway with default options.
func New(cfg *config.Config) (*Gateway, error) {
	return NewWithOptions(cfg, Options{})
}

// NewWithOptions creates a Gateway with injectable collaborators for tests.
func NewWithOptions(cfg *config.Config, opts Options) (*Gateway, error) {
	g := &Gateway{cfg: cfg}

	g.bus = bus.New(config.DefaultBufSize)

	st, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	g.store = st

	g.llm = llm.NewClient(cfg.Provider, g.bus)

	var embedder index.Embedder
	if cfg.Maintenance.Embedding {
		embedder = index.NewEmbedder(cfg.Provider)
		g.indexer = index.NewIndexer(st, embedder)
	}

	writer := opts.Writer
	if writer == nil {
		writer = &indexingWriter{store: st, indexer: g.indexer}
	}
	debounce := time.Duration(cfg.Autosave.DebounceMs) * time.Millisecond
	g.scheduler = autosave.NewScheduler(writer, g.bus, debounce)
	g.closeGuard = autosave.NewCloseGuard(g.scheduler)

	g.msgLog = chat.NewMessageLog(st)
	var streamer chat.Streamer = g.llm
	if opts.Streamer != nil {
		streamer = opts.Streamer
	}
	g.orch = chat.NewOrchestrator(g.bus, g.msgLog, st, streamer, safety.NewFilter(), embedder, cfg)

	g.cron = rcron.New(rcron.WithSeconds())
	g.ui = newUIServer(g)
	g.signalChan = opts.SignalChan

	return g, nil
}

// indexingWriter persists entries and regenerates their embedding after
// each successful write, fire-and-forget.
type indexingWriter struct {
	store   *store.Store
	indexer *index.Indexer
}

func (w *indexingWriter) CreateEntry(content, title, kind string) (*store.Entry, error) {
	entry, err := w.store.CreateEntry(content, title, kind)
	if err != nil {
		return nil, err
	}
	if w.indexer != nil {
		go w.indexer.Reindex(entry.ID)
	}
	return entry, nil
}

func (w *indexingWriter) UpdateEntry(id, content, title, kind string) (*store.Entry, error) {
	entry, err := w.store.UpdateEntry(id, content, title, kind)
	if err != nil {
		return nil, err
	}
	if w.indexer != nil {
		go w.indexer.Reindex(entry.ID)
	}
	return entry, nil
}

// Run starts the gateway and blocks until a shutdown signal arrives.
func (g *Gateway) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go g.bus.DispatchNotifications(ctx)
	go g.orch.Run(ctx)

	if err := g.ui.Start(); err != nil {
		return fmt.Errorf("start ui server: %w", err)
	}

	g.scheduleMaintenance(ctx)
	g.cron.Start()

	status := g.llm.CheckStatus(ctx)
	if !status.Running {
		log.Printf("[gateway] ollama not reachable: %s", status.Error)
	} else if !status.ModelAvailable {
		log.Printf("[gateway] model %s not available: %s", status.ModelName, status.Error)
	}

	log.Printf("[gateway] running on %s:%d", g.cfg.Gateway.Host, g.cfg.Gateway.Port)

	sigCh := g.signalChan
	if sigCh == nil {
		sigCh = make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	}
	<-sigCh

	log.Printf("[gateway] shutting down...")
	g.closeGuard.OnCloseRequested()
	return g.Shutdown()
}

func (g *Gateway) scheduleMaintenance(ctx context.Context) {
	if g.indexer != nil && g.cfg.Maintenance.ReindexCron != "" {
		_, err := g.cron.AddFunc(g.cfg.Maintenance.ReindexCron, func() {
			n := g.indexer.Backfill(ctx, backfillBatchSize)
			if n > 0 {
				log.Printf("[gateway] nightly reindex: %d entries", n)
			}
		})
		if err != nil {
			log.Printf("[gateway] schedule reindex warning: %v", err)
		}
	}
	if g.cfg.Maintenance.VacuumCron != "" {
		_, err := g.cron.AddFunc(g.cfg.Maintenance.VacuumCron, func() {
			if err := g.store.Vacuum(); err != nil {
				log.Printf("[gateway] vacuum warning: %v", err)
			}
		})
		if err != nil {
			log.Printf("[gateway] schedule vacuum warning: %v", err)
		}
	}
}

// Shutdown stops background work and closes the store.
func (g *Gateway) Shutdown() error {
	g.cron.Stop()
	if g.ui != nil {
		_ = g.ui.Stop()
	}
	if g.store != nil {
		if err := g.store.Close(); err != nil {
			log.Printf("[gateway] close store warning: %v", err)
		}
	}
	log.Printf("[gateway] shutdown complete")
	return nil
}
