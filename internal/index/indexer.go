package index

import (
	"context"
	"log"
	"time"

	"github.com/inkwell-app/inkwell/internal/store"
)

// Store is the persistence surface the indexer reads and writes through.
// *store.Store satisfies it; tests use fakes.
type Store interface {
	GetEntry(id string) (*store.Entry, error)
	SaveEmbedding(entryID string, vector []float32, modelVersion string) error
	MissingEmbeddings(modelVersion string, limit int) ([]string, error)
}

// Indexer regenerates entry embeddings: immediately after a save
// (fire-and-forget) and in bulk from the nightly backfill job.
type Indexer struct {
	store    Store
	embedder Embedder
	timeout  time.Duration
}

func NewIndexer(st Store, embedder Embedder) *Indexer {
	return &Indexer{
		store:    st,
		embedder: embedder,
		timeout:  30 * time.Second,
	}
}

// Reindex embeds one entry and stores the result. Failures are logged, not
// returned: embedding regeneration is best-effort and never blocks a save.
func (ix *Indexer) Reindex(entryID string) {
	ctx, cancel := context.WithTimeout(context.Background(), ix.timeout)
	defer cancel()

	entry, err := ix.store.GetEntry(entryID)
	if err != nil {
		log.Printf("[index] reindex %s: load entry: %v", entryID, err)
		return
	}

	vector, err := ix.embedder.Embed(ctx, entry.Content)
	if err != nil {
		log.Printf("[index] reindex %s: embed: %v", entryID, err)
		return
	}
	if err := ix.store.SaveEmbedding(entryID, vector, ix.embedder.ModelVersion()); err != nil {
		log.Printf("[index] reindex %s: save: %v", entryID, err)
		return
	}
	log.Printf("[index] reindexed entry %s (dim=%d)", entryID, len(vector))
}

// Backfill embeds entries that lack an embedding for the current model
// version. Returns how many entries were processed.
func (ix *Indexer) Backfill(ctx context.Context, limit int) int {
	ids, err := ix.store.MissingEmbeddings(ix.embedder.ModelVersion(), limit)
	if err != nil {
		log.Printf("[index] backfill: list: %v", err)
		return 0
	}

	processed := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return processed
		default:
		}
		ix.Reindex(id)
		processed++
	}
	if processed > 0 {
		log.Printf("[index] backfill complete: %d entries", processed)
	}
	return processed
}
