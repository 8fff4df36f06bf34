// Package batch drives a message batch end to end: it opens an overlay
// cache over the backing store, performs every message's action in
// order, and commits or discards the batch atomically.
package batch

import (
	"context"

	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"

	"github.com/concretevm/liveobject/action"
	"github.com/concretevm/liveobject/overlay"
	"github.com/concretevm/liveobject/storage"
)

// Message wraps one action to be performed against the batch's cache.
type Message struct {
	Action action.Action
}

// Processor drives message batches against a single backing store.
type Processor struct {
	backing storage.Store
}

// New returns a Processor over backing.
func New(backing storage.Store) *Processor {
	return &Processor{backing: backing}
}

// ProcessMessages constructs a fresh overlay cache, performs every
// message's action against it in order, and commits on success. On the
// first error the batch stops, the overlay is discarded uncommitted,
// and the error is returned — the batch is atomic. On success the last
// message's string result is returned.
func (p *Processor) ProcessMessages(ctx context.Context, messages []Message) (string, error) {
	batchID := uuid.New().String()
	cache := overlay.New(p.backing)

	var result string
	for i, msg := range messages {
		r, err := msg.Action.Perform(ctx, cache)
		if err != nil {
			log.Error("batch: aborting, message failed",
				"batch", batchID, "index", i, "err", err)
			return "", err
		}
		result = r
		log.Info("batch: message processed", "batch", batchID, "index", i)
	}

	if err := cache.Commit(); err != nil {
		log.Error("batch: commit failed", "batch", batchID, "err", err)
		return "", err
	}

	log.Info("batch: committed", "batch", batchID, "messages", len(messages))
	return result, nil
}
