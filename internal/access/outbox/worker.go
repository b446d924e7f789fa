// Package outbox publishes recorded accesses to Kafka. The access store
// writes an outbox row in the same transaction as the access itself; this
// worker drains unpublished rows so downstream consumers (dashboards,
// compliance tooling) see every recorded access at least once.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"overseer/internal/access/store"
)

// Store is the outbox persistence contract.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]store.OutboxEntry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher delivers one outbox entry to the broker.
type Publisher interface {
	Publish(ctx context.Context, entry store.OutboxEntry) error
}

// Worker polls the outbox and publishes pending entries in batches.
type Worker struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

func NewWorker(store Store, publisher Publisher, interval time.Duration, batchSize int, logger *slog.Logger) *Worker {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Worker{
		store:     store,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Run polls until ctx is cancelled. Publish failures are logged and left in
// the outbox for the next tick; delivery is at-least-once.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.Drain(ctx); err != nil {
				w.logger.Error("outbox drain failed", "error", err)
			}
		}
	}
}

// Drain publishes one batch of pending entries.
func (w *Worker) Drain(ctx context.Context) error {
	entries, err := w.store.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(entries))
	for _, entry := range entries {
		if err := w.publisher.Publish(ctx, entry); err != nil {
			// Stop at the first failure to preserve per-access ordering.
			w.logger.Warn("outbox publish failed",
				"entry_id", entry.ID.String(),
				"error", err,
			)
			break
		}
		published = append(published, entry.ID)
	}
	if len(published) == 0 {
		return nil
	}
	return w.store.MarkPublished(ctx, published)
}
