package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/infra/storage"
)

// HealthSource yields the current health record per endpoint.
type HealthSource interface {
	Snapshot() map[string]domain.HealthRecord
}

// KnowledgeSource yields the current knowledge entries.
type KnowledgeSource interface {
	Snapshot() []domain.KnowledgeEntry
}

// Checkpointer periodically flushes in-memory health and knowledge
// state to the repositories, and once more on shutdown. Persistence is
// best effort: a failed flush is logged and retried on the next tick.
type Checkpointer struct {
	interval  time.Duration
	health    HealthSource
	knowledge KnowledgeSource
	healthDB  storage.HealthRepository
	knowDB    storage.KnowledgeRepository
	done      chan struct{}
	log       *slog.Logger
}

// NewCheckpointer creates a new checkpoint worker.
func NewCheckpointer(
	interval time.Duration,
	health HealthSource,
	knowledge KnowledgeSource,
	healthDB storage.HealthRepository,
	knowDB storage.KnowledgeRepository,
	log *slog.Logger,
) *Checkpointer {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Checkpointer{
		interval:  interval,
		health:    health,
		knowledge: knowledge,
		healthDB:  healthDB,
		knowDB:    knowDB,
		done:      make(chan struct{}),
		log:       log,
	}
}

// Start runs the checkpoint loop until ctx is cancelled, then performs
// a final flush with a short grace window.
func (c *Checkpointer) Start(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			c.flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			c.flush(ctx)
		}
	}
}

// Wait blocks until Start has returned, which happens only after the
// final shutdown flush completed. Callers must not tear down the
// repositories before Wait returns.
func (c *Checkpointer) Wait() {
	<-c.done
}

func (c *Checkpointer) flush(ctx context.Context) {
	for _, rec := range c.health.Snapshot() {
		if err := c.healthDB.Upsert(ctx, rec); err != nil {
			c.log.Error("checkpoint health record failed", "endpoint", rec.EndpointKey, "error", err)
			return
		}
	}

	for _, e := range c.knowledge.Snapshot() {
		if err := c.knowDB.Upsert(ctx, e); err != nil {
			c.log.Error("checkpoint knowledge entry failed", "scope", e.Scope, "signature", e.Signature.String(), "error", err)
			return
		}
	}
}
