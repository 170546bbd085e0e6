// Package healing selects and executes remediation strategies for
// classified failures, learning from every attempt through the
// knowledge store.
package healing

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/infra/storage"
	"github.com/feedguard/feedguard/internal/knowledge"
	"github.com/feedguard/feedguard/internal/metrics"
)

// Scoring blend between static priority and learned effectiveness.
const (
	priorityWeight   = 0.4
	confidenceWeight = 0.6
)

// StatusReader exposes the current health status of an endpoint, used
// as the status bucket of pattern signatures.
type StatusReader interface {
	Status(endpointKey string) domain.HealthStatus
}

// Escalator receives endpoints whose healing exhausted every strategy.
type Escalator interface {
	HandleExhausted(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent)
}

// Config tunes the engine.
type Config struct {
	MaxAttempts    int           // attempts per error event, default 3
	AttemptTimeout time.Duration // per-attempt deadline, default 10s
}

func (c *Config) defaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
}

// Engine runs the healing loop for one error event at a time per
// endpoint. Attempts are strictly sequential; healing for different
// endpoints proceeds concurrently in separate calls.
type Engine struct {
	cfg       Config
	registry  *Registry
	store     *knowledge.Store
	events    storage.ErrorEventRepository
	status    StatusReader
	escalator Escalator
	log       *slog.Logger
}

// NewEngine wires the healing engine.
func NewEngine(cfg Config, registry *Registry, store *knowledge.Store, events storage.ErrorEventRepository, status StatusReader, escalator Escalator, log *slog.Logger) *Engine {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		registry:  registry,
		store:     store,
		events:    events,
		status:    status,
		escalator: escalator,
		log:       log,
	}
}

// candidate pairs a strategy with its selection score.
type candidate struct {
	strategy Strategy
	score    float64
}

// Rank returns the ordered candidate list for an event given the current
// knowledge snapshot. Deterministic: same event + same snapshot yields
// the same order every run. Exposed for the status surface and tests.
func (e *Engine) Rank(ev *domain.ErrorEvent) []Strategy {
	bucket := e.status.Status(ev.EndpointKey)

	// Ineligible strategies are dropped here, before the attempt budget
	// is sliced: a malformed or stale payload must never be papered over
	// with cached data, and a skipped strategy must not cost an attempt.
	var matched []Strategy
	for _, s := range e.registry.Match(ev.Kind, ev.Source) {
		if cs, ok := s.(CacheServing); ok && cs.ServesCache() && !ev.Kind.CacheHealable() {
			continue
		}
		matched = append(matched, s)
	}
	if len(matched) == 0 {
		return nil
	}

	maxPriority := 0
	for _, s := range matched {
		if p := s.Info().Priority; p > maxPriority {
			maxPriority = p
		}
	}

	cands := make([]candidate, 0, len(matched))
	for _, s := range matched {
		info := s.Info()
		priorityScore := 0.0
		if maxPriority > 0 {
			priorityScore = float64(info.Priority) / float64(maxPriority)
		}
		sig := domain.PatternSignature{StrategyID: info.ID, Kind: ev.Kind, StatusBucket: bucket}
		learned := e.store.Effective(sig, ev.Source)
		cands = append(cands, candidate{
			strategy: s,
			score:    priorityWeight*priorityScore + confidenceWeight*learned,
		})
	}

	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].strategy.Info().ID < cands[j].strategy.Info().ID
	})

	out := make([]Strategy, len(cands))
	for i, c := range cands {
		out[i] = c.strategy
	}
	return out
}

// Heal attempts strategies in ranked order until one succeeds or the
// attempt budget is spent. On success the event is marked resolved with
// the winning strategy; on exhaustion it stays unresolved and the
// escalator is notified.
func (e *Engine) Heal(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error {
	bucket := e.status.Status(ev.EndpointKey)

	// Record the pattern occurrence so the global tier learns the
	// failure shape even if no strategy ever succeeds.
	e.store.Observe(domain.PatternSignature{Kind: ev.Kind, StatusBucket: bucket})

	ranked := e.Rank(ev)
	if len(ranked) == 0 {
		e.log.Warn("no applicable healing strategy", "endpoint", ev.EndpointKey, "kind", ev.Kind)
		e.escalator.HandleExhausted(ctx, ep, ev)
		return fmt.Errorf("no applicable strategy for kind %s", ev.Kind)
	}

	maxAttempts := e.cfg.MaxAttempts
	if ev.Kind.SingleAttempt() {
		// Retrying with the same bad credential or exhausted quota
		// wastes attempts.
		maxAttempts = 1
	}
	if maxAttempts > len(ranked) {
		maxAttempts = len(ranked)
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		strat := ranked[attempt]
		info := strat.Info()

		sig := domain.PatternSignature{StrategyID: info.ID, Kind: ev.Kind, StatusBucket: bucket}

		attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.AttemptTimeout)
		start := time.Now()
		err := strat.Execute(attemptCtx, ep, ev)
		elapsed := time.Since(start)
		cancel()

		ev.RetryCount = attempt + 1
		if err == nil {
			ev.Resolved = true
			ev.StrategyUsed = info.ID
			e.store.RecordOutcome(sig, ev.Source, true, elapsed)
			metrics.HealingAttemptsTotal.WithLabelValues(info.ID, "success").Inc()

			if repoErr := e.events.MarkResolved(ctx, ev.ID, info.ID, ev.RetryCount); repoErr != nil {
				e.log.Warn("failed to persist resolution", "event", ev.ID, "error", repoErr)
			}
			e.log.Info("healed", "endpoint", ev.EndpointKey, "kind", ev.Kind, "strategy", info.ID, "attempt", attempt+1)
			return nil
		}

		e.store.RecordOutcome(sig, ev.Source, false, elapsed)
		metrics.HealingAttemptsTotal.WithLabelValues(info.ID, "failure").Inc()
		e.log.Debug("healing attempt failed", "endpoint", ev.EndpointKey, "strategy", info.ID, "error", err)

		if repoErr := e.events.SetRetryCount(ctx, ev.ID, ev.RetryCount); repoErr != nil {
			e.log.Warn("failed to persist retry count", "event", ev.ID, "error", repoErr)
		}
	}

	// Exhaustion is not a crash: the event stays unresolved and the
	// alert manager owns escalation from here.
	e.escalator.HandleExhausted(ctx, ep, ev)
	return fmt.Errorf("healing exhausted after %d attempts for %s", maxAttempts, ev.EndpointKey)
}
