// Package knowledge learns strategy effectiveness at two granularities:
// a global tier aggregated across all sources and a per-source tier
// created lazily on first source-specific observation. Ranking uses a
// shrinkage blend so small source samples defer to the global prior.
package knowledge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// DefaultPriorStrength is the shrinkage constant k: the number of
// source-specific samples at which the estimate weighs the source tier
// and the global prior equally.
const DefaultPriorStrength = 20

// neutralConfidence seeds entries that have seen a pattern but no
// strategy outcome yet.
const neutralConfidence = 0.5

type entryKey struct {
	scope     domain.KnowledgeScope
	source    string // empty for global
	signature domain.PatternSignature
}

// Store holds all knowledge entries behind a single lock, so concurrent
// healing completions never lose increments.
type Store struct {
	mu            sync.Mutex
	entries       map[entryKey]*domain.KnowledgeEntry
	priorStrength float64
	log           *slog.Logger
}

// NewStore creates an empty store. priorStrength <= 0 selects the default.
func NewStore(priorStrength float64, log *slog.Logger) *Store {
	if priorStrength <= 0 {
		priorStrength = DefaultPriorStrength
	}
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		entries:       make(map[entryKey]*domain.KnowledgeEntry),
		priorStrength: priorStrength,
		log:           log,
	}
}

// Observe records that a pattern occurred, creating the Global entry on
// first sight with neutral confidence. The Source entry is not created
// here; it appears lazily on the first source-specific outcome.
func (s *Store) Observe(sig domain.PatternSignature) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.ensure(domain.ScopeGlobal, "", sig)
	entry.SampleCount++
	entry.LastUpdated = time.Now()
}

// RecordOutcome folds one strategy attempt result into both tiers.
// Counters are updated immediately; the per-source confidence is
// recomputed on write since its sample is small, while the global
// confidence is recomputed by the slow refresh cadence.
func (s *Store) RecordOutcome(sig domain.PatternSignature, source string, success bool, fixLatency time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for _, e := range []*domain.KnowledgeEntry{
		s.ensure(domain.ScopeGlobal, "", sig),
		s.ensure(domain.ScopeSource, source, sig),
	} {
		if success {
			e.SuccessCount++
			e.AvgFixLatency = rollLatency(e.AvgFixLatency, fixLatency, e.SuccessCount)
		} else {
			e.FailureCount++
		}
		e.SampleCount++
		e.LastUpdated = now
	}

	// Source tier refreshes immediately.
	src := s.entries[entryKey{domain.ScopeSource, source, sig}]
	src.Confidence = clamp01(rawRate(src))
}

// Effective returns the shrinkage-weighted effectiveness estimate used
// for strategy ranking:
//
//	effective = (n/(n+k))*inner_rate + (k/(n+k))*outer_rate
//
// With few source samples the estimate defers to the global prior and
// converges to the source rate as samples accumulate. Always in [0,1].
func (s *Store) Effective(sig domain.PatternSignature, source string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	outer := neutralConfidence
	if g, ok := s.entries[entryKey{domain.ScopeGlobal, "", sig}]; ok {
		outer = g.Confidence
	}

	inner, ok := s.entries[entryKey{domain.ScopeSource, source, sig}]
	if !ok {
		return clamp01(outer)
	}

	n := float64(inner.SuccessCount + inner.FailureCount)
	k := s.priorStrength
	effective := (n/(n+k))*rawRate(inner) + (k/(n+k))*outer
	return clamp01(effective)
}

// RefreshGlobal recomputes every global confidence from the full
// counters. Called on the slow cadence and before checkpointing.
func (s *Store) RefreshGlobal() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, e := range s.entries {
		if key.scope != domain.ScopeGlobal {
			continue
		}
		if e.SuccessCount+e.FailureCount == 0 {
			continue // no strategy outcomes yet, keep neutral seed
		}
		e.Confidence = clamp01(rawRate(e))
		e.LastUpdated = now
	}
}

// Snapshot returns copies of every entry for checkpointing.
func (s *Store) Snapshot() []domain.KnowledgeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.KnowledgeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, *e)
	}
	return out
}

// Restore seeds the store from persisted entries at startup.
func (s *Store) Restore(entries []domain.KnowledgeEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		copied := e
		copied.Confidence = clamp01(copied.Confidence)
		s.entries[entryKey{e.Scope, e.Source, e.Signature}] = &copied
	}
	s.log.Info("knowledge restored", "entries", len(entries))
}

// StrategyStats aggregates learned counters for one strategy across all
// global entries, for the status surface.
func (s *Store) StrategyStats(strategyID string) domain.StrategyStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := domain.StrategyStats{StrategyID: strategyID}
	var latencySum time.Duration
	var latencyN int64
	for key, e := range s.entries {
		if key.scope != domain.ScopeGlobal || key.signature.StrategyID != strategyID {
			continue
		}
		stats.SuccessCount += e.SuccessCount
		stats.FailureCount += e.FailureCount
		if e.AvgFixLatency > 0 {
			latencySum += e.AvgFixLatency
			latencyN++
		}
	}
	if latencyN > 0 {
		stats.AvgFixLatency = latencySum / time.Duration(latencyN)
	}
	return stats
}

// RunRefresher recomputes global confidences on the given cadence until
// ctx is cancelled.
func (s *Store) RunRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RefreshGlobal()
			s.log.Debug("global knowledge refreshed")
		}
	}
}

// ensure must be called with the lock held.
func (s *Store) ensure(scope domain.KnowledgeScope, source string, sig domain.PatternSignature) *domain.KnowledgeEntry {
	key := entryKey{scope, source, sig}
	if e, ok := s.entries[key]; ok {
		return e
	}
	e := &domain.KnowledgeEntry{
		Scope:       scope,
		Source:      source,
		Signature:   sig,
		Confidence:  neutralConfidence,
		LastUpdated: time.Now(),
	}
	s.entries[key] = e
	return e
}

func rawRate(e *domain.KnowledgeEntry) float64 {
	total := e.SuccessCount + e.FailureCount
	if total == 0 {
		return neutralConfidence
	}
	return float64(e.SuccessCount) / float64(total)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func rollLatency(avg, next time.Duration, n int64) time.Duration {
	if n <= 1 {
		return next
	}
	return avg + (next-avg)/time.Duration(n)
}
