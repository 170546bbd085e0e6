package knowledge

import (
	"math"
	"testing"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

func sig(strategyID string) domain.PatternSignature {
	return domain.PatternSignature{
		StrategyID:   strategyID,
		Kind:         domain.KindRateLimited,
		StatusBucket: domain.StatusDegraded,
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestObserve_FirstOccurrence(t *testing.T) {
	s := NewStore(0, nil)
	s.Observe(sig(""))

	entries := s.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Scope != domain.ScopeGlobal {
		t.Errorf("Expected global scope, got %s", e.Scope)
	}
	if e.Confidence != 0.5 {
		t.Errorf("Expected neutral confidence 0.5, got %v", e.Confidence)
	}
	if e.SampleCount != 1 {
		t.Errorf("Expected sample count 1, got %d", e.SampleCount)
	}
}

func TestEffective_UnknownPattern(t *testing.T) {
	s := NewStore(0, nil)
	if got := s.Effective(sig("backoff_retry"), "coinbase"); got != 0.5 {
		t.Errorf("Expected neutral 0.5 for unknown pattern, got %v", got)
	}
}

func TestEffective_ShrinkageBlend(t *testing.T) {
	s := NewStore(20, nil)
	pattern := sig("backoff_retry")

	// Build a global tier with an 80% success rate across other sources.
	for i := 0; i < 8; i++ {
		s.RecordOutcome(pattern, "kraken", true, 100*time.Millisecond)
	}
	for i := 0; i < 2; i++ {
		s.RecordOutcome(pattern, "kraken", false, 0)
	}
	s.RefreshGlobal()

	// A fresh source with 2 successes out of 5 must be pulled toward the
	// global prior, not trusted at its raw 40%.
	for i := 0; i < 2; i++ {
		s.RecordOutcome(pattern, "coinbase", true, 100*time.Millisecond)
	}
	for i := 0; i < 3; i++ {
		s.RecordOutcome(pattern, "coinbase", false, 0)
	}
	// Refresh again so the global rate includes coinbase's outcomes:
	// 10 successes / 15 total = 2/3.
	s.RefreshGlobal()

	n, k := 5.0, 20.0
	inner := 2.0 / 5.0
	outer := 10.0 / 15.0
	want := (n/(n+k))*inner + (k/(n+k))*outer

	got := s.Effective(pattern, "coinbase")
	if !almostEqual(got, want) {
		t.Errorf("Effective() = %v, want %v", got, want)
	}
	if got <= inner {
		t.Errorf("Expected estimate pulled above raw source rate %v, got %v", inner, got)
	}
	if got >= outer {
		t.Errorf("Expected estimate below global prior %v, got %v", outer, got)
	}
}

func TestEffective_ConvergesToSourceRate(t *testing.T) {
	s := NewStore(20, nil)
	pattern := sig("serve_from_cache")

	// Large source sample: the blend should be dominated by the source
	// rate, not the neutral prior.
	for i := 0; i < 200; i++ {
		s.RecordOutcome(pattern, "coinbase", true, 50*time.Millisecond)
	}

	got := s.Effective(pattern, "coinbase")
	if got < 0.9 {
		t.Errorf("Expected estimate near 1.0 with 200 source samples, got %v", got)
	}
	if got > 1 || got < 0 {
		t.Errorf("Estimate out of [0,1]: %v", got)
	}
}

func TestRecordOutcome_UpdatesBothTiers(t *testing.T) {
	s := NewStore(0, nil)
	pattern := sig("switch_provider")

	s.RecordOutcome(pattern, "coinbase", true, 200*time.Millisecond)
	s.RecordOutcome(pattern, "coinbase", false, 0)

	var global, source *domain.KnowledgeEntry
	for _, e := range s.Snapshot() {
		e := e
		switch e.Scope {
		case domain.ScopeGlobal:
			global = &e
		case domain.ScopeSource:
			source = &e
		}
	}

	if global == nil || source == nil {
		t.Fatal("Expected entries in both tiers")
	}
	if global.SuccessCount != 1 || global.FailureCount != 1 {
		t.Errorf("Global counters wrong: %+v", global)
	}
	if source.SuccessCount != 1 || source.FailureCount != 1 {
		t.Errorf("Source counters wrong: %+v", source)
	}
	// Source confidence refreshes immediately on write.
	if source.Confidence != 0.5 {
		t.Errorf("Expected source confidence 0.5, got %v", source.Confidence)
	}
}

func TestRefreshGlobal_SkipsOutcomelessEntries(t *testing.T) {
	s := NewStore(0, nil)
	s.Observe(sig(""))
	s.RefreshGlobal()

	e := s.Snapshot()[0]
	if e.Confidence != 0.5 {
		t.Errorf("Expected neutral seed preserved for outcomeless entry, got %v", e.Confidence)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	s := NewStore(0, nil)
	pattern := sig("backoff_retry")
	s.RecordOutcome(pattern, "coinbase", true, 100*time.Millisecond)
	s.RefreshGlobal()
	want := s.Effective(pattern, "coinbase")

	restored := NewStore(0, nil)
	restored.Restore(s.Snapshot())
	if got := restored.Effective(pattern, "coinbase"); !almostEqual(got, want) {
		t.Errorf("Effective after restore = %v, want %v", got, want)
	}
}

func TestRestore_ClampsConfidence(t *testing.T) {
	s := NewStore(0, nil)
	s.Restore([]domain.KnowledgeEntry{{
		Scope:      domain.ScopeGlobal,
		Signature:  sig("backoff_retry"),
		Confidence: 1.7,
	}})

	if got := s.Effective(sig("backoff_retry"), "anywhere"); got > 1 {
		t.Errorf("Expected confidence clamped to [0,1], got %v", got)
	}
}

func TestStrategyStats(t *testing.T) {
	s := NewStore(0, nil)
	s.RecordOutcome(sig("backoff_retry"), "coinbase", true, 100*time.Millisecond)
	s.RecordOutcome(sig("backoff_retry"), "kraken", false, 0)
	s.RecordOutcome(sig("serve_from_cache"), "coinbase", true, 10*time.Millisecond)

	stats := s.StrategyStats("backoff_retry")
	if stats.SuccessCount != 1 || stats.FailureCount != 1 {
		t.Errorf("Unexpected stats: %+v", stats)
	}
}
