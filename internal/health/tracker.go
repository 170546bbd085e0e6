// Package health maintains per-endpoint rolling health state and serves
// the read-only status surface.
package health

import (
	"sync"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/metrics"
)

// WindowSize is the rolling outcome window per endpoint.
const WindowSize = 50

// Status thresholds on the rolling error rate.
const (
	degradedErrorRate = 0.05
	criticalErrorRate = 0.20
	failedErrorRate   = 0.50

	// consecutiveFailureFloor forces at least Degraded once this many
	// checks fail back to back, so sudden onset shows before the rolling
	// rate catches up.
	consecutiveFailureFloor = 3
)

// Tracker owns all HealthRecords. Records are mutated only here; every
// outcome triggers a deterministic status recompute.
type Tracker struct {
	mu       sync.RWMutex
	records  map[string]*domain.HealthRecord
	outcomes map[string][]domain.Outcome // last WindowSize outcomes, oldest first
}

// NewTracker creates a tracker with empty records for the given endpoints.
func NewTracker(endpoints []domain.Endpoint) *Tracker {
	t := &Tracker{
		records:  make(map[string]*domain.HealthRecord),
		outcomes: make(map[string][]domain.Outcome),
	}
	for _, ep := range endpoints {
		t.records[ep.Key()] = &domain.HealthRecord{
			EndpointKey:      ep.Key(),
			Status:           domain.StatusHealthy,
			UptimePercentage: 100,
		}
	}
	return t
}

// Record folds one outcome into the endpoint's record and returns the
// status transition, if any.
func (t *Tracker) Record(outcome domain.Outcome) (domain.Transition, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[outcome.EndpointKey]
	if !ok {
		rec = &domain.HealthRecord{
			EndpointKey: outcome.EndpointKey,
			Status:      domain.StatusHealthy,
		}
		t.records[outcome.EndpointKey] = rec
	}

	rec.Window = append(rec.Window, outcome.Success)
	if len(rec.Window) > WindowSize {
		rec.Window = rec.Window[1:]
	}

	if outcome.Success {
		rec.ConsecutiveFailures = 0
		rec.LastSuccessAt = outcome.At
	} else {
		rec.ConsecutiveFailures++
		rec.LastFailureAt = outcome.At
	}

	history := append(t.outcomes[outcome.EndpointKey], outcome)
	if len(history) > WindowSize {
		history = history[1:]
	}
	t.outcomes[outcome.EndpointKey] = history

	prev := rec.Status
	rec.Status = ComputeStatus(rec.Window, rec.ConsecutiveFailures)
	rec.UptimePercentage = uptime(rec.Window)
	metrics.EndpointStatus.WithLabelValues(outcome.EndpointKey).Set(float64(rec.Status.Rank()))

	if rec.Status != prev {
		return domain.Transition{
			EndpointKey: outcome.EndpointKey,
			From:        prev,
			To:          rec.Status,
			At:          outcome.At,
		}, true
	}
	return domain.Transition{}, false
}

// ComputeStatus derives the status from the rolling window and the
// consecutive failure count. It is a pure function: replaying the same
// outcome sequence always yields the same status trajectory.
func ComputeStatus(window []bool, consecutiveFailures int) domain.HealthStatus {
	status := domain.StatusHealthy

	if len(window) > 0 {
		failures := 0
		for _, ok := range window {
			if !ok {
				failures++
			}
		}
		rate := float64(failures) / float64(len(window))
		switch {
		case rate > failedErrorRate:
			status = domain.StatusFailed
		case rate >= criticalErrorRate:
			status = domain.StatusCritical
		case rate >= degradedErrorRate:
			status = domain.StatusDegraded
		}
	}

	if consecutiveFailures >= consecutiveFailureFloor && status == domain.StatusHealthy {
		status = domain.StatusDegraded
	}
	return status
}

// Status returns the current status for one endpoint.
func (t *Tracker) Status(endpointKey string) domain.HealthStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if rec, ok := t.records[endpointKey]; ok {
		return rec.Status
	}
	return domain.StatusHealthy
}

// Get returns a copy of one endpoint's health record.
func (t *Tracker) Get(endpointKey string) (domain.HealthRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rec, ok := t.records[endpointKey]
	if !ok {
		return domain.HealthRecord{}, false
	}
	return cloneRecord(rec), true
}

// Snapshot returns copies of every record plus each endpoint's recent
// outcomes, for the status surface and checkpointing.
func (t *Tracker) Snapshot() map[string]domain.HealthRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]domain.HealthRecord, len(t.records))
	for k, rec := range t.records {
		out[k] = cloneRecord(rec)
	}
	return out
}

// Outcomes returns the retained outcome history for one endpoint,
// oldest first.
func (t *Tracker) Outcomes(endpointKey string) []domain.Outcome {
	t.mu.RLock()
	defer t.mu.RUnlock()
	history := t.outcomes[endpointKey]
	out := make([]domain.Outcome, len(history))
	copy(out, history)
	return out
}

// Restore seeds a record from a persisted checkpoint. Used at startup
// only, before the monitor begins producing outcomes.
func (t *Tracker) Restore(rec domain.HealthRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	restored := rec
	t.records[rec.EndpointKey] = &restored
}

func cloneRecord(rec *domain.HealthRecord) domain.HealthRecord {
	out := *rec
	out.Window = make([]bool, len(rec.Window))
	copy(out.Window, rec.Window)
	return out
}

func uptime(window []bool) float64 {
	if len(window) == 0 {
		return 100
	}
	ok := 0
	for _, s := range window {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(window)) * 100
}

// LastCheckTimes reports the newest outcome timestamp per endpoint.
func (t *Tracker) LastCheckTimes() map[string]time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]time.Time, len(t.outcomes))
	for k, history := range t.outcomes {
		if len(history) > 0 {
			out[k] = history[len(history)-1].At
		}
	}
	return out
}
