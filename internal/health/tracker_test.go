package health

import (
	"testing"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

func testEndpoint() domain.Endpoint {
	return domain.Endpoint{
		Source:      "coinbase",
		Symbol:      "BTC-USD",
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		Criticality: domain.CriticalityRequired,
	}
}

func record(t *Tracker, key string, success bool) (domain.Transition, bool) {
	return t.Record(domain.Outcome{
		EndpointKey: key,
		Success:     success,
		At:          time.Now(),
	})
}

func TestComputeStatus_Thresholds(t *testing.T) {
	tests := []struct {
		name     string
		failures int
		total    int
		want     domain.HealthStatus
	}{
		{"no failures", 0, 50, domain.StatusHealthy},
		{"under 5 percent", 2, 50, domain.StatusHealthy},
		{"exactly 5 percent", 1, 20, domain.StatusDegraded},
		{"10 percent", 5, 50, domain.StatusDegraded},
		{"exactly 20 percent", 10, 50, domain.StatusCritical},
		{"40 percent", 20, 50, domain.StatusCritical},
		{"exactly 50 percent", 25, 50, domain.StatusCritical},
		{"over 50 percent", 26, 50, domain.StatusFailed},
		{"all failed", 50, 50, domain.StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			window := make([]bool, tt.total)
			for i := range window {
				window[i] = i >= tt.failures
			}
			if got := ComputeStatus(window, 0); got != tt.want {
				t.Errorf("ComputeStatus(%d/%d failed) = %v, want %v", tt.failures, tt.total, got, tt.want)
			}
		})
	}
}

func TestComputeStatus_ConsecutiveFailureFloor(t *testing.T) {
	// A clean window says Healthy, but 3 failures back to back must force
	// at least Degraded before the rolling rate catches up.
	clean := make([]bool, 50)
	for i := range clean {
		clean[i] = true
	}
	if got := ComputeStatus(clean, 3); got != domain.StatusDegraded {
		t.Errorf("ComputeStatus(clean window, 3 consecutive) = %v, want %v", got, domain.StatusDegraded)
	}

	// The floor never downgrades a worse status.
	failed := make([]bool, 10)
	if got := ComputeStatus(failed, 10); got != domain.StatusFailed {
		t.Errorf("ComputeStatus(all failed, 10 consecutive) = %v, want %v", got, domain.StatusFailed)
	}
}

func TestComputeStatus_EmptyWindow(t *testing.T) {
	if got := ComputeStatus(nil, 0); got != domain.StatusHealthy {
		t.Errorf("ComputeStatus(empty) = %v, want %v", got, domain.StatusHealthy)
	}
}

func TestRecord_Transitions(t *testing.T) {
	ep := testEndpoint()
	tracker := NewTracker([]domain.Endpoint{ep})
	key := ep.Key()

	// First failure: 1/1 = 100% error rate, straight to Failed.
	tr, changed := record(tracker, key, false)
	if !changed {
		t.Fatal("Expected a transition on first failure")
	}
	if tr.From != domain.StatusHealthy || tr.To != domain.StatusFailed {
		t.Errorf("Expected healthy->failed, got %s->%s", tr.From, tr.To)
	}

	// Successes dilute the rate back down; the status must recover
	// without any explicit reset.
	var last domain.HealthStatus
	for i := 0; i < 49; i++ {
		record(tracker, key, true)
		last = tracker.Status(key)
	}
	if last != domain.StatusHealthy {
		t.Errorf("Expected recovery to healthy after 49 successes, got %s", last)
	}
}

func TestRecord_Deterministic(t *testing.T) {
	// Replaying the same outcome sequence must produce the same status
	// trajectory.
	seq := []bool{true, false, true, false, false, false, true, true, false, true}

	run := func() []domain.HealthStatus {
		ep := testEndpoint()
		tracker := NewTracker([]domain.Endpoint{ep})
		var trajectory []domain.HealthStatus
		for _, ok := range seq {
			record(tracker, ep.Key(), ok)
			trajectory = append(trajectory, tracker.Status(ep.Key()))
		}
		return trajectory
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Trajectories diverge at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestRecord_WindowBounded(t *testing.T) {
	ep := testEndpoint()
	tracker := NewTracker([]domain.Endpoint{ep})
	key := ep.Key()

	for i := 0; i < WindowSize*2; i++ {
		record(tracker, key, true)
	}

	rec, ok := tracker.Get(key)
	if !ok {
		t.Fatal("Expected record to exist")
	}
	if len(rec.Window) != WindowSize {
		t.Errorf("Expected window bounded at %d, got %d", WindowSize, len(rec.Window))
	}
	if len(tracker.Outcomes(key)) != WindowSize {
		t.Errorf("Expected outcome history bounded at %d, got %d", WindowSize, len(tracker.Outcomes(key)))
	}
}

func TestRecord_ConsecutiveFailuresReset(t *testing.T) {
	ep := testEndpoint()
	tracker := NewTracker([]domain.Endpoint{ep})
	key := ep.Key()

	record(tracker, key, false)
	record(tracker, key, false)
	rec, _ := tracker.Get(key)
	if rec.ConsecutiveFailures != 2 {
		t.Errorf("Expected 2 consecutive failures, got %d", rec.ConsecutiveFailures)
	}

	record(tracker, key, true)
	rec, _ = tracker.Get(key)
	if rec.ConsecutiveFailures != 0 {
		t.Errorf("Expected consecutive failures reset on success, got %d", rec.ConsecutiveFailures)
	}
}

func TestRestore(t *testing.T) {
	ep := testEndpoint()
	tracker := NewTracker([]domain.Endpoint{ep})

	tracker.Restore(domain.HealthRecord{
		EndpointKey:      ep.Key(),
		Status:           domain.StatusDegraded,
		Window:           []bool{true, false, true},
		UptimePercentage: 66.7,
	})

	if got := tracker.Status(ep.Key()); got != domain.StatusDegraded {
		t.Errorf("Expected restored status degraded, got %s", got)
	}
}
