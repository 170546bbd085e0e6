package alerting

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// =============================================================================
// Mocks
// =============================================================================

type mockAlertRepo struct {
	mu      sync.Mutex
	added   []*domain.Alert
	updated []*domain.Alert
	open    []*domain.Alert
}

func (r *mockAlertRepo) Add(ctx context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.added = append(r.added, &cp)
	return nil
}

func (r *mockAlertRepo) Update(ctx context.Context, a *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.updated = append(r.updated, &cp)
	return nil
}

func (r *mockAlertRepo) GetOpen(ctx context.Context) ([]*domain.Alert, error) {
	return r.open, nil
}

type mockNotifier struct {
	mu       sync.Mutex
	notified []*domain.Alert
	resolved []string
}

func (n *mockNotifier) Notify(ctx context.Context, a *domain.Alert) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	cp := *a
	n.notified = append(n.notified, &cp)
	return nil
}

func (n *mockNotifier) Resolve(ctx context.Context, alertID string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resolved = append(n.resolved, alertID)
	return nil
}

// =============================================================================
// Tests
// =============================================================================

func requiredEndpoint(symbol string) domain.Endpoint {
	return domain.Endpoint{Source: "coinbase", Symbol: symbol, Criticality: domain.CriticalityRequired}
}

func optionalEndpoint(symbol string) domain.Endpoint {
	return domain.Endpoint{Source: "coinbase", Symbol: symbol, Criticality: domain.CriticalityOptional}
}

func transition(key string, from, to domain.HealthStatus, at time.Time) domain.Transition {
	return domain.Transition{EndpointKey: key, From: from, To: to, At: at}
}

func newTestManager(endpoints []domain.Endpoint) (*Manager, *mockAlertRepo, *mockNotifier) {
	repo := &mockAlertRepo{}
	notifier := &mockNotifier{}
	m := NewManager(Config{}, repo, []Notifier{notifier}, endpoints, nil)
	return m, repo, notifier
}

func TestHandleTransition_OpensWarningOnDegraded(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, repo, notifier := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()

	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusDegraded, time.Now()))

	a, ok := m.OpenAlert(ep.Key())
	if !ok {
		t.Fatal("Expected an open alert")
	}
	if a.Level != domain.AlertWarning {
		t.Errorf("Expected warning level, got %s", a.Level)
	}
	if len(repo.added) != 1 || len(notifier.notified) != 1 {
		t.Errorf("Expected one persisted and one notified alert, got %d/%d", len(repo.added), len(notifier.notified))
	}
}

func TestHandleTransition_WarningRateLimited(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, repo, _ := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()
	now := time.Now()

	// Degraded, recovers, degrades again 10 minutes later: the second
	// Warning is inside the rate-limit window.
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusDegraded, now))
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusDegraded, domain.StatusHealthy, now.Add(5*time.Minute)))
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusDegraded, now.Add(10*time.Minute)))

	if _, ok := m.OpenAlert(ep.Key()); ok {
		t.Error("Expected rate-limited Warning to not open")
	}
	if len(repo.added) != 1 {
		t.Errorf("Expected exactly one alert opened, got %d", len(repo.added))
	}

	// Past the window a new Warning opens again.
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusDegraded, now.Add(2*time.Hour)))
	if _, ok := m.OpenAlert(ep.Key()); !ok {
		t.Error("Expected a new Warning after the rate-limit window")
	}
}

func TestHandleTransition_EscalatesNotDuplicates(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, repo, _ := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()
	now := time.Now()

	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusDegraded, now))
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusDegraded, domain.StatusCritical, now.Add(time.Minute)))

	a, ok := m.OpenAlert(ep.Key())
	if !ok {
		t.Fatal("Expected an open alert")
	}
	if a.Level != domain.AlertError {
		t.Errorf("Expected level bumped to error, got %s", a.Level)
	}
	if a.EscalationCount != 1 {
		t.Errorf("Expected escalation count 1, got %d", a.EscalationCount)
	}
	if len(repo.added) != 1 {
		t.Errorf("Escalation must not open a second alert, got %d", len(repo.added))
	}
}

func TestHandleTransition_LevelNeverDowngrades(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, _, _ := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()
	now := time.Now()

	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusCritical, now))
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusCritical, domain.StatusDegraded, now.Add(time.Minute)))

	a, _ := m.OpenAlert(ep.Key())
	if a.Level != domain.AlertError {
		t.Errorf("Expected level to stay at error, got %s", a.Level)
	}
}

func TestHandleTransition_AutoResolveOnHealthy(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, repo, notifier := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()
	now := time.Now()

	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusCritical, now))
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusCritical, domain.StatusHealthy, now.Add(time.Minute)))

	if _, ok := m.OpenAlert(ep.Key()); ok {
		t.Error("Expected alert resolved on recovery to healthy")
	}
	if len(notifier.resolved) != 1 {
		t.Errorf("Expected one resolve notification, got %d", len(notifier.resolved))
	}

	// resolved_at set exactly once.
	var resolved *domain.Alert
	for _, a := range repo.updated {
		if a.ResolvedAt != nil {
			resolved = a
		}
	}
	if resolved == nil {
		t.Fatal("Expected resolved alert persisted")
	}
	if !resolved.ResolvedAt.Equal(now.Add(time.Minute)) {
		t.Errorf("Expected resolved_at %v, got %v", now.Add(time.Minute), *resolved.ResolvedAt)
	}

	// A second recovery is a no-op.
	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusDegraded, domain.StatusHealthy, now.Add(2*time.Minute)))
	if len(notifier.resolved) != 1 {
		t.Errorf("Expected no second resolve, got %d", len(notifier.resolved))
	}
}

func TestHandleTransition_RequiredFailedIsCritical(t *testing.T) {
	ep := requiredEndpoint("BTC-USD")
	m, _, _ := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()

	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusFailed, time.Now()))

	a, ok := m.OpenAlert(ep.Key())
	if !ok {
		t.Fatal("Expected an open alert")
	}
	if a.Level != domain.AlertCritical {
		t.Errorf("Expected critical level for failed required endpoint, got %s", a.Level)
	}
}

func TestHandleTransition_OptionalFailedIsError(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, _, _ := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()

	m.HandleTransition(ctx, ep, transition(ep.Key(), domain.StatusHealthy, domain.StatusFailed, time.Now()))

	a, _ := m.OpenAlert(ep.Key())
	if a.Level != domain.AlertError {
		t.Errorf("Expected error level for failed optional endpoint, got %s", a.Level)
	}
}

func TestHandleTransition_RequiredFractionEscalates(t *testing.T) {
	// Two required endpoints; one already Failed puts the fraction at
	// 50%, so even an optional endpoint failing escalates to Critical.
	req1 := requiredEndpoint("BTC-USD")
	req2 := requiredEndpoint("ETH-USD")
	opt := optionalEndpoint("DOGE-USD")
	m, _, _ := newTestManager([]domain.Endpoint{req1, req2, opt})
	ctx := context.Background()
	now := time.Now()

	m.HandleTransition(ctx, req1, transition(req1.Key(), domain.StatusHealthy, domain.StatusFailed, now))
	m.HandleTransition(ctx, opt, transition(opt.Key(), domain.StatusHealthy, domain.StatusFailed, now.Add(time.Second)))

	a, _ := m.OpenAlert(opt.Key())
	if a.Level != domain.AlertCritical {
		t.Errorf("Expected critical when half of required endpoints are failed, got %s", a.Level)
	}
}

func TestHandleExhausted(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	m, _, notifier := newTestManager([]domain.Endpoint{ep})
	ctx := context.Background()

	m.HandleExhausted(ctx, ep, &domain.ErrorEvent{Kind: domain.KindTimeout})

	a, ok := m.OpenAlert(ep.Key())
	if !ok {
		t.Fatal("Expected an open alert after healing exhaustion")
	}
	if a.Level != domain.AlertError {
		t.Errorf("Expected error level, got %s", a.Level)
	}
	if len(notifier.notified) != 1 {
		t.Errorf("Expected one notification, got %d", len(notifier.notified))
	}
}

func TestHandleExhausted_RequiredIsCritical(t *testing.T) {
	ep := requiredEndpoint("BTC-USD")
	m, _, _ := newTestManager([]domain.Endpoint{ep})

	m.HandleExhausted(context.Background(), ep, &domain.ErrorEvent{Kind: domain.KindNetworkError})

	a, ok := m.OpenAlert(ep.Key())
	if !ok {
		t.Fatal("Expected an open alert")
	}
	if a.Level != domain.AlertCritical {
		t.Errorf("Expected critical level for a required endpoint, got %s", a.Level)
	}
}

func TestRestoreOpen(t *testing.T) {
	ep := optionalEndpoint("BTC-USD")
	repo := &mockAlertRepo{open: []*domain.Alert{{
		ID:          "a1",
		Level:       domain.AlertError,
		EndpointKey: ep.Key(),
	}}}
	m := NewManager(Config{}, repo, nil, []domain.Endpoint{ep}, nil)

	if err := m.RestoreOpen(context.Background()); err != nil {
		t.Fatalf("RestoreOpen failed: %v", err)
	}
	if _, ok := m.OpenAlert(ep.Key()); !ok {
		t.Error("Expected restored open alert")
	}
}
