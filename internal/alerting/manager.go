// Package alerting maps health-state transitions to escalating
// notifications and auto-resolves them when endpoints recover.
package alerting

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/infra/storage"
	"github.com/feedguard/feedguard/internal/metrics"
)

// Notifier delivers alerts over one channel. Transports (UI push, email,
// paging) live outside the engine; the engine only decides level and
// timing.
type Notifier interface {
	Notify(ctx context.Context, a *domain.Alert) error
	Resolve(ctx context.Context, alertID string) error
}

// Config tunes the manager.
type Config struct {
	// WarningInterval rate-limits new Warning alerts per endpoint.
	WarningInterval time.Duration

	// RequiredFailedFraction escalates to Critical on every channel when
	// this fraction of required endpoints is simultaneously Failed.
	RequiredFailedFraction float64
}

func (c *Config) defaults() {
	if c.WarningInterval <= 0 {
		c.WarningInterval = time.Hour
	}
	if c.RequiredFailedFraction <= 0 {
		c.RequiredFailedFraction = 0.5
	}
}

// Manager is the per-endpoint alert state machine. At most one open
// alert exists per endpoint; duplicate opens bump escalation instead.
type Manager struct {
	cfg       Config
	repo      storage.AlertRepository
	notifiers []Notifier
	log       *slog.Logger

	mu          sync.Mutex
	open        map[string]*domain.Alert // endpoint key -> open alert
	lastWarning map[string]time.Time
	failed      map[string]bool // required endpoints currently Failed
	required    int             // total required endpoints
}

// NewManager creates the alert manager.
func NewManager(cfg Config, repo storage.AlertRepository, notifiers []Notifier, endpoints []domain.Endpoint, log *slog.Logger) *Manager {
	cfg.defaults()
	if log == nil {
		log = slog.Default()
	}
	required := 0
	for _, ep := range endpoints {
		if ep.Required() {
			required++
		}
	}
	return &Manager{
		cfg:         cfg,
		repo:        repo,
		notifiers:   notifiers,
		log:         log,
		open:        make(map[string]*domain.Alert),
		lastWarning: make(map[string]time.Time),
		failed:      make(map[string]bool),
		required:    required,
	}
}

// RestoreOpen seeds the open-alert map from persisted state at startup.
func (m *Manager) RestoreOpen(ctx context.Context) error {
	alerts, err := m.repo.GetOpen(ctx)
	if err != nil {
		return fmt.Errorf("load open alerts: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range alerts {
		m.open[a.EndpointKey] = a
	}
	return nil
}

// HandleTransition reacts to one health-status transition. Transitions
// are the sole trigger for evaluation; a single failed check never
// raises an alert by itself.
func (m *Manager) HandleTransition(ctx context.Context, ep domain.Endpoint, tr domain.Transition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ep.Required() {
		m.failed[ep.Key()] = tr.To == domain.StatusFailed
	}

	switch tr.To {
	case domain.StatusHealthy:
		m.resolveLocked(ctx, ep.Key(), tr.At)

	case domain.StatusDegraded:
		if m.rateLimitedWarningLocked(ep.Key(), tr.At) {
			return
		}
		m.openOrEscalateLocked(ctx, ep, domain.AlertWarning,
			fmt.Sprintf("endpoint %s degraded", ep.Key()), tr.At)

	case domain.StatusCritical:
		m.openOrEscalateLocked(ctx, ep, domain.AlertError,
			fmt.Sprintf("endpoint %s critical", ep.Key()), tr.At)

	case domain.StatusFailed:
		level := domain.AlertError
		if ep.Required() || m.requiredFailedFractionLocked() >= m.cfg.RequiredFailedFraction {
			level = domain.AlertCritical
		}
		m.openOrEscalateLocked(ctx, ep, level,
			fmt.Sprintf("endpoint %s failed", ep.Key()), tr.At)
	}
}

// HandleExhausted escalates when the healing engine runs out of
// strategies for an endpoint.
func (m *Manager) HandleExhausted(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) {
	level := domain.AlertError
	if ep.Criticality == domain.CriticalityRequired {
		level = domain.AlertCritical
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.openOrEscalateLocked(ctx, ep, level,
		fmt.Sprintf("healing exhausted for %s (%s)", ep.Key(), ev.Kind), time.Now())
}

// OpenAlert returns a copy of the open alert for one endpoint, if any.
func (m *Manager) OpenAlert(endpointKey string) (domain.Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.open[endpointKey]
	if !ok {
		return domain.Alert{}, false
	}
	return *a, true
}

// openOrEscalateLocked opens a new alert, or bumps escalation count and
// level on the existing one. Never opens a duplicate.
func (m *Manager) openOrEscalateLocked(ctx context.Context, ep domain.Endpoint, level domain.AlertLevel, message string, at time.Time) {
	key := ep.Key()

	if existing, ok := m.open[key]; ok {
		existing.EscalationCount++
		if level.Rank() > existing.Level.Rank() {
			metrics.OpenAlerts.WithLabelValues(string(existing.Level)).Dec()
			existing.Level = level
			metrics.OpenAlerts.WithLabelValues(string(level)).Inc()
		}
		if err := m.repo.Update(ctx, existing); err != nil {
			m.log.Warn("failed to persist alert escalation", "alert", existing.ID, "error", err)
		}
		m.notifyLocked(ctx, existing)
		return
	}

	alert := &domain.Alert{
		ID:          uuid.New().String(),
		Level:       level,
		EndpointKey: key,
		Message:     message,
		CreatedAt:   at,
	}
	m.open[key] = alert
	metrics.OpenAlerts.WithLabelValues(string(level)).Inc()

	if err := m.repo.Add(ctx, alert); err != nil {
		m.log.Warn("failed to persist alert", "alert", alert.ID, "error", err)
	}
	m.notifyLocked(ctx, alert)
	m.log.Info("alert opened", "endpoint", key, "level", level)
}

// resolveLocked closes the open alert for an endpoint, setting
// resolved_at exactly once. Recovery to Healthy is the only auto-resolve
// path.
func (m *Manager) resolveLocked(ctx context.Context, key string, at time.Time) {
	alert, ok := m.open[key]
	if !ok {
		return
	}
	delete(m.open, key)

	resolvedAt := at
	alert.ResolvedAt = &resolvedAt
	metrics.OpenAlerts.WithLabelValues(string(alert.Level)).Dec()

	if err := m.repo.Update(ctx, alert); err != nil {
		m.log.Warn("failed to persist alert resolution", "alert", alert.ID, "error", err)
	}
	for _, n := range m.notifiers {
		if err := n.Resolve(ctx, alert.ID); err != nil {
			m.log.Warn("notifier resolve failed", "alert", alert.ID, "error", err)
		}
	}
	m.log.Info("alert resolved", "endpoint", key, "alert", alert.ID)
}

// rateLimitedWarningLocked reports whether a new Warning for this
// endpoint is still inside the rate-limit window. Escalations on an
// already-open alert are not rate limited.
func (m *Manager) rateLimitedWarningLocked(key string, at time.Time) bool {
	if _, ok := m.open[key]; ok {
		return false // bumping an open alert is always allowed
	}
	if last, ok := m.lastWarning[key]; ok && at.Sub(last) < m.cfg.WarningInterval {
		return true
	}
	m.lastWarning[key] = at
	return false
}

func (m *Manager) requiredFailedFractionLocked() float64 {
	if m.required == 0 {
		return 0
	}
	failed := 0
	for _, down := range m.failed {
		if down {
			failed++
		}
	}
	return float64(failed) / float64(m.required)
}

func (m *Manager) notifyLocked(ctx context.Context, a *domain.Alert) {
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, a); err != nil {
			m.log.Warn("notifier failed", "alert", a.ID, "error", err)
		}
	}
}

// LogNotifier is the always-registered channel: it writes alerts to the
// structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a notifier backed by slog.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, a *domain.Alert) error {
	n.log.Warn("ALERT",
		"level", a.Level,
		"endpoint", a.EndpointKey,
		"message", a.Message,
		"escalations", a.EscalationCount,
	)
	return nil
}

func (n *LogNotifier) Resolve(ctx context.Context, alertID string) error {
	n.log.Info("alert auto-resolved", "alert", alertID)
	return nil
}
