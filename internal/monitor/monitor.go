// Package monitor schedules bounded-timeout checks against every
// registered endpoint on its own cadence, concurrently across endpoints
// but never overlapping a check with the same endpoint's still-in-flight
// one.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/feedguard/feedguard/internal/cache"
	"github.com/feedguard/feedguard/internal/classify"
	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/fetch"
	"github.com/feedguard/feedguard/internal/health"
	"github.com/feedguard/feedguard/internal/infra/storage"
	"github.com/feedguard/feedguard/internal/metrics"
)

// Healer runs the remediation flow for one classified failure.
type Healer interface {
	Heal(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error
}

// TransitionHandler receives health-status transitions.
type TransitionHandler interface {
	HandleTransition(ctx context.Context, ep domain.Endpoint, tr domain.Transition)
}

// Config tunes the monitor loop.
type Config struct {
	MaxConcurrent int64 // worker pool bound, default 8
}

// Monitor drives the polling cycles.
type Monitor struct {
	cfg        Config
	endpoints  []domain.Endpoint
	registry   *fetch.Registry
	classifier *classify.Classifier
	tracker    *health.Tracker
	chain      *cache.Chain
	events     storage.ErrorEventRepository
	healer     Healer
	alerts     TransitionHandler
	sem        *semaphore.Weighted
	log        *slog.Logger

	running atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates the monitor.
func New(
	cfg Config,
	endpoints []domain.Endpoint,
	registry *fetch.Registry,
	classifier *classify.Classifier,
	tracker *health.Tracker,
	chain *cache.Chain,
	events storage.ErrorEventRepository,
	healer Healer,
	alerts TransitionHandler,
	log *slog.Logger,
) *Monitor {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{
		cfg:        cfg,
		endpoints:  endpoints,
		registry:   registry,
		classifier: classifier,
		tracker:    tracker,
		chain:      chain,
		events:     events,
		healer:     healer,
		alerts:     alerts,
		sem:        semaphore.NewWeighted(cfg.MaxConcurrent),
		log:        log,
	}
}

// Start launches one polling loop per endpoint and blocks until ctx is
// cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	for _, ep := range m.endpoints {
		m.wg.Add(1)
		go m.runEndpoint(ctx, ep)
	}

	select {
	case <-ctx.Done():
	case <-m.stop:
	}
	m.wg.Wait()
	m.running.Store(false)
	close(m.done)
	return nil
}

// Stop signals all loops to finish and blocks until every in-flight
// check and its healing have drained; their own deadlines bound how
// long that takes.
func (m *Monitor) Stop() {
	if !m.running.Load() {
		return
	}
	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	<-m.done
}

func (m *Monitor) runEndpoint(ctx context.Context, ep domain.Endpoint) {
	defer m.wg.Done()

	ticker := time.NewTicker(ep.Interval)
	defer ticker.Stop()

	var inFlight atomic.Bool

	// Immediate first check so startup state settles quickly.
	m.guardedCheck(ctx, ep, &inFlight)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.guardedCheck(ctx, ep, &inFlight)
		}
	}
}

// guardedCheck enforces at most one in-flight check per endpoint. A tick
// arriving while the previous check still runs is skipped, not queued.
func (m *Monitor) guardedCheck(ctx context.Context, ep domain.Endpoint, inFlight *atomic.Bool) {
	if !inFlight.CompareAndSwap(false, true) {
		m.log.Debug("check still in flight, skipping tick", "endpoint", ep.Key())
		return
	}

	if err := m.sem.Acquire(ctx, 1); err != nil {
		inFlight.Store(false)
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.sem.Release(1)
		defer inFlight.Store(false)
		m.checkOnce(ctx, ep)
	}()
}

// checkOnce performs exactly one bounded check and produces exactly one
// outcome: the tracker always sees it, the classifier and healer only on
// failure.
func (m *Monitor) checkOnce(ctx context.Context, ep domain.Endpoint) {
	checkCtx, cancel := context.WithTimeout(ctx, ep.Timeout)
	defer cancel()

	fetcher, ok := m.registry.Primary(ep.Source)
	if !ok {
		// Verified at startup; unreachable in a running engine.
		m.log.Error("no fetcher registered", "source", ep.Source)
		return
	}

	start := time.Now()
	res, err := fetcher.Fetch(checkCtx, ep, fetch.Params{})
	now := time.Now()

	if err != nil {
		kind := m.classifyFetchError(checkCtx, err)
		m.recordFailure(ctx, ep, domain.Outcome{
			EndpointKey: ep.Key(),
			Kind:        kind,
			StatusCode:  statusCode(err),
			Latency:     now.Sub(start),
			Detail:      detail(err),
			At:          now,
		})
		return
	}

	if verr := m.registry.Validate(ep.Source, res.Payload); verr != nil {
		kind := m.classifier.ClassifyValidation(verr)
		m.recordFailure(ctx, ep, domain.Outcome{
			EndpointKey: ep.Key(),
			Kind:        kind,
			Latency:     res.Latency,
			Detail:      verr.Error(),
			At:          now,
		})
		return
	}

	// Success: write through so the fallback tiers stay warm.
	m.chain.StoreFresh(ctx, ep, res.Payload)

	metrics.ChecksTotal.WithLabelValues(ep.Source, "success").Inc()
	metrics.CheckLatency.WithLabelValues(ep.Source).Observe(res.Latency.Seconds())

	outcome := domain.Outcome{
		EndpointKey: ep.Key(),
		Success:     true,
		Latency:     res.Latency,
		At:          now,
	}
	if tr, changed := m.tracker.Record(outcome); changed {
		m.alerts.HandleTransition(ctx, ep, tr)
	}
}

func (m *Monitor) recordFailure(ctx context.Context, ep domain.Endpoint, outcome domain.Outcome) {
	metrics.ChecksTotal.WithLabelValues(ep.Source, "failure").Inc()
	metrics.ErrorsTotal.WithLabelValues(ep.Source, string(outcome.Kind)).Inc()

	if tr, changed := m.tracker.Record(outcome); changed {
		m.alerts.HandleTransition(ctx, ep, tr)
	}

	ev := m.classifier.NewEvent(ep, outcome.Kind, outcome.StatusCode, outcome.Latency, outcome.Detail)
	if err := m.events.Add(ctx, ev); err != nil {
		m.log.Warn("failed to persist error event", "endpoint", ep.Key(), "error", err)
	}

	// Healing attempts for one event are strictly sequential; running
	// them here keeps at most one remediation in flight per endpoint.
	if err := m.healer.Heal(ctx, ep, ev); err != nil {
		m.log.Debug("healing did not resolve", "endpoint", ep.Key(), "error", err)
	}
}

// classifyFetchError maps a fetch error, folding deadline expiry into
// the Timeout outcome so cancelled checks are counted, never dropped.
func (m *Monitor) classifyFetchError(checkCtx context.Context, err error) domain.ErrorKind {
	if errors.Is(checkCtx.Err(), context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return m.classifier.Classify(err)
}

func statusCode(err error) int {
	var fe *fetch.Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}

func detail(err error) string {
	var fe *fetch.Error
	if errors.As(err, &fe) && fe.Body != "" {
		return fe.Body
	}
	return err.Error()
}
