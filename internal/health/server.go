package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// AlertReader exposes the open alert for an endpoint, if any.
type AlertReader interface {
	OpenAlert(endpointKey string) (domain.Alert, bool)
}

// EventCounter reports how many error events remain unresolved per
// endpoint.
type EventCounter interface {
	CountUnresolved(ctx context.Context, endpointKey string) (int, error)
}

// KnowledgeReader exposes the learned counters for one strategy.
type KnowledgeReader interface {
	StrategyStats(strategyID string) domain.StrategyStats
}

// EndpointReport is the read-only snapshot served for one endpoint.
type EndpointReport struct {
	EndpointKey      string              `json:"endpoint_key"`
	Status           domain.HealthStatus `json:"status"`
	UptimePercentage float64             `json:"uptime_percentage"`
	Criticality      domain.Criticality  `json:"criticality"`
	OpenAlert        *domain.Alert       `json:"open_alert,omitempty"`
	LastCheckAt      *time.Time          `json:"last_check_at,omitempty"`
	UnresolvedEvents int                 `json:"unresolved_events"`
	Outcomes         []domain.Outcome    `json:"outcomes"`
}

// Summary is the aggregate served to dashboards and startup gates.
type Summary struct {
	Status                  domain.HealthStatus `json:"status"`
	RequiredHealthyFraction float64             `json:"required_healthy_fraction"`
	Endpoints               int                 `json:"endpoints"`
}

// Server provides the HTTP status surface: /health for gates, with
// per-endpoint detail and Prometheus metrics alongside.
type Server struct {
	tracker     *Tracker
	alerts      AlertReader
	events      EventCounter
	knowledge   KnowledgeReader
	strategyIDs []string
	endpoints   []domain.Endpoint
	server      *http.Server
}

// NewServer creates the health server.
func NewServer(tracker *Tracker, alerts AlertReader, events EventCounter, knowledge KnowledgeReader, strategyIDs []string, endpoints []domain.Endpoint, port int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		tracker:     tracker,
		alerts:      alerts,
		events:      events,
		knowledge:   knowledge,
		strategyIDs: strategyIDs,
		endpoints:   endpoints,
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.HandleFunc("/health/strategies", s.handleStrategies)
	mux.Handle("/metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := s.summarize()

	w.Header().Set("Content-Type", "application/json")
	if summary.Status == domain.StatusCritical || summary.Status == domain.StatusFailed {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(summary)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	lastChecks := s.tracker.LastCheckTimes()

	reports := make([]EndpointReport, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		key := ep.Key()
		rec, _ := s.tracker.Get(key)

		report := EndpointReport{
			EndpointKey:      key,
			Status:           rec.Status,
			UptimePercentage: rec.UptimePercentage,
			Criticality:      ep.Criticality,
			Outcomes:         s.tracker.Outcomes(key),
		}
		if alert, ok := s.alerts.OpenAlert(key); ok {
			report.OpenAlert = &alert
		}
		if at, ok := lastChecks[key]; ok {
			report.LastCheckAt = &at
		}
		if n, err := s.events.CountUnresolved(r.Context(), key); err == nil {
			report.UnresolvedEvents = n
		}
		reports = append(reports, report)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reports)
}

// handleStrategies serves the learned effectiveness counters per
// registered healing strategy.
func (s *Server) handleStrategies(w http.ResponseWriter, r *http.Request) {
	stats := make([]domain.StrategyStats, 0, len(s.strategyIDs))
	for _, id := range s.strategyIDs {
		stats = append(stats, s.knowledge.StrategyStats(id))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

// summarize aggregates endpoint statuses, worst case wins, and reports
// the fraction of required endpoints currently Healthy so gates can
// demand a floor before letting dependents start.
func (s *Server) summarize() Summary {
	summary := Summary{Status: domain.StatusHealthy, Endpoints: len(s.endpoints)}

	requiredTotal, requiredHealthy := 0, 0
	for _, ep := range s.endpoints {
		status := s.tracker.Status(ep.Key())
		if status.Rank() > summary.Status.Rank() {
			summary.Status = status
		}
		if ep.Required() {
			requiredTotal++
			if status == domain.StatusHealthy {
				requiredHealthy++
			}
		}
	}
	if requiredTotal > 0 {
		summary.RequiredHealthyFraction = float64(requiredHealthy) / float64(requiredTotal)
	} else {
		summary.RequiredHealthyFraction = 1
	}
	return summary
}
