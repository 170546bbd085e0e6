package domain

import "time"

// HealthStatus is the rolled-up state of one endpoint.
type HealthStatus string

const (
	StatusHealthy  HealthStatus = "healthy"
	StatusDegraded HealthStatus = "degraded"
	StatusCritical HealthStatus = "critical"
	StatusFailed   HealthStatus = "failed"
)

// Rank orders statuses by severity (higher = worse).
func (s HealthStatus) Rank() int {
	switch s {
	case StatusHealthy:
		return 0
	case StatusDegraded:
		return 1
	case StatusCritical:
		return 2
	case StatusFailed:
		return 3
	}
	return 0
}

// HealthRecord is the rolling-window-derived status summary for one
// endpoint. Status is a pure function of the window and the consecutive
// failure count; it is recomputed on every outcome and never set directly.
type HealthRecord struct {
	EndpointKey         string       `json:"endpoint_key"`
	Status              HealthStatus `json:"status"`
	Window              []bool       `json:"-"` // true = success, oldest first
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastSuccessAt       time.Time    `json:"last_success_at"`
	LastFailureAt       time.Time    `json:"last_failure_at"`
	UptimePercentage    float64      `json:"uptime_percentage"`
}

// Transition records a status change for one endpoint.
type Transition struct {
	EndpointKey string
	From        HealthStatus
	To          HealthStatus
	At          time.Time
}
