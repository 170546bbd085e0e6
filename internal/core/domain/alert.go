package domain

import "time"

// AlertLevel is the escalation ladder.
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertError    AlertLevel = "error"
	AlertCritical AlertLevel = "critical"
)

// Rank orders levels by severity (higher = worse).
func (l AlertLevel) Rank() int {
	switch l {
	case AlertWarning:
		return 0
	case AlertError:
		return 1
	case AlertCritical:
		return 2
	}
	return 0
}

// Alert is one notification-worthy condition for an endpoint. At most one
// open alert (ResolvedAt == nil) exists per endpoint at any time.
type Alert struct {
	ID              string     `json:"id"`
	Level           AlertLevel `json:"level"`
	EndpointKey     string     `json:"endpoint_key"`
	Message         string     `json:"message"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	EscalationCount int        `json:"escalation_count"`
}

// Open reports whether the alert has not been resolved yet.
func (a *Alert) Open() bool {
	return a.ResolvedAt == nil
}
