package domain

import "time"

// Outcome is the result of exactly one endpoint check. The monitor loop
// produces one outcome per check, success or not.
type Outcome struct {
	EndpointKey string        `json:"endpoint_key"`
	Success     bool          `json:"success"`
	Kind        ErrorKind     `json:"kind,omitempty"`
	StatusCode  int           `json:"status_code,omitempty"`
	Latency     time.Duration `json:"latency"`
	Detail      string        `json:"detail,omitempty"`
	At          time.Time     `json:"at"`
}
