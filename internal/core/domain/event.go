package domain

import "time"

// ErrorEvent is an immutable, append-only record of one classified
// failure. It is updated exactly once by the healing engine (resolved
// flag + strategy used) and never deleted by the engine itself.
type ErrorEvent struct {
	ID           string        `json:"id"`
	EndpointKey  string        `json:"endpoint_key"`
	Source       string        `json:"source"`
	Kind         ErrorKind     `json:"kind"`
	Detail       string        `json:"detail"`
	StatusCode   int           `json:"status_code"`
	Latency      time.Duration `json:"latency"`
	RetryCount   int           `json:"retry_count"`
	Resolved     bool          `json:"resolved"`
	StrategyUsed string        `json:"strategy_used,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}
