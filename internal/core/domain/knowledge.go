package domain

import (
	"fmt"
	"time"
)

// KnowledgeScope distinguishes the two learning tiers.
type KnowledgeScope string

const (
	ScopeGlobal KnowledgeScope = "global"
	ScopeSource KnowledgeScope = "source"
)

// PatternSignature identifies a learned pattern: which strategy was
// applied to which error kind, bucketed by the health status the endpoint
// was in at the time.
type PatternSignature struct {
	StrategyID   string       `json:"strategy_id"`
	Kind         ErrorKind    `json:"kind"`
	StatusBucket HealthStatus `json:"status_bucket"`
}

// String renders the signature as a stable storage key.
func (p PatternSignature) String() string {
	return fmt.Sprintf("%s|%s|%s", p.StrategyID, p.Kind, p.StatusBucket)
}

// KnowledgeEntry is one learned effectiveness estimate. There is one
// Global entry per signature and at most one Source entry per
// (signature, source); the Source entry is created lazily on the first
// source-specific observation.
type KnowledgeEntry struct {
	Scope         KnowledgeScope   `json:"scope"`
	Source        string           `json:"source,omitempty"` // empty for global
	Signature     PatternSignature `json:"signature"`
	Confidence    float64          `json:"confidence"` // always in [0,1]
	SampleCount   int64            `json:"sample_count"`
	SuccessCount  int64            `json:"success_count"`
	FailureCount  int64            `json:"failure_count"`
	AvgFixLatency time.Duration    `json:"avg_fix_latency"`
	LastUpdated   time.Time        `json:"last_updated"`
}
