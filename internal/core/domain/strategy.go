package domain

import "time"

// StrategyInfo is the registry-facing description of one remediation
// strategy: what it applies to and how it ranks before learning kicks in.
type StrategyInfo struct {
	ID       string      `json:"id"`
	Kinds    []ErrorKind `json:"kinds"`  // may contain KindAny
	Source   string      `json:"source"` // "" = all sources
	Priority int         `json:"priority"`
}

// AppliesTo reports whether the strategy declares the given kind.
func (s StrategyInfo) AppliesTo(kind ErrorKind) bool {
	for _, k := range s.Kinds {
		if k == KindAny || k == kind {
			return true
		}
	}
	return false
}

// AppliesToSource reports whether the strategy is usable for the source.
func (s StrategyInfo) AppliesToSource(source string) bool {
	return s.Source == "" || s.Source == source
}

// StrategyStats are the learned counters for one strategy. Mutated only
// via the knowledge store under its lock.
type StrategyStats struct {
	StrategyID    string        `json:"strategy_id"`
	SuccessCount  int64         `json:"success_count"`
	FailureCount  int64         `json:"failure_count"`
	AvgFixLatency time.Duration `json:"avg_fix_latency"`
}
