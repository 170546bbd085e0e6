// Package domain holds the shared types of the feed reliability engine.
package domain

import (
	"fmt"
	"time"
)

// Criticality tells the alerting layer how much an endpoint matters.
type Criticality string

const (
	CriticalityRequired Criticality = "required"
	CriticalityOptional Criticality = "optional"
)

// Endpoint is one logical (source, symbol) pair the engine monitors.
// Endpoints are registered once at startup and never mutated.
type Endpoint struct {
	Source      string        `yaml:"source"      json:"source"`
	Symbol      string        `yaml:"symbol"      json:"symbol"`
	Interval    time.Duration `yaml:"interval"    json:"interval"`
	Timeout     time.Duration `yaml:"timeout"     json:"timeout"`
	Criticality Criticality   `yaml:"criticality" json:"criticality"`
}

// Key returns the canonical identity of the endpoint.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s:%s", e.Source, e.Symbol)
}

// Required reports whether the endpoint is in the required tier.
func (e Endpoint) Required() bool {
	return e.Criticality == CriticalityRequired
}
