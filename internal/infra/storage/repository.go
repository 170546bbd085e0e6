// Package storage defines the persistence boundaries of the engine.
// Three record families are persisted: error events (append-only),
// endpoint health (one row per endpoint, overwritten), and knowledge
// entries (one row per scope + pattern signature). Alerts and cold
// payload snapshots ride the same store.
package storage

import (
	"context"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// ErrorEventRepository persists classified failures.
type ErrorEventRepository interface {
	// Add appends a new error event.
	Add(ctx context.Context, ev *domain.ErrorEvent) error

	// MarkResolved records the winning strategy for an event. Called at
	// most once per event.
	MarkResolved(ctx context.Context, id, strategyID string, retryCount int) error

	// SetRetryCount updates the attempt counter for an unresolved event.
	SetRetryCount(ctx context.Context, id string, retryCount int) error

	// ListByEndpoint returns events for one endpoint in a time range,
	// newest first.
	ListByEndpoint(ctx context.Context, endpointKey string, from, to time.Time) ([]*domain.ErrorEvent, error)

	// CountUnresolved returns the number of unresolved events for one
	// endpoint.
	CountUnresolved(ctx context.Context, endpointKey string) (int, error)
}

// HealthRepository checkpoints endpoint health records.
type HealthRepository interface {
	// Upsert overwrites the health row for an endpoint.
	Upsert(ctx context.Context, rec domain.HealthRecord) error

	// GetAll returns every persisted health record.
	GetAll(ctx context.Context) ([]domain.HealthRecord, error)
}

// KnowledgeRepository checkpoints learned strategy effectiveness.
type KnowledgeRepository interface {
	// Upsert overwrites one knowledge entry.
	Upsert(ctx context.Context, e domain.KnowledgeEntry) error

	// GetAll returns every persisted knowledge entry.
	GetAll(ctx context.Context) ([]domain.KnowledgeEntry, error)
}

// AlertRepository persists alerts as they open, escalate, and resolve.
type AlertRepository interface {
	// Add inserts a newly opened alert.
	Add(ctx context.Context, a *domain.Alert) error

	// Update overwrites the mutable fields (level, escalation count,
	// resolved_at) of an alert.
	Update(ctx context.Context, a *domain.Alert) error

	// GetOpen returns all open alerts.
	GetOpen(ctx context.Context) ([]*domain.Alert, error)
}

// SnapshotRepository is the cold cache tier: durable payload snapshots
// with no freshness requirement.
type SnapshotRepository interface {
	GetSnapshot(ctx context.Context, key string) (payload []byte, storedAt time.Time, err error)
	PutSnapshot(ctx context.Context, key string, payload []byte, storedAt time.Time) error
}
