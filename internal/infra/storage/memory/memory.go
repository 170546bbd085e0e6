// Package memory holds in-memory implementations of the storage
// repositories and the warm cache. Used when no database or Redis is
// configured, and by tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/feedguard/feedguard/internal/cache"
	"github.com/feedguard/feedguard/internal/core/domain"
)

type Storage struct {
	events    map[string]*domain.ErrorEvent
	health    map[string]domain.HealthRecord
	knowledge map[string]domain.KnowledgeEntry
	alerts    map[string]*domain.Alert
	snapshots map[string]snapshot
	mu        sync.RWMutex
}

type snapshot struct {
	payload  []byte
	storedAt time.Time
}

func NewStorage() *Storage {
	return &Storage{
		events:    make(map[string]*domain.ErrorEvent),
		health:    make(map[string]domain.HealthRecord),
		knowledge: make(map[string]domain.KnowledgeEntry),
		alerts:    make(map[string]*domain.Alert),
		snapshots: make(map[string]snapshot),
	}
}

// -----------------------------------------------------------------------------
// Error Event Repository
// -----------------------------------------------------------------------------

type ErrorEventRepo struct {
	store *Storage
}

func NewErrorEventRepo(store *Storage) *ErrorEventRepo {
	return &ErrorEventRepo{store: store}
}

func (r *ErrorEventRepo) Add(ctx context.Context, ev *domain.ErrorEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *ev
	r.store.events[ev.ID] = &cp
	return nil
}

func (r *ErrorEventRepo) MarkResolved(ctx context.Context, id, strategyID string, retryCount int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ev, ok := r.store.events[id]; ok {
		ev.Resolved = true
		ev.StrategyUsed = strategyID
		ev.RetryCount = retryCount
	}
	return nil
}

func (r *ErrorEventRepo) SetRetryCount(ctx context.Context, id string, retryCount int) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	if ev, ok := r.store.events[id]; ok {
		ev.RetryCount = retryCount
	}
	return nil
}

func (r *ErrorEventRepo) ListByEndpoint(ctx context.Context, endpointKey string, from, to time.Time) ([]*domain.ErrorEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var events []*domain.ErrorEvent
	for _, ev := range r.store.events {
		if ev.EndpointKey != endpointKey {
			continue
		}
		if ev.CreatedAt.Before(from) || ev.CreatedAt.After(to) {
			continue
		}
		cp := *ev
		events = append(events, &cp)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	return events, nil
}

func (r *ErrorEventRepo) CountUnresolved(ctx context.Context, endpointKey string) (int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	count := 0
	for _, ev := range r.store.events {
		if ev.EndpointKey == endpointKey && !ev.Resolved {
			count++
		}
	}
	return count, nil
}

// -----------------------------------------------------------------------------
// Health Repository
// -----------------------------------------------------------------------------

type HealthRepo struct {
	store *Storage
}

func NewHealthRepo(store *Storage) *HealthRepo {
	return &HealthRepo{store: store}
}

func (r *HealthRepo) Upsert(ctx context.Context, rec domain.HealthRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	rec.Window = append([]bool(nil), rec.Window...)
	r.store.health[rec.EndpointKey] = rec
	return nil
}

func (r *HealthRepo) GetAll(ctx context.Context) ([]domain.HealthRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	records := make([]domain.HealthRecord, 0, len(r.store.health))
	for _, rec := range r.store.health {
		rec.Window = append([]bool(nil), rec.Window...)
		records = append(records, rec)
	}
	return records, nil
}

// -----------------------------------------------------------------------------
// Knowledge Repository
// -----------------------------------------------------------------------------

type KnowledgeRepo struct {
	store *Storage
}

func NewKnowledgeRepo(store *Storage) *KnowledgeRepo {
	return &KnowledgeRepo{store: store}
}

func knowledgeKey(e domain.KnowledgeEntry) string {
	return string(e.Scope) + "|" + e.Source + "|" + e.Signature.String()
}

func (r *KnowledgeRepo) Upsert(ctx context.Context, e domain.KnowledgeEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.knowledge[knowledgeKey(e)] = e
	return nil
}

func (r *KnowledgeRepo) GetAll(ctx context.Context) ([]domain.KnowledgeEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	entries := make([]domain.KnowledgeEntry, 0, len(r.store.knowledge))
	for _, e := range r.store.knowledge {
		entries = append(entries, e)
	}
	return entries, nil
}

// -----------------------------------------------------------------------------
// Alert Repository
// -----------------------------------------------------------------------------

type AlertRepo struct {
	store *Storage
}

func NewAlertRepo(store *Storage) *AlertRepo {
	return &AlertRepo{store: store}
}

func (r *AlertRepo) Add(ctx context.Context, a *domain.Alert) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *a
	r.store.alerts[a.ID] = &cp
	return nil
}

func (r *AlertRepo) Update(ctx context.Context, a *domain.Alert) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	cp := *a
	r.store.alerts[a.ID] = &cp
	return nil
}

func (r *AlertRepo) GetOpen(ctx context.Context) ([]*domain.Alert, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	var alerts []*domain.Alert
	for _, a := range r.store.alerts {
		if a.ResolvedAt == nil {
			cp := *a
			alerts = append(alerts, &cp)
		}
	}
	return alerts, nil
}

// -----------------------------------------------------------------------------
// Snapshot Repository (cold cache tier)
// -----------------------------------------------------------------------------

type SnapshotRepo struct {
	store *Storage
}

func NewSnapshotRepo(store *Storage) *SnapshotRepo {
	return &SnapshotRepo{store: store}
}

func (r *SnapshotRepo) GetSnapshot(ctx context.Context, key string) ([]byte, time.Time, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	s, ok := r.store.snapshots[key]
	if !ok {
		return nil, time.Time{}, cache.ErrCacheMiss
	}
	return append([]byte(nil), s.payload...), s.storedAt, nil
}

func (r *SnapshotRepo) PutSnapshot(ctx context.Context, key string, payload []byte, storedAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.snapshots[key] = snapshot{
		payload:  append([]byte(nil), payload...),
		storedAt: storedAt,
	}
	return nil
}

// -----------------------------------------------------------------------------
// Warm Cache (TTL'd, Redis stand-in)
// -----------------------------------------------------------------------------

type WarmCache struct {
	entries map[string]warmEntry
	mu      sync.RWMutex
}

type warmEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewWarmCache() *WarmCache {
	return &WarmCache{entries: make(map[string]warmEntry)}
}

func (c *WarmCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Now().After(e.expiresAt) {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *WarmCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = warmEntry{
		value:     append([]byte(nil), value...),
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}
