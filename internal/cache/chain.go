// Package cache implements the tiered fallback chain:
// fresh fetch -> warm cache -> cold snapshot -> explicit absence.
// On total miss the chain returns ErrAbsent; it never substitutes a
// default, zero, or synthetic value.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/fetch"
	"github.com/feedguard/feedguard/internal/metrics"
)

// ErrAbsent means every tier missed. Not necessarily a failure: it may
// be the very first request for a new key.
var ErrAbsent = errors.New("value absent from all cache tiers")

// Tier names the stage that produced a value.
type Tier string

const (
	TierFresh  Tier = "fresh"
	TierWarm   Tier = "warm"
	TierCold   Tier = "cold"
	TierAbsent Tier = "absent"
)

// Value is one resolved payload with its provenance.
type Value struct {
	Payload   []byte    `json:"payload"`
	Tier      Tier      `json:"tier"`
	Stale     bool      `json:"stale"` // true for cold snapshots
	FetchedAt time.Time `json:"fetched_at"`
}

// WarmCache is the TTL'd key-value tier (Redis in production).
type WarmCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // ErrCacheMiss on miss
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// ErrCacheMiss is returned by WarmCache implementations on a miss.
var ErrCacheMiss = errors.New("cache miss")

// ColdStore is the durable snapshot tier, no freshness requirement.
type ColdStore interface {
	GetSnapshot(ctx context.Context, key string) (payload []byte, storedAt time.Time, err error) // ErrCacheMiss on miss
	PutSnapshot(ctx context.Context, key string, payload []byte, storedAt time.Time) error
}

// StatusReader exposes the current health status of an endpoint. Fresh
// fetches are skipped entirely for Failed endpoints.
type StatusReader interface {
	Status(endpointKey string) domain.HealthStatus
}

// Chain resolves endpoint payloads through the tiers in order.
type Chain struct {
	registry *fetch.Registry
	warm     WarmCache
	cold     ColdStore
	status   StatusReader
	warmTTL  time.Duration
	log      *slog.Logger
}

// NewChain creates the fallback chain. warm and cold may not be nil.
func NewChain(registry *fetch.Registry, warm WarmCache, cold ColdStore, status StatusReader, warmTTL time.Duration, log *slog.Logger) *Chain {
	if warmTTL <= 0 {
		warmTTL = 5 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Chain{
		registry: registry,
		warm:     warm,
		cold:     cold,
		status:   status,
		warmTTL:  warmTTL,
		log:      log,
	}
}

// Resolve walks the tiers for one endpoint. Order: fresh fetch (skipped
// when the endpoint is Failed), warm entry within TTL, cold snapshot
// (flagged stale), then ErrAbsent. Every successful fresh fetch writes
// through to both cache tiers. Payloads failing validation are never
// cached or returned as data.
func (c *Chain) Resolve(ctx context.Context, ep domain.Endpoint, params fetch.Params) (*Value, error) {
	key := ep.Key()

	if c.status.Status(key) != domain.StatusFailed {
		if v, err := c.fetchFresh(ctx, ep, params); err == nil {
			metrics.CacheResolutionsTotal.WithLabelValues(string(TierFresh)).Inc()
			return v, nil
		} else {
			c.log.Debug("fresh fetch failed, falling back", "endpoint", key, "error", err)
		}
	}

	if payload, err := c.warm.Get(ctx, warmKey(key)); err == nil {
		metrics.CacheResolutionsTotal.WithLabelValues(string(TierWarm)).Inc()
		return &Value{Payload: payload, Tier: TierWarm}, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("warm cache read failed", "endpoint", key, "error", err)
	}

	if payload, storedAt, err := c.cold.GetSnapshot(ctx, key); err == nil {
		metrics.CacheResolutionsTotal.WithLabelValues(string(TierCold)).Inc()
		return &Value{Payload: payload, Tier: TierCold, Stale: true, FetchedAt: storedAt}, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		c.log.Warn("cold snapshot read failed", "endpoint", key, "error", err)
	}

	// Distinct event type from an ErrorEvent: an absence is not
	// necessarily a failure.
	metrics.CacheResolutionsTotal.WithLabelValues(string(TierAbsent)).Inc()
	c.log.Info("cache absent", "event", "cache_absent", "endpoint", key)
	return nil, ErrAbsent
}

// FetchValidated performs a fresh fetch and validates the payload
// without consulting the cache tiers. Used by healing strategies that
// must re-fetch with validation rather than serve cached data.
func (c *Chain) FetchValidated(ctx context.Context, ep domain.Endpoint, params fetch.Params) (*Value, error) {
	return c.fetchFresh(ctx, ep, params)
}

// ResolveCached consults only the warm and cold tiers. The
// serve-from-cache healing strategy uses it so a broken fresh payload is
// never retried mid-heal.
func (c *Chain) ResolveCached(ctx context.Context, ep domain.Endpoint) (*Value, error) {
	key := ep.Key()

	if payload, err := c.warm.Get(ctx, warmKey(key)); err == nil {
		metrics.CacheResolutionsTotal.WithLabelValues(string(TierWarm)).Inc()
		return &Value{Payload: payload, Tier: TierWarm}, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("warm cache read: %w", err)
	}

	if payload, storedAt, err := c.cold.GetSnapshot(ctx, key); err == nil {
		metrics.CacheResolutionsTotal.WithLabelValues(string(TierCold)).Inc()
		return &Value{Payload: payload, Tier: TierCold, Stale: true, FetchedAt: storedAt}, nil
	} else if !errors.Is(err, ErrCacheMiss) {
		return nil, fmt.Errorf("cold snapshot read: %w", err)
	}

	return nil, ErrAbsent
}

// StoreFresh writes a validated payload through to both tiers. The
// monitor calls this for every successful check so the chain stays warm.
func (c *Chain) StoreFresh(ctx context.Context, ep domain.Endpoint, payload []byte) {
	key := ep.Key()
	now := time.Now()

	if err := c.warm.Set(ctx, warmKey(key), payload, c.warmTTL); err != nil {
		c.log.Warn("warm cache write failed", "endpoint", key, "error", err)
	}
	if err := c.cold.PutSnapshot(ctx, key, payload, now); err != nil {
		c.log.Warn("cold snapshot write failed", "endpoint", key, "error", err)
	}
}

func (c *Chain) fetchFresh(ctx context.Context, ep domain.Endpoint, params fetch.Params) (*Value, error) {
	fetcher, ok := c.registry.Primary(ep.Source)
	if !ok {
		return nil, fmt.Errorf("no fetcher for source %q", ep.Source)
	}

	res, err := fetcher.Fetch(ctx, ep, params)
	if err != nil {
		return nil, err
	}
	if err := c.registry.Validate(ep.Source, res.Payload); err != nil {
		// Invalid payloads must never enter the cache.
		return nil, fmt.Errorf("payload validation: %w", err)
	}

	now := time.Now()
	c.StoreFresh(ctx, ep, res.Payload)
	return &Value{Payload: res.Payload, Tier: TierFresh, FetchedAt: now}, nil
}

func warmKey(endpointKey string) string {
	return fmt.Sprintf("feed:%s", endpointKey)
}
