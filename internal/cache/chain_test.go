package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/fetch"
)

// =============================================================================
// Mocks
// =============================================================================

type mockFetcher struct {
	payload []byte
	err     error
	calls   int
}

func (f *mockFetcher) Fetch(ctx context.Context, ep domain.Endpoint, params fetch.Params) (*fetch.Result, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{Payload: f.payload}, nil
}

type mockWarm struct {
	mu      sync.Mutex
	entries map[string][]byte
	sets    int
}

func newMockWarm() *mockWarm {
	return &mockWarm{entries: make(map[string][]byte)}
}

func (w *mockWarm) Get(ctx context.Context, key string) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if v, ok := w.entries[key]; ok {
		return v, nil
	}
	return nil, ErrCacheMiss
}

func (w *mockWarm) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries[key] = value
	w.sets++
	return nil
}

type mockCold struct {
	mu       sync.Mutex
	payloads map[string][]byte
	storedAt map[string]time.Time
	puts     int
}

func newMockCold() *mockCold {
	return &mockCold{
		payloads: make(map[string][]byte),
		storedAt: make(map[string]time.Time),
	}
}

func (c *mockCold) GetSnapshot(ctx context.Context, key string) ([]byte, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.payloads[key]; ok {
		return v, c.storedAt[key], nil
	}
	return nil, time.Time{}, ErrCacheMiss
}

func (c *mockCold) PutSnapshot(ctx context.Context, key string, payload []byte, storedAt time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads[key] = payload
	c.storedAt[key] = storedAt
	c.puts++
	return nil
}

type mockStatus struct {
	status domain.HealthStatus
}

func (s *mockStatus) Status(endpointKey string) domain.HealthStatus {
	if s.status == "" {
		return domain.StatusHealthy
	}
	return s.status
}

// =============================================================================
// Tests
// =============================================================================

func chainEndpoint() domain.Endpoint {
	return domain.Endpoint{Source: "coinbase", Symbol: "BTC-USD"}
}

func newTestChain(f fetch.Fetcher, validator fetch.Validator, status *mockStatus) (*Chain, *mockWarm, *mockCold) {
	registry := fetch.NewRegistry()
	registry.Register("coinbase", f)
	if validator != nil {
		registry.RegisterValidator("coinbase", validator)
	}
	warm := newMockWarm()
	cold := newMockCold()
	return NewChain(registry, warm, cold, status, time.Minute, nil), warm, cold
}

func TestResolve_FreshWritesThrough(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(`{"price":1}`)}
	chain, warm, cold := newTestChain(fetcher, nil, &mockStatus{})

	v, err := chain.Resolve(context.Background(), chainEndpoint(), fetch.Params{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Tier != TierFresh || v.Stale {
		t.Errorf("Expected fresh non-stale value, got %+v", v)
	}
	if warm.sets != 1 || cold.puts != 1 {
		t.Errorf("Expected write-through to both tiers, got warm=%d cold=%d", warm.sets, cold.puts)
	}
}

func TestResolve_FallsBackToWarm(t *testing.T) {
	fetcher := &mockFetcher{err: &fetch.Error{StatusCode: 500}}
	chain, warm, _ := newTestChain(fetcher, nil, &mockStatus{})

	warm.entries["feed:coinbase:BTC-USD"] = []byte(`{"price":2}`)

	v, err := chain.Resolve(context.Background(), chainEndpoint(), fetch.Params{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Tier != TierWarm {
		t.Errorf("Expected warm tier, got %s", v.Tier)
	}
}

func TestResolve_FallsBackToCold(t *testing.T) {
	fetcher := &mockFetcher{err: &fetch.Error{StatusCode: 500}}
	chain, _, cold := newTestChain(fetcher, nil, &mockStatus{})

	storedAt := time.Now().Add(-time.Hour)
	cold.payloads["coinbase:BTC-USD"] = []byte(`{"price":3}`)
	cold.storedAt["coinbase:BTC-USD"] = storedAt

	v, err := chain.Resolve(context.Background(), chainEndpoint(), fetch.Params{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if v.Tier != TierCold {
		t.Errorf("Expected cold tier, got %s", v.Tier)
	}
	if !v.Stale {
		t.Error("Cold values must be flagged stale")
	}
	if !v.FetchedAt.Equal(storedAt) {
		t.Errorf("Expected original stored time, got %v", v.FetchedAt)
	}
}

func TestResolve_AbsentIsExplicit(t *testing.T) {
	fetcher := &mockFetcher{err: &fetch.Error{StatusCode: 500}}
	chain, _, _ := newTestChain(fetcher, nil, &mockStatus{})

	v, err := chain.Resolve(context.Background(), chainEndpoint(), fetch.Params{})
	if !errors.Is(err, ErrAbsent) {
		t.Fatalf("Expected ErrAbsent, got %v", err)
	}
	if v != nil {
		t.Errorf("Expected no value on total miss, got %+v", v)
	}
}

func TestResolve_FailedEndpointSkipsFresh(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(`{"price":1}`)}
	chain, warm, _ := newTestChain(fetcher, nil, &mockStatus{status: domain.StatusFailed})

	warm.entries["feed:coinbase:BTC-USD"] = []byte(`{"price":2}`)

	v, err := chain.Resolve(context.Background(), chainEndpoint(), fetch.Params{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("Expected no fresh fetch for a failed endpoint, got %d calls", fetcher.calls)
	}
	if v.Tier != TierWarm {
		t.Errorf("Expected warm tier, got %s", v.Tier)
	}
}

func TestResolve_InvalidPayloadNeverCached(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(`not json`)}
	validator := func(payload []byte) error { return errors.New("invalid quote payload") }
	chain, warm, cold := newTestChain(fetcher, validator, &mockStatus{})

	_, err := chain.Resolve(context.Background(), chainEndpoint(), fetch.Params{})
	if !errors.Is(err, ErrAbsent) {
		t.Fatalf("Expected ErrAbsent after validation failure on empty tiers, got %v", err)
	}
	if warm.sets != 0 || cold.puts != 0 {
		t.Errorf("Invalid payload must never be cached, got warm=%d cold=%d", warm.sets, cold.puts)
	}
}

func TestResolveCached_NeverFetches(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(`{"price":1}`)}
	chain, _, cold := newTestChain(fetcher, nil, &mockStatus{})

	cold.payloads["coinbase:BTC-USD"] = []byte(`{"price":4}`)
	cold.storedAt["coinbase:BTC-USD"] = time.Now()

	v, err := chain.ResolveCached(context.Background(), chainEndpoint())
	if err != nil {
		t.Fatalf("ResolveCached failed: %v", err)
	}
	if fetcher.calls != 0 {
		t.Errorf("ResolveCached must not fetch, got %d calls", fetcher.calls)
	}
	if v.Tier != TierCold {
		t.Errorf("Expected cold tier, got %s", v.Tier)
	}
}

func TestFetchValidated_BypassesCacheRead(t *testing.T) {
	fetcher := &mockFetcher{payload: []byte(`{"price":5}`)}
	chain, warm, _ := newTestChain(fetcher, nil, &mockStatus{status: domain.StatusFailed})

	// Even a Failed endpoint re-fetches here: healing strategies use this
	// path deliberately.
	v, err := chain.FetchValidated(context.Background(), chainEndpoint(), fetch.Params{})
	if err != nil {
		t.Fatalf("FetchValidated failed: %v", err)
	}
	if v.Tier != TierFresh {
		t.Errorf("Expected fresh tier, got %s", v.Tier)
	}
	if warm.sets != 1 {
		t.Errorf("Expected successful validated fetch to warm the cache, got %d sets", warm.sets)
	}
}
