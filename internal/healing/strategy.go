package healing

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/feedguard/feedguard/internal/cache"
	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/fetch"
)

// Strategy is one named remediation action. Concrete per-source
// strategies are registered externally; the builtin catalogue below is
// source-agnostic.
type Strategy interface {
	Info() domain.StrategyInfo

	// Execute attempts the remediation once. ctx carries the per-attempt
	// deadline.
	Execute(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error
}

// CacheServing marks strategies that resolve by serving cached data.
// The engine refuses to run them for kinds where cached data would
// silently corrupt downstream display (MalformedResponse, StaleData).
type CacheServing interface {
	ServesCache() bool
}

// Registry holds the strategy catalogue keyed by id.
type Registry struct {
	strategies map[string]Strategy
}

// NewRegistry creates an empty strategy registry.
func NewRegistry() *Registry {
	return &Registry{strategies: make(map[string]Strategy)}
}

// Register adds a strategy. Later registrations with the same id replace
// earlier ones.
func (r *Registry) Register(s Strategy) {
	r.strategies[s.Info().ID] = s
}

// IDs lists the registered strategy ids, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.strategies))
	for id := range r.strategies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SourceGated strategies opt out of sources they cannot serve (e.g. the
// provider switch when no alternate is registered).
type SourceGated interface {
	AvailableFor(source string) bool
}

// Match returns the strategies applicable to (kind, source), sorted by
// id so the candidate list is deterministic before scoring.
func (r *Registry) Match(kind domain.ErrorKind, source string) []Strategy {
	var out []Strategy
	for _, s := range r.strategies {
		info := s.Info()
		if !info.AppliesTo(kind) || !info.AppliesToSource(source) {
			continue
		}
		if gated, ok := s.(SourceGated); ok && !gated.AvailableFor(source) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Info().ID < out[j].Info().ID
	})
	return out
}

// =============================================================================
// Builtin catalogue
// =============================================================================

// BackoffRetry re-fetches with exponential backoff and validation. It
// covers the transient kinds plus MalformedResponse and StaleData, which
// may only be healed by a validated re-fetch.
type BackoffRetry struct {
	chain        *cache.Chain
	initialDelay time.Duration
	maxRetries   uint64
}

// NewBackoffRetry creates the retry strategy. Defaults: 500ms initial
// delay, 2 retries within one engine attempt.
func NewBackoffRetry(chain *cache.Chain) *BackoffRetry {
	return &BackoffRetry{chain: chain, initialDelay: 500 * time.Millisecond, maxRetries: 2}
}

func (s *BackoffRetry) Info() domain.StrategyInfo {
	return domain.StrategyInfo{
		ID: "backoff_retry",
		Kinds: []domain.ErrorKind{
			domain.KindRateLimited,
			domain.KindTimeout,
			domain.KindNetworkError,
			domain.KindServerError,
			domain.KindMalformedResponse,
			domain.KindStaleData,
		},
		Priority: 30,
	}
}

func (s *BackoffRetry) Execute(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error {
	backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.initialDelay))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		if _, err := s.chain.FetchValidated(ctx, ep, fetch.Params{}); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
}

// ServeFromCache resolves transient failures by serving a warm or cold
// entry. It never applies to MalformedResponse or StaleData.
type ServeFromCache struct {
	chain *cache.Chain
}

// NewServeFromCache creates the cache-serving strategy.
func NewServeFromCache(chain *cache.Chain) *ServeFromCache {
	return &ServeFromCache{chain: chain}
}

func (s *ServeFromCache) Info() domain.StrategyInfo {
	return domain.StrategyInfo{
		ID: "serve_from_cache",
		Kinds: []domain.ErrorKind{
			domain.KindRateLimited,
			domain.KindTimeout,
			domain.KindNetworkError,
			domain.KindServerError,
		},
		Priority: 20,
	}
}

func (s *ServeFromCache) ServesCache() bool { return true }

func (s *ServeFromCache) Execute(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error {
	if _, err := s.chain.ResolveCached(ctx, ep); err != nil {
		return fmt.Errorf("serve from cache: %w", err)
	}
	return nil
}

// ReduceScope retries the fetch with a smaller request window, for
// providers that reject or time out on large lookbacks.
type ReduceScope struct {
	chain  *cache.Chain
	window time.Duration
}

// NewReduceScope creates the reduced-window retry strategy.
func NewReduceScope(chain *cache.Chain, window time.Duration) *ReduceScope {
	if window <= 0 {
		window = time.Hour
	}
	return &ReduceScope{chain: chain, window: window}
}

func (s *ReduceScope) Info() domain.StrategyInfo {
	return domain.StrategyInfo{
		ID: "reduce_scope",
		Kinds: []domain.ErrorKind{
			domain.KindRateLimited,
			domain.KindTimeout,
			domain.KindServerError,
		},
		Priority: 10,
	}
}

func (s *ReduceScope) Execute(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error {
	if _, err := s.chain.FetchValidated(ctx, ep, fetch.Params{Window: s.window / 2}); err != nil {
		return fmt.Errorf("reduce scope: %w", err)
	}
	return nil
}

// SwitchProvider re-fetches through the source's alternate provider.
// Only sources that registered an alternate are eligible; this is also
// the only strategy besides backoff that may touch AuthError and
// QuotaExceeded.
type SwitchProvider struct {
	registry *fetch.Registry
	chain    *cache.Chain
}

// NewSwitchProvider creates the alternate-provider strategy.
func NewSwitchProvider(registry *fetch.Registry, chain *cache.Chain) *SwitchProvider {
	return &SwitchProvider{registry: registry, chain: chain}
}

func (s *SwitchProvider) Info() domain.StrategyInfo {
	return domain.StrategyInfo{
		ID:       "switch_provider",
		Kinds:    []domain.ErrorKind{domain.KindAny},
		Priority: 5,
	}
}

// AvailableFor gates the strategy to sources with a registered alternate.
func (s *SwitchProvider) AvailableFor(source string) bool {
	_, ok := s.registry.Alternate(source)
	return ok
}

func (s *SwitchProvider) Execute(ctx context.Context, ep domain.Endpoint, ev *domain.ErrorEvent) error {
	alt, ok := s.registry.Alternate(ep.Source)
	if !ok {
		return fmt.Errorf("no alternate provider for source %q", ep.Source)
	}

	res, err := alt.Fetch(ctx, ep, fetch.Params{})
	if err != nil {
		return fmt.Errorf("alternate fetch: %w", err)
	}
	if err := s.registry.Validate(ep.Source, res.Payload); err != nil {
		return fmt.Errorf("alternate payload validation: %w", err)
	}

	s.chain.StoreFresh(ctx, ep, res.Payload)
	return nil
}
