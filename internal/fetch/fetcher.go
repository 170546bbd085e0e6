// Package fetch defines the provider-facing fetcher boundary. The engine
// never embeds provider-specific logic; one fetcher per source is
// registered at startup.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

// Params narrows one fetch request. Window is the lookback the provider
// is asked for; the reduce-scope healing strategy shrinks it on retry.
type Params struct {
	Window time.Duration
}

// Result is a successful fetch.
type Result struct {
	Payload []byte
	Latency time.Duration
}

// Error carries everything the classifier needs about a failed fetch.
type Error struct {
	StatusCode int
	Latency    time.Duration
	Body       string // response snippet, may be empty
	TimedOut   bool
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("fetch failed: http %d", e.StatusCode)
}

func (e *Error) Unwrap() error { return e.Err }

// Fetcher retrieves one payload for an endpoint within the deadline on
// ctx. On failure it returns a *fetch.Error.
type Fetcher interface {
	Fetch(ctx context.Context, ep domain.Endpoint, params Params) (*Result, error)
}

// ErrStalePayload is returned (possibly wrapped) by validators when the
// payload parses but its data is older than the source's freshness bound.
var ErrStalePayload = errors.New("stale payload")

// Validator checks a payload's shape for one source. A non-nil return
// means the payload must be treated as MalformedResponse (or StaleData
// when the error wraps ErrStalePayload), never as data.
type Validator func(payload []byte) error

// Registry maps sources to their fetchers, optional alternates, and
// payload validators.
type Registry struct {
	fetchers   map[string]Fetcher
	alternates map[string]Fetcher
	validators map[string]Validator
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		fetchers:   make(map[string]Fetcher),
		alternates: make(map[string]Fetcher),
		validators: make(map[string]Validator),
	}
}

// Register binds the primary fetcher for a source.
func (r *Registry) Register(source string, f Fetcher) {
	r.fetchers[source] = f
}

// RegisterAlternate binds a fallback provider for a source. Only sources
// with an alternate are eligible for the switch-provider strategy.
func (r *Registry) RegisterAlternate(source string, f Fetcher) {
	r.alternates[source] = f
}

// RegisterValidator binds a payload validator for a source.
func (r *Registry) RegisterValidator(source string, v Validator) {
	r.validators[source] = v
}

// Primary returns the fetcher for a source.
func (r *Registry) Primary(source string) (Fetcher, bool) {
	f, ok := r.fetchers[source]
	return f, ok
}

// Alternate returns the alternate fetcher for a source, if registered.
func (r *Registry) Alternate(source string) (Fetcher, bool) {
	f, ok := r.alternates[source]
	return f, ok
}

// Validate runs the source's validator against a payload. Sources without
// a validator accept any payload.
func (r *Registry) Validate(source string, payload []byte) error {
	v, ok := r.validators[source]
	if !ok {
		return nil
	}
	return v(payload)
}

// Verify checks that every endpoint has a registered fetcher. A missing
// fetcher is a configuration error and must prevent startup.
func (r *Registry) Verify(endpoints []domain.Endpoint) error {
	for _, ep := range endpoints {
		if _, ok := r.fetchers[ep.Source]; !ok {
			return fmt.Errorf("endpoint %s registered with no fetcher for source %q", ep.Key(), ep.Source)
		}
	}
	return nil
}
