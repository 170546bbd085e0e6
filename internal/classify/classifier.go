// Package classify maps raw fetch failures into the closed error
// taxonomy. Rules run in fixed priority order so classification is
// deterministic for any input.
package classify

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feedguard/feedguard/internal/core/domain"
	"github.com/feedguard/feedguard/internal/fetch"
)

var rateLimitPatterns = []string{
	"rate limit",
	"too many requests",
	"daily request count exceeded",
	"project rate limit",
}

var quotaPatterns = []string{
	"quota",
	"plan limit",
	"count exceeded",
	"payment required",
}

// Classifier turns fetch failures into classified error events.
type Classifier struct{}

// NewClassifier creates a classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps one failed fetch to an ErrorKind. Priority order:
// explicit rate-limit signals, quota exhaustion, auth failures, timeout,
// payload validation, generic 5xx, network errors, else Unknown.
func (c *Classifier) Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.KindUnknown
	}

	var fe *fetch.Error
	if !errors.As(err, &fe) {
		return domain.KindUnknown
	}

	body := strings.ToLower(fe.Body)
	msg := strings.ToLower(fe.Error())

	switch {
	case fe.StatusCode == http.StatusTooManyRequests,
		containsAny(body, rateLimitPatterns),
		containsAny(msg, rateLimitPatterns):
		return domain.KindRateLimited

	case containsAny(body, quotaPatterns), containsAny(msg, quotaPatterns):
		return domain.KindQuotaExceeded

	case fe.StatusCode == http.StatusUnauthorized, fe.StatusCode == http.StatusForbidden:
		return domain.KindAuthError

	case fe.TimedOut:
		return domain.KindTimeout

	case fe.StatusCode >= 500:
		return domain.KindServerError

	case fe.StatusCode == 0 && fe.Err != nil:
		return domain.KindNetworkError
	}

	return domain.KindUnknown
}

// ClassifyValidation maps a payload-validation failure. Stale payloads
// are distinguished from structurally broken ones; both are barred from
// the cache.
func (c *Classifier) ClassifyValidation(err error) domain.ErrorKind {
	if errors.Is(err, fetch.ErrStalePayload) {
		return domain.KindStaleData
	}
	return domain.KindMalformedResponse
}

// NewEvent builds the append-only ErrorEvent for a classified failure.
func (c *Classifier) NewEvent(ep domain.Endpoint, kind domain.ErrorKind, statusCode int, latency time.Duration, detail string) *domain.ErrorEvent {
	return &domain.ErrorEvent{
		ID:          uuid.New().String(),
		EndpointKey: ep.Key(),
		Source:      ep.Source,
		Kind:        kind,
		Detail:      detail,
		StatusCode:  statusCode,
		Latency:     latency,
		CreatedAt:   time.Now(),
	}
}

func containsAny(s string, patterns []string) bool {
	if s == "" {
		return false
	}
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
