package domain

// ErrorKind is the closed failure taxonomy. Every raw failure maps to
// exactly one kind; classification rules run in fixed priority order.
type ErrorKind string

const (
	KindRateLimited       ErrorKind = "rate_limited"
	KindTimeout           ErrorKind = "timeout"
	KindAuthError         ErrorKind = "auth_error"
	KindServerError       ErrorKind = "server_error"
	KindMalformedResponse ErrorKind = "malformed_response"
	KindStaleData         ErrorKind = "stale_data"
	KindQuotaExceeded     ErrorKind = "quota_exceeded"
	KindNetworkError      ErrorKind = "network_error"
	KindUnknown           ErrorKind = "unknown"

	// KindAny matches every kind in strategy applicability sets.
	KindAny ErrorKind = "any"
)

// Transient reports whether plain retry is a sensible remediation.
// AuthError and QuotaExceeded are excluded: retrying with the same bad
// credential or exhausted quota wastes attempts.
func (k ErrorKind) Transient() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindNetworkError, KindServerError:
		return true
	}
	return false
}

// CacheHealable reports whether serving cached data is an acceptable
// remediation. MalformedResponse and StaleData must never be papered over
// with cached values.
func (k ErrorKind) CacheHealable() bool {
	switch k {
	case KindMalformedResponse, KindStaleData:
		return false
	}
	return true
}

// SingleAttempt reports whether healing must be capped at one attempt.
func (k ErrorKind) SingleAttempt() bool {
	return k == KindAuthError || k == KindQuotaExceeded
}
