package fetch

import (
	"encoding/json"
	"fmt"
	"time"
)

// quotePayload is the minimal shape every upstream quote must carry.
type quotePayload struct {
	Symbol    string  `json:"symbol"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"` // unix seconds
}

// QuoteValidator returns a Validator for market-data quote payloads.
// It rejects payloads that are not well-formed quotes, and when maxAge
// is positive, payloads whose timestamp is older than maxAge (wrapped
// ErrStalePayload).
func QuoteValidator(maxAge time.Duration) Validator {
	return func(payload []byte) error {
		var q quotePayload
		if err := json.Unmarshal(payload, &q); err != nil {
			return fmt.Errorf("invalid quote payload: %w", err)
		}
		if q.Symbol == "" {
			return fmt.Errorf("quote payload missing symbol")
		}
		if q.Price <= 0 {
			return fmt.Errorf("quote payload has non-positive price %v", q.Price)
		}
		if q.Timestamp <= 0 {
			return fmt.Errorf("quote payload missing timestamp")
		}
		if maxAge > 0 {
			age := time.Since(time.Unix(q.Timestamp, 0))
			if age > maxAge {
				return fmt.Errorf("quote is %s old: %w", age.Round(time.Second), ErrStalePayload)
			}
		}
		return nil
	}
}
