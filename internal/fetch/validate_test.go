package fetch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

func quoteJSON(symbol string, price float64, ts int64) []byte {
	return []byte(fmt.Sprintf(`{"symbol":%q,"price":%v,"timestamp":%d}`, symbol, price, ts))
}

func TestQuoteValidator_Accepts(t *testing.T) {
	v := QuoteValidator(time.Hour)
	if err := v(quoteJSON("BTC-USD", 64000.5, time.Now().Unix())); err != nil {
		t.Errorf("Expected valid quote accepted, got %v", err)
	}
}

func TestQuoteValidator_Rejects(t *testing.T) {
	v := QuoteValidator(0)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte(`<html>error</html>`)},
		{"missing symbol", quoteJSON("", 100, time.Now().Unix())},
		{"zero price", quoteJSON("BTC-USD", 0, time.Now().Unix())},
		{"negative price", quoteJSON("BTC-USD", -5, time.Now().Unix())},
		{"missing timestamp", quoteJSON("BTC-USD", 100, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v(tt.payload)
			if err == nil {
				t.Fatal("Expected rejection")
			}
			if errors.Is(err, ErrStalePayload) {
				t.Error("Structural failures must not classify as stale")
			}
		})
	}
}

func TestQuoteValidator_Stale(t *testing.T) {
	v := QuoteValidator(time.Minute)

	old := time.Now().Add(-time.Hour).Unix()
	err := v(quoteJSON("BTC-USD", 100, old))
	if !errors.Is(err, ErrStalePayload) {
		t.Errorf("Expected ErrStalePayload, got %v", err)
	}

	// No freshness bound configured: old data passes.
	unbounded := QuoteValidator(0)
	if err := unbounded(quoteJSON("BTC-USD", 100, old)); err != nil {
		t.Errorf("Expected old quote accepted without a bound, got %v", err)
	}
}

type staticFetcher struct{}

func (staticFetcher) Fetch(ctx context.Context, ep domain.Endpoint, params Params) (*Result, error) {
	return &Result{}, nil
}

func TestRegistry_Verify(t *testing.T) {
	r := NewRegistry()
	r.Register("coinbase", staticFetcher{})

	registered := []domain.Endpoint{{Source: "coinbase", Symbol: "BTC-USD"}}
	if err := r.Verify(registered); err != nil {
		t.Errorf("Expected registered source to verify, got %v", err)
	}

	unregistered := []domain.Endpoint{{Source: "kraken", Symbol: "BTC-USD"}}
	if err := r.Verify(unregistered); err == nil {
		t.Error("Expected missing fetcher to be a startup error")
	}
}
