package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/feedguard/feedguard/internal/core/domain"
)

const bodySnippetLimit = 512

// HTTPFetcher fetches JSON payloads from a market-data HTTP endpoint.
type HTTPFetcher struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher for one source.
func NewHTTPFetcher(name, baseURL, apiKey string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Fetch performs a single GET for the endpoint's symbol. The deadline on
// ctx bounds the whole request; expiry surfaces as a timed-out Error.
func (f *HTTPFetcher) Fetch(ctx context.Context, ep domain.Endpoint, params Params) (*Result, error) {
	start := time.Now()

	reqURL, err := f.buildURL(ep, params)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("build url: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &Error{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if f.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.apiKey)
	}

	resp, err := f.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return nil, &Error{
			Latency:  latency,
			TimedOut: ctx.Err() == context.DeadlineExceeded,
			Err:      fmt.Errorf("fetch %s: %w", ep.Key(), err),
		}
	}
	defer resp.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	latency = time.Since(start)
	if readErr != nil {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Err:        fmt.Errorf("read response: %w", readErr),
		}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Latency:    latency,
			Body:       snippet(body),
			Err:        fmt.Errorf("fetch %s: http %d", ep.Key(), resp.StatusCode),
		}
	}

	return &Result{Payload: body, Latency: latency}, nil
}

func (f *HTTPFetcher) buildURL(ep domain.Endpoint, params Params) (string, error) {
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("symbol", ep.Symbol)
	if params.Window > 0 {
		q.Set("window", strconv.FormatInt(int64(params.Window/time.Second), 10))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > bodySnippetLimit {
		s = s[:bodySnippetLimit]
	}
	return s
}
