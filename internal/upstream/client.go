// Package upstream is the consumed client for the remote hydrology API.
// Timeouts, non-2xx responses, empty bodies and unparsable bodies all surface
// as the same fetch failure kind; the resolver's fallback tiers decide what
// happens next.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"
)

// ErrFetch wraps every upstream failure mode: timeout, non-2xx status, empty
// body, unparsable body. Callers recover by trying the next fallback tier.
var ErrFetch = errors.New("upstream fetch failed")

// Fetcher is the single operation the collector and resolver need from the
// upstream source. selectTime is a two-digit hour "00".."24" or empty for
// "whole day, latest".
type Fetcher interface {
	Fetch(ctx context.Context, stationID, date, selectTime string) (json.RawMessage, error)
}

// BackoffConfig controls retry behaviour for transient upstream failures.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Client fetches station readings over HTTP with a bounded timeout, retries
// with exponential backoff, and a circuit breaker guarding a flapping source.
type Client struct {
	baseURL    string
	httpClient *http.Client
	backoff    BackoffConfig
	circuit    *gobreaker.CircuitBreaker
}

// NewClient builds a Client for the given API base URL. timeout bounds each
// individual request attempt.
func NewClient(baseURL string, timeout time.Duration) *Client {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "hydro-api",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		backoff: BackoffConfig{
			MaxRetries:      2,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		},
		circuit: cb,
	}
}

// Fetch requests one station reading. The returned payload is the raw JSON
// object exactly as served; it may still be an unusable (empty-level) reading.
func (c *Client) Fetch(ctx context.Context, stationID, date, selectTime string) (json.RawMessage, error) {
	values := url.Values{}
	values.Set("station_id", stationID)
	values.Set("select_time", selectTime)
	values.Set("date", date)
	reqURL := fmt.Sprintf("%s?%s", c.baseURL, values.Encode())

	var attempt int
	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}

		payload, err := c.doOnce(ctx, reqURL)
		if err == nil {
			return payload, nil
		}

		// An open circuit or a cancelled context will not improve by retrying.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}
		if attempt >= c.backoff.MaxRetries {
			return nil, fmt.Errorf("%w: %v", ErrFetch, err)
		}

		delay := c.backoff.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if c.backoff.MaxInterval > 0 && delay > c.backoff.MaxInterval {
			delay = c.backoff.MaxInterval
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("%w: %v", ErrFetch, ctx.Err())
		case <-timer.C:
		}
		attempt++
	}
}

func (c *Client) doOnce(ctx context.Context, reqURL string) (json.RawMessage, error) {
	result, err := c.circuit.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		req.Header.Set("User-Agent", "cnx-waterlevel-monitor/1.0")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if len(body) == 0 {
			return nil, errors.New("empty response body")
		}

		// The payload must at least be a JSON object; field contents are the
		// validity predicate's business, not the transport's.
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(body, &probe); err != nil {
			return nil, fmt.Errorf("unparsable response body: %w", err)
		}

		return json.RawMessage(body), nil
	})
	if err != nil {
		return nil, err
	}
	return result.(json.RawMessage), nil
}
