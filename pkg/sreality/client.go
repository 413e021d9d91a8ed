// Package sreality is a client for the public sreality.cz estates
// list API: count discovery, page fetches with bounded retry, and a
// shared dispatch rate limit the coordinator can tune at runtime.
package sreality

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// defaultHeaders make the client look like the mobile web app; the
// API answers plain requests too, but these keep responses consistent.
var defaultHeaders = map[string]string{
	"Accept":          "application/json, text/plain, */*",
	"Accept-Language": "en,cs;q=0.9",
	"Referer":         "https://www.sreality.cz/hledani/prodej/byty/praha",
	"User-Agent": "Mozilla/5.0 (Linux; Android 6.0; Nexus 5 Build/MRA58N) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Mobile Safari/537.36",
}

// Config configures a Client.
type Config struct {
	// BaseURL is the estates list endpoint.
	BaseURL string

	// Query carries the fixed search filters added to every request
	// (category, region). per_page and page are managed by the client.
	Query url.Values

	// PerPage is the page size used for the page walk.
	PerPage int

	// Timeout per request attempt (default 30s).
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first
	// failed one (default 5). Only transient failures are retried.
	MaxRetries int

	// BackoffBase is the first retry delay; it doubles per attempt
	// with jitter (default 500ms).
	BackoffBase time.Duration

	// Delay is the initial minimum interval between request
	// dispatches (default 250ms). See SetInterval.
	Delay time.Duration

	// Transport allows injecting a custom transport in tests.
	Transport http.RoundTripper

	Logger *slog.Logger
}

// Client fetches estate list pages. All dispatches pass through one
// rate limiter, shared across concurrent page fetches.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewClient creates a Client with defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 999
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BackoffBase == 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.Delay == 0 {
		cfg.Delay = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.Delay), 1),
		logger:  logger,
	}
}

// SetInterval changes the minimum delay between request dispatches.
// Called only from the coordinator's throttle feedback loop.
func (c *Client) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	c.limiter.SetLimit(rate.Every(d))
}

// FetchCount issues a minimal probe to learn the declared result size.
// A malformed body is a *FatalError; network and retryable-status
// failures are retried like any page fetch.
func (c *Client) FetchCount(ctx context.Context) (Count, error) {
	body, err := c.getWithRetry(ctx, 1, 1)
	if err != nil {
		return Count{}, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return Count{}, &FatalError{Reason: "unparseable response body", Err: err}
	}
	if resp.ResultSize == nil {
		return Count{}, &FatalError{Reason: "result_size missing from response"}
	}
	if *resp.ResultSize < 0 {
		return Count{}, &FatalError{Reason: fmt.Sprintf("result_size negative: %d", *resp.ResultSize)}
	}

	return Count{DeclaredTotal: int(*resp.ResultSize), PerPage: c.cfg.PerPage}, nil
}

// FetchPage fetches one page of the walk. Fewer records than the page
// size, or none at all, are valid terminal conditions, not errors.
func (c *Client) FetchPage(ctx context.Context, page int) (*PageResult, error) {
	body, err := c.getWithRetry(ctx, page, c.cfg.PerPage)
	if err != nil {
		return nil, err
	}

	var resp listResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("page %d: unparseable response body: %w", page, err)
	}

	result := &PageResult{
		Page:    page,
		Records: resp.Embedded.Estates,
		PerPage: c.cfg.PerPage,
	}
	if resp.ResultSize != nil {
		result.DeclaredTotal = int(*resp.ResultSize)
	}
	return result, nil
}

// getWithRetry runs one request with bounded retry. Only transient
// failures are retried; backoff doubles per attempt with jitter.
func (c *Client) getWithRetry(ctx context.Context, page, perPage int) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, c.cfg.BackoffBase, attempt); err != nil {
				return nil, err
			}
			c.logger.Warn("retrying fetch", "page", page, "attempt", attempt+1, "error", lastErr)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}

		body, err := c.getOnce(ctx, page, perPage)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !IsTransient(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("attempts exhausted: %w", lastErr)
}

func (c *Client) getOnce(ctx context.Context, page, perPage int) ([]byte, error) {
	q := url.Values{}
	for k, vs := range c.cfg.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("page", strconv.Itoa(page))

	// A request already on the wire runs to completion or to the
	// client timeout even when the run is cancelled; the run context
	// gates the limiter wait and the retry backoff, not the attempt.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, c.cfg.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range defaultHeaders {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Covers connection failures and client timeouts alike.
		return nil, &TransientError{Page: page, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		if retryableStatus[resp.StatusCode] {
			return nil, &TransientError{Page: page, StatusCode: resp.StatusCode}
		}
		return nil, fmt.Errorf("page %d: unexpected status %d", page, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransientError{Page: page, Err: err}
	}
	return body, nil
}

func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	d := base << (attempt - 1)
	// Up to 50% jitter so concurrent retries do not align.
	d += rand.N(d/2 + 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ComputePages returns the number of pages needed to cover total
// records at perPage records each, using ceiling division.
func ComputePages(total, perPage int) int {
	if total <= 0 || perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
