// Package ratesource fetches today's exchange rates over HTTP from an
// open.er-api.com compatible endpoint.
package ratesource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultURL is the public endpoint; the base currency is appended as a path segment.
	DefaultURL = "https://open.er-api.com/v6/latest"

	// ClientTimeout is the total request timeout.
	ClientTimeout = 10 * time.Second
	// DialTimeout is the connection timeout.
	DialTimeout = 5 * time.Second
	// ResponseHeaderTimeout is time to wait for response headers.
	ResponseHeaderTimeout = 5 * time.Second

	maxBodyBytes = 1 << 20
)

var (
	// ErrUnavailable is returned when every attempt failed.
	ErrUnavailable = errors.New("rate source unavailable")
	// ErrBadResponse is returned for responses that are not a successful rate table.
	ErrBadResponse = errors.New("rate source returned an unusable response")
)

// NewHTTPClient creates an HTTP client configured for rate fetches.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Timeout: ClientTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   DialTimeout,
			ResponseHeaderTimeout: ResponseHeaderTimeout,
			MaxIdleConns:          10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// Options configures a Client.
type Options struct {
	URL         string
	HTTPClient  *http.Client
	MaxAttempts int
	// Sleep waits between attempts; tests replace it.
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *slog.Logger
}

// Client implements currency.RateSource.
type Client struct {
	url         string
	http        *http.Client
	maxAttempts int
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.URL == "" {
		opts.URL = DefaultURL
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = NewHTTPClient()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		url:         strings.TrimSuffix(opts.URL, "/"),
		http:        opts.HTTPClient,
		maxAttempts: opts.MaxAttempts,
		sleep:       opts.Sleep,
		logger:      opts.Logger.With("component", "ratesource"),
	}
}

type latestResponse struct {
	Result    string             `json:"result"`
	BaseCode  string             `json:"base_code"`
	Rates     map[string]float64 `json:"rates"`
	ErrorType string             `json:"error-type"`
}

// FetchTodayRates returns the latest rates relative to base.
// Server errors and transport failures are retried; malformed responses are not.
func (c *Client) FetchTodayRates(ctx context.Context, base string) (map[string]float64, error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, NextRetryDelay(attempt-1)); err != nil {
				return nil, err
			}
		}

		rates, retry, err := c.fetch(ctx, base)
		if err == nil {
			return rates, nil
		}
		lastErr = err
		c.logger.Warn("rate_fetch_attempt_failed",
			"base", base,
			"attempt", attempt+1,
			"error", err,
		)
		if !retry || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w after %d attempts: %v", ErrUnavailable, c.maxAttempts, lastErr)
}

func (c *Client) fetch(ctx context.Context, base string) (map[string]float64, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/"+base, nil)
	if err != nil {
		return nil, false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "FuelSync-Rates/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("%w: status %d", ErrBadResponse, resp.StatusCode)
	}

	var body latestResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if body.Result != "success" {
		return nil, false, fmt.Errorf("%w: result %q %s", ErrBadResponse, body.Result, body.ErrorType)
	}
	if len(body.Rates) == 0 {
		return nil, false, fmt.Errorf("%w: empty rate table", ErrBadResponse)
	}
	return body.Rates, false, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
