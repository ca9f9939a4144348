// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package openwebif talks to an Enigma2 receiver over the OpenWebIF JSON API.
// The Client serves as guide source, timer store and recording store.
package openwebif

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/ManuGH/sportsdvr/internal/log"
	"github.com/ManuGH/sportsdvr/internal/metrics"
)

const maxBodyBytes = 16 << 20

// Options configures the client.
type Options struct {
	Timeout          time.Duration
	RateLimit        rate.Limit
	RateBurst        int
	Username         string
	Password         string
	UserAgent        string
	BreakerThreshold int
	BreakerReset     time.Duration
	// Transport overrides the base round tripper (tests).
	Transport http.RoundTripper
}

const (
	defaultTimeout          = 10 * time.Second
	defaultRateLimit        = 10
	defaultRateBurst        = 20
	defaultBreakerThreshold = 5
	defaultBreakerReset     = 30 * time.Second
)

// Client interacts with the OpenWebIF API.
type Client struct {
	base      string
	http      *http.Client
	limiter   *rate.Limiter
	breaker   *CircuitBreaker
	username  string
	password  string
	userAgent string
	logger    zerolog.Logger
}

// New creates a client for the receiver at baseURL. Credentials embedded in
// the URL are moved to basic auth.
func New(baseURL string, opts Options) *Client {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if u, err := url.Parse(trimmed); err == nil && u.User != nil {
		if opts.Username == "" {
			opts.Username = u.User.Username()
			if pass, ok := u.User.Password(); ok {
				opts.Password = pass
			}
		}
		u.User = nil
		trimmed = strings.TrimRight(u.String(), "/")
	}
	opts = normalizeOptions(opts)

	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			ResponseHeaderTimeout: opts.Timeout,
			TLSHandshakeTimeout:   5 * time.Second,
		}
	}

	return &Client{
		base: trimmed,
		http: &http.Client{
			Timeout:   opts.Timeout,
			Transport: otelhttp.NewTransport(base),
		},
		limiter:   rate.NewLimiter(opts.RateLimit, opts.RateBurst),
		breaker:   NewCircuitBreaker("openwebif", opts.BreakerThreshold, opts.BreakerReset),
		username:  opts.Username,
		password:  opts.Password,
		userAgent: opts.UserAgent,
		logger:    log.WithComponent("openwebif"),
	}
}

func normalizeOptions(opts Options) Options {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(defaultRateLimit)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = defaultRateBurst
	}
	if opts.BreakerThreshold <= 0 {
		opts.BreakerThreshold = defaultBreakerThreshold
	}
	if opts.BreakerReset <= 0 {
		opts.BreakerReset = defaultBreakerReset
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = "sportsdvr"
	}
	return opts
}

// BaseURL returns the receiver address without credentials.
func (c *Client) BaseURL() string { return c.base }

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *CircuitBreaker { return c.breaker }

func (c *Client) loggerFor(ctx context.Context) *zerolog.Logger {
	l := log.WithContext(ctx, c.logger)
	return &l
}

// get performs a GET against path and returns the body. Rate-limited calls wait
// for the EPG limiter first. Transport failures, timeouts and 5xx answers count
// against the circuit breaker.
func (c *Client) get(ctx context.Context, path string, params url.Values, operation string, limited bool) ([]byte, error) {
	if limited {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &OWIError{Sentinel: ErrTimeout, Operation: operation, Err: err}
		}
	}

	started := time.Now()
	var (
		body   []byte
		result error
	)
	err := c.breaker.Execute(func() error {
		body, result = c.do(ctx, path, params, operation)
		if result != nil && countsAsOutage(ctx, result) {
			return result
		}
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		metrics.RecordReceiverRequest(operation, "short_circuit", time.Since(started))
		return nil, &OWIError{Sentinel: ErrUpstreamUnavailable, Operation: operation, Err: ErrCircuitOpen}
	}

	outcome := "success"
	if result != nil {
		outcome = "error"
		if errors.Is(result, ErrTimeout) {
			outcome = "timeout"
		}
		c.loggerFor(ctx).Debug().Err(result).
			Str(log.FieldEvent, "openwebif.request_failed").
			Str("operation", operation).
			Msg("receiver request failed")
	}
	metrics.RecordReceiverRequest(operation, outcome, time.Since(started))
	return body, result
}

func (c *Client) do(ctx context.Context, path string, params url.Values, operation string) ([]byte, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return nil, &OWIError{Sentinel: ErrUpstreamUnavailable, Operation: operation, Err: fmt.Errorf("invalid base URL: %w", err)}
	}
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &OWIError{Sentinel: ErrUpstreamUnavailable, Operation: operation, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &OWIError{Sentinel: classifyTransport(ctx, err), Operation: operation, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &OWIError{Sentinel: classifyTransport(ctx, err), Operation: operation, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &OWIError{
			Sentinel:  classifyStatus(resp.StatusCode),
			Operation: operation,
			Status:    resp.StatusCode,
			Body:      snippet(body),
		}
	}
	return body, nil
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusConflict:
		return ErrConflict
	case status >= 500:
		return ErrUpstreamError
	default:
		return ErrUpstreamBadResponse
	}
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrUpstreamUnavailable
}

// countsAsOutage reports whether err means the receiver is unhealthy. Caller
// cancellation and 4xx answers do not.
func countsAsOutage(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.Canceled) {
		return false
	}
	return errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrUpstreamError)
}

var secretPattern = regexp.MustCompile(`(?i)\b(token|sid|session|password|passwd)=[^\s&"]+`)

// snippet returns a bounded, redacted excerpt of a response body.
func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return secretPattern.ReplaceAllString(s, "$1=[REDACTED]")
}
