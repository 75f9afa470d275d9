// Package upstream is the HTTP client for the single proxied REST service.
// It owns standard header injection, bounded retry with exponential backoff,
// optional outbound pacing, and the mapping from transport outcomes to the
// gateway error taxonomy.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"outpost/internal/platform/config"
	"outpost/internal/platform/metrics"
	dErrors "outpost/pkg/domain-errors"
)

// Standard headers attached to every outbound call.
const (
	headerClientID   = "X-Client-ID"
	headerPlatform   = "platform"
	headerCapability = "support-short-video"
)

// Call describes one outbound request.
type Call struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any               // marshaled to JSON when non-nil
	Headers map[string]string // per-call extras, e.g. Authorization
}

// Response is a normalized upstream response.
type Response struct {
	Status int
	Body   map[string]any // parsed JSON document, nil when empty or non-object
	Raw    []byte
}

// Client talks to the upstream service. Safe for concurrent use.
type Client struct {
	base    *url.URL
	httpc   *http.Client
	cfg     config.Upstream
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures a Client instance.
type Option func(*Client)

// WithHTTPClient injects a custom http.Client. Useful for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpc = h
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// New creates an upstream client from configuration.
func New(cfg config.Upstream, opts ...Option) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse upstream base URL: %w", err)
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}

	c := &Client{
		base:  base,
		cfg:   cfg,
		httpc: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Do executes the call with bounded retry. Transport errors and 5xx responses
// are retried with exponential backoff (delay doubling per attempt) up to the
// configured attempt count; 4xx responses are returned immediately as domain
// errors carrying the upstream payload. Retry state travels per call as local
// values, never as shared mutable config.
func (c *Client) Do(ctx context.Context, call *Call) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeNetwork, "outbound pacing interrupted")
		}
	}

	var bodyBytes []byte
	if call.Body != nil {
		b, err := json.Marshal(call.Body)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode request body")
		}
		bodyBytes = b
	}

	delay := c.cfg.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if c.metrics != nil {
				c.metrics.UpstreamRetries.Inc()
			}
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, dErrors.Wrap(ctx.Err(), dErrors.CodeNetwork, "request canceled during backoff")
			}
			delay *= 2
		}

		resp, retriable, err := c.attempt(ctx, call, bodyBytes, attempt)
		if err == nil {
			return resp, nil
		}
		if !retriable {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// attempt executes a single try. retriable reports whether the failure class
// (transport error or 5xx) permits another attempt.
func (c *Client) attempt(ctx context.Context, call *Call, bodyBytes []byte, attempt int) (resp *Response, retriable bool, err error) {
	target := c.base.JoinPath(call.Path)
	if len(call.Query) > 0 {
		target.RawQuery = call.Query.Encode()
	}

	var reader io.Reader
	if bodyBytes != nil {
		reader = bytes.NewReader(bodyBytes)
	}
	req, err := http.NewRequestWithContext(ctx, call.Method, target.String(), reader)
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build upstream request")
	}

	req.Header.Set(headerClientID, c.cfg.ClientID)
	req.Header.Set(headerPlatform, c.cfg.Platform)
	req.Header.Set(headerCapability, "1")
	req.Header.Set("Content-Type", "application/json")
	for k, v := range call.Headers {
		req.Header.Set(k, v)
	}

	httpResp, err := c.httpc.Do(req)
	if err != nil {
		c.logAttempt(ctx, call, attempt, 0, err)
		return nil, true, dErrors.Wrap(err, dErrors.CodeNetwork, "upstream call failed")
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		c.logAttempt(ctx, call, attempt, httpResp.StatusCode, err)
		return nil, true, dErrors.Wrap(err, dErrors.CodeNetwork, "failed to read upstream response")
	}

	var parsed map[string]any
	if len(raw) > 0 {
		// Non-object payloads are tolerated; Body stays nil.
		_ = json.Unmarshal(raw, &parsed)
	}

	c.countCall(httpResp.StatusCode)
	c.logAttempt(ctx, call, attempt, httpResp.StatusCode, nil)

	switch {
	case httpResp.StatusCode >= 200 && httpResp.StatusCode < 300:
		return &Response{Status: httpResp.StatusCode, Body: parsed, Raw: raw}, false, nil
	case httpResp.StatusCode >= 500:
		return nil, true, dErrors.FromUpstream(httpResp.StatusCode, parsed,
			fmt.Sprintf("upstream returned %d", httpResp.StatusCode))
	default:
		return nil, false, dErrors.FromUpstream(httpResp.StatusCode, parsed,
			fmt.Sprintf("upstream rejected request with %d", httpResp.StatusCode))
	}
}

func (c *Client) countCall(status int) {
	if c.metrics == nil {
		return
	}
	class := fmt.Sprintf("%dxx", status/100)
	c.metrics.UpstreamCalls.WithLabelValues(class).Inc()
}

func (c *Client) logAttempt(ctx context.Context, call *Call, attempt, status int, err error) {
	if c.logger == nil {
		return
	}
	attrs := []any{
		"method", call.Method,
		"path", call.Path,
		"attempt", attempt,
	}
	if status > 0 {
		attrs = append(attrs, "status", status)
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
		c.logger.WarnContext(ctx, "upstream attempt failed", attrs...)
		return
	}
	c.logger.DebugContext(ctx, "upstream attempt", attrs...)
}
