// Package service implements the rate-limit engine: global throughput
// admission, per-user per-action quotas, and advisory validation-failure
// tracking for abuse detection.
//
// Usage:
//
//	engine, _ := service.New(windowStore, quotaStore, failureStore)
//	if err := engine.CheckAdmission(ctx, endpoint, userID); err != nil {
//	    // RateLimited error carrying scope and reset time
//	}
//	engine.AbsorbUpstreamSignal(ctx, endpoint, body, userID)
//	engine.DecrementOnSuccess(ctx, endpoint, userID)
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"outpost/internal/ratelimit/config"
	"outpost/internal/ratelimit/models"
	dErrors "outpost/pkg/domain-errors"
	"outpost/pkg/requestcontext"
)

// WindowStore manages the global request-count window.
type WindowStore interface {
	Admit(ctx context.Context) (count int, resetAt time.Time, allowed bool, err error)
	Snapshot(ctx context.Context) (models.WindowSnapshot, error)
}

// QuotaStore manages per-user action quotas.
type QuotaStore interface {
	Get(ctx context.Context, userID string) (models.QuotaRecord, error)
	SetCategory(ctx context.Context, userID string, cat models.QuotaCategory, remaining int, resetAt time.Time) error
	Decrement(ctx context.Context, userID string, cat models.QuotaCategory) error
}

// FailureStore tracks validation failures per (identifier, endpoint) pair.
type FailureStore interface {
	Record(ctx context.Context, identifier, endpoint string) (inWindow, inLastMinute int, err error)
}

// Engine is the rate-limit engine shared by all in-flight requests.
type Engine struct {
	window   WindowStore
	quotas   QuotaStore
	failures FailureStore
	logger   *slog.Logger
	config   *config.Config
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the structured logger for audit logging.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithConfig overrides the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.config = cfg
	}
}

// New creates a rate-limit engine over the given stores.
func New(window WindowStore, quotas QuotaStore, failures FailureStore, opts ...Option) (*Engine, error) {
	if window == nil {
		return nil, fmt.Errorf("window store is required")
	}
	if quotas == nil {
		return nil, fmt.Errorf("quota store is required")
	}
	if failures == nil {
		return nil, fmt.Errorf("failure store is required")
	}

	e := &Engine{
		window:   window,
		quotas:   quotas,
		failures: failures,
		config:   config.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// CheckAdmission decides whether a request may proceed. The per-user quota is
// evaluated first (read-only), then the global window counter is incremented;
// a rejected request never consumes global capacity. Errors carry the limited
// scope and a reset-time hint.
func (e *Engine) CheckAdmission(ctx context.Context, endpoint, userID string) error {
	if cat, ok := models.CategoryForPath(endpoint); ok && userID != "" {
		record, err := e.quotas.Get(ctx, userID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read quota record")
		}
		q := record.Category(cat)
		if q.Enforced(requestcontext.Now(ctx)) {
			e.logAudit(ctx, "quota_exhausted",
				"category", string(cat),
				"reset_at", q.ResetAt,
			)
			return dErrors.RateLimited(string(cat), q.ResetAt,
				fmt.Sprintf("%s quota exhausted", cat))
		}
	}

	count, resetAt, allowed, err := e.window.Admit(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to admit against global window")
	}
	if !allowed {
		e.logAudit(ctx, "global_limit_exceeded",
			"current_count", count,
			"limit", e.config.Global.LimitPerWindow,
		)
		return dErrors.RateLimited("global", resetAt, "global request limit exceeded")
	}
	return nil
}

// AbsorbUpstreamSignal overwrites local quota estimates with authoritative
// figures found in an upstream response body, when the endpoint matches a
// known quota-bearing action. Unrecognized shapes are ignored without error.
func (e *Engine) AbsorbUpstreamSignal(ctx context.Context, endpoint string, body map[string]any, userID string) error {
	cat, ok := models.CategoryForPath(endpoint)
	if !ok || userID == "" || body == nil {
		return nil
	}

	remaining, resetAt, found := e.extractQuotaSignal(ctx, cat, body)
	if !found {
		return nil
	}

	if err := e.quotas.SetCategory(ctx, userID, cat, remaining, resetAt); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to store authoritative quota")
	}
	return nil
}

// DecrementOnSuccess optimistically lowers the matching local quota counter by
// one after a successful action, floor zero, leaving the reset time untouched.
func (e *Engine) DecrementOnSuccess(ctx context.Context, endpoint, userID string) error {
	cat, ok := models.CategoryForPath(endpoint)
	if !ok || userID == "" {
		return nil
	}
	if err := e.quotas.Decrement(ctx, userID, cat); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to decrement quota")
	}
	return nil
}

// TrackFailure records one validation failure for the (identifier, endpoint)
// pair and reports whether the caller should reject subsequent requests from
// that identifier for the configured cooldown. Counting is scoped strictly to
// the pair. Advisory only.
func (e *Engine) TrackFailure(ctx context.Context, identifier, endpoint string) (shouldBlock bool, err error) {
	inWindow, inLastMinute, err := e.failures.Record(ctx, identifier, endpoint)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to record validation failure")
	}

	if inWindow > e.config.Failure.HourlyThreshold || inLastMinute > e.config.Failure.PerMinuteThreshold {
		e.logAudit(ctx, "validation_abuse_detected",
			"endpoint", endpoint,
			"failures_in_window", inWindow,
			"failures_last_minute", inLastMinute,
			"cooldown", e.config.Failure.Cooldown.String(),
		)
		return true, nil
	}
	return false, nil
}

// Window returns the current global window state for inspection.
func (e *Engine) Window(ctx context.Context) (models.WindowSnapshot, error) {
	snap, err := e.window.Snapshot(ctx)
	if err != nil {
		return models.WindowSnapshot{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to snapshot global window")
	}
	return snap, nil
}

// extractQuotaSignal pulls the authoritative remaining count and reset time
// from an upstream response body. Each action reports quota in its own shape.
func (e *Engine) extractQuotaSignal(ctx context.Context, cat models.QuotaCategory, body map[string]any) (remaining int, resetAt time.Time, found bool) {
	switch cat {
	case models.CategoryLikes:
		n, ok := numberField(body, "likes_remaining")
		if !ok {
			return 0, time.Time{}, false
		}
		resetAt, ok = epochMillisField(body, "rate_limited_until")
		if !ok {
			resetAt = e.defaultReset(ctx)
		}
		return n, resetAt, true

	case models.CategorySuperLikes:
		nested, ok := body["super_likes"].(map[string]any)
		if !ok {
			return 0, time.Time{}, false
		}
		n, ok := numberField(nested, "remaining")
		if !ok {
			return 0, time.Time{}, false
		}
		resetAt, ok = timestampField(nested, "resets_at")
		if !ok {
			resetAt = e.defaultReset(ctx)
		}
		return n, resetAt, true

	case models.CategoryBoosts:
		n, ok := numberField(body, "remaining")
		if !ok {
			return 0, time.Time{}, false
		}
		resetAt, ok = timestampField(body, "resets_at")
		if !ok {
			resetAt = e.defaultReset(ctx)
		}
		return n, resetAt, true
	}
	return 0, time.Time{}, false
}

func (e *Engine) defaultReset(ctx context.Context) time.Time {
	return requestcontext.Now(ctx).Add(e.config.QuotaDefaults.ResetHorizon)
}

func numberField(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

func epochMillisField(m map[string]any, key string) (time.Time, bool) {
	n, ok := numberField(m, key)
	if !ok || n <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(n)), true
}

func timestampField(m map[string]any, key string) (time.Time, bool) {
	switch v := m[key].(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t, true
		}
	case float64:
		if v > 0 {
			return time.UnixMilli(int64(v)), true
		}
	}
	return time.Time{}, false
}

func (e *Engine) logAudit(ctx context.Context, event string, attrs ...any) {
	if e.logger == nil {
		return
	}
	args := append(attrs, "event", event, "log_type", "audit")
	e.logger.InfoContext(ctx, event, args...)
}
