// Package service implements the request orchestrator: the single entry point
// that sequences validation, sanitization, rate-limit admission, token
// attachment, caching, dispatch with retry, and post-response bookkeeping.
//
// Stages run in strict order and short-circuit on first failure; no partial
// side effects survive a failed stage.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"outpost/internal/cache"
	"outpost/internal/gateway/models"
	"outpost/internal/platform/circuit"
	"outpost/internal/platform/metrics"
	"outpost/internal/platform/tracer"
	"outpost/internal/sanitize"
	"outpost/internal/shape"
	"outpost/internal/upstream"
	dErrors "outpost/pkg/domain-errors"
)

const anonymousIdentifier = "anonymous"

// RateLimiter is the admission and quota engine the pipeline consults.
type RateLimiter interface {
	CheckAdmission(ctx context.Context, endpoint, userID string) error
	AbsorbUpstreamSignal(ctx context.Context, endpoint string, body map[string]any, userID string) error
	DecrementOnSuccess(ctx context.Context, endpoint, userID string) error
	TrackFailure(ctx context.Context, identifier, endpoint string) (bool, error)
}

// TokenProvider supplies and invalidates upstream credentials per user.
type TokenProvider interface {
	GetValidToken(ctx context.Context, userID string) (string, error)
	Invalidate(ctx context.Context, userID string) error
}

// Dispatcher sends calls to the upstream service.
type Dispatcher interface {
	Do(ctx context.Context, call *upstream.Call) (*upstream.Response, error)
}

// Service is the request orchestrator. One instance is shared by all
// in-flight requests; per-request state lives on the stack.
type Service struct {
	limiter  RateLimiter
	tokens   TokenProvider
	upstream Dispatcher

	cache        cache.Cache
	cacheBreaker *circuit.Breaker
	cacheSkips   atomic.Int64
	cacheTTL     time.Duration

	maxBodyBytes int64

	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
}

// Option configures a Service instance.
type Option func(*Service)

// WithCache enables the response cache with the given TTL.
func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = c
		s.cacheTTL = ttl
	}
}

// WithMaxBodyBytes sets the serialized body ceiling. Default 100 KB.
func WithMaxBodyBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBodyBytes = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics sets the Prometheus metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithTracer sets the tracing implementation. Default is a noop tracer.
func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New creates the orchestrator over its collaborators.
func New(limiter RateLimiter, tokens TokenProvider, dispatcher Dispatcher, opts ...Option) (*Service, error) {
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("upstream dispatcher is required")
	}

	s := &Service{
		limiter:      limiter,
		tokens:       tokens,
		upstream:     dispatcher,
		maxBodyBytes: 100 * 1024,
		tracer:       tracer.NewNoop(),
		cacheBreaker: circuit.New("response-cache"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Process runs the full pipeline for one request and returns the normalized
// upstream result or a structured domain error.
func (s *Service) Process(ctx context.Context, req *models.ClientRequest) (result *models.Result, err error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "gateway.process",
		tracer.String("method", req.Method),
		tracer.String("endpoint", models.Pattern(req.Endpoint)),
	)
	defer func() {
		span.End(err)
		s.observe(req, start, err)
	}()

	// 1. Structural validation.
	if err := s.validateStructure(ctx, req); err != nil {
		return nil, err
	}

	// 2. Size guard, before any downstream state is touched.
	if err := s.checkBodySize(ctx, req); err != nil {
		return nil, err
	}

	// 3. Sanitization, in place, before any further use of the payload.
	req.Body = sanitize.Body(req.Body)
	req.QueryParams = sanitize.Params(req.QueryParams)

	// 4. Endpoint-specific body validation.
	if err := shape.Validate(req.Endpoint, req.Body); err != nil {
		s.recordValidationFailure(ctx, req)
		return nil, err
	}

	// 5. Rate-limit admission; the engine's error already carries scope and
	// reset hints, propagate it unchanged.
	if err := s.limiter.CheckAdmission(ctx, req.Endpoint, req.UserIdentity); err != nil {
		return nil, err
	}

	// 6. Authentication attachment for non-public endpoints.
	headers, err := s.attachAuth(ctx, req)
	if err != nil {
		return nil, err
	}

	// 7. Standard client-identity headers are owned by the upstream client.

	// 8. Cache lookup; a hit short-circuits the rest of the pipeline.
	cacheable := s.cache != nil && models.Cacheable(req.Method, req.Endpoint)
	key := cacheKey(req.Endpoint, req.QueryParams, req.UserIdentity)
	if cacheable {
		if cached, ok := s.cacheGet(ctx, key); ok {
			span.AddEvent("cache_hit")
			return cached, nil
		}
		span.AddEvent("cache_miss")
	}

	// 9. Dispatch with retry.
	resp, err := s.dispatch(ctx, req, headers)
	if err != nil {
		return nil, err
	}

	// 10. Cache write for cacheable reads; invalidate stale profile reads
	// after a successful profile write.
	if cacheable {
		s.cacheSet(ctx, key, resp.Raw)
	} else if req.Method == http.MethodPost && req.Endpoint == "/v2/profile" && s.cache != nil {
		s.cacheDelete(ctx, cacheKey(req.Endpoint, nil, req.UserIdentity))
	}

	// 11. Quota bookkeeping: absorb authoritative figures first, then apply
	// the optimistic local decrement.
	if err := s.limiter.AbsorbUpstreamSignal(ctx, req.Endpoint, resp.Body, req.UserIdentity); err != nil {
		s.logWarn(ctx, "quota absorption failed", "error", err.Error())
	}
	if resp.Status >= 200 && resp.Status < 300 {
		if err := s.limiter.DecrementOnSuccess(ctx, req.Endpoint, req.UserIdentity); err != nil {
			s.logWarn(ctx, "quota decrement failed", "error", err.Error())
		}
	}

	// 12. Unwrapped upstream payload back to the caller.
	return &models.Result{Status: resp.Status, Body: resp.Body}, nil
}

// validateStructure enforces request-shape invariants: verb set, endpoint
// format, identity format, and numeric targets embedded in paths.
func (s *Service) validateStructure(ctx context.Context, req *models.ClientRequest) error {
	fail := func(msg string) error {
		s.recordValidationFailure(ctx, req)
		return dErrors.New(dErrors.CodeValidation, msg)
	}

	if req.Endpoint == "" || req.Endpoint[0] != '/' {
		return fail("endpoint must be a non-empty path")
	}
	if !models.MethodAllowed(req.Method) {
		return fail(fmt.Sprintf("method %q is not allowed", req.Method))
	}
	if req.UserIdentity != "" && !models.ValidIdentity(req.UserIdentity) {
		return fail("user identity does not match the expected format")
	}
	if !models.TargetValid(req.Endpoint) {
		return fail("endpoint target must be a numeric identifier")
	}
	return nil
}

// checkBodySize rejects oversized bodies before touching downstream state.
func (s *Service) checkBodySize(ctx context.Context, req *models.ClientRequest) error {
	if req.Body == nil {
		return nil
	}
	raw, err := json.Marshal(req.Body)
	if err != nil {
		s.recordValidationFailure(ctx, req)
		return dErrors.Wrap(err, dErrors.CodeValidation, "request body is not serializable")
	}
	if int64(len(raw)) > s.maxBodyBytes {
		s.recordValidationFailure(ctx, req)
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("request body exceeds %d bytes", s.maxBodyBytes))
	}
	return nil
}

// attachAuth returns per-call headers, including the bearer token for
// non-public endpoints.
func (s *Service) attachAuth(ctx context.Context, req *models.ClientRequest) (map[string]string, error) {
	headers := make(map[string]string, len(req.Headers)+1)
	for k, v := range req.Headers {
		headers[k] = v
	}
	if models.Public(req.Endpoint) {
		return headers, nil
	}

	if req.UserIdentity == "" {
		return nil, dErrors.New(dErrors.CodeAuthFailed, "endpoint requires an authenticated user identity")
	}
	token, err := s.tokens.GetValidToken(ctx, req.UserIdentity)
	if err != nil {
		return nil, err
	}
	headers["Authorization"] = "Bearer " + token
	return headers, nil
}

// dispatch forwards to upstream and reacts to authentication rejection:
// a 401 deletes the stored token before the error is surfaced, forcing
// re-authentication on the next call.
func (s *Service) dispatch(ctx context.Context, req *models.ClientRequest, headers map[string]string) (*upstream.Response, error) {
	query := make(url.Values, len(req.QueryParams))
	for k, v := range req.QueryParams {
		query.Set(k, v)
	}

	var body any
	if req.Body != nil {
		body = req.Body
	}
	resp, err := s.upstream.Do(ctx, &upstream.Call{
		Method:  req.Method,
		Path:    req.Endpoint,
		Query:   query,
		Body:    body,
		Headers: headers,
	})
	if err != nil {
		if e := dErrors.AsError(err); e != nil && e.UpstreamStatus == http.StatusUnauthorized &&
			req.UserIdentity != "" && !models.Public(req.Endpoint) {
			if invErr := s.tokens.Invalidate(ctx, req.UserIdentity); invErr != nil {
				s.logWarn(ctx, "token invalidation failed", "error", invErr.Error())
			}
		}
		return nil, err
	}
	return resp, nil
}

// recordValidationFailure feeds the advisory abuse tracker. The tracker's
// verdict informs the validation layer outside this core; it never rejects
// the current request.
func (s *Service) recordValidationFailure(ctx context.Context, req *models.ClientRequest) {
	if s.metrics != nil {
		s.metrics.ValidationFailures.Inc()
	}
	identifier := req.UserIdentity
	if identifier == "" {
		identifier = anonymousIdentifier
	}
	shouldBlock, err := s.limiter.TrackFailure(ctx, identifier, req.Endpoint)
	if err != nil {
		s.logWarn(ctx, "failure tracking failed", "error", err.Error())
		return
	}
	if shouldBlock && s.logger != nil {
		s.logger.WarnContext(ctx, "abuse threshold crossed",
			"endpoint", req.Endpoint,
			"event", "validation_abuse_flagged",
			"log_type", "audit",
		)
	}
}

// Cache operations are fire-and-forget: failures only forgo the optimization,
// and the breaker skips a cache backend that keeps failing. While open, every
// cacheProbeInterval-th call still goes through so the circuit can close
// again once the backend recovers.

const cacheProbeInterval = 16

func (s *Service) cacheAvailable() bool {
	if !s.cacheBreaker.IsOpen() {
		return true
	}
	return s.cacheSkips.Add(1)%cacheProbeInterval == 0
}

func (s *Service) cacheGet(ctx context.Context, key string) (*models.Result, bool) {
	if !s.cacheAvailable() {
		return nil, false
	}
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.recordCacheFailure(ctx, err)
		return nil, false
	}
	s.cacheBreaker.RecordSuccess()
	if !ok {
		if s.metrics != nil {
			s.metrics.CacheMisses.Inc()
		}
		return nil, false
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.CacheHits.Inc()
	}
	return &models.Result{Status: http.StatusOK, Body: body, FromCache: true}, true
}

func (s *Service) cacheSet(ctx context.Context, key string, raw []byte) {
	if len(raw) == 0 || !s.cacheAvailable() {
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.cacheTTL); err != nil {
		s.recordCacheFailure(ctx, err)
		return
	}
	s.cacheBreaker.RecordSuccess()
}

func (s *Service) cacheDelete(ctx context.Context, key string) {
	if !s.cacheAvailable() {
		return
	}
	if err := s.cache.Delete(ctx, key); err != nil {
		s.recordCacheFailure(ctx, err)
	}
}

func (s *Service) recordCacheFailure(ctx context.Context, err error) {
	_, change := s.cacheBreaker.RecordFailure()
	if change.Opened && s.logger != nil {
		s.logger.WarnContext(ctx, "response cache circuit opened", "error", err.Error())
	}
}

func (s *Service) observe(req *models.ClientRequest, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if e := dErrors.AsError(err); e != nil {
		outcome = string(e.Code)
		if e.Code == dErrors.CodeRateLimited {
			scope := e.Scope
			if scope == "" {
				scope = "unknown"
			}
			s.metrics.RateLimitRejections.WithLabelValues(scope).Inc()
		}
	} else if err != nil {
		outcome = string(dErrors.CodeInternal)
	}
	s.metrics.RequestsProcessed.WithLabelValues(outcome).Inc()
	s.metrics.PipelineLatency.WithLabelValues(models.Pattern(req.Endpoint)).Observe(time.Since(start).Seconds())
}

func (s *Service) logWarn(ctx context.Context, msg string, attrs ...any) {
	if s.logger == nil {
		return
	}
	s.logger.WarnContext(ctx, msg, attrs...)
}
