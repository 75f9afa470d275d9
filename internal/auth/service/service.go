// Package service implements the authentication-token lifecycle manager.
//
// It drives login flows against the upstream API and keeps the token store
// current: login persists a fresh access/refresh pair, expiry triggers a
// refresh on demand, and refresh failure or upstream rejection deletes the
// stale record so the next call starts from Unauthenticated.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"outpost/internal/auth/models"
	"outpost/internal/platform/metrics"
	dErrors "outpost/pkg/domain-errors"
	"outpost/pkg/requestcontext"
)

// TokenStore is the keyed credential store, one record per user identity.
type TokenStore interface {
	Get(ctx context.Context, userID string) (*models.TokenRecord, error)
	Put(ctx context.Context, record *models.TokenRecord) error
	Delete(ctx context.Context, userID string) error
}

// AuthAPI is the slice of the upstream API the lifecycle manager drives.
type AuthAPI interface {
	SendOTP(ctx context.Context, phone string) (otpLength int, err error)
	ValidateOTP(ctx context.Context, phone, code string) (exchangeToken string, err error)
	LoginSMS(ctx context.Context, exchangeToken string) (*models.SMSLoginUpstream, error)
	LoginSocial(ctx context.Context, providerToken string) (*models.SocialLoginUpstream, error)
	Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error)
}

// Service manages the token lifecycle for all user identities.
type Service struct {
	tokens   TokenStore
	upstream AuthAPI
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Option configures a Service instance.
type Option func(*Service)

// WithLogger sets the structured logger for audit and debug logging.
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

// New creates an auth lifecycle manager over the given store and upstream.
func New(tokens TokenStore, upstream AuthAPI, opts ...Option) (*Service, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if upstream == nil {
		return nil, fmt.Errorf("upstream auth client is required")
	}

	svc := &Service{
		tokens:   tokens,
		upstream: upstream,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetValidToken returns a usable access token for the user, refreshing the
// stored pair on demand when expired. Exactly one refresh call is made per
// expired-token observation; concurrent observers may each refresh (upstream
// tolerates it, the later write wins). Refresh failure deletes the stale
// record and fails the call; callers must not retry refresh indefinitely.
func (s *Service) GetValidToken(ctx context.Context, userID string) (string, error) {
	record, err := s.tokens.Get(ctx, userID)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to read token record")
	}
	if record == nil {
		s.countAuthFailure()
		return "", dErrors.New(dErrors.CodeAuthFailed, "no credentials stored; login required")
	}

	if !record.Expired(requestcontext.Now(ctx)) {
		return record.AccessToken, nil
	}

	pair, err := s.upstream.Refresh(ctx, record.RefreshToken)
	if err != nil {
		// A stale pair is worse than none: the next call must re-login.
		_ = s.tokens.Delete(ctx, userID)
		s.countAuthFailure()
		s.logAudit(ctx, "token_refresh_failed", "error", err.Error())
		return "", dErrors.Wrap(err, dErrors.CodeAuthFailed, "token refresh rejected by upstream")
	}

	fresh := s.recordFromPair(ctx, userID, *pair)
	if err := s.tokens.Put(ctx, fresh); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist refreshed tokens")
	}

	if s.metrics != nil {
		s.metrics.TokenRefreshes.Inc()
	}
	s.logAudit(ctx, "token_refreshed")
	return fresh.AccessToken, nil
}

// Invalidate deletes the stored token for the user, forcing re-authentication
// on the next call. Used when upstream rejects the token (401-class).
func (s *Service) Invalidate(ctx context.Context, userID string) error {
	if err := s.tokens.Delete(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete token record")
	}
	if s.metrics != nil {
		s.metrics.TokenInvalidations.Inc()
	}
	s.logAudit(ctx, "token_invalidated")
	return nil
}

// Logout deletes the stored token for the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	if err := s.tokens.Delete(ctx, userID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete token record")
	}
	s.logAudit(ctx, "logged_out")
	return nil
}

func (s *Service) recordFromPair(ctx context.Context, userID string, pair models.TokenPair) *models.TokenRecord {
	return &models.TokenRecord{
		UserID:       userID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresAt:    requestcontext.Now(ctx).Add(pair.ExpiresIn),
	}
}

func (s *Service) countAuthFailure() {
	if s.metrics != nil {
		s.metrics.AuthFailures.Inc()
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attrs ...any) {
	if s.logger == nil {
		return
	}
	args := append(attrs, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}
