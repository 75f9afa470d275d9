package service

import (
	"context"

	"outpost/internal/auth/models"
	dErrors "outpost/pkg/domain-errors"
)

// LoginSocial is the one-step third-party-identity flow. An existing account
// gets a token pair directly, which is persisted. A new account gets an
// onboarding handle and no tokens; onboarding completion is out of scope
// here, so the user stays Unauthenticated.
func (s *Service) LoginSocial(ctx context.Context, providerToken string) (*models.SocialLoginResult, error) {
	if providerToken == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "provider token is required")
	}

	login, err := s.upstream.LoginSocial(ctx, providerToken)
	if err != nil {
		s.countAuthFailure()
		return nil, dErrors.Wrap(err, dErrors.CodeAuthFailed, "social login rejected")
	}

	if login.Tokens == nil {
		s.logAudit(ctx, "social_login_onboarding_required")
		return &models.SocialLoginResult{
			Status:          models.StatusOnboarding,
			IsNewUser:       true,
			OnboardingToken: login.OnboardingToken,
		}, nil
	}

	record := s.recordFromPair(ctx, login.UserID, *login.Tokens)
	if err := s.tokens.Put(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist tokens")
	}

	s.logAudit(ctx, "social_login_completed", "is_new_user", login.IsNewUser)
	return &models.SocialLoginResult{
		Status:    models.StatusAuthenticated,
		UserID:    login.UserID,
		IsNewUser: login.IsNewUser,
	}, nil
}
