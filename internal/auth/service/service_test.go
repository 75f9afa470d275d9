package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"outpost/internal/auth/models"
	"outpost/internal/auth/store/token"
	dErrors "outpost/pkg/domain-errors"
	"outpost/pkg/requestcontext"
)

type fakeAuthAPI struct {
	otpLength     int
	sendErr       error
	exchangeToken string
	validateErr   error
	smsLogin      *models.SMSLoginUpstream
	smsLoginErr   error
	socialLogin   *models.SocialLoginUpstream
	socialErr     error
	refreshPair   *models.TokenPair
	refreshErr    error

	refreshCalls  int
	validatedOTPs []string
}

func (f *fakeAuthAPI) SendOTP(context.Context, string) (int, error) {
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	return f.otpLength, nil
}

func (f *fakeAuthAPI) ValidateOTP(_ context.Context, _, code string) (string, error) {
	f.validatedOTPs = append(f.validatedOTPs, code)
	if f.validateErr != nil {
		return "", f.validateErr
	}
	return f.exchangeToken, nil
}

func (f *fakeAuthAPI) LoginSMS(context.Context, string) (*models.SMSLoginUpstream, error) {
	if f.smsLoginErr != nil {
		return nil, f.smsLoginErr
	}
	return f.smsLogin, nil
}

func (f *fakeAuthAPI) LoginSocial(context.Context, string) (*models.SocialLoginUpstream, error) {
	if f.socialErr != nil {
		return nil, f.socialErr
	}
	return f.socialLogin, nil
}

func (f *fakeAuthAPI) Refresh(context.Context, string) (*models.TokenPair, error) {
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.refreshPair, nil
}

type AuthServiceSuite struct {
	suite.Suite

	api     *fakeAuthAPI
	store   *token.InMemoryTokenStore
	service *Service
}

func TestAuthServiceSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceSuite))
}

func (s *AuthServiceSuite) SetupTest() {
	s.api = &fakeAuthAPI{
		otpLength:     6,
		exchangeToken: "exchange-1",
		smsLogin: &models.SMSLoginUpstream{
			Tokens: models.TokenPair{
				AccessToken:  "access-1",
				RefreshToken: "refresh-1",
				ExpiresIn:    time.Hour,
			},
			UserID:    "user-1",
			IsNewUser: false,
		},
	}
	s.store = token.New()

	svc, err := New(s.store, s.api,
		WithLogger(slog.New(slog.NewJSONHandler(io.Discard, nil))),
	)
	s.Require().NoError(err)
	s.service = svc
}

func (s *AuthServiceSuite) seedToken(userID string, expiresAt time.Time) {
	s.Require().NoError(s.store.Put(context.Background(), &models.TokenRecord{
		UserID:       userID,
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    expiresAt,
	}))
}

func (s *AuthServiceSuite) TestGetValidTokenReturnsStoredToken() {
	s.seedToken("user-1", time.Now().Add(time.Hour))

	accessToken, err := s.service.GetValidToken(context.Background(), "user-1")

	s.Require().NoError(err)
	s.Equal("access-old", accessToken)
	s.Zero(s.api.refreshCalls, "an unexpired token must not trigger a refresh")
}

func (s *AuthServiceSuite) TestGetValidTokenWithoutCredentials() {
	_, err := s.service.GetValidToken(context.Background(), "unknown")

	s.True(dErrors.HasCode(err, dErrors.CodeAuthFailed))
	s.Zero(s.api.refreshCalls)
}

func (s *AuthServiceSuite) TestExpiredTokenRefreshesExactlyOnce() {
	s.seedToken("user-1", time.Now().Add(-time.Minute))
	s.api.refreshPair = &models.TokenPair{
		AccessToken:  "access-new",
		RefreshToken: "refresh-new",
		ExpiresIn:    time.Hour,
	}

	accessToken, err := s.service.GetValidToken(context.Background(), "user-1")

	s.Require().NoError(err)
	s.Equal("access-new", accessToken)
	s.Equal(1, s.api.refreshCalls)

	// The refreshed pair is persisted, so the next call needs no refresh.
	accessToken, err = s.service.GetValidToken(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Equal("access-new", accessToken)
	s.Equal(1, s.api.refreshCalls)
}

func (s *AuthServiceSuite) TestRefreshedExpiryUsesRequestTime() {
	now := time.Now()
	ctx := requestcontext.WithTime(context.Background(), now)
	s.seedToken("user-1", now.Add(-time.Minute))
	s.api.refreshPair = &models.TokenPair{
		AccessToken:  "access-new",
		RefreshToken: "refresh-new",
		ExpiresIn:    30 * time.Minute,
	}

	_, err := s.service.GetValidToken(ctx, "user-1")
	s.Require().NoError(err)

	record, err := s.store.Get(ctx, "user-1")
	s.Require().NoError(err)
	s.Require().NotNil(record)
	s.Equal(now.Add(30*time.Minute), record.ExpiresAt)
	s.Equal("refresh-new", record.RefreshToken)
}

func (s *AuthServiceSuite) TestRefreshFailureDeletesRecord() {
	s.seedToken("user-1", time.Now().Add(-time.Minute))
	s.api.refreshErr = errors.New("refresh token revoked")

	_, err := s.service.GetValidToken(context.Background(), "user-1")
	s.True(dErrors.HasCode(err, dErrors.CodeAuthFailed))

	record, getErr := s.store.Get(context.Background(), "user-1")
	s.Require().NoError(getErr)
	s.Nil(record, "a failed refresh must delete the stale record")

	// Next call starts from Unauthenticated without another refresh attempt.
	_, err = s.service.GetValidToken(context.Background(), "user-1")
	s.True(dErrors.HasCode(err, dErrors.CodeAuthFailed))
	s.Equal(1, s.api.refreshCalls)
}

func (s *AuthServiceSuite) TestInvalidate() {
	s.seedToken("user-1", time.Now().Add(time.Hour))

	s.Require().NoError(s.service.Invalidate(context.Background(), "user-1"))

	record, err := s.store.Get(context.Background(), "user-1")
	s.Require().NoError(err)
	s.Nil(record)
}

func (s *AuthServiceSuite) TestStartSMSLogin() {
	s.Run("returns otp handle without state change", func() {
		handle, err := s.service.StartSMSLogin(context.Background(), "+14155550100")
		s.Require().NoError(err)
		s.Equal(models.StatusOTPSent, handle.Status)
		s.Equal(6, handle.OTPLength)

		record, err := s.store.Get(context.Background(), "user-1")
		s.Require().NoError(err)
		s.Nil(record)
	})

	s.Run("missing phone rejected", func() {
		_, err := s.service.StartSMSLogin(context.Background(), "")
		s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	s.Run("upstream failure surfaces as auth error", func() {
		s.api.sendErr = errors.New("sms provider down")
		_, err := s.service.StartSMSLogin(context.Background(), "+14155550100")
		s.True(dErrors.HasCode(err, dErrors.CodeAuthFailed))
	})
}

func (s *AuthServiceSuite) TestCompleteSMSLogin() {
	s.Run("persists tokens and reports session", func() {
		result, err := s.service.CompleteSMSLogin(context.Background(), "+14155550100", "123456")
		s.Require().NoError(err)
		s.Equal(models.StatusAuthenticated, result.Status)
		s.Equal("user-1", result.UserID)
		s.False(result.IsNewUser)

		record, err := s.store.Get(context.Background(), "user-1")
		s.Require().NoError(err)
		s.Require().NotNil(record)
		s.Equal("access-1", record.AccessToken)
	})

	s.Run("rejected code leaves no state", func() {
		s.api.validateErr = errors.New("wrong code")
		_, err := s.service.CompleteSMSLogin(context.Background(), "+14155550100", "000000")
		s.True(dErrors.HasCode(err, dErrors.CodeAuthFailed))

		record, getErr := s.store.Get(context.Background(), "user-9")
		s.Require().NoError(getErr)
		s.Nil(record)
	})
}

func (s *AuthServiceSuite) TestLoginSocial() {
	s.Run("existing account persists tokens", func() {
		s.api.socialLogin = &models.SocialLoginUpstream{
			Tokens: &models.TokenPair{
				AccessToken:  "access-soc",
				RefreshToken: "refresh-soc",
				ExpiresIn:    time.Hour,
			},
			UserID: "user-7",
		}

		result, err := s.service.LoginSocial(context.Background(), "provider-token")
		s.Require().NoError(err)
		s.Equal(models.StatusAuthenticated, result.Status)
		s.Equal("user-7", result.UserID)

		record, err := s.store.Get(context.Background(), "user-7")
		s.Require().NoError(err)
		s.Require().NotNil(record)
		s.Equal("access-soc", record.AccessToken)
	})

	s.Run("new account gets onboarding handle and no tokens", func() {
		s.api.socialLogin = &models.SocialLoginUpstream{
			OnboardingToken: "onb-42",
		}

		result, err := s.service.LoginSocial(context.Background(), "provider-token")
		s.Require().NoError(err)
		s.Equal(models.StatusOnboarding, result.Status)
		s.True(result.IsNewUser)
		s.Equal("onb-42", result.OnboardingToken)
	})

	s.Run("rejected provider token", func() {
		s.api.socialErr = errors.New("bad token")
		_, err := s.service.LoginSocial(context.Background(), "provider-token")
		s.True(dErrors.HasCode(err, dErrors.CodeAuthFailed))
	})
}
