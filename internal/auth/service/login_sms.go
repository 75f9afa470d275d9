package service

import (
	"context"

	"outpost/internal/auth/models"
	dErrors "outpost/pkg/domain-errors"
)

// StartSMSLogin is step one of the phone-based flow: it asks upstream to send
// a one-time code and returns the transport handle. No tokens are issued and
// no state changes here; only step two transitions to Authenticated.
func (s *Service) StartSMSLogin(ctx context.Context, phone string) (*models.OTPHandle, error) {
	if phone == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "phone number is required")
	}

	otpLength, err := s.upstream.SendOTP(ctx, phone)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeAuthFailed, "failed to request one-time code")
	}

	s.logAudit(ctx, "otp_requested", "otp_length", otpLength)
	return &models.OTPHandle{
		Status:    models.StatusOTPSent,
		OTPLength: otpLength,
	}, nil
}

// CompleteSMSLogin is step two: it exchanges the one-time code for a
// short-lived exchange token, then exchanges that for the access/refresh
// pair, which is persisted. Both exchanges must succeed before any state
// changes.
func (s *Service) CompleteSMSLogin(ctx context.Context, phone, code string) (*models.LoginResult, error) {
	if phone == "" || code == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "phone number and code are required")
	}

	exchangeToken, err := s.upstream.ValidateOTP(ctx, phone, code)
	if err != nil {
		s.countAuthFailure()
		return nil, dErrors.Wrap(err, dErrors.CodeAuthFailed, "one-time code rejected")
	}

	login, err := s.upstream.LoginSMS(ctx, exchangeToken)
	if err != nil {
		s.countAuthFailure()
		return nil, dErrors.Wrap(err, dErrors.CodeAuthFailed, "token exchange failed")
	}

	record := s.recordFromPair(ctx, login.UserID, login.Tokens)
	if err := s.tokens.Put(ctx, record); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to persist tokens")
	}

	s.logAudit(ctx, "sms_login_completed", "is_new_user", login.IsNewUser)
	return &models.LoginResult{
		Status:    models.StatusAuthenticated,
		UserID:    login.UserID,
		IsNewUser: login.IsNewUser,
	}, nil
}
