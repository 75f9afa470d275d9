package models

import "time"

// TokenRecord holds the upstream credential pair for one user identity.
// Records are replaced wholesale on refresh: upstream issues access and
// refresh tokens as a pair, so they are never updated independently.
type TokenRecord struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token has passed its expiry.
func (r *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// TokenPair is a freshly issued access/refresh token pair from upstream.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// OTPHandle is the transport handle returned by SMS login step one.
// No tokens are issued and no state changes at this point.
type OTPHandle struct {
	Status    string `json:"status"`
	OTPLength int    `json:"otpLength"`
}

// LoginResult is the outcome of a completed login flow.
type LoginResult struct {
	Status    string `json:"status"`
	UserID    string `json:"userId"`
	IsNewUser bool   `json:"isNewUser"`
}

// SocialLoginResult is the outcome of the one-step third-party-identity flow.
// Either tokens were issued (Authenticated) or the account is new and the
// caller must complete onboarding with the returned handle; the user stays
// unauthenticated in that case.
type SocialLoginResult struct {
	Status          string `json:"status"`
	UserID          string `json:"userId,omitempty"`
	IsNewUser       bool   `json:"isNewUser"`
	OnboardingToken string `json:"onboardingToken,omitempty"`
}

const (
	StatusOTPSent       = "otp_sent"
	StatusAuthenticated = "authenticated"
	StatusOnboarding    = "onboarding_required"
)

// SMSLoginUpstream is the upstream payload for a completed SMS login.
type SMSLoginUpstream struct {
	Tokens    TokenPair
	UserID    string
	IsNewUser bool
}

// SocialLoginUpstream is the upstream payload for a one-step social login.
// Tokens is nil when the account is new and must be onboarded first.
type SocialLoginUpstream struct {
	Tokens          *TokenPair
	UserID          string
	IsNewUser       bool
	OnboardingToken string
}
