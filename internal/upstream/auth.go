package upstream

import (
	"context"
	"net/http"
	"time"

	"outpost/internal/auth/models"
	dErrors "outpost/pkg/domain-errors"
)

// Login-flow endpoints. These are the public (pre-auth) slice of the upstream
// API; none of them attach an Authorization header.
const (
	pathSMSSend     = "/v2/auth/sms/send"
	pathSMSValidate = "/v2/auth/sms/validate"
	pathLoginSMS    = "/v2/auth/login/sms"
	pathLoginSocial = "/v2/auth/login/social"
	pathRefresh     = "/v1/auth/refresh"
)

const defaultOTPLength = 6

// SendOTP asks upstream to text a one-time code to the phone number.
func (c *Client) SendOTP(ctx context.Context, phone string) (int, error) {
	resp, err := c.Do(ctx, &Call{
		Method: http.MethodPost,
		Path:   pathSMSSend,
		Body:   map[string]any{"phone_number": phone},
	})
	if err != nil {
		return 0, err
	}

	if n, ok := numberField(resp.Body, "otp_length"); ok {
		return n, nil
	}
	return defaultOTPLength, nil
}

// ValidateOTP exchanges the one-time code for a short-lived exchange token.
func (c *Client) ValidateOTP(ctx context.Context, phone, code string) (string, error) {
	resp, err := c.Do(ctx, &Call{
		Method: http.MethodPost,
		Path:   pathSMSValidate,
		Body:   map[string]any{"phone_number": phone, "otp_code": code},
	})
	if err != nil {
		return "", err
	}

	token, ok := stringField(resp.Body, "exchange_token")
	if !ok {
		return "", dErrors.New(dErrors.CodeAuthFailed, "upstream returned no exchange token")
	}
	return token, nil
}

// LoginSMS exchanges the short-lived exchange token for the access/refresh pair.
func (c *Client) LoginSMS(ctx context.Context, exchangeToken string) (*models.SMSLoginUpstream, error) {
	resp, err := c.Do(ctx, &Call{
		Method: http.MethodPost,
		Path:   pathLoginSMS,
		Body:   map[string]any{"exchange_token": exchangeToken},
	})
	if err != nil {
		return nil, err
	}

	pair, ok := tokenPairFromBody(resp.Body)
	if !ok {
		return nil, dErrors.New(dErrors.CodeAuthFailed, "upstream returned no token pair")
	}
	userID, _ := stringField(resp.Body, "user_id")
	isNew := boolField(resp.Body, "is_new_user")
	return &models.SMSLoginUpstream{Tokens: pair, UserID: userID, IsNewUser: isNew}, nil
}

// LoginSocial performs the one-step third-party-identity login. Existing
// accounts get tokens; new accounts get an onboarding token and no pair.
func (c *Client) LoginSocial(ctx context.Context, providerToken string) (*models.SocialLoginUpstream, error) {
	resp, err := c.Do(ctx, &Call{
		Method: http.MethodPost,
		Path:   pathLoginSocial,
		Body:   map[string]any{"token": providerToken},
	})
	if err != nil {
		return nil, err
	}

	result := &models.SocialLoginUpstream{IsNewUser: boolField(resp.Body, "is_new_user")}
	result.UserID, _ = stringField(resp.Body, "user_id")

	if pair, ok := tokenPairFromBody(resp.Body); ok {
		result.Tokens = &pair
		return result, nil
	}

	onboarding, ok := stringField(resp.Body, "onboarding_token")
	if !ok {
		return nil, dErrors.New(dErrors.CodeAuthFailed, "upstream returned neither tokens nor onboarding handle")
	}
	result.OnboardingToken = onboarding
	result.IsNewUser = true
	return result, nil
}

// Refresh posts the stored refresh token and returns a new pair. Upstream
// always reissues both tokens together.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*models.TokenPair, error) {
	resp, err := c.Do(ctx, &Call{
		Method: http.MethodPost,
		Path:   pathRefresh,
		Body:   map[string]any{"refresh_token": refreshToken},
	})
	if err != nil {
		return nil, err
	}

	pair, ok := tokenPairFromBody(resp.Body)
	if !ok {
		return nil, dErrors.New(dErrors.CodeAuthFailed, "upstream refresh returned no token pair")
	}
	return &pair, nil
}

func tokenPairFromBody(body map[string]any) (models.TokenPair, bool) {
	access, ok := stringField(body, "access_token")
	if !ok {
		return models.TokenPair{}, false
	}
	refresh, ok := stringField(body, "refresh_token")
	if !ok {
		return models.TokenPair{}, false
	}
	pair := models.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    time.Hour,
	}
	if n, ok := numberField(body, "expires_in"); ok && n > 0 {
		pair.ExpiresIn = time.Duration(n) * time.Second
	}
	return pair, true
}

func stringField(m map[string]any, key string) (string, bool) {
	if v, ok := m[key].(string); ok && v != "" {
		return v, true
	}
	return "", false
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

func boolField(m map[string]any, key string) bool {
	v, _ := m[key].(bool)
	return v
}
