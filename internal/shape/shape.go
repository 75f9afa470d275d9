// Package shape validates request bodies against per-endpoint schemas.
// Shapes are declared as tagged structs and checked with go-playground
// validator; the pipeline treats this package as its schema-validation
// collaborator.
package shape

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "outpost/pkg/domain-errors"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	return v
}

type smsSendBody struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
}

type smsValidateBody struct {
	PhoneNumber string `json:"phone_number" validate:"required,e164"`
	OTPCode     string `json:"otp_code" validate:"required,numeric"`
}

type smsLoginBody struct {
	ExchangeToken string `json:"exchange_token" validate:"required,notblank"`
}

type socialLoginBody struct {
	Token string `json:"token" validate:"required,notblank"`
}

type refreshBody struct {
	RefreshToken string `json:"refresh_token" validate:"required,notblank"`
}

type profileUpdateBody struct {
	Bio    string `json:"bio" validate:"omitempty,max=500"`
	Gender string `json:"gender" validate:"omitempty,oneof=male female other"`
	MinAge int    `json:"min_age" validate:"omitempty,gte=18,lte=100"`
	MaxAge int    `json:"max_age" validate:"omitempty,gte=18,lte=100"`
}

// table maps endpoint patterns to shape constructors. A nil constructor means
// the endpoint takes no body: anything beyond an empty object is rejected.
// Lookup is exact match first, then longest matching substring.
var table = map[string]func() any{
	"/v2/auth/sms/send":     func() any { return &smsSendBody{} },
	"/v2/auth/sms/validate": func() any { return &smsValidateBody{} },
	"/v2/auth/login/sms":    func() any { return &smsLoginBody{} },
	"/v2/auth/login/social": func() any { return &socialLoginBody{} },
	"/v1/auth/refresh":      func() any { return &refreshBody{} },
	"/v2/profile":           func() any { return &profileUpdateBody{} },
	"/like":                 nil,
	"/pass":                 nil,
	"/boost":                nil,
	"/v2/recs/core":         nil,
	"/user":                 nil,
}

// Validate checks the body against the endpoint's declared shape and returns
// a validation_failed domain error describing the first offending field.
func Validate(endpoint string, body map[string]any) error {
	build, found := lookup(endpoint)
	if !found || build == nil {
		// Endpoints without a registered shape take no body.
		if len(body) > 0 {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("endpoint %s takes no request body", endpoint))
		}
		return nil
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "request body is not serializable")
	}
	target := build()
	if err := json.Unmarshal(raw, target); err != nil {
		return dErrors.Wrap(err, dErrors.CodeValidation, "request body does not match expected shape")
	}

	if err := validate.Struct(target); err != nil {
		return dErrors.New(dErrors.CodeValidation, errorMessage(err))
	}
	return nil
}

// lookup finds the shape for an endpoint: exact match first, otherwise the
// longest table key contained in the endpoint path.
func lookup(endpoint string) (func() any, bool) {
	if build, ok := table[endpoint]; ok {
		return build, true
	}

	bestLen := 0
	var best func() any
	found := false
	for pattern, build := range table {
		if strings.Contains(endpoint, pattern) && len(pattern) > bestLen {
			bestLen = len(pattern)
			best = build
			found = true
		}
	}
	return best, found
}

// errorMessage converts a validator error into a human-readable message.
func errorMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return "invalid request body"
	}

	fe := validationErrs[0]
	field := toSnakeCase(fe.Field())

	switch fe.ActualTag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "e164":
		return fmt.Sprintf("%s must be a valid international phone number", field)
	case "numeric":
		return fmt.Sprintf("%s must be numeric", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "notblank":
		return fmt.Sprintf("%s must not be blank", field)
	default:
		if field == "" {
			return "invalid request body"
		}
		return fmt.Sprintf("%s is invalid", field)
	}
}

func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			// Break before a capital that starts a word; acronym runs like
			// OTP stay together.
			startsWord := i > 0 && (isLower(runes[i-1]) || (i+1 < len(runes) && isLower(runes[i+1])))
			if startsWord {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isLower(r rune) bool {
	return r >= 'a' && r <= 'z'
}
