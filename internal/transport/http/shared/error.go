// Package shared holds transport helpers used by every handler group.
package shared

import (
	"net/http"
	"strconv"
	"time"

	"outpost/internal/transport/http/json"
	dErrors "outpost/pkg/domain-errors"
)

// WriteError centralizes domain error translation to HTTP responses.
// Rate-limit errors additionally carry the scope, the reset timestamp, and a
// Retry-After header so well-behaved clients can back off precisely.
func WriteError(w http.ResponseWriter, err error) {
	domainErr := dErrors.AsError(err)
	if domainErr == nil {
		json.WriteJSON(w, http.StatusInternalServerError, map[string]any{
			"error": string(dErrors.CodeInternal),
		})
		return
	}

	response := map[string]any{
		"error": string(domainErr.Code),
	}
	if domainErr.Message != "" {
		response["error_description"] = domainErr.Message
	}
	if domainErr.Detail != nil {
		response["detail"] = domainErr.Detail
	}

	if domainErr.Code == dErrors.CodeRateLimited {
		if domainErr.Scope != "" {
			response["scope"] = domainErr.Scope
		}
		if !domainErr.ResetAt.IsZero() {
			response["reset_at"] = domainErr.ResetAt.UTC().Format(time.RFC3339)
			if retryAfter := time.Until(domainErr.ResetAt); retryAfter > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			}
		}
	}

	json.WriteJSON(w, CodeToHTTPStatus(domainErr.Code), response)
}

// CodeToHTTPStatus translates domain error codes to HTTP status codes.
func CodeToHTTPStatus(code dErrors.Code) int {
	switch code {
	case dErrors.CodeValidation, dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeAuthFailed:
		return http.StatusUnauthorized
	case dErrors.CodeRateLimited:
		return http.StatusTooManyRequests
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeNetwork:
		return http.StatusBadGateway
	case dErrors.CodeUpstream:
		return http.StatusBadGateway
	case dErrors.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
