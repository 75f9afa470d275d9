package models

import (
	"regexp"
	"strings"
)

// ClientRequest is one inbound request to forward upstream. Body and
// QueryParams are replaced in place by sanitization before dispatch; all
// other fields are immutable for the request's lifetime.
type ClientRequest struct {
	Method       string
	Endpoint     string
	Headers      map[string]string
	Body         map[string]any
	QueryParams  map[string]string
	UserIdentity string
}

// Result is the normalized upstream outcome returned to callers, unwrapped
// from its transport envelope.
type Result struct {
	Status    int
	Body      map[string]any
	FromCache bool
}

var allowedMethods = map[string]struct{}{
	"GET":    {},
	"POST":   {},
	"PUT":    {},
	"PATCH":  {},
	"DELETE": {},
}

// identityPattern is the opaque-identifier format for user identities.
var identityPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// MethodAllowed reports whether the verb is in the fixed set.
func MethodAllowed(method string) bool {
	_, ok := allowedMethods[method]
	return ok
}

// ValidIdentity reports whether a user identity matches the opaque format.
func ValidIdentity(id string) bool {
	return identityPattern.MatchString(id)
}

// publicEndpoints need no authentication token: the login flows and refresh.
var publicEndpoints = map[string]struct{}{
	"/v2/auth/sms/send":     {},
	"/v2/auth/sms/validate": {},
	"/v2/auth/login/sms":    {},
	"/v2/auth/login/social": {},
	"/v1/auth/refresh":      {},
}

// Public reports whether the endpoint is in the pre-auth set.
func Public(endpoint string) bool {
	_, ok := publicEndpoints[endpoint]
	return ok
}

// Cacheable reports whether responses for this request may be served from and
// written to the response cache: idempotent reads on the allow-list only.
func Cacheable(method, endpoint string) bool {
	if method != "GET" {
		return false
	}
	if endpoint == "/v2/recs/core" || endpoint == "/v2/profile" {
		return true
	}
	segs := splitPath(endpoint)
	return len(segs) == 2 && segs[0] == "user" && allDigits(segs[1])
}

// TargetValid checks the numeric-target invariant on endpoints that embed an
// identifier in their path. Endpoints without an embedded target pass.
func TargetValid(endpoint string) bool {
	segs := splitPath(endpoint)
	if len(segs) == 0 {
		return true
	}
	switch segs[0] {
	case "like":
		switch len(segs) {
		case 2:
			return allDigits(segs[1])
		case 3:
			return allDigits(segs[1]) && segs[2] == "super"
		default:
			return false
		}
	case "pass", "user":
		return len(segs) == 2 && allDigits(segs[1])
	}
	return true
}

// Pattern normalizes an endpoint for metrics labels: digit segments collapse
// to "{id}" so label cardinality stays bounded.
func Pattern(endpoint string) string {
	segs := splitPath(endpoint)
	if len(segs) == 0 {
		return endpoint
	}
	for i, seg := range segs {
		if allDigits(seg) {
			segs[i] = "{id}"
		}
	}
	return "/" + strings.Join(segs, "/")
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
