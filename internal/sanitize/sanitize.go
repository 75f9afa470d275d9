// Package sanitize neutralizes hostile request content before any further
// processing: HTML-like fragments are stripped from string values and
// prototype-polluting keys are dropped from objects. All traversal is
// depth-bounded so deeply nested payloads cannot exhaust the stack.
package sanitize

import (
	"regexp"
	"strings"
)

// maxDepth bounds recursion into nested objects and arrays.
const maxDepth = 8

var htmlTagPattern = regexp.MustCompile(`<[^>]*>`)

// blockedKeys are object keys dropped outright: harmless to Go itself but
// hostile to downstream JavaScript consumers of forwarded payloads.
var blockedKeys = map[string]struct{}{
	"__proto__":   {},
	"constructor": {},
	"prototype":   {},
}

// Body returns a sanitized copy of a decoded JSON body.
func Body(body map[string]any) map[string]any {
	return sanitizeMap(body, 0)
}

// Params returns a sanitized copy of flat string parameters (query values).
func Params(params map[string]string) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string, len(params))
	for k, v := range params {
		if _, blocked := blockedKeys[k]; blocked {
			continue
		}
		out[k] = String(v)
	}
	return out
}

// String strips HTML-like fragments from a single value.
func String(s string) string {
	if !strings.ContainsRune(s, '<') {
		return s
	}
	return htmlTagPattern.ReplaceAllString(s, "")
}

func sanitizeMap(m map[string]any, depth int) map[string]any {
	if m == nil || depth >= maxDepth {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if _, blocked := blockedKeys[k]; blocked {
			continue
		}
		out[k] = sanitizeValue(v, depth+1)
	}
	return out
}

func sanitizeValue(v any, depth int) any {
	switch val := v.(type) {
	case string:
		return String(val)
	case map[string]any:
		return sanitizeMap(val, depth)
	case []any:
		if depth >= maxDepth {
			return val
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = sanitizeValue(item, depth+1)
		}
		return out
	default:
		return v
	}
}
