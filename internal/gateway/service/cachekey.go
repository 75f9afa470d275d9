package service

import (
	"sort"
	"strings"
)

// cacheKey composes the deterministic response-cache key from endpoint,
// query parameters, and user identity. Query keys are sorted so equivalent
// requests always hit the same entry.
func cacheKey(endpoint string, query map[string]string, userID string) string {
	var b strings.Builder
	b.WriteString(endpoint)
	b.WriteByte('|')

	if len(query) > 0 {
		keys := make([]string, 0, len(query))
		for k := range query {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteByte('&')
			}
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(query[k])
		}
	}

	b.WriteByte('|')
	b.WriteString(userID)
	return b.String()
}
