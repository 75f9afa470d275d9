// Package requestcontext provides middleware and utilities for request-scoped time.
// All operations within a single request use the same "now" timestamp, ensuring
// consistency in rate-limit window checks, token expiry checks, and audit logs.
package requestcontext

import (
	"context"
	"net/http"
	"time"
)

type contextKeyRequestTime struct{}

// Middleware captures the current time at the start of the request and stores
// it in the context for consistent time references throughout the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), contextKeyRequestTime{}, time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(contextKeyRequestTime{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Useful for service unit
// tests that don't run the full middleware chain.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, contextKeyRequestTime{}, t)
}
