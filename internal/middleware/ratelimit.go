package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"rulewise/apps/backend/internal/ratelimit"
)

// RateLimiter is the admission-control decision point. The Redis-backed
// implementation fails open, so a decision is always returned.
type RateLimiter interface {
	Allow(ctx context.Context, key, tier string) ratelimit.Decision
}

// RateLimit applies per-caller token-bucket admission to every wrapped route.
// Callers are keyed by client IP; the tier comes from the X-Client-Tier
// header set by the authenticating proxy, defaulting to anonymous.
func RateLimit(limiter RateLimiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tier := r.Header.Get("X-Client-Tier")
		if tier == "" {
			tier = ratelimit.TierAnonymous
		}

		decision := limiter.Allow(r.Context(), clientIP(r), tier)
		w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%.0f", decision.Remaining))

		if !decision.Allowed {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", decision.RetryAfterSeconds))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			err := json.NewEncoder(w).Encode(map[string]interface{}{
				"error": map[string]interface{}{
					"code":        "RATE_LIMITED",
					"message":     "too many requests",
					"retry_after": decision.RetryAfterSeconds,
				},
			})
			if err != nil {
				slog.Error("failed to encode rate limit response", "error", err)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
