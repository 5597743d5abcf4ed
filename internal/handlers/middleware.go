package handlers

import (
	"crypto/subtle"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stocktide/api/internal/platform/httpx"
	"github.com/stocktide/api/internal/platform/requestctx"
)

const (
	actorHeader  = "X-Actor"
	apiKeyHeader = "X-API-Key"
)

// ActorMiddleware resolves the acting user from the request headers and stores
// it on the context for audit trails and idempotency scoping.
func ActorMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if actor := strings.TrimSpace(r.Header.Get(actorHeader)); actor != "" {
				r = r.WithContext(requestctx.WithActor(r.Context(), actor))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// APIKeyMiddleware rejects requests that do not carry the configured admin
// key. An empty key disables the check.
func APIKeyMiddleware(key string) func(http.Handler) http.Handler {
	key = strings.TrimSpace(key)
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(apiKeyHeader))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "a valid API key is required", http.StatusUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimitMiddleware applies a fixed-window per-client limit keyed by the
// resolved remote address. RealIP must run earlier in the chain for the key
// to reflect the actual client.
func RateLimitMiddleware(limit int, window time.Duration) func(http.Handler) http.Handler {
	limiter := newSimpleRateLimiter(limit, window, nil)
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(clientKey(r)) {
				httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests", http.StatusTooManyRequests))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
