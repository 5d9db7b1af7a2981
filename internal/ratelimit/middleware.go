package ratelimit

import (
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/MabelMoncy/EduCrateNoteHub/internal/logging"
	"github.com/MabelMoncy/EduCrateNoteHub/internal/metrics"
)

// RejectMessage is the error text sent with every 429.
const RejectMessage = "Too many requests. Please try again later."

// KeyFunc extracts the rate-limit key from a request.
type KeyFunc func(r *http.Request) string

// ClientKey keys requests by client address: the first X-Forwarded-For entry
// when present, otherwise the host part of RemoteAddr.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		if r.RemoteAddr == "" {
			return "unknown"
		}
		return r.RemoteAddr
	}
	return host
}

// Middleware returns middleware that rejects requests over the limit with 429.
func Middleware(counter Counter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientKey
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			d := counter.Check(key)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				metrics.RecordRateLimitHit()
				logging.WithContext(r.Context()).Warn("rate limit exceeded",
					zap.String("client", key),
					zap.String("path", r.URL.Path))

				retryAfter := int(math.Ceil(d.RetryAfter.Seconds()))
				w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]any{
					"success": false,
					"error":   RejectMessage,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
