package middleware

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/admitd/admitd/internal/metrics"
	"github.com/admitd/admitd/internal/ratelimit"
	"github.com/admitd/admitd/internal/security"
	"github.com/admitd/admitd/pkg/logger"
)

// Admitter is the part of the limiter the middleware needs.
type Admitter interface {
	Check(identifier string, cfg ratelimit.Config) (ratelimit.Result, error)
	RecordSuccess(identifier string, cfg ratelimit.Config) error
	RecordFailure(identifier string, cfg ratelimit.Config) error
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	TrustProxy     bool                // Trust X-Forwarded-For and X-Real-IP
	APIKeyHeader   string              // Header name for API key (e.g., "X-API-Key")
	TrustedProxies []string            // Proxy IPs allowed to set forwarding headers; empty trusts any
	Sanitizer      *security.Sanitizer // API keys it rejects fall back to the client IP
	Logger         *logger.Logger
}

// RateLimitResponse is the JSON response for rate limited requests.
type RateLimitResponse struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retry_after"`
}

// RateLimit admits each request against policy before passing it on. The
// downstream status is reported back afterwards: below 400 counts as a
// success, anything else as a failure. Limiter errors let the request through.
func RateLimit(limiter Admitter, policy ratelimit.Config, cfg RateLimitConfig) Middleware {
	proxies := newProxyPolicy(cfg.TrustProxy, cfg.TrustedProxies)
	sanitizer := cfg.Sanitizer
	if sanitizer == nil {
		sanitizer = security.NewSanitizer(security.DefaultConfig())
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier := requestIdentifier(r, cfg.APIKeyHeader, sanitizer, proxies)

			result, err := limiter.Check(identifier, policy)
			if err != nil {
				log.Error("rate limit check failed",
					"error", err.Error(),
					"request_id", GetRequestID(r.Context()),
				)
				next.ServeHTTP(w, r)
				return
			}

			setRateLimitHeaders(w, result)

			if !result.Allowed {
				metrics.RecordRateLimited()
				writeRateLimitResponse(w, result)
				return
			}

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			if rw.statusCode < http.StatusBadRequest {
				err = limiter.RecordSuccess(identifier, policy)
			} else {
				err = limiter.RecordFailure(identifier, policy)
			}
			if err != nil {
				log.Warn("rate limit outcome not recorded", "error", err.Error())
			}
		})
	}
}

// requestIdentifier prefers an API key when one is configured and present,
// otherwise the client IP.
func requestIdentifier(r *http.Request, apiKeyHeader string, sanitizer *security.Sanitizer, proxies proxyPolicy) string {
	if apiKeyHeader != "" {
		if apiKey := r.Header.Get(apiKeyHeader); sanitizer.Valid(apiKey) {
			return "api:" + apiKey
		}
	}

	// ClientIP may already have resolved it.
	if ip := GetClientIP(r.Context()); ip != "" {
		return "ip:" + ip
	}
	return "ip:" + proxies.clientIP(r)
}

func setRateLimitHeaders(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))

	if !result.ResetAt.IsZero() {
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
	}

	if !result.Allowed {
		w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(result.RetryAfter)))
	}
}

func writeRateLimitResponse(w http.ResponseWriter, result ratelimit.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)

	_ = json.NewEncoder(w).Encode(RateLimitResponse{
		Error:      "rate limit exceeded",
		Code:       "RATE_LIMIT_EXCEEDED",
		RetryAfter: retrySeconds(result.RetryAfter),
	})
}

// retrySeconds rounds d up to whole seconds, never below one.
func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
