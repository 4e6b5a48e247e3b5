package middleware

import (
	"net/http"
	"time"

	"github.com/BradenHooton/authguard/internal/auth"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds request throttling configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	IP                *pkghttp.IPConfig // Trusted proxies for client IP extraction
}

// DefaultRateLimit returns the default request throttle (60 requests per minute)
func DefaultRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
	}
}

func limitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.SetRetryAfter(w, 60)
	pkghttp.WriteTooManyRequests(w, "Rate limit exceeded")
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// Forwarding headers are honored only from the configured trusted proxies.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return "ip:" + pkghttp.ExtractClientIP(r, config.IP), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}

// RateLimitBySubject rate limits by the bearer token's subject, falling back
// to the client IP for unauthenticated requests
func RateLimitBySubject(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetClaimsFromContext(r); claims != nil {
				return "sub:" + claims.Subject, nil
			}
			return "ip:" + pkghttp.ExtractClientIP(r, config.IP), nil
		}),
		httprate.WithLimitHandler(limitExceeded),
	)
}
