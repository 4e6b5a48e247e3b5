package services

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/store"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// RateLimitConfig holds configuration for the attempt throttle
type RateLimitConfig struct {
	MaxAttemptsPerWindow int
	WindowDuration       time.Duration
}

// DefaultRateLimitConfig allows 10 attempts per minute
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttemptsPerWindow: 10,
		WindowDuration:       60 * time.Second,
	}
}

// RateLimiter bounds authentication attempts per subject within a window.
// It is a UX throttle: store failures fail open.
type RateLimiter struct {
	guardDeps
	config RateLimitConfig
}

// NewRateLimiter creates a new RateLimiter
func NewRateLimiter(kv store.KVStore, config RateLimitConfig, logger *slog.Logger, opts ...Option) *RateLimiter {
	return &RateLimiter{
		guardDeps: newGuardDeps("rate_limiter", kv, logger, opts),
		config:    config,
	}
}

// CheckStatus reports the subject's current window without writing.
// An expired window is reported as if it had already rolled over.
func (r *RateLimiter) CheckStatus(ctx context.Context, subject string) models.RateLimitStatus {
	now := r.now()
	w := r.readWindow(ctx, subject, now, "check_status")
	return r.status(w, now)
}

// RecordAttempt counts one attempt. It returns false, without counting,
// when the subject is already at the limit for the current window.
func (r *RateLimiter) RecordAttempt(ctx context.Context, subject string) bool {
	key := store.Key(NamespaceRateLimit, subject)
	unlock := r.locks.Lock(key)
	defer unlock()

	now := r.now()
	w := r.readWindow(ctx, subject, now, "record_attempt")

	if w.AttemptCount >= r.config.MaxAttemptsPerWindow {
		r.metrics.ObserveRateLimitDecision(false)
		r.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventRateLimited,
			Subject:       subject,
			FailureReason: "too_many_attempts",
		})
		return false
	}

	w.AttemptCount++
	if err := r.save(ctx, key, w); err != nil {
		// Fail open: a local storage fault must not block a login attempt
		r.fallback(ctx, "write", subject, err)
	}

	r.metrics.ObserveRateLimitDecision(true)
	return true
}

// Reset discards the subject's window
func (r *RateLimiter) Reset(ctx context.Context, subject string) error {
	key := store.Key(NamespaceRateLimit, subject)
	unlock := r.locks.Lock(key)
	defer unlock()

	return r.remove(ctx, key)
}

// readWindow loads the window, substituting a fresh one when it is missing,
// unreadable or expired.
func (r *RateLimiter) readWindow(ctx context.Context, subject string, now time.Time, operation string) *models.RateLimitWindow {
	w := &models.RateLimitWindow{}
	found, err := r.load(ctx, store.Key(NamespaceRateLimit, subject), w)
	if err != nil {
		r.fallback(ctx, operation, subject, err)
		return models.NewRateLimitWindow(now)
	}
	if !found || w.IsExpired(now, r.config.WindowDuration) {
		return models.NewRateLimitWindow(now)
	}
	return w
}

func (r *RateLimiter) status(w *models.RateLimitWindow, now time.Time) models.RateLimitStatus {
	status := models.RateLimitStatus{
		AttemptsInWindow: w.AttemptCount,
		WindowStart:      w.WindowStart,
		IsRateLimited:    w.AttemptCount >= r.config.MaxAttemptsPerWindow,
	}
	if w.AttemptCount > 0 {
		remaining := w.WindowStart.Add(r.config.WindowDuration).Sub(now)
		status.ResetInSeconds = ceilSeconds(remaining)
	}
	return status
}

// ceilSeconds rounds a positive duration up to whole seconds
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
