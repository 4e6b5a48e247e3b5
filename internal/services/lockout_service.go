package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/store"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// LockoutConfig holds configuration for account lockout
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	// ExtendOnFailureWhileLocked re-anchors LockedUntil on every failure
	// recorded while the subject is locked. When false the lockout runs from
	// the first trip only.
	ExtendOnFailureWhileLocked bool
}

// DefaultLockoutConfig locks for 15 minutes after 5 consecutive failures
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:                5,
		LockoutDuration:            15 * time.Minute,
		ExtendOnFailureWhileLocked: true,
	}
}

// LockoutGuard tracks consecutive authentication failures per subject.
// Lock expiry is evaluated lazily on each query; nothing runs on a timer.
type LockoutGuard struct {
	guardDeps
	config LockoutConfig
}

// NewLockoutGuard creates a new LockoutGuard
func NewLockoutGuard(kv store.KVStore, config LockoutConfig, logger *slog.Logger, opts ...Option) *LockoutGuard {
	return &LockoutGuard{
		guardDeps: newGuardDeps("lockout_guard", kv, logger, opts),
		config:    config,
	}
}

// RecordFailure counts a failed authentication and trips the lock at the threshold
func (g *LockoutGuard) RecordFailure(ctx context.Context, subject string) error {
	key := store.Key(NamespaceLockout, subject)
	unlock := g.locks.Lock(key)
	defer unlock()

	now := g.now()
	state := models.NewLockoutState()
	found, err := g.load(ctx, key, state)
	switch {
	case errors.Is(err, models.ErrInvalidRecord):
		g.fallback(ctx, "record_failure", subject, err)
		state = models.NewLockoutState()
	case err != nil:
		return fmt.Errorf("failed to read lockout state: %w", err)
	case !found:
		state = models.NewLockoutState()
	}

	wasLocked := state.IsLockedAt(now)
	if state.LockedUntil != nil && !wasLocked {
		// Lock expired: start counting again from zero
		state = models.NewLockoutState()
	}

	state.FailedAttempts++
	g.metrics.IncrementLockoutFailures()

	event := ""
	switch {
	case wasLocked && g.config.ExtendOnFailureWhileLocked:
		until := now.Add(g.config.LockoutDuration)
		state.LockedUntil = &until
		event = pkglogger.EventLockoutExtended
	case !wasLocked && state.FailedAttempts >= g.config.MaxAttempts:
		until := now.Add(g.config.LockoutDuration)
		state.LockedUntil = &until
		event = pkglogger.EventLockoutTripped
		g.metrics.IncrementLockoutTrips()
	}

	if err := g.save(ctx, key, state); err != nil {
		return fmt.Errorf("failed to persist lockout state: %w", err)
	}

	if event != "" {
		g.audit.Log(ctx, pkglogger.AuditEvent{
			EventType:     event,
			Subject:       subject,
			FailureReason: "too_many_failed_attempts",
			Metadata: map[string]string{
				"failed_attempts": strconv.Itoa(state.FailedAttempts),
				"locked_until":    state.LockedUntil.UTC().Format(time.RFC3339),
			},
		})
	}
	return nil
}

// RecordSuccess returns the subject to the initial state. Calling it for a
// subject with no state is a no-op.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, subject string) error {
	return g.reset(ctx, subject, "authentication_succeeded")
}

// Reset clears the subject's lockout state on administrative request
func (g *LockoutGuard) Reset(ctx context.Context, subject string) error {
	return g.reset(ctx, subject, "administrative_reset")
}

func (g *LockoutGuard) reset(ctx context.Context, subject, reason string) error {
	key := store.Key(NamespaceLockout, subject)
	unlock := g.locks.Lock(key)
	defer unlock()

	state := g.current(ctx, subject, "reset")
	if err := g.remove(ctx, key); err != nil {
		return fmt.Errorf("failed to reset lockout state: %w", err)
	}

	if state.FailedAttempts > 0 || state.LockedUntil != nil {
		g.metrics.IncrementLockoutResets()
		g.audit.Log(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventLockoutReset,
			Subject:   subject,
			Success:   true,
			Metadata:  map[string]string{"reason": reason},
		})
	}
	return nil
}

// IsLocked reports whether the subject is locked now
func (g *LockoutGuard) IsLocked(ctx context.Context, subject string) bool {
	return g.State(ctx, subject).LockedUntil != nil
}

// RemainingAttempts reports how many failures are left before the lock trips
func (g *LockoutGuard) RemainingAttempts(ctx context.Context, subject string) int {
	remaining := g.config.MaxAttempts - g.State(ctx, subject).FailedAttempts
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TimeUntilUnlockSeconds is the lock's remaining time rounded up, 0 if unlocked
func (g *LockoutGuard) TimeUntilUnlockSeconds(ctx context.Context, subject string) int {
	state := g.State(ctx, subject)
	if state.LockedUntil == nil {
		return 0
	}
	return ceilSeconds(state.LockedUntil.Sub(g.now()))
}

// State returns a snapshot of the subject's lockout state. An expired lock is
// reported as the initial state.
func (g *LockoutGuard) State(ctx context.Context, subject string) models.LockoutState {
	return *g.current(ctx, subject, "query")
}

// Status combines the lockout queries into one view
func (g *LockoutGuard) Status(ctx context.Context, subject string) models.LockoutStatus {
	now := g.now()
	state := g.current(ctx, subject, "status")

	status := models.LockoutStatus{
		FailedAttempts:    state.FailedAttempts,
		RemainingAttempts: max(g.config.MaxAttempts-state.FailedAttempts, 0),
	}
	if state.LockedUntil != nil {
		status.Locked = true
		status.LockedUntil = state.LockedUntil
		status.TimeUntilUnlockSeconds = ceilSeconds(state.LockedUntil.Sub(now))
	}
	return status
}

// current loads the state for a query. Read failures are reported as the
// initial state.
func (g *LockoutGuard) current(ctx context.Context, subject, operation string) *models.LockoutState {
	state := models.NewLockoutState()
	found, err := g.load(ctx, store.Key(NamespaceLockout, subject), state)
	if err != nil {
		g.fallback(ctx, operation, subject, err)
		return models.NewLockoutState()
	}
	if !found {
		return models.NewLockoutState()
	}
	if state.LockedUntil != nil && !state.IsLockedAt(g.now()) {
		return models.NewLockoutState()
	}
	return state
}
