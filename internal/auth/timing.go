package auth

import (
	"context"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelay      time.Duration // Minimum delay applied to a failure
	RandomDelay    time.Duration // Upper bound of the random delay added on top
	DelayOnSuccess bool          // If true, delay even on successful login
}

// TimingDelay pads authentication failures so that the different failure
// reasons take about the same time.
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay creates a new TimingDelay instance
func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// target returns baseDelay plus a random delay in [0, RandomDelay)
func (td *TimingDelay) target() time.Duration {
	delay := td.config.BaseDelay
	if td.config.RandomDelay > 0 {
		if ms, err := randIntn(int(td.config.RandomDelay / time.Millisecond)); err == nil {
			delay += time.Duration(ms) * time.Millisecond
		}
	}
	return delay
}

// WaitFrom sleeps until at least the target delay has elapsed since start.
// It returns ctx.Err() if the context ends first. A nil TimingDelay never waits.
func (td *TimingDelay) WaitFrom(ctx context.Context, start time.Time, success bool) error {
	if td == nil || (success && !td.config.DelayOnSuccess) {
		return nil
	}

	remaining := td.target() - time.Since(start)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Wait applies the full delay for the outcome
func (td *TimingDelay) Wait(ctx context.Context, success bool) error {
	return td.WaitFrom(ctx, time.Now(), success)
}
