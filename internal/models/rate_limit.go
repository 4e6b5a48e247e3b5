package models

import (
	"fmt"
	"time"
)

// RateLimitWindow counts authentication attempts since WindowStart
type RateLimitWindow struct {
	Version      int       `json:"v"`
	WindowStart  time.Time `json:"window_start"`
	AttemptCount int       `json:"attempt_count"`
}

// NewRateLimitWindow returns an empty window anchored at now
func NewRateLimitWindow(now time.Time) *RateLimitWindow {
	return &RateLimitWindow{
		Version:     RecordVersion,
		WindowStart: now,
	}
}

// Validate checks the window invariants
func (w *RateLimitWindow) Validate() error {
	if err := checkVersion(w.Version); err != nil {
		return err
	}
	if w.AttemptCount < 0 {
		return fmt.Errorf("negative attempt count %d", w.AttemptCount)
	}
	if w.WindowStart.IsZero() {
		return fmt.Errorf("missing window start")
	}
	return nil
}

// IsExpired reports whether more than duration has elapsed since WindowStart
func (w *RateLimitWindow) IsExpired(now time.Time, duration time.Duration) bool {
	return now.Sub(w.WindowStart) > duration
}

// RateLimitStatus is the read-only view of a subject's current window
type RateLimitStatus struct {
	AttemptsInWindow int       `json:"attempts_in_window"`
	WindowStart      time.Time `json:"window_start"`
	IsRateLimited    bool      `json:"is_rate_limited"`
	ResetInSeconds   int       `json:"reset_in_seconds"`
}
