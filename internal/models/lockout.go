package models

import (
	"fmt"
	"time"
)

// LockoutState tracks consecutive authentication failures for a subject.
// LockedUntil is set only while FailedAttempts has reached the threshold.
type LockoutState struct {
	Version        int        `json:"v"`
	FailedAttempts int        `json:"failed_attempts"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
}

// NewLockoutState returns the initial unlocked state
func NewLockoutState() *LockoutState {
	return &LockoutState{Version: RecordVersion}
}

// Validate checks the lockout invariants
func (s *LockoutState) Validate() error {
	if err := checkVersion(s.Version); err != nil {
		return err
	}
	if s.FailedAttempts < 0 {
		return fmt.Errorf("negative failed attempts %d", s.FailedAttempts)
	}
	return nil
}

// IsLockedAt reports whether the state is locked at the given instant
func (s *LockoutState) IsLockedAt(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// LockoutStatus is the query view of a subject's lockout state
type LockoutStatus struct {
	Locked                 bool       `json:"locked"`
	FailedAttempts         int        `json:"failed_attempts"`
	RemainingAttempts      int        `json:"remaining_attempts"`
	LockedUntil            *time.Time `json:"locked_until,omitempty"`
	TimeUntilUnlockSeconds int        `json:"time_until_unlock_seconds"`
}
