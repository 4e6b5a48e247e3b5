package models

import (
	"fmt"
	"time"
)

// TwoFactorProfile is the persisted second-factor state for a subject
type TwoFactorProfile struct {
	Version        int               `json:"v"`
	Enabled        bool              `json:"enabled"`
	TOTPSecret     string            `json:"totp_secret,omitempty"`
	TOTPLastUsedAt *time.Time        `json:"totp_last_used_at,omitempty"` // For replay prevention
	BackupCodes    []BackupCodeEntry `json:"backup_codes"`
	GeneratedAt    time.Time         `json:"generated_at"`
}

// BackupCodeEntry represents a single unused backup code
type BackupCodeEntry struct {
	CodeHash string `json:"code_hash"` // Bcrypt hash of backup code
}

// NewTwoFactorProfile returns an empty, disabled profile
func NewTwoFactorProfile() *TwoFactorProfile {
	return &TwoFactorProfile{Version: RecordVersion}
}

// Validate checks the profile invariants
func (p *TwoFactorProfile) Validate() error {
	if err := checkVersion(p.Version); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(p.BackupCodes))
	for _, entry := range p.BackupCodes {
		if entry.CodeHash == "" {
			return fmt.Errorf("empty backup code hash")
		}
		if _, dup := seen[entry.CodeHash]; dup {
			return fmt.Errorf("duplicate backup code hash")
		}
		seen[entry.CodeHash] = struct{}{}
	}
	return nil
}

// SecondFactorMethod identifies which credential satisfied a second-factor check
type SecondFactorMethod string

const (
	SecondFactorNone       SecondFactorMethod = ""
	SecondFactorTOTP       SecondFactorMethod = "totp"
	SecondFactorBackupCode SecondFactorMethod = "backup_code"
)

// TwoFactorEnrollment is returned once when two-factor is enabled
type TwoFactorEnrollment struct {
	Secret      string   `json:"secret"`
	QRCode      string   `json:"qr_code"`      // Data URL for QR code
	BackupCodes []string `json:"backup_codes"` // Shown to the user exactly once
}

// TwoFactorStatus represents the two-factor status for a subject
type TwoFactorStatus struct {
	Enabled              bool       `json:"enabled"`
	RemainingBackupCodes int        `json:"remaining_backup_codes"`
	BackupCodesLow       bool       `json:"backup_codes_low"`
	GeneratedAt          *time.Time `json:"generated_at,omitempty"`
}
