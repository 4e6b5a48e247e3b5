package handlers

import "time"

// Rate limit DTOs

// RecordAttemptResponse reports whether an attempt was admitted
type RecordAttemptResponse struct {
	Allowed        bool `json:"allowed"`
	ResetInSeconds int  `json:"reset_in_seconds,omitempty"`
}

// Backup code DTOs

// GenerateBackupCodesRequest is the request for a new code set
type GenerateBackupCodesRequest struct {
	Count int `json:"count" validate:"gte=0,lte=50"`
}

// GenerateBackupCodesResponse carries the plaintext codes, shown once
type GenerateBackupCodesResponse struct {
	BackupCodes []string `json:"backup_codes"` // Grouped for display, e.g. ABCD-EFGH
	Count       int      `json:"count"`
}

// ConsumeBackupCodeRequest is the request to spend a code
type ConsumeBackupCodeRequest struct {
	Code string `json:"code" validate:"required,backupcode"`
}

// ConsumeBackupCodeResponse reports whether the code was spent
type ConsumeBackupCodeResponse struct {
	Consumed       bool `json:"consumed"`
	RemainingCodes int  `json:"remaining_codes"`
	RunningLow     bool `json:"running_low"`
}

// BackupCodeStatusResponse summarizes the unused codes
type BackupCodeStatusResponse struct {
	RemainingCodes int  `json:"remaining_codes"`
	RunningLow     bool `json:"running_low"`
}

// Two-factor DTOs

// EnableTwoFactorRequest is the request to enroll
type EnableTwoFactorRequest struct {
	AccountName string `json:"account_name" validate:"required,max=255"`
}

// EnableTwoFactorResponse contains QR code and backup codes for setup
type EnableTwoFactorResponse struct {
	QRCode      string    `json:"qr_code"`      // Data URL for QR code
	Secret      string    `json:"secret"`       // Base32-encoded secret (for manual entry)
	BackupCodes []string  `json:"backup_codes"` // Grouped for display
	EnrolledAt  time.Time `json:"enrolled_at"`
}

// VerifyTwoFactorRequest is the request to check a second-factor code
type VerifyTwoFactorRequest struct {
	Code string `json:"code" validate:"required,max=20"` // TOTP (6 digits) or backup code (8 chars)
}

// VerifyTwoFactorResponse reports which method accepted the code
type VerifyTwoFactorResponse struct {
	Verified bool   `json:"verified"`
	Method   string `json:"method,omitempty"`
}
