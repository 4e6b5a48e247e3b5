package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	totpPeriod = 30
	// totpReplayWindow covers the ±1 step skew accepted by ValidateTOTP
	totpReplayWindow = 90 * time.Second
)

// TOTPManager handles TOTP secret generation and validation
type TOTPManager struct {
	issuer string // Issuer name for TOTP QR codes
}

// NewTOTPManager creates a new TOTP manager
func NewTOTPManager(issuer string) (*TOTPManager, error) {
	if issuer == "" {
		return nil, fmt.Errorf("TOTP issuer is required")
	}
	return &TOTPManager{issuer: issuer}, nil
}

// GenerateSecretWithQR generates a secret and returns it with a QR code for setup
// Returns: (base32Secret, qrCodeDataURL, error)
func (tm *TOTPManager) GenerateSecretWithQR(accountName string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      tm.issuer,
		AccountName: accountName,
		SecretSize:  32, // 256 bits
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	qr, err := qrcode.New(key.URL(), qrcode.Highest)
	if err != nil {
		return "", "", fmt.Errorf("failed to create QR code: %w", err)
	}

	qrImage, err := qr.PNG(200)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode QR code: %w", err)
	}

	qrDataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrImage)
	return key.Secret(), qrDataURL, nil
}

// ValidateTOTP validates a code against a base32 secret at the given time.
// Allows ±1 time step for clock drift. A valid code presented within 90
// seconds of the last accepted one returns models.ErrCodeReplay.
func (tm *TOTPManager) ValidateTOTP(secret, code string, now time.Time, lastUsedAt *time.Time) (bool, error) {
	valid, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if errors.Is(err, otp.ErrValidateInputInvalidLength) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to validate TOTP: %w", err)
	}
	if !valid {
		return false, nil
	}

	if lastUsedAt != nil && now.Sub(*lastUsedAt) < totpReplayWindow {
		return false, models.ErrCodeReplay
	}

	return true, nil
}
