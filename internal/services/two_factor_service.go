package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/store"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// TwoFactorService manages TOTP enrollment and second-factor verification.
// Backup codes are delegated to the vault, which owns the profile record.
type TwoFactorService struct {
	vault   *BackupCodeVault
	totpMgr *auth.TOTPManager
	logger  *slog.Logger
}

// NewTwoFactorService creates a new two-factor service
func NewTwoFactorService(vault *BackupCodeVault, totpMgr *auth.TOTPManager, logger *slog.Logger) *TwoFactorService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TwoFactorService{
		vault:   vault,
		totpMgr: totpMgr,
		logger:  logger,
	}
}

// Enable enrolls the subject: a new TOTP secret, its QR code and a fresh set
// of backup codes. Enabling an enrolled subject rotates all three.
func (s *TwoFactorService) Enable(ctx context.Context, subject, accountName string) (*models.TwoFactorEnrollment, error) {
	secret, qrCode, err := s.totpMgr.GenerateSecretWithQR(accountName)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	codes, entries, err := s.vault.newCodeSet(s.vault.config.Count)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate backup codes", slog.Any("error", err))
		return nil, err
	}

	err = s.vault.withProfile(ctx, subject, "enable", func(p *models.TwoFactorProfile) (bool, error) {
		p.Enabled = true
		p.TOTPSecret = secret
		p.TOTPLastUsedAt = nil
		p.BackupCodes = entries
		p.GeneratedAt = s.vault.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	s.vault.metrics.AddBackupCodesGenerated(len(codes))
	s.vault.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventTwoFactorEnabled,
		Subject:   subject,
		Success:   true,
	})

	return &models.TwoFactorEnrollment{
		Secret:      secret,
		QRCode:      qrCode,
		BackupCodes: codes,
	}, nil
}

// Disable removes the subject's profile, including unused backup codes
func (s *TwoFactorService) Disable(ctx context.Context, subject string) error {
	key := store.Key(NamespaceTwoFactor, subject)
	unlock := s.vault.locks.Lock(key)
	defer unlock()

	if err := s.vault.remove(ctx, key); err != nil {
		return fmt.Errorf("failed to disable two-factor: %w", err)
	}

	s.vault.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventTwoFactorDisabled,
		Subject:   subject,
		Success:   true,
	})
	return nil
}

// Status reports enrollment and backup code counts
func (s *TwoFactorService) Status(ctx context.Context, subject string) (*models.TwoFactorStatus, error) {
	p, err := s.vault.profile(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrBackupCodeUnavailable, err)
	}

	status := &models.TwoFactorStatus{
		Enabled:              p.Enabled,
		RemainingBackupCodes: len(p.BackupCodes),
		BackupCodesLow:       p.Enabled && len(p.BackupCodes) <= s.vault.config.LowThreshold,
	}
	if !p.GeneratedAt.IsZero() {
		generatedAt := p.GeneratedAt
		status.GeneratedAt = &generatedAt
	}
	return status, nil
}

// Verify checks code as a TOTP code first and then as a backup code.
// It returns the method that accepted the code, or
// models.ErrTwoFactorInvalidCode when neither did.
func (s *TwoFactorService) Verify(ctx context.Context, subject, code string) (models.SecondFactorMethod, error) {
	var totpErr error
	accepted := false

	err := s.vault.withProfile(ctx, subject, "verify", func(p *models.TwoFactorProfile) (bool, error) {
		if !p.Enabled {
			return false, models.ErrTwoFactorNotEnabled
		}
		if p.TOTPSecret == "" {
			return false, nil
		}

		now := s.vault.now()
		valid, err := s.totpMgr.ValidateTOTP(p.TOTPSecret, code, now, p.TOTPLastUsedAt)
		if err != nil {
			totpErr = err
			return false, nil
		}
		if !valid {
			return false, nil
		}

		usedAt := now.UTC()
		p.TOTPLastUsedAt = &usedAt
		accepted = true
		return true, nil
	})
	if err != nil {
		return models.SecondFactorNone, err
	}
	if accepted {
		return models.SecondFactorTOTP, nil
	}
	if errors.Is(totpErr, models.ErrCodeReplay) {
		s.logger.WarnContext(ctx, "rejected replayed TOTP code", pkglogger.SubjectAttr(subject))
		return models.SecondFactorNone, models.ErrCodeReplay
	}
	if totpErr != nil {
		s.logger.WarnContext(ctx, "TOTP validation failed",
			pkglogger.SubjectAttr(subject),
			slog.Any("error", totpErr))
	}

	consumed, err := s.vault.Consume(ctx, subject, code)
	if err != nil {
		return models.SecondFactorNone, err
	}
	if consumed {
		return models.SecondFactorBackupCode, nil
	}
	return models.SecondFactorNone, models.ErrTwoFactorInvalidCode
}
