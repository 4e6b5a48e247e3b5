package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/store"
	pkgauth "github.com/BradenHooton/authguard/pkg/auth"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// BackupCodeConfig holds configuration for recovery codes
type BackupCodeConfig struct {
	Count        int
	LowThreshold int
	HashCost     int
}

// DefaultBackupCodeConfig issues 10 codes and warns at 3 remaining
func DefaultBackupCodeConfig() BackupCodeConfig {
	return BackupCodeConfig{
		Count:        10,
		LowThreshold: 3,
		HashCost:     pkgauth.DefaultHashCost,
	}
}

// BackupCodeVault issues and consumes one-time recovery codes. Only bcrypt
// hashes are persisted; plaintext codes are returned once by Generate.
type BackupCodeVault struct {
	guardDeps
	config BackupCodeConfig
}

// NewBackupCodeVault creates a new BackupCodeVault
func NewBackupCodeVault(kv store.KVStore, config BackupCodeConfig, logger *slog.Logger, opts ...Option) *BackupCodeVault {
	if config.Count <= 0 {
		config.Count = DefaultBackupCodeConfig().Count
	}
	if config.HashCost == 0 {
		config.HashCost = pkgauth.DefaultHashCost
	}
	return &BackupCodeVault{
		guardDeps: newGuardDeps("backup_code_vault", kv, logger, opts),
		config:    config,
	}
}

// Generate replaces the subject's code set with count fresh codes
// (count <= 0 uses the configured default). Nothing is returned unless the
// new set was persisted.
func (v *BackupCodeVault) Generate(ctx context.Context, subject string, count int) ([]string, error) {
	if count <= 0 {
		count = v.config.Count
	}

	codes, entries, err := v.newCodeSet(count)
	if err != nil {
		v.logger.ErrorContext(ctx, "failed to generate backup codes", slog.Any("error", err))
		return nil, err
	}

	err = v.withProfile(ctx, subject, "generate", func(p *models.TwoFactorProfile) (bool, error) {
		p.BackupCodes = entries
		p.GeneratedAt = v.now().UTC()
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	v.metrics.AddBackupCodesGenerated(len(codes))
	v.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventBackupCodesGenerated,
		Subject:   subject,
		Success:   true,
		Metadata:  map[string]string{"count": strconv.Itoa(len(codes))},
	})
	return codes, nil
}

// Consume spends code if it matches one of the subject's unused codes.
// A code that does not match, including one already spent, returns false.
// If the vault cannot be read, or the spent code cannot be removed, Consume
// fails closed with models.ErrBackupCodeUnavailable.
func (v *BackupCodeVault) Consume(ctx context.Context, subject, code string) (bool, error) {
	if !auth.IsBackupCodeShape(code) {
		v.rejected(ctx, subject, "malformed")
		return false, nil
	}

	matched := false
	err := v.withProfile(ctx, subject, "consume", func(p *models.TwoFactorProfile) (bool, error) {
		for i, entry := range p.BackupCodes {
			if pkgauth.CompareSecret(entry.CodeHash, code) {
				p.BackupCodes = append(p.BackupCodes[:i], p.BackupCodes[i+1:]...)
				matched = true
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		v.metrics.IncrementBackupCodeConsumes("unavailable")
		return false, err
	}

	if !matched {
		v.rejected(ctx, subject, "no_match")
		return false, nil
	}

	v.metrics.IncrementBackupCodeConsumes("consumed")
	v.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventBackupCodeConsumed,
		Subject:   subject,
		Success:   true,
	})
	return true, nil
}

func (v *BackupCodeVault) rejected(ctx context.Context, subject, reason string) {
	v.metrics.IncrementBackupCodeConsumes("rejected")
	v.audit.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventBackupCodeRejected,
		Subject:       subject,
		FailureReason: reason,
	})
}

// RemainingCount returns the number of unused codes. Read failures report 0.
func (v *BackupCodeVault) RemainingCount(ctx context.Context, subject string) int {
	p, err := v.profile(ctx, subject)
	if err != nil {
		v.fallback(ctx, "remaining_count", subject, err)
		return 0
	}
	return len(p.BackupCodes)
}

// IsRunningLow reports whether the subject has LowThreshold or fewer codes left
func (v *BackupCodeVault) IsRunningLow(ctx context.Context, subject string) bool {
	return v.RemainingCount(ctx, subject) <= v.config.LowThreshold
}

// Format groups a code for display
func (v *BackupCodeVault) Format(code string) string {
	return auth.FormatBackupCode(code)
}

// Clear destroys the subject's codes. A profile left with nothing enabled is removed.
func (v *BackupCodeVault) Clear(ctx context.Context, subject string) error {
	key := store.Key(NamespaceTwoFactor, subject)
	unlock := v.locks.Lock(key)
	defer unlock()

	p := models.NewTwoFactorProfile()
	found, err := v.load(ctx, key, p)
	if err != nil && !errors.Is(err, models.ErrInvalidRecord) {
		return fmt.Errorf("%w: %w", models.ErrBackupCodeUnavailable, err)
	}
	if !found || err != nil || !p.Enabled {
		if err := v.remove(ctx, key); err != nil {
			return fmt.Errorf("%w: %w", models.ErrBackupCodeUnavailable, err)
		}
		return nil
	}

	p.BackupCodes = nil
	if err := v.save(ctx, key, p); err != nil {
		return fmt.Errorf("%w: %w", models.ErrBackupCodeUnavailable, err)
	}
	return nil
}

// profile reads the subject's profile without locking. A missing or invalid
// record yields an empty profile.
func (v *BackupCodeVault) profile(ctx context.Context, subject string) (*models.TwoFactorProfile, error) {
	p := models.NewTwoFactorProfile()
	_, err := v.load(ctx, store.Key(NamespaceTwoFactor, subject), p)
	if errors.Is(err, models.ErrInvalidRecord) {
		v.fallback(ctx, "read_profile", subject, err)
		return models.NewTwoFactorProfile(), nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// withProfile runs fn on the subject's profile under the key lock and
// persists it when fn reports a change. Store failures are returned wrapping
// models.ErrBackupCodeUnavailable.
func (v *BackupCodeVault) withProfile(
	ctx context.Context,
	subject, operation string,
	fn func(p *models.TwoFactorProfile) (bool, error),
) error {
	key := store.Key(NamespaceTwoFactor, subject)
	unlock := v.locks.Lock(key)
	defer unlock()

	p := models.NewTwoFactorProfile()
	_, err := v.load(ctx, key, p)
	switch {
	case errors.Is(err, models.ErrInvalidRecord):
		v.fallback(ctx, operation, subject, err)
		p = models.NewTwoFactorProfile()
	case err != nil:
		v.logger.ErrorContext(ctx, "failed to read two-factor profile",
			pkglogger.SubjectAttr(subject),
			slog.String("operation", operation),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrBackupCodeUnavailable, err)
	}

	changed, err := fn(p)
	if err != nil || !changed {
		return err
	}

	if err := v.save(ctx, key, p); err != nil {
		v.logger.ErrorContext(ctx, "failed to persist two-factor profile",
			pkglogger.SubjectAttr(subject),
			slog.String("operation", operation),
			slog.Any("error", err))
		return fmt.Errorf("%w: %w", models.ErrBackupCodeUnavailable, err)
	}
	return nil
}

// newCodeSet draws count codes and hashes each one
func (v *BackupCodeVault) newCodeSet(count int) ([]string, []models.BackupCodeEntry, error) {
	codes, err := auth.GenerateBackupCodes(count, auth.BackupCodeLength)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", models.ErrBackupCodeGeneration, err)
	}

	entries := make([]models.BackupCodeEntry, len(codes))
	for i, code := range codes {
		hash, err := pkgauth.HashSecret(code, v.config.HashCost)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", models.ErrBackupCodeGeneration, err)
		}
		entries[i] = models.BackupCodeEntry{CodeHash: hash}
	}
	return codes, entries, nil
}
