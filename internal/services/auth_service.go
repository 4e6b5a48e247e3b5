package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/authguard/internal/auth"
	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/retry"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// Authenticator is the external identity backend the guard protects.
// Credential rejections should be returned classified as
// models.ClassUnauthenticated, ClassPermissionDenied or ClassInvalidArgument.
type Authenticator interface {
	SignIn(ctx context.Context, identifier, password string) (*models.SignInResult, error)
	VerifySecondFactor(ctx context.Context, challengeID, code string) (*models.SignInResult, error)
}

// LoginRequest is a primary credential attempt
type LoginRequest struct {
	Identifier string
	Password   string
}

// SecondFactorRequest completes a sign-in that reported SecondFactorRequired
type SecondFactorRequest struct {
	Identifier    string
	ChallengeID   string
	Code          string
	UseBackupCode bool
}

// AuthServiceConfig holds the retry policy for backend calls and the
// optional failure delay
type AuthServiceConfig struct {
	Policy retry.Policy
	Timing *auth.TimingDelay
}

// AuthService runs a sign-in through the rate limiter, lockout guard and
// backup code vault
type AuthService struct {
	authn   Authenticator
	limiter *RateLimiter
	lockout *LockoutGuard
	vault   *BackupCodeVault
	retrier *retry.Executor
	config  AuthServiceConfig
	logger  *slog.Logger
	audit   *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	authn Authenticator,
	limiter *RateLimiter,
	lockout *LockoutGuard,
	vault *BackupCodeVault,
	retrier *retry.Executor,
	config AuthServiceConfig,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if retrier == nil {
		retrier = retry.NewExecutor(retry.WithLogger(logger))
	}
	return &AuthService{
		authn:   authn,
		limiter: limiter,
		lockout: lockout,
		vault:   vault,
		retrier: retrier,
		config:  config,
		logger:  logger,
		audit:   pkglogger.NewAuditLogger(logger),
	}
}

// Login performs the primary sign-in step.
// Policy refusals are reported through LoginOutcome.Status; an error is
// returned only when the backend could not be reached or the request is empty.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*models.LoginOutcome, error) {
	subject := normalizeIdentifier(req.Identifier)
	if subject == "" || req.Password == "" {
		return nil, models.ErrBadRequest
	}

	if outcome := s.admit(ctx, subject); outcome != nil {
		return outcome, nil
	}

	start := time.Now()
	result, err := retry.Do(ctx, s.retrier, s.config.Policy, func(ctx context.Context) (*models.SignInResult, error) {
		return s.authn.SignIn(ctx, req.Identifier, req.Password)
	})
	if err != nil {
		return s.rejected(ctx, subject, start, "sign_in", err)
	}

	if result.SecondFactorRequired {
		// The lockout counter keeps running until the second factor passes
		s.logger.InfoContext(ctx, "second factor required", pkglogger.SubjectAttr(subject))
		return &models.LoginOutcome{
			Status: models.LoginSecondFactorRequired,
			Result: result,
		}, nil
	}

	return s.authenticated(ctx, subject, result, models.SecondFactorNone)
}

// CompleteSecondFactor finishes a sign-in with either the primary second
// factor, verified by the backend, or a one-time backup code.
func (s *AuthService) CompleteSecondFactor(ctx context.Context, req SecondFactorRequest) (*models.LoginOutcome, error) {
	subject := normalizeIdentifier(req.Identifier)
	code := strings.TrimSpace(req.Code)
	if subject == "" || code == "" {
		return nil, models.ErrBadRequest
	}

	if outcome := s.admit(ctx, subject); outcome != nil {
		return outcome, nil
	}

	start := time.Now()
	if req.UseBackupCode {
		consumed, err := s.vault.Consume(ctx, subject, code)
		if err != nil {
			// Fail closed without counting a failure the user did not cause
			return nil, err
		}
		if !consumed {
			return s.rejected(ctx, subject, start, "backup_code",
				models.Classify(models.ClassUnauthenticated, models.ErrTwoFactorInvalidCode))
		}
		return s.authenticated(ctx, subject, &models.SignInResult{
			UserID:      subject,
			ChallengeID: req.ChallengeID,
		}, models.SecondFactorBackupCode)
	}

	if req.ChallengeID == "" {
		return nil, models.ErrBadRequest
	}
	result, err := retry.Do(ctx, s.retrier, s.config.Policy, func(ctx context.Context) (*models.SignInResult, error) {
		return s.authn.VerifySecondFactor(ctx, req.ChallengeID, code)
	})
	if err != nil {
		return s.rejected(ctx, subject, start, "second_factor", err)
	}
	return s.authenticated(ctx, subject, result, models.SecondFactorTOTP)
}

// admit returns a refusal outcome when the subject is locked or throttled
func (s *AuthService) admit(ctx context.Context, subject string) *models.LoginOutcome {
	if status := s.lockout.Status(ctx, subject); status.Locked {
		s.logger.InfoContext(ctx, "sign-in refused: account locked", pkglogger.SubjectAttr(subject))
		return &models.LoginOutcome{
			Status:            models.LoginLocked,
			RetryAfterSeconds: status.TimeUntilUnlockSeconds,
		}
	}

	if !s.limiter.RecordAttempt(ctx, subject) {
		status := s.limiter.CheckStatus(ctx, subject)
		s.logger.InfoContext(ctx, "sign-in refused: rate limited", pkglogger.SubjectAttr(subject))
		return &models.LoginOutcome{
			Status:            models.LoginRateLimited,
			RetryAfterSeconds: status.ResetInSeconds,
		}
	}
	return nil
}

// rejected handles a failed backend or backup code step. Credential failures
// are counted toward lockout; anything else is returned as an error.
func (s *AuthService) rejected(ctx context.Context, subject string, start time.Time, step string, err error) (*models.LoginOutcome, error) {
	if !models.IsCredentialFailure(err) {
		s.logger.ErrorContext(ctx, "identity backend unavailable",
			pkglogger.SubjectAttr(subject),
			slog.String("step", step),
			slog.Any("error", err))
		return nil, fmt.Errorf("failed to complete %s: %w", step, err)
	}

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventAuthenticationFailed,
		Subject:       subject,
		FailureReason: step + "_rejected",
	})

	if lockErr := s.lockout.RecordFailure(ctx, subject); lockErr != nil {
		s.logger.ErrorContext(ctx, "failed to record authentication failure",
			pkglogger.SubjectAttr(subject),
			slog.Any("error", lockErr))
	}

	if waitErr := s.config.Timing.WaitFrom(ctx, start, false); waitErr != nil {
		return nil, waitErr
	}

	status := s.lockout.Status(ctx, subject)
	if status.Locked {
		return &models.LoginOutcome{
			Status:            models.LoginLocked,
			RetryAfterSeconds: status.TimeUntilUnlockSeconds,
		}, nil
	}
	return &models.LoginOutcome{
		Status:            models.LoginInvalidCredentials,
		RemainingAttempts: status.RemainingAttempts,
	}, nil
}

func (s *AuthService) authenticated(
	ctx context.Context,
	subject string,
	result *models.SignInResult,
	method models.SecondFactorMethod,
) (*models.LoginOutcome, error) {
	if err := s.lockout.RecordSuccess(ctx, subject); err != nil {
		s.logger.ErrorContext(ctx, "failed to reset lockout after sign-in",
			pkglogger.SubjectAttr(subject),
			slog.Any("error", err))
	}

	s.audit.Log(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventAuthenticationSucceeded,
		Subject:   subject,
		Success:   true,
		Metadata:  map[string]string{"method": string(method)},
	})

	outcome := &models.LoginOutcome{
		Status: models.LoginAuthenticated,
		Result: result,
		Method: method,
	}
	if method == models.SecondFactorBackupCode {
		outcome.BackupCodesLow = s.vault.IsRunningLow(ctx, subject)
	}
	return outcome, nil
}

// normalizeIdentifier maps an identifier to its guard subject
func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
