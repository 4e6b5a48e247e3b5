package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/services"
	pkghttp "github.com/BradenHooton/authguard/pkg/http"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// SubjectParam is the URL parameter naming the guarded subject
const SubjectParam = "subject"

// GuardHandler exposes the guard components over HTTP
type GuardHandler struct {
	limiter   *services.RateLimiter
	lockout   *services.LockoutGuard
	vault     *services.BackupCodeVault
	twoFactor *services.TwoFactorService
	logger    *slog.Logger
}

// NewGuardHandler creates a new guard handler
func NewGuardHandler(
	limiter *services.RateLimiter,
	lockout *services.LockoutGuard,
	vault *services.BackupCodeVault,
	twoFactor *services.TwoFactorService,
	logger *slog.Logger,
) *GuardHandler {
	return &GuardHandler{
		limiter:   limiter,
		lockout:   lockout,
		vault:     vault,
		twoFactor: twoFactor,
		logger:    logger,
	}
}

func subjectFrom(r *http.Request) string {
	return chi.URLParam(r, SubjectParam)
}

// decodeAndValidate reads a JSON body into req. An empty body leaves req zero-valued.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			pkghttp.WriteBadRequest(w, "Invalid request body")
			return false
		}
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "validation_failed", "Invalid request", err.Error())
		return false
	}
	return true
}

// GetRateLimit handles GET /rate-limit
func (h *GuardHandler) GetRateLimit(w http.ResponseWriter, r *http.Request) {
	status := h.limiter.CheckStatus(r.Context(), subjectFrom(r))
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// RecordRateLimitAttempt handles POST /rate-limit/attempts
func (h *GuardHandler) RecordRateLimitAttempt(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if h.limiter.RecordAttempt(r.Context(), subject) {
		pkghttp.WriteJSON(w, http.StatusOK, RecordAttemptResponse{Allowed: true})
		return
	}

	status := h.limiter.CheckStatus(r.Context(), subject)
	pkghttp.SetRetryAfter(w, status.ResetInSeconds)
	pkghttp.WriteJSON(w, http.StatusTooManyRequests, RecordAttemptResponse{
		Allowed:        false,
		ResetInSeconds: status.ResetInSeconds,
	})
}

// GetLockout handles GET /lockout
func (h *GuardHandler) GetLockout(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteJSON(w, http.StatusOK, h.lockout.Status(r.Context(), subjectFrom(r)))
}

// RecordLockoutFailure handles POST /lockout/failures
func (h *GuardHandler) RecordLockoutFailure(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if err := h.lockout.RecordFailure(r.Context(), subject); err != nil {
		h.logger.Error("failed to record lockout failure", pkglogger.SubjectAttr(subject), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Lockout state unavailable")
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, h.lockout.Status(r.Context(), subject))
}

// RecordLockoutSuccess handles POST /lockout/success
func (h *GuardHandler) RecordLockoutSuccess(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if err := h.lockout.RecordSuccess(r.Context(), subject); err != nil {
		h.logger.Error("failed to record lockout success", pkglogger.SubjectAttr(subject), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Lockout state unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ResetLockout handles DELETE /lockout (admin only)
func (h *GuardHandler) ResetLockout(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if err := h.lockout.Reset(r.Context(), subject); err != nil {
		h.logger.Error("failed to reset lockout", pkglogger.SubjectAttr(subject), slog.Any("error", err))
		pkghttp.WriteServiceUnavailable(w, "Lockout state unavailable")
		return
	}
	if err := h.limiter.Reset(r.Context(), subject); err != nil {
		h.logger.Warn("failed to reset rate limit window", pkglogger.SubjectAttr(subject), slog.Any("error", err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// GenerateBackupCodes handles POST /backup-codes
func (h *GuardHandler) GenerateBackupCodes(w http.ResponseWriter, r *http.Request) {
	var req GenerateBackupCodesRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	subject := subjectFrom(r)
	codes, err := h.vault.Generate(r.Context(), subject, req.Count)
	if err != nil {
		h.writeVaultError(w, subject, "generate backup codes", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, GenerateBackupCodesResponse{
		BackupCodes: h.formatCodes(codes),
		Count:       len(codes),
	})
}

// ConsumeBackupCode handles POST /backup-codes/consume
func (h *GuardHandler) ConsumeBackupCode(w http.ResponseWriter, r *http.Request) {
	var req ConsumeBackupCodeRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	subject := subjectFrom(r)
	consumed, err := h.vault.Consume(r.Context(), subject, normalizeBackupCode(req.Code))
	if err != nil {
		h.writeVaultError(w, subject, "consume backup code", err)
		return
	}

	remaining := h.vault.RemainingCount(r.Context(), subject)
	resp := ConsumeBackupCodeResponse{
		Consumed:       consumed,
		RemainingCodes: remaining,
		RunningLow:     h.vault.IsRunningLow(r.Context(), subject),
	}
	if !consumed {
		pkghttp.WriteJSON(w, http.StatusUnauthorized, resp)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// GetBackupCodes handles GET /backup-codes
func (h *GuardHandler) GetBackupCodes(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	pkghttp.WriteJSON(w, http.StatusOK, BackupCodeStatusResponse{
		RemainingCodes: h.vault.RemainingCount(r.Context(), subject),
		RunningLow:     h.vault.IsRunningLow(r.Context(), subject),
	})
}

// EnableTwoFactor handles POST /two-factor/enable
func (h *GuardHandler) EnableTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req EnableTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	subject := subjectFrom(r)
	enrollment, err := h.twoFactor.Enable(r.Context(), subject, req.AccountName)
	if err != nil {
		h.writeVaultError(w, subject, "enable two-factor", err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, EnableTwoFactorResponse{
		QRCode:      enrollment.QRCode,
		Secret:      enrollment.Secret,
		BackupCodes: h.formatCodes(enrollment.BackupCodes),
		EnrolledAt:  time.Now().UTC(),
	})
}

// DisableTwoFactor handles DELETE /two-factor
func (h *GuardHandler) DisableTwoFactor(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	if err := h.twoFactor.Disable(r.Context(), subject); err != nil {
		h.writeVaultError(w, subject, "disable two-factor", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetTwoFactor handles GET /two-factor
func (h *GuardHandler) GetTwoFactor(w http.ResponseWriter, r *http.Request) {
	subject := subjectFrom(r)
	status, err := h.twoFactor.Status(r.Context(), subject)
	if err != nil {
		h.writeVaultError(w, subject, "read two-factor status", err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, status)
}

// VerifyTwoFactor handles POST /two-factor/verify
func (h *GuardHandler) VerifyTwoFactor(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwoFactorRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	code := req.Code
	if len(code) > 6 {
		code = normalizeBackupCode(code)
	}

	subject := subjectFrom(r)
	method, err := h.twoFactor.Verify(r.Context(), subject, code)
	switch {
	case err == nil:
		pkghttp.WriteJSON(w, http.StatusOK, VerifyTwoFactorResponse{Verified: true, Method: string(method)})
	case errors.Is(err, models.ErrTwoFactorNotEnabled):
		pkghttp.WriteConflict(w, "Two-factor authentication is not enabled")
	case errors.Is(err, models.ErrTwoFactorInvalidCode), errors.Is(err, models.ErrCodeReplay):
		pkghttp.WriteJSON(w, http.StatusUnauthorized, VerifyTwoFactorResponse{Verified: false})
	default:
		h.writeVaultError(w, subject, "verify two-factor", err)
	}
}

func (h *GuardHandler) formatCodes(codes []string) []string {
	formatted := make([]string, len(codes))
	for i, code := range codes {
		formatted[i] = h.vault.Format(code)
	}
	return formatted
}

func (h *GuardHandler) writeVaultError(w http.ResponseWriter, subject, action string, err error) {
	h.logger.Error("failed to "+action, pkglogger.SubjectAttr(subject), slog.Any("error", err))
	if errors.Is(err, models.ErrBackupCodeUnavailable) {
		pkghttp.WriteServiceUnavailable(w, "Two-factor state unavailable")
		return
	}
	pkghttp.WriteInternalError(w, "Request failed")
}
