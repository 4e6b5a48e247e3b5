package logger

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Audit event types emitted by the defense core
const (
	EventLockoutTripped       = "lockout_tripped"
	EventLockoutExtended      = "lockout_extended"
	EventLockoutReset         = "lockout_reset"
	EventRateLimited          = "rate_limited"
	EventBackupCodesGenerated = "backup_codes_generated"
	EventBackupCodeConsumed   = "backup_code_consumed"
	EventBackupCodeRejected   = "backup_code_rejected"
	EventTwoFactorEnabled     = "two_factor_enabled"
	EventTwoFactorDisabled    = "two_factor_disabled"

	EventAuthenticationSucceeded = "authentication_succeeded"
	EventAuthenticationFailed    = "authentication_failed"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	Subject       string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
	}
}

// Log writes a security event. Failed events are logged at warn level.
// Subjects are masked before they reach the log.
func (al *AuditLogger) Log(ctx context.Context, event AuditEvent) {
	if al == nil || al.logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("audit_type", "guard"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
	}

	if event.Subject != "" {
		attrs = append(attrs, slog.String("subject", MaskSubject(event.Subject)))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}

	keys := make([]string, 0, len(event.Metadata))
	for key := range event.Metadata {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		attrs = append(attrs, slog.String(key, event.Metadata[key]))
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}
