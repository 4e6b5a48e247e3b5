package models

import (
	"context"
	"errors"
	"net"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrBadRequest     = errors.New("bad request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// Persisted record errors
	ErrInvalidRecord      = errors.New("invalid persisted record")
	ErrUnsupportedVersion = errors.New("unsupported record version")
	ErrStoreUnavailable   = errors.New("key-value store unavailable")

	// Defense core errors
	ErrBackupCodeUnavailable = errors.New("backup code state unavailable")
	ErrBackupCodeGeneration  = errors.New("failed to generate backup codes")
	ErrTwoFactorNotEnabled   = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorInvalidCode  = errors.New("invalid two-factor code")
	ErrCodeReplay            = errors.New("two-factor code replay detected")
)

// ErrorClass categorizes a failure by how callers should react to it,
// independent of the layer that produced it.
type ErrorClass string

const (
	ClassUnknown            ErrorClass = "unknown"
	ClassCancelled          ErrorClass = "cancelled"
	ClassUnavailable        ErrorClass = "unavailable"
	ClassDeadlineExceeded   ErrorClass = "deadline_exceeded"
	ClassResourceExhausted  ErrorClass = "resource_exhausted"
	ClassInternal           ErrorClass = "internal"
	ClassUnauthenticated    ErrorClass = "unauthenticated"
	ClassPermissionDenied   ErrorClass = "permission_denied"
	ClassInvalidArgument    ErrorClass = "invalid_argument"
	ClassNotFound           ErrorClass = "not_found"
	ClassFailedPrecondition ErrorClass = "failed_precondition"
)

// ClassifiedError attaches an ErrorClass to an underlying error.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	if e.Err == nil {
		return string(e.Class)
	}
	return string(e.Class) + ": " + e.Err.Error()
}

// Unwrap implements error unwrapping for error chains.
func (e *ClassifiedError) Unwrap() error {
	return e.Err
}

// Is matches another ClassifiedError by class, so errors.Is(err, &ClassifiedError{Class: c}) works.
func (e *ClassifiedError) Is(target error) bool {
	t, ok := target.(*ClassifiedError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// Classify wraps err with the given class. A nil err stays nil.
func Classify(class ErrorClass, err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: class, Err: err}
}

// ClassOf returns the class of err.
// Explicitly classified errors win; context and network timeouts are
// recognized; everything else is ClassUnknown.
func ClassOf(err error) ErrorClass {
	if err == nil {
		return ""
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ClassDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return ClassCancelled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassDeadlineExceeded
	}

	return ClassUnknown
}

// IsCredentialFailure reports whether err means the presented credentials
// were rejected, as opposed to an infrastructure failure.
func IsCredentialFailure(err error) bool {
	switch ClassOf(err) {
	case ClassUnauthenticated, ClassPermissionDenied, ClassInvalidArgument:
		return true
	}
	return false
}
