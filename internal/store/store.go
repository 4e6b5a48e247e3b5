// Package store provides the key-value persistence the defense core reads
// and writes. Values are opaque UTF-8 strings; record layout is owned by the
// callers.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/BradenHooton/authguard/internal/models"
)

// KVStore is the only persistence capability the guard components need.
// Implementations must make each single-key call atomic. Get reports a
// missing key with found == false and a nil error.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// HealthChecker is implemented by stores backed by a remote service
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Key builds a namespaced key for a subject
func Key(namespace, subject string) string {
	return namespace + ":" + subject
}

// wrapBackendError classifies a backend failure so the retry executor can
// decide whether the call is worth repeating.
func wrapBackendError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	class := models.ClassUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		class = models.ClassDeadlineExceeded
	} else if errors.Is(err, context.Canceled) {
		class = models.ClassCancelled
	}
	return models.Classify(class, fmt.Errorf("%w: %s %q: %v", models.ErrStoreUnavailable, op, key, err))
}
