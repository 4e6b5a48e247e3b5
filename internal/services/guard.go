package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/authguard/internal/metrics"
	"github.com/BradenHooton/authguard/internal/models"
	"github.com/BradenHooton/authguard/internal/retry"
	"github.com/BradenHooton/authguard/internal/store"
	pkglogger "github.com/BradenHooton/authguard/pkg/logger"
)

// Key namespaces for persisted records
const (
	NamespaceRateLimit = "ratelimit"
	NamespaceLockout   = "lockout"
	NamespaceTwoFactor = "twofactor"
)

// Option customizes the collaborators shared by the guard components
type Option func(*guardDeps)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(d *guardDeps) {
		d.now = now
	}
}

// WithRetryExecutor sets the executor used around store calls
func WithRetryExecutor(e *retry.Executor) Option {
	return func(d *guardDeps) {
		d.retrier = e
	}
}

// WithStorePolicy overrides retry.StorePolicy for store calls
func WithStorePolicy(p retry.Policy) Option {
	return func(d *guardDeps) {
		d.policy = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *guardDeps) {
		d.metrics = m
	}
}

func WithAuditLogger(al *pkglogger.AuditLogger) Option {
	return func(d *guardDeps) {
		d.audit = al
	}
}

// guardDeps is the plumbing every component uses for keyed read-modify-write
type guardDeps struct {
	component string
	store     store.KVStore
	locks     *store.KeyedMutex
	retrier   *retry.Executor
	policy    retry.Policy
	logger    *slog.Logger
	audit     *pkglogger.AuditLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func newGuardDeps(component string, kv store.KVStore, logger *slog.Logger, opts []Option) guardDeps {
	if logger == nil {
		logger = slog.Default()
	}
	d := guardDeps{
		component: component,
		store:     kv,
		locks:     store.NewKeyedMutex(),
		policy:    retry.StorePolicy(),
		logger:    logger.With(slog.String("component", component)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	if d.retrier == nil {
		d.retrier = retry.NewExecutor(retry.WithLogger(d.logger), retry.WithMetrics(d.metrics))
	}
	if d.audit == nil {
		d.audit = pkglogger.NewAuditLogger(logger)
	}
	return d
}

// load reads key into rec. It returns found == false for a missing key.
// Store failures are returned after retries; undecodable records return an
// error wrapping models.ErrInvalidRecord.
func (d *guardDeps) load(ctx context.Context, key string, rec models.Record) (bool, error) {
	var raw string
	var found bool
	err := d.retrier.Execute(ctx, d.policy, func(ctx context.Context) error {
		var err error
		raw, found, err = d.store.Get(ctx, key)
		return err
	})
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}
	if err := models.DecodeRecord(raw, rec); err != nil {
		return true, err
	}
	return true, nil
}

func (d *guardDeps) save(ctx context.Context, key string, rec models.Record) error {
	raw, err := models.EncodeRecord(rec)
	if err != nil {
		return err
	}
	return d.retrier.Execute(ctx, d.policy, func(ctx context.Context) error {
		return d.store.Set(ctx, key, raw)
	})
}

func (d *guardDeps) remove(ctx context.Context, key string) error {
	return d.retrier.Execute(ctx, d.policy, func(ctx context.Context) error {
		return d.store.Delete(ctx, key)
	})
}

// fallback logs a load failure that is being replaced by a safe default
func (d *guardDeps) fallback(ctx context.Context, operation, subject string, err error) {
	if errors.Is(err, models.ErrInvalidRecord) {
		d.logger.WarnContext(ctx, "discarding invalid persisted record",
			pkglogger.SubjectAttr(subject),
			slog.String("operation", operation),
			slog.Any("error", err))
	} else {
		d.logger.ErrorContext(ctx, "store unavailable, using safe default",
			pkglogger.SubjectAttr(subject),
			slog.String("operation", operation),
			slog.Any("error", err))
	}
	d.metrics.IncrementStoreFallbacks(d.component, operation)
}
