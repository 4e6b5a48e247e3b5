// Package retry runs operations with bounded exponential backoff and jitter.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/BradenHooton/authguard/internal/metrics"
	"github.com/BradenHooton/authguard/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BradenHooton/authguard/internal/retry"

// Predicate decides whether a failed attempt is worth repeating
type Predicate interface {
	ShouldRetry(err error) bool
}

// PredicateFunc adapts a function to Predicate
type PredicateFunc func(err error) bool

// ShouldRetry calls f(err)
func (f PredicateFunc) ShouldRetry(err error) bool {
	return f(err)
}

// DefaultPredicate retries transient infrastructure failures only
var DefaultPredicate Predicate = PredicateFunc(IsTransient)

// IsTransient reports whether err belongs to a retryable error class.
// Authentication, authorization and validation failures are never transient.
func IsTransient(err error) bool {
	switch models.ClassOf(err) {
	case models.ClassUnavailable,
		models.ClassDeadlineExceeded,
		models.ClassResourceExhausted,
		models.ClassInternal,
		models.ClassUnknown,
		models.ClassCancelled:
		return true
	}
	return false
}

// Policy configures one wrapped call
type Policy struct {
	MaxRetries        int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	Predicate         Predicate // nil = DefaultPredicate
}

// DefaultPolicy is used for calls to the identity backend
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		InitialDelay:      500 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
	}
}

// StorePolicy is used for key-value store calls made inside the guard components
func StorePolicy() Policy {
	return Policy{
		MaxRetries:        2,
		InitialDelay:      50 * time.Millisecond,
		MaxDelay:          500 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func (p Policy) predicate() Predicate {
	if p.Predicate == nil {
		return DefaultPredicate
	}
	return p.Predicate
}

// CappedDelay returns min(InitialDelay * BackoffMultiplier^attempt, MaxDelay)
// for a 0-indexed attempt, before jitter.
func (p Policy) CappedDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.InitialDelay) * math.Pow(mult, float64(attempt))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 || math.IsInf(d, 0) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Executor runs operations under a Policy
type Executor struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
	jitter  func(n int64) int64
	sleep   func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Executor) {
		e.tracer = tracer
	}
}

// WithJitterSource replaces the uniform source; fn(n) must return a value in [0, n)
func WithJitterSource(fn func(n int64) int64) Option {
	return func(e *Executor) {
		e.jitter = fn
	}
}

// WithSleeper replaces the context-aware sleep between attempts
func WithSleeper(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// NewExecutor creates an executor. Without options it logs to slog.Default,
// traces through the global OpenTelemetry provider and records no metrics.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		jitter: rand.Int64N,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Delay returns the wait before retrying after the given 0-indexed attempt:
// CappedDelay(attempt) plus uniform jitter of up to 25% of it, never subtracted.
func (e *Executor) Delay(p Policy, attempt int) time.Duration {
	capped := p.CappedDelay(attempt)
	maxJitter := int64(capped) / 4
	if maxJitter <= 0 || int64(capped) > math.MaxInt64-maxJitter {
		return capped
	}
	return capped + time.Duration(e.jitter(maxJitter+1))
}

// Execute runs op until it succeeds, fails with a non-retryable error, or
// MaxRetries+1 attempts have been made. The last error is returned unchanged.
// If ctx is done between attempts no further attempt is scheduled and the
// returned error wraps both ctx.Err() and the last attempt's error.
func (e *Executor) Execute(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := Do(ctx, e, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Do is Execute for operations that return a value
func Do[T any](ctx context.Context, e *Executor, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if e == nil {
		e = NewExecutor()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	attempts := policy.MaxRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	predicate := policy.predicate()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := runAttempt(ctx, e.tracer, attempt, op)
		if err == nil {
			e.metrics.IncrementRetryAttempts("success")
			return result, nil
		}
		lastErr = err

		if !predicate.ShouldRetry(err) {
			e.metrics.IncrementRetryAttempts("fatal")
			return zero, err
		}

		if attempt == attempts-1 {
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			e.metrics.IncrementRetryAttempts("cancelled")
			return zero, aborted(attempt+1, ctxErr, lastErr)
		}

		delay := e.Delay(policy, attempt)
		e.metrics.IncrementRetryAttempts("retry")
		e.logger.WarnContext(ctx, "operation failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", attempts),
			slog.Duration("delay", delay),
			slog.String("error_class", string(models.ClassOf(err))),
			slog.Any("error", err))

		if sleepErr := e.sleep(ctx, delay); sleepErr != nil {
			e.metrics.IncrementRetryAttempts("cancelled")
			return zero, aborted(attempt+1, sleepErr, lastErr)
		}
	}

	e.metrics.IncrementRetryAttempts("exhausted")
	e.logger.WarnContext(ctx, "operation failed after all retries",
		slog.Int("attempts", attempts),
		slog.Any("error", lastErr))
	return zero, lastErr
}

func runAttempt[T any](ctx context.Context, tracer trace.Tracer, attempt int, op func(ctx context.Context) (T, error)) (T, error) {
	ctx, span := tracer.Start(ctx, "retry.attempt",
		trace.WithAttributes(attribute.Int("retry.attempt", attempt)))
	defer span.End()

	result, err := op(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(models.ClassOf(err)))
	}
	return result, err
}

func aborted(attempts int, cause, lastErr error) error {
	return fmt.Errorf("retry aborted after %d attempt(s): %w: %w", attempts, cause, lastErr)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
