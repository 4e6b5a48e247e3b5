// Package metrics exposes Prometheus counters for the defense core.
// All methods are safe on a nil *Metrics so components can run without metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	RateLimitDecisions   *prometheus.CounterVec
	LockoutFailures      prometheus.Counter
	LockoutTrips         prometheus.Counter
	LockoutResets        prometheus.Counter
	BackupCodesGenerated prometheus.Counter
	BackupCodeConsumes   *prometheus.CounterVec
	RetryAttempts        *prometheus.CounterVec
	StoreFallbacks       *prometheus.CounterVec
}

// New registers the guard metrics on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RateLimitDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_ratelimit_decisions_total",
			Help: "Total number of rate limit decisions by outcome",
		}, []string{"outcome"}),
		LockoutFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_lockout_failures_recorded_total",
			Help: "Total number of authentication failures recorded by the lockout guard",
		}),
		LockoutTrips: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_lockout_trips_total",
			Help: "Total number of times a subject was locked out",
		}),
		LockoutResets: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_lockout_resets_total",
			Help: "Total number of lockout resets after success or administrative action",
		}),
		BackupCodesGenerated: factory.NewCounter(prometheus.CounterOpts{
			Name: "authguard_backup_codes_generated_total",
			Help: "Total number of backup codes issued",
		}),
		BackupCodeConsumes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_backup_code_consumes_total",
			Help: "Total number of backup code consumption attempts by result",
		}, []string{"result"}),
		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_retry_attempts_total",
			Help: "Total number of wrapped operation attempts by outcome",
		}, []string{"outcome"}),
		StoreFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "authguard_store_fallbacks_total",
			Help: "Total number of store failures converted to a safe default",
		}, []string{"component", "operation"}),
	}
}

func (m *Metrics) ObserveRateLimitDecision(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "refused"
	}
	m.RateLimitDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementLockoutFailures() {
	if m == nil {
		return
	}
	m.LockoutFailures.Inc()
}

func (m *Metrics) IncrementLockoutTrips() {
	if m == nil {
		return
	}
	m.LockoutTrips.Inc()
}

func (m *Metrics) IncrementLockoutResets() {
	if m == nil {
		return
	}
	m.LockoutResets.Inc()
}

func (m *Metrics) AddBackupCodesGenerated(count int) {
	if m == nil {
		return
	}
	m.BackupCodesGenerated.Add(float64(count))
}

// IncrementBackupCodeConsumes records a consume result: consumed, rejected or error
func (m *Metrics) IncrementBackupCodeConsumes(result string) {
	if m == nil {
		return
	}
	m.BackupCodeConsumes.WithLabelValues(result).Inc()
}

// IncrementRetryAttempts records an attempt outcome: success, retry, fatal, exhausted or cancelled
func (m *Metrics) IncrementRetryAttempts(outcome string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementStoreFallbacks(component, operation string) {
	if m == nil {
		return
	}
	m.StoreFallbacks.WithLabelValues(component, operation).Inc()
}
