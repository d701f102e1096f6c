// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for passkey operations.
// It exposes ceremony counters, performance histograms, error counters, and
// resource gauges for monitoring server health.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all passkey metrics
	Namespace = "passkey"

	// Label names
	LabelCeremony   = "ceremony"
	LabelStage      = "stage"
	LabelStatus     = "status"
	LabelErrorType  = "error_type"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Ceremony names
	CeremonyRegistration   = "registration"
	CeremonyAuthentication = "authentication"

	// Stage names
	StageBegin  = "begin"
	StageFinish = "finish"
)

var (
	// CeremoniesTotal tracks passkey ceremonies by type, stage, and status.
	// Use RecordCeremony to increment this counter with the appropriate labels.
	CeremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "ceremonies_total",
			Help:      "Total number of passkey ceremonies by type, stage, and status",
		},
		[]string{LabelCeremony, LabelStage, LabelStatus},
	)

	// CeremonyDuration tracks the duration of ceremony stages in seconds.
	// Buckets are optimized for typical verification latencies.
	CeremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of passkey ceremony stages in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{LabelCeremony, LabelStage},
	)

	// ErrorsTotal tracks errors by ceremony and error type. Error types
	// should be specific (e.g. "challenge_expired", "counter_regression").
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "errors_total",
			Help:      "Total number of errors by ceremony and error type",
		},
		[]string{LabelCeremony, LabelErrorType},
	)

	// ChallengesExpiredTotal counts challenges removed by the cleanup sweep.
	ChallengesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "challenges_expired_total",
			Help:      "Total number of challenges removed after expiry",
		},
	)

	// CredentialsRegisteredTotal counts credentials stored since startup.
	CredentialsRegisteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "credentials_registered_total",
			Help:      "Total number of credentials registered since startup",
		},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)

	// Goroutines tracks the current number of goroutines.
	// Updated periodically by the resource collector.
	Goroutines = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	// MemoryAllocBytes tracks the current bytes of allocated heap objects.
	// Updated periodically by the resource collector.
	MemoryAllocBytes = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "memory_alloc_bytes",
			Help:      "Current bytes of allocated heap objects",
		},
	)

	// ServerUptime tracks the server uptime in seconds since startup.
	ServerUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "server_uptime_seconds",
			Help:      "Server uptime in seconds since startup",
		},
	)

	// enabled tracks whether metrics collection is enabled
	enabled atomic.Bool
)

func init() {
	// Metrics are enabled by default
	enabled.Store(true)
}

// RecordCeremony records a ceremony stage with its duration and status.
//
// Example:
//
//	start := time.Now()
//	cred, err := svc.FinishRegistration(ctx, sessionID, response)
//	duration := time.Since(start).Seconds()
//	if err != nil {
//	    metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StageFinish, metrics.StatusError, duration)
//	} else {
//	    metrics.RecordCeremony(metrics.CeremonyRegistration, metrics.StageFinish, metrics.StatusSuccess, duration)
//	}
func RecordCeremony(ceremony, stage, status string, duration float64) {
	if !enabled.Load() {
		return
	}
	CeremoniesTotal.WithLabelValues(ceremony, stage, status).Inc()
	CeremonyDuration.WithLabelValues(ceremony, stage).Observe(duration)
}

// RecordError records an error event with context about where it occurred.
func RecordError(ceremony, errorType string) {
	if !enabled.Load() {
		return
	}
	ErrorsTotal.WithLabelValues(ceremony, errorType).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration and status.
func RecordHTTPRequest(method, statusCode string, duration float64) {
	if !enabled.Load() {
		return
	}
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(duration)
}

// RecordCredentialRegistered increments the registered-credential counter.
func RecordCredentialRegistered() {
	if !enabled.Load() {
		return
	}
	CredentialsRegisteredTotal.Inc()
}

// RecordChallengesExpired adds to the expired-challenge counter.
func RecordChallengesExpired(count int) {
	if !enabled.Load() || count <= 0 {
		return
	}
	ChallengesExpiredTotal.Add(float64(count))
}

// Enable enables metrics collection.
func Enable() {
	enabled.Store(true)
}

// Disable disables metrics collection.
// Useful for testing or when metrics are not desired.
func Disable() {
	enabled.Store(false)
}

// IsEnabled returns whether metrics collection is currently enabled.
func IsEnabled() bool {
	return enabled.Load()
}
