// Mousehold - MyAnonamouse Session and Perk Automation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mousehold

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus instrumentation for:
// - Automation tick outcomes and duration
// - Purchase attempts per perk type
// - Guardrail skip reasons
// - Tracker HTTP call latency and circuit breaker state
// - API endpoint latency and throughput
// - Event log size

var (
	// Automation Metrics
	AutomationTicksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_automation_ticks_total",
			Help: "Total automation ticks executed, by perk type and result",
		},
		[]string{"perk", "result"}, // result: "success", "failed", "skipped"
	)

	AutomationTickDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mousehold_automation_tick_duration_seconds",
			Help:    "Duration of automation ticks in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"perk"},
	)

	GuardrailSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_guardrail_skips_total",
			Help: "Total guardrail skips, by perk type and reason",
		},
		[]string{"perk", "reason"},
	)

	PurchasesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_purchases_total",
			Help: "Total purchase attempts, by perk type and outcome",
		},
		[]string{"perk", "outcome"},
	)

	SessionsManaged = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mousehold_sessions_managed",
			Help: "Current number of sessions under management",
		},
	)

	ScheduledJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mousehold_scheduled_jobs",
			Help: "Current number of registered automation jobs",
		},
	)

	// Tracker Metrics
	TrackerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mousehold_tracker_request_duration_seconds",
			Help:    "Duration of tracker HTTP calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"}, // "status", "purchase", "vault"
	)

	TrackerRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_tracker_request_errors_total",
			Help: "Total tracker HTTP call failures",
		},
		[]string{"operation"},
	)

	CircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mousehold_tracker_circuit_breaker_state",
			Help: "Tracker circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	CircuitBreakerTrips = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mousehold_tracker_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker open transitions",
		},
	)

	// Event Log Metrics
	EventsAppendedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_events_appended_total",
			Help: "Total events appended to the event log, by result",
		},
		[]string{"result"},
	)

	EventLogSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mousehold_event_log_entries",
			Help: "Current number of entries in the event log",
		},
	)

	// Notification Metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_notifications_total",
			Help: "Total notifications dispatched, by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mousehold_api_requests_total",
			Help: "Total API requests by method, endpoint, and status code",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mousehold_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mousehold_api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)
)

// RecordTick records the outcome and duration of one automation tick.
func RecordTick(perk, result string, duration time.Duration) {
	AutomationTicksTotal.WithLabelValues(perk, result).Inc()
	AutomationTickDuration.WithLabelValues(perk).Observe(duration.Seconds())
}

// RecordGuardrailSkip records a guardrail skip with its reason.
func RecordGuardrailSkip(perk, reason string) {
	GuardrailSkipsTotal.WithLabelValues(perk, reason).Inc()
}

// RecordPurchase records a purchase attempt outcome.
func RecordPurchase(perk string, success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	PurchasesTotal.WithLabelValues(perk, outcome).Inc()
}

// RecordTrackerRequest records the latency of a tracker call and
// increments the error counter on failure.
func RecordTrackerRequest(operation string, duration time.Duration, err error) {
	TrackerRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		TrackerRequestErrors.WithLabelValues(operation).Inc()
	}
}

// RecordAPIRequest records latency and count for one API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest increments or decrements the in-flight gauge.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordNotification records a notification dispatch outcome.
func RecordNotification(channel string, success bool) {
	outcome := "failed"
	if success {
		outcome = "success"
	}
	NotificationsTotal.WithLabelValues(channel, outcome).Inc()
}
