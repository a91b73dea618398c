package instrumentation

import (
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all metric instruments for the sessionguard library
type Metrics struct {
	// Rate Limiting Metrics
	RateLimitDenied metric.Int64Counter

	// Security Event Metrics
	SecurityEvents   metric.Int64Counter
	PatternsDetected metric.Int64Counter

	// Session Metrics
	SessionsStarted metric.Int64Counter
	SessionsEnded   metric.Int64Counter
	SessionDuration metric.Float64Histogram
}

// newMetrics creates and registers all metric instruments
func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error
	m.RateLimitDenied, err = meter.Int64Counter(
		"guard.rate_limit.denied",
		metric.WithDescription("Number of attempts denied by the rate limiter"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate_limit.denied counter: %w", err)
	}

	m.SecurityEvents, err = meter.Int64Counter(
		"guard.security.events.total",
		metric.WithDescription("Total number of security events recorded"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.events.total counter: %w", err)
	}

	m.PatternsDetected, err = meter.Int64Counter(
		"guard.security.patterns.detected",
		metric.WithDescription("Number of anomaly patterns detected (brute force, suspicious access)"),
		metric.WithUnit("{detection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create security.patterns.detected counter: %w", err)
	}

	m.SessionsStarted, err = meter.Int64Counter(
		"guard.session.started",
		metric.WithDescription("Number of sessions created"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.started counter: %w", err)
	}

	m.SessionsEnded, err = meter.Int64Counter(
		"guard.session.ended",
		metric.WithDescription("Number of sessions ended, by reason"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.ended counter: %w", err)
	}

	m.SessionDuration, err = meter.Float64Histogram(
		"guard.session.duration",
		metric.WithDescription("Session duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session.duration histogram: %w", err)
	}

	return m, nil
}
