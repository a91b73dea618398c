package sessionguard

import (
	"log/slog"
	"time"

	"github.com/aquaflow/sessionguard/instrumentation"
	"github.com/aquaflow/sessionguard/providers"
	"github.com/aquaflow/sessionguard/security"
	"github.com/aquaflow/sessionguard/session"
)

// Config holds the guard configuration.
// Structured using composition for better organization and maintainability.
type Config struct {
	// Provider is the external authentication provider backing the session
	// layer (required)
	Provider providers.Provider

	// Session is the session policy (idle timeout, absolute expiry,
	// liveness check interval). Zero fields fall back to defaults.
	Session session.Config

	// RateLimit is the rate limiter configuration
	RateLimit RateLimitConfig

	// EventLog is the security event log configuration
	EventLog EventLogConfig

	// Audit is the posture snapshot evaluated by the security audit
	Audit security.AuditConfig

	// Logger for structured logging (optional, uses default if not provided).
	// Warning and critical security events are mirrored into this logger so
	// they surface in general operational monitoring.
	Logger *slog.Logger

	// Instrumentation enables OpenTelemetry metrics (optional)
	Instrumentation *instrumentation.Instrumentation
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// DefaultLimit applies to actions without a predefined or overridden
	// limit. Zero fields fall back to 5 requests per 15 minutes.
	DefaultLimit security.Limit

	// MaxTrackedKeys bounds how many (action, identifier) keys are tracked
	// before LRU eviction. Zero falls back to 10,000.
	MaxTrackedKeys int

	// CleanupInterval is how often expired windows are swept.
	// Zero falls back to 5 minutes.
	CleanupInterval time.Duration
}

// EventLogConfig holds security event log configuration.
type EventLogConfig struct {
	// Capacity is the size of the event ring buffer.
	// Zero falls back to 500.
	Capacity int

	// PatternWindow is how long repeated events for the same subject
	// accumulate before their detection counter resets.
	// Zero falls back to 15 minutes.
	PatternWindow time.Duration
}

// DefaultConfig returns a config with every policy at its documented default.
// A Provider must still be supplied before the config is usable.
func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
		RateLimit: RateLimitConfig{
			DefaultLimit: security.Limit{
				MaxRequests: security.DefaultMaxRequests,
				Window:      security.DefaultWindow,
			},
			MaxTrackedKeys:  security.DefaultMaxTrackedKeys,
			CleanupInterval: security.DefaultLimiterCleanupInterval,
		},
		EventLog: EventLogConfig{
			Capacity:      security.DefaultEventCapacity,
			PatternWindow: security.DefaultPatternWindow,
		},
	}
}
