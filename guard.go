// Package sessionguard is the client-side session and security-policy core
// for the AquaFlow apps: a session lifecycle tracker with idle and absolute
// timeouts, a fixed-window rate limiter keyed by action and identifier, and a
// bounded security event log with in-memory pattern detection.
//
// The three components are independent and composable; Guard is the
// application composition root that constructs and wires them. Tests and
// multi-tenant hosts can instead construct isolated instances directly from
// the security and session packages.
package sessionguard

import (
	"context"
	"sync"

	"github.com/aquaflow/sessionguard/security"
	"github.com/aquaflow/sessionguard/session"
)

// Guard bundles the policy components behind one constructed, dependency-
// injected instance per process (or per test).
type Guard struct {
	cfg      Config
	limiter  *security.RateLimiter
	events   *security.EventLog
	sessions *session.Manager
	auditor  *security.Auditor

	closeOnce sync.Once
}

// New validates the configuration and builds the policy components.
// Zero config fields fall back to their documented defaults.
func New(cfg Config) (*Guard, error) {
	if cfg.Provider == nil {
		return nil, ErrInvalidConfig("auth provider is required")
	}

	// Unset fields take the documented defaults quietly; the component
	// constructors still warn about explicitly invalid values.
	defaults := DefaultConfig()
	if cfg.RateLimit.DefaultLimit == (security.Limit{}) {
		cfg.RateLimit.DefaultLimit = defaults.RateLimit.DefaultLimit
	}
	if cfg.RateLimit.MaxTrackedKeys == 0 {
		cfg.RateLimit.MaxTrackedKeys = defaults.RateLimit.MaxTrackedKeys
	}
	if cfg.RateLimit.CleanupInterval == 0 {
		cfg.RateLimit.CleanupInterval = defaults.RateLimit.CleanupInterval
	}
	if cfg.EventLog.Capacity == 0 {
		cfg.EventLog.Capacity = defaults.EventLog.Capacity
	}
	if cfg.EventLog.PatternWindow == 0 {
		cfg.EventLog.PatternWindow = defaults.EventLog.PatternWindow
	}

	events := security.NewEventLogWithConfig(cfg.EventLog.Capacity, cfg.EventLog.PatternWindow, cfg.Logger)
	limiter := security.NewRateLimiterWithConfig(
		cfg.RateLimit.DefaultLimit,
		cfg.RateLimit.MaxTrackedKeys,
		cfg.RateLimit.CleanupInterval,
		cfg.Logger,
	)
	sessions := session.NewManager(cfg.Session, cfg.Provider, events, cfg.Logger)
	auditor := security.NewAuditor(cfg.Audit, events, cfg.Logger)

	if cfg.Instrumentation != nil {
		events.SetInstrumentation(cfg.Instrumentation)
		limiter.SetInstrumentation(cfg.Instrumentation)
		sessions.SetInstrumentation(cfg.Instrumentation)
	}

	return &Guard{
		cfg:      cfg,
		limiter:  limiter,
		events:   events,
		sessions: sessions,
		auditor:  auditor,
	}, nil
}

// Initialize hydrates the session layer from the auth provider's current
// state and subscribes to its pushes. Idempotent; safe to call on every app
// start.
func (g *Guard) Initialize(ctx context.Context) error {
	return g.sessions.Initialize(ctx)
}

// Limiter returns the rate limiter.
func (g *Guard) Limiter() *security.RateLimiter {
	return g.limiter
}

// Events returns the security event log.
func (g *Guard) Events() *security.EventLog {
	return g.events
}

// Sessions returns the session manager.
func (g *Guard) Sessions() *session.Manager {
	return g.sessions
}

// Auditor returns the security auditor.
func (g *Guard) Auditor() *security.Auditor {
	return g.auditor
}

// Close stops the liveness check and the limiter's background cleanup and
// unsubscribes from the provider. Safe to call multiple times.
func (g *Guard) Close() {
	g.closeOnce.Do(func() {
		g.sessions.Close()
		g.limiter.Stop()
	})
}
