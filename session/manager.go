package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aquaflow/sessionguard/instrumentation"
	"github.com/aquaflow/sessionguard/providers"
	"github.com/aquaflow/sessionguard/security"
)

const (
	// DefaultMaxIdleTime is how long a session survives without activity
	DefaultMaxIdleTime = 30 * time.Minute

	// DefaultMaxSessionDuration is how long a session survives regardless
	// of activity
	DefaultMaxSessionDuration = 24 * time.Hour

	// DefaultCheckInterval is how often the liveness check evaluates the
	// idle and absolute expiry policies
	DefaultCheckInterval = time.Minute
)

// End reasons, carried in session_expired events and metrics.
const (
	reasonLogout   = "logout"
	reasonIdle     = "idle"
	reasonAbsolute = "absolute"
)

// Session is the record of one authenticated session.
type Session struct {
	// ID uniquely identifies this session record
	ID string

	// UserID is the opaque identifier of the authenticated principal
	UserID string

	// Role is the principal's role at session creation time. Role changes
	// require a new session; the field is immutable for the record's life.
	Role string

	// CreatedAt is when the session was created
	CreatedAt time.Time

	// LastActivity is the most recent activity signal; monotonically
	// non-decreasing
	LastActivity time.Time

	// ExpiresAt is the absolute deadline after which the session is invalid
	// independent of activity. Zero means no absolute expiry.
	ExpiresAt time.Time
}

// Config holds session policy configuration.
type Config struct {
	// MaxIdleTime invalidates a session after this long without activity
	MaxIdleTime time.Duration

	// MaxSessionDuration invalidates a session this long after creation,
	// independent of activity. Zero disables absolute expiry.
	MaxSessionDuration time.Duration

	// CheckInterval is how often the periodic liveness check runs
	CheckInterval time.Duration
}

// DefaultConfig returns the default session policy.
func DefaultConfig() Config {
	return Config{
		MaxIdleTime:        DefaultMaxIdleTime,
		MaxSessionDuration: DefaultMaxSessionDuration,
		CheckInterval:      DefaultCheckInterval,
	}
}

// merge applies the non-zero fields of other onto c.
func (c Config) merge(other Config) Config {
	if other.MaxIdleTime > 0 {
		c.MaxIdleTime = other.MaxIdleTime
	}
	if other.MaxSessionDuration > 0 {
		c.MaxSessionDuration = other.MaxSessionDuration
	}
	if other.CheckInterval > 0 {
		c.CheckInterval = other.CheckInterval
	}
	return c
}

// Manager owns the single active session slot and enforces the idle and
// absolute expiry policies via a periodic liveness check. Exactly one
// liveness ticker is ever live; starting a new one always stops any prior
// one first.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	current  *Session
	provider providers.Provider
	events   *security.EventLog
	logger   *slog.Logger
	metrics  *instrumentation.Metrics

	// Liveness check lifecycle. The channels belong to the currently
	// running check goroutine; they are swapped out under mu and closed or
	// awaited outside it.
	stopCheck chan struct{}
	checkDone chan struct{}

	unsubscribe func()
}

// NewManager creates a session manager. Zero config fields fall back to the
// defaults. The event log is optional; lifecycle events are skipped when nil.
func NewManager(cfg Config, provider providers.Provider, events *security.EventLog, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		cfg:      DefaultConfig().merge(cfg),
		provider: provider,
		events:   events,
		logger:   logger,
	}
}

// SetInstrumentation attaches metric instruments. Safe to leave unset; all
// recording is nil-safe.
func (m *Manager) SetInstrumentation(inst *instrumentation.Instrumentation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst != nil {
		m.metrics = inst.Metrics()
	}
}

// Initialize hydrates the session slot from the provider's current state and
// subscribes to its auth-state pushes. Idempotent and safe to call on every
// app start: provider faults are logged and swallowed, never returned, so
// startup cannot fail on a flaky provider.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.unsubscribe == nil && m.provider != nil {
		m.unsubscribe = m.provider.Subscribe(func(change providers.AuthChange) {
			if err := m.HandleAuthChange(context.Background(), change); err != nil {
				m.logger.Warn("Auth change handling failed",
					"change_type", string(change.Type),
					"error", err)
			}
		})
	}
	m.mu.Unlock()

	if m.provider == nil {
		return nil
	}

	state, err := m.provider.CurrentState(ctx)
	if err != nil {
		m.logger.Warn("Session hydration failed, starting without a session",
			"provider", m.provider.Name(),
			"error", err)
		return nil
	}
	if state != nil && state.UserID != "" && state.Role != "" {
		m.startSession(state.UserID, state.Role, false)
	}
	return nil
}

// HandleAuthChange is the single entry point the auth provider feeds.
// It dispatches auth-state transitions onto the session state machine.
func (m *Manager) HandleAuthChange(ctx context.Context, change providers.AuthChange) error {
	switch change.Type {
	case providers.SignedIn, providers.TokenRefreshed:
		// A notification without identity data does not create a session
		if change.UserID == "" || change.Role == "" {
			return nil
		}
		m.startSession(change.UserID, change.Role, change.Type == providers.TokenRefreshed)

	case providers.SignedOut:
		// The provider already ended its session; clear ours without
		// forcing another provider sign-out
		m.endSession(reasonLogout)

	case providers.UserUpdated:
		m.UpdateActivity()

	default:
		m.logger.Warn("Ignoring unknown auth change type", "change_type", string(change.Type))
	}
	return nil
}

// startSession replaces the session slot with a fresh record and (re)starts
// the liveness check. A refresh of an existing session emits a
// session_refreshed event.
func (m *Manager) startSession(userID, role string, refreshed bool) {
	// Stop any running check before installing the new one
	m.detachCheck(true)

	now := time.Now()
	s := &Session{
		ID:           uuid.NewString(),
		UserID:       userID,
		Role:         role,
		CreatedAt:    now,
		LastActivity: now,
	}

	m.mu.Lock()
	if m.cfg.MaxSessionDuration > 0 {
		s.ExpiresAt = now.Add(m.cfg.MaxSessionDuration)
	}
	m.current = s
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopCheck, m.checkDone = stop, done
	interval := m.cfg.CheckInterval
	m.mu.Unlock()

	go m.checkLoop(interval, stop, done)

	if refreshed && m.events != nil {
		m.events.LogSessionEvent(security.EventSessionRefreshed, userID, role, nil)
	}
	if m.metrics != nil {
		m.metrics.SessionsStarted.Add(context.Background(), 1)
	}

	m.logger.Debug("Session started",
		"session_id", s.ID,
		"user_id_hash", security.HashForLogging(userID),
		"role", role,
		"refreshed", refreshed)
}

// UpdateActivity records an activity signal on the current session.
// No-op when no session is active.
func (m *Manager) UpdateActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.LastActivity = time.Now()
	}
}

// IsValid reports whether the current session passes the idle and absolute
// expiry policies. This is an active enforcement point, not just a query:
// an expired session is cleared, logged, and signed out at the provider
// before false is returned.
func (m *Manager) IsValid(ctx context.Context) bool {
	return m.enforceExpiry(ctx, false)
}

// enforceExpiry evaluates the expiry policies and ends the session when one
// is exceeded. fromCheckLoop marks calls made by the liveness goroutine,
// which must not wait for its own exit.
func (m *Manager) enforceExpiry(ctx context.Context, fromCheckLoop bool) bool {
	now := time.Now()

	m.mu.Lock()
	s := m.current
	if s == nil {
		m.mu.Unlock()
		return false
	}

	reason := ""
	switch {
	case now.Sub(s.LastActivity) > m.cfg.MaxIdleTime:
		reason = reasonIdle
	case !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt):
		reason = reasonAbsolute
	}
	if reason == "" {
		m.mu.Unlock()
		return true
	}

	m.current = nil
	stop, done := m.stopCheck, m.checkDone
	m.stopCheck, m.checkDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		if !fromCheckLoop {
			<-done
		}
	}

	m.emitSessionEnd(s, security.EventSessionExpired, reason, now)

	// Keep the provider's state consistent with ours; a failure here is
	// logged and swallowed so invalidation always completes
	if m.provider != nil {
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.Warn("Provider sign-out failed after session expiry",
				"reason", reason,
				"error", err)
		}
	}
	return false
}

// Current returns a defensive copy of the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	copied := *m.current
	return &copied
}

// Clear ends the current session (used by logout flows). Idempotent: a clear
// with no active session does nothing but still guarantees no liveness check
// is running. Provider faults are logged and swallowed so teardown always
// completes.
func (m *Manager) Clear(ctx context.Context) error {
	s := m.endSession(reasonLogout)

	if s != nil && m.provider != nil {
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.Warn("Provider sign-out failed during session clear", "error", err)
		}
	}
	return nil
}

// endSession clears the slot, synchronously stops the liveness check, and
// emits the end event. Returns the session that was active, or nil.
func (m *Manager) endSession(reason string) *Session {
	now := time.Now()

	m.mu.Lock()
	s := m.current
	m.current = nil
	stop, done := m.stopCheck, m.checkDone
	m.stopCheck, m.checkDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}

	if s != nil {
		eventType := security.EventLogout
		if reason != reasonLogout {
			eventType = security.EventSessionExpired
		}
		m.emitSessionEnd(s, eventType, reason, now)
	}
	return s
}

// emitSessionEnd logs the end-of-session event and records metrics.
func (m *Manager) emitSessionEnd(s *Session, eventType, reason string, now time.Time) {
	duration := now.Sub(s.CreatedAt)

	if m.events != nil {
		details := map[string]any{"duration_ms": duration.Milliseconds()}
		if eventType == security.EventSessionExpired {
			details["reason"] = reason
		}
		m.events.LogSessionEvent(eventType, s.UserID, s.Role, details)
	}
	if m.metrics != nil {
		m.metrics.SessionsEnded.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("reason", reason)))
		m.metrics.SessionDuration.Record(context.Background(), duration.Seconds())
	}

	m.logger.Debug("Session ended",
		"session_id", s.ID,
		"reason", reason,
		"duration", duration)
}

// detachCheck stops the running liveness check, if any. When wait is true the
// check goroutine has fully exited before detachCheck returns.
func (m *Manager) detachCheck(wait bool) {
	m.mu.Lock()
	stop, done := m.stopCheck, m.checkDone
	m.stopCheck, m.checkDone = nil, nil
	m.mu.Unlock()

	if stop != nil {
		close(stop)
		if wait {
			<-done
		}
	}
}

// checkLoop is the periodic liveness check. It runs until stopped and
// evaluates the same expiry policies as IsValid on every tick.
func (m *Manager) checkLoop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.enforceExpiry(context.Background(), true)
		case <-stop:
			return
		}
	}
}

// SetConfig merges the non-zero fields of cfg into the current configuration.
// A changed CheckInterval applies when the next session starts.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = m.cfg.merge(cfg)
}

// GetConfig returns a copy of the current configuration.
func (m *Manager) GetConfig() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Close unsubscribes from the provider and stops the liveness check without
// ending the session at the provider. Safe to call multiple times.
func (m *Manager) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	m.detachCheck(true)
}
