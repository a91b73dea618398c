package security

import (
	"context"
	"log/slog"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/time/rate"

	"github.com/aquaflow/sessionguard/instrumentation"
)

const (
	// DefaultEventCapacity is the default size of the event ring buffer
	DefaultEventCapacity = 500

	// DefaultPatternWindow is how long repeated events for the same subject
	// accumulate before the counter resets
	DefaultPatternWindow = 15 * time.Minute

	// BruteForceThreshold is the login failure count (per subject, per
	// window) at which a brute force event is emitted
	BruteForceThreshold = 5

	// SuspiciousAccessThreshold is the unauthorized access count (per
	// subject, per window) at which a suspicious pattern event is emitted
	SuspiciousAccessThreshold = 3

	// mirrorRate and mirrorBurst bound how many warning/critical events per
	// second are mirrored into the diagnostic logger, so a detection storm
	// cannot flood operational logs
	mirrorRate  = 10
	mirrorBurst = 20
)

// Event is one security-relevant fact. Events are immutable once appended;
// all reads return copies. PII is masked by the convenience wrappers before
// an event is constructed, so raw values never enter the buffer.
type Event struct {
	ID        string
	Type      string
	Severity  Severity
	Timestamp time.Time
	UserID    string
	Role      string
	Details   map[string]any
	Metadata  map[string]any
}

// patternCounter is a windowed counter for one (event class, subject) pair.
// The window resets wholesale on expiry, same as the rate limiter's windows,
// so old failures age out instead of accumulating for the process lifetime.
type patternCounter struct {
	count       int
	windowStart time.Time
}

// EventLog is an append-only, fixed-capacity ring buffer of security events
// with windowed frequency-based pattern detection. Warning and critical
// events are additionally mirrored into a diagnostic slog.Logger so they
// surface in general operational monitoring even though the event log itself
// is in-memory only.
type EventLog struct {
	mu            sync.RWMutex
	buf           []Event
	start         int // index of oldest event once the buffer has wrapped
	size          int
	capacity      int
	patterns      map[string]*patternCounter
	patternWindow time.Duration
	logger        *slog.Logger
	mirror        *rate.Limiter
	mirrorDropped atomic.Int64
	metrics       *instrumentation.Metrics
}

// NewEventLog creates an event log with default capacity and pattern window.
func NewEventLog(logger *slog.Logger) *EventLog {
	return NewEventLogWithConfig(DefaultEventCapacity, DefaultPatternWindow, logger)
}

// NewEventLogWithConfig creates an event log with custom capacity and pattern
// detection window. Non-positive values are clamped to the defaults with a
// warning.
func NewEventLogWithConfig(capacity int, patternWindow time.Duration, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = DefaultEventCapacity
		logger.Warn("Invalid event capacity, using default", "capacity", capacity)
	}
	if patternWindow <= 0 {
		patternWindow = DefaultPatternWindow
		logger.Warn("Invalid pattern window, using default", "patternWindow", patternWindow)
	}

	return &EventLog{
		buf:           make([]Event, 0, capacity),
		capacity:      capacity,
		patterns:      make(map[string]*patternCounter),
		patternWindow: patternWindow,
		logger:        logger,
		mirror:        rate.NewLimiter(rate.Limit(mirrorRate), mirrorBurst),
	}
}

// SetInstrumentation attaches metric instruments. Safe to leave unset; all
// recording is nil-safe.
func (l *EventLog) SetInstrumentation(inst *instrumentation.Instrumentation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if inst != nil {
		l.metrics = inst.Metrics()
	}
}

// Log records a security event with the current timestamp.
func (l *EventLog) Log(eventType string, severity Severity, details map[string]any, userID, role string) {
	l.LogEvent(Event{
		Type:     eventType,
		Severity: severity,
		UserID:   userID,
		Role:     role,
		Details:  details,
	})
}

// LogEvent stamps and appends an event, runs pattern detection, and mirrors
// warning/critical events to the diagnostic logger.
func (l *EventLog) LogEvent(ev Event) {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now()
	ev.Details = maps.Clone(ev.Details)
	ev.Metadata = maps.Clone(ev.Metadata)
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}

	l.mu.Lock()
	l.appendLocked(ev)
	followups := l.detectLocked(ev)
	metrics := l.metrics
	l.mu.Unlock()

	l.mirrorEvent(ev)
	l.recordMetric(metrics, ev, false)
	for _, followup := range followups {
		l.mirrorEvent(followup)
		l.recordMetric(metrics, followup, true)
	}
}

// appendLocked places an event into the ring, evicting the oldest when full.
// Must be called with mutex locked.
func (l *EventLog) appendLocked(ev Event) {
	if l.size < l.capacity {
		l.buf = append(l.buf, ev)
		l.size++
		return
	}
	l.buf[l.start] = ev
	l.start = (l.start + 1) % l.capacity
}

// detectLocked runs frequency-based anomaly detection for the new event and
// appends any follow-up detection events. Must be called with mutex locked.
func (l *EventLog) detectLocked(ev Event) []Event {
	switch ev.Type {
	case EventLoginFailure:
		count := l.bumpLocked("login_failure", ev.UserID, ev.Timestamp)
		if count == BruteForceThreshold {
			return []Event{l.detectionLocked(ev, Event{
				Type:     EventBruteForce,
				Severity: SeverityCritical,
				Details: map[string]any{
					"identifier": maskSubject(subjectOrUnknown(ev.UserID)),
					"count":      count,
				},
			})}
		}
	case EventUnauthorizedAccess:
		count := l.bumpLocked("unauthorized", ev.UserID, ev.Timestamp)
		if count == SuspiciousAccessThreshold {
			return []Event{l.detectionLocked(ev, Event{
				Type:     EventSuspiciousPattern,
				Severity: SeverityWarning,
				Details: map[string]any{
					"identifier": maskSubject(subjectOrUnknown(ev.UserID)),
					"pattern":    "repeated_unauthorized_access",
					"count":      count,
				},
			})}
		}
	}
	return nil
}

// detectionLocked stamps and appends a follow-up detection event, carrying
// over the triggering event's principal. Must be called with mutex locked.
func (l *EventLog) detectionLocked(trigger, detection Event) Event {
	detection.ID = uuid.NewString()
	detection.Timestamp = trigger.Timestamp
	detection.UserID = trigger.UserID
	detection.Role = trigger.Role
	l.appendLocked(detection)
	return detection
}

// bumpLocked increments the windowed counter for (class, subject) and returns
// the new count. Callers compare against a threshold with equality, so each
// threshold fires exactly once per window, on the crossing increment.
// Must be called with mutex locked.
func (l *EventLog) bumpLocked(class, subject string, now time.Time) int {
	key := class + ":" + subjectOrUnknown(subject)
	counter := l.patterns[key]
	if counter == nil || now.Sub(counter.windowStart) >= l.patternWindow {
		counter = &patternCounter{windowStart: now}
		l.patterns[key] = counter
	}
	counter.count++
	return counter.count
}

func subjectOrUnknown(subject string) string {
	if subject == "" {
		return "unknown"
	}
	return subject
}

// maskSubject masks a subject for inclusion in a detection event's details.
// Email-shaped subjects keep a readable prefix and domain; anything else is
// reduced to a stable hash so repeated detections still correlate.
func maskSubject(subject string) string {
	if strings.Contains(subject, "@") {
		return MaskEmail(subject)
	}
	if subject == "unknown" {
		return subject
	}
	return HashForLogging(subject)
}

// mirrorEvent forwards warning and critical events to the diagnostic logger,
// throttled so a detection storm cannot flood operational logs.
func (l *EventLog) mirrorEvent(ev Event) {
	if ev.Severity != SeverityWarning && ev.Severity != SeverityCritical {
		return
	}
	if !l.mirror.Allow() {
		l.mirrorDropped.Add(1)
		return
	}

	attrs := []any{
		"event_type", ev.Type,
		"severity", string(ev.Severity),
		"user_id_hash", HashForLogging(ev.UserID),
		"details", ev.Details,
	}
	if ev.Severity == SeverityCritical {
		l.logger.Error("security_event", attrs...)
	} else {
		l.logger.Warn("security_event", attrs...)
	}
}

func (l *EventLog) recordMetric(metrics *instrumentation.Metrics, ev Event, detection bool) {
	if metrics == nil {
		return
	}
	metrics.SecurityEvents.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("type", ev.Type),
		attribute.String("severity", string(ev.Severity)),
	))
	if detection {
		metrics.PatternsDetected.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("pattern", ev.Type)))
	}
}

// ==================== Convenience wrappers ====================

// LogAuthAttempt records an authentication attempt. The email is masked
// before storage.
func (l *EventLog) LogAuthAttempt(email string, success bool, reason string, userID string) {
	details := map[string]any{"email": MaskEmail(email)}
	if success {
		l.Log(EventLoginSuccess, SeverityInfo, details, userID, "")
		return
	}
	if reason != "" {
		details["reason"] = reason
	}
	l.Log(EventLoginFailure, SeverityWarning, details, userID, "")
}

// LogRegistrationAttempt records an account registration attempt with a
// masked email.
func (l *EventLog) LogRegistrationAttempt(email string, success bool) {
	details := map[string]any{"email": MaskEmail(email)}
	if success {
		l.Log(EventRegistrationSuccess, SeverityInfo, details, "", "")
		return
	}
	l.Log(EventRegistrationFailure, SeverityWarning, details, "", "")
}

// LogUnauthorizedAccess records an attempt to reach a resource the
// principal's role does not permit.
func (l *EventLog) LogUnauthorizedAccess(userID, role, resource string) {
	l.Log(EventUnauthorizedAccess, SeverityWarning, map[string]any{
		"resource": resource,
	}, userID, role)
}

// LogBruteForce records an externally detected brute force attempt.
// Detection inside this log emits the same event type automatically.
func (l *EventLog) LogBruteForce(identifier string, attempts int) {
	l.Log(EventBruteForce, SeverityCritical, map[string]any{
		"identifier": maskSubject(identifier),
		"count":      attempts,
	}, "", "")
}

// LogRateLimitExceeded records a denied attempt for an action.
func (l *EventLog) LogRateLimitExceeded(action, identifier string) {
	l.Log(EventRateLimitExceeded, SeverityWarning, map[string]any{
		"action":     action,
		"identifier": maskSubject(identifier),
	}, "", "")
}

// LogSessionEvent records a session lifecycle event. Expiry events are
// warnings; refreshes and logouts are informational.
func (l *EventLog) LogSessionEvent(eventType, userID, role string, details map[string]any) {
	severity := SeverityInfo
	if eventType == EventSessionExpired {
		severity = SeverityWarning
	}
	l.Log(eventType, severity, details, userID, role)
}

// LogSuspiciousPattern records an externally detected suspicious pattern.
func (l *EventLog) LogSuspiciousPattern(subject, pattern string, count int) {
	l.Log(EventSuspiciousPattern, SeverityWarning, map[string]any{
		"identifier": maskSubject(subject),
		"pattern":    pattern,
		"count":      count,
	}, "", "")
}

// ==================== Read projections ====================

// snapshotLocked returns the buffer contents oldest-first as copies.
// Must be called with mutex locked (read or write).
func (l *EventLog) snapshotLocked() []Event {
	out := make([]Event, 0, l.size)
	for i := 0; i < l.size; i++ {
		out = append(out, cloneEvent(l.buf[(l.start+i)%l.capacity]))
	}
	return out
}

func cloneEvent(ev Event) Event {
	ev.Details = maps.Clone(ev.Details)
	ev.Metadata = maps.Clone(ev.Metadata)
	return ev
}

// All returns every buffered event, oldest first.
func (l *EventLog) All() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshotLocked()
}

// Recent returns the n most recent events, oldest first.
func (l *EventLog) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.snapshotLocked()
	if n < 0 {
		n = 0
	}
	if n >= len(events) {
		return events
	}
	return events[len(events)-n:]
}

// ByType returns all buffered events of the given type, oldest first.
func (l *EventLog) ByType(eventType string) []Event {
	return l.filter(func(ev Event) bool { return ev.Type == eventType })
}

// BySeverity returns all buffered events of the given severity, oldest first.
func (l *EventLog) BySeverity(severity Severity) []Event {
	return l.filter(func(ev Event) bool { return ev.Severity == severity })
}

// ByUser returns all buffered events for the given principal, oldest first.
func (l *EventLog) ByUser(userID string) []Event {
	return l.filter(func(ev Event) bool { return ev.UserID == userID })
}

func (l *EventLog) filter(keep func(Event) bool) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for i := 0; i < l.size; i++ {
		ev := l.buf[(l.start+i)%l.capacity]
		if keep(ev) {
			out = append(out, cloneEvent(ev))
		}
	}
	return out
}

// Clear empties the buffer and resets all pattern counters.
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf = l.buf[:0]
	l.start = 0
	l.size = 0
	l.patterns = make(map[string]*patternCounter)
	l.mirrorDropped.Store(0)
}

// Statistics holds aggregate counts over the current buffer contents.
type Statistics struct {
	Total          int
	Critical       int
	Warning        int
	Info           int
	ByType         map[string]int
	RecentCritical []Event // up to the 10 most recent critical events
	MirrorDropped  int64   // diagnostic mirror lines dropped by the throttle
}

// GetStatistics computes aggregate counts over the current buffer contents.
func (l *EventLog) GetStatistics() Statistics {
	l.mu.RLock()
	defer l.mu.RUnlock()

	stats := Statistics{
		ByType:        make(map[string]int),
		MirrorDropped: l.mirrorDropped.Load(),
	}

	var criticals []Event
	for i := 0; i < l.size; i++ {
		ev := l.buf[(l.start+i)%l.capacity]
		stats.Total++
		stats.ByType[ev.Type]++
		switch ev.Severity {
		case SeverityCritical:
			stats.Critical++
			criticals = append(criticals, cloneEvent(ev))
		case SeverityWarning:
			stats.Warning++
		default:
			stats.Info++
		}
	}

	if len(criticals) > 10 {
		criticals = criticals[len(criticals)-10:]
	}
	stats.RecentCritical = criticals
	return stats
}
