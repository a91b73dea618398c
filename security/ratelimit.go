package security

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/aquaflow/sessionguard/instrumentation"
	"github.com/aquaflow/sessionguard/internal/util"
)

// Well-known action names with predefined limits.
const (
	ActionLogin    = "login"
	ActionRegister = "register"
	ActionAPICall  = "api_call"
)

const (
	// DefaultMaxRequests is the generic per-window ceiling for actions
	// without a predefined or overridden limit
	DefaultMaxRequests = 5

	// DefaultWindow is the generic window length for actions without a
	// predefined or overridden limit
	DefaultWindow = 15 * time.Minute

	// DefaultMaxTrackedKeys is the maximum number of (action, identifier)
	// keys tracked simultaneously before LRU eviction kicks in
	DefaultMaxTrackedKeys = 10000

	// DefaultLimiterCleanupInterval is how often the background sweep for
	// expired windows runs
	DefaultLimiterCleanupInterval = 5 * time.Minute
)

// wellKnownLimits are the predefined budgets shipped for well-known actions.
// They apply when no explicit override is registered for the action.
var wellKnownLimits = map[string]Limit{
	ActionLogin:    {MaxRequests: 5, Window: 15 * time.Minute},
	ActionRegister: {MaxRequests: 3, Window: time.Hour},
	ActionAPICall:  {MaxRequests: 30, Window: time.Minute},
}

// Limit describes the budget for one action: how many attempts fit in one
// fixed window. Non-positive values are clamped to the generic defaults when
// registered; a non-positive window never means "never resets".
type Limit struct {
	// MaxRequests is the positive attempt ceiling per window
	MaxRequests int

	// Window is the positive window length
	Window time.Duration
}

// Decision is the outcome of a rate limit check.
type Decision struct {
	// Allowed reports whether another attempt is currently permitted
	Allowed bool

	// Remaining is how many attempts are left in the current window
	Remaining int

	// ResetAt is when the current (possibly virtual) window ends
	ResetAt time.Time
}

// Entry is a read-only snapshot of one tracked window.
type Entry struct {
	Count       int
	WindowStart time.Time
}

// limiterEntry tracks the current window for one (action, identifier) key.
// The window length is captured from the limit in effect when the window
// opened; changing an action's limit applies to subsequent windows.
type limiterEntry struct {
	key         string
	count       int
	windowStart time.Time
	window      time.Duration
	lastAccess  time.Time
}

// RateLimiter provides fixed-window rate limiting per (action, identifier)
// key with per-action limits and LRU eviction to prevent unbounded memory
// growth. Window expiry is evaluated lazily on every access, so the limiter
// stays correct across process sleeps without per-key timers.
//
// Check is a pure read and Record is the only count mutation; callers choose
// check-then-act or record-then-check depending on whether the attempt itself
// should count even when it ultimately fails.
type RateLimiter struct {
	entries      map[string]*list.Element // key -> list element
	lruList      *list.List               // LRU list of *limiterEntry
	limits       map[string]Limit         // per-action overrides
	mu           sync.Mutex
	defaultLimit Limit
	maxEntries   int
	logger       *slog.Logger
	metrics      *instrumentation.Metrics

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	// Statistics
	totalAllowed   int64
	totalBlocked   int64
	totalEvictions int64
	totalCleanups  int64
}

// NewRateLimiter creates a rate limiter with default settings.
// Use NewRateLimiterWithConfig for custom defaults and capacity.
func NewRateLimiter(logger *slog.Logger) *RateLimiter {
	return NewRateLimiterWithConfig(
		Limit{MaxRequests: DefaultMaxRequests, Window: DefaultWindow},
		DefaultMaxTrackedKeys,
		DefaultLimiterCleanupInterval,
		logger,
	)
}

// NewRateLimiterWithConfig creates a rate limiter with a custom generic limit,
// tracked-key capacity, and cleanup interval. Non-positive values are clamped
// to the package defaults with a warning. Set maxEntries to 0 for unlimited
// (not recommended for production).
func NewRateLimiterWithConfig(defaultLimit Limit, maxEntries int, cleanupInterval time.Duration, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	defaultLimit = clampLimit(defaultLimit, logger)
	if maxEntries < 0 {
		maxEntries = DefaultMaxTrackedKeys
		logger.Warn("Invalid maxEntries, using default", "maxEntries", maxEntries)
	}
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultLimiterCleanupInterval
		logger.Warn("Invalid cleanupInterval, using default", "cleanupInterval", cleanupInterval)
	}

	rl := &RateLimiter{
		entries:         make(map[string]*list.Element),
		lruList:         list.New(),
		limits:          make(map[string]Limit),
		defaultLimit:    defaultLimit,
		maxEntries:      maxEntries,
		logger:          logger,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	// Background sweep for expired windows
	go rl.cleanupLoop()

	return rl
}

// SetInstrumentation attaches metric instruments. Safe to leave unset; all
// recording is nil-safe.
func (rl *RateLimiter) SetInstrumentation(inst *instrumentation.Instrumentation) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if inst != nil {
		rl.metrics = inst.Metrics()
	}
}

// clampLimit replaces non-positive limit fields with the generic defaults.
func clampLimit(limit Limit, logger *slog.Logger) Limit {
	if limit.MaxRequests <= 0 {
		logger.Warn("Invalid maxRequests, using default",
			"maxRequests", limit.MaxRequests,
			"default", DefaultMaxRequests)
		limit.MaxRequests = DefaultMaxRequests
	}
	if limit.Window <= 0 {
		logger.Warn("Invalid window, using default",
			"window", limit.Window,
			"default", DefaultWindow)
		limit.Window = DefaultWindow
	}
	return limit
}

// key builds the composite map key. An empty identifier addresses a single
// shared bucket for the action.
func (rl *RateLimiter) key(action, identifier string) string {
	action = util.NormalizeAction(action)
	if identifier == "" {
		return action
	}
	return action + ":" + identifier
}

// limitForLocked resolves the effective limit for an action:
// explicit override, then predefined well-known limit, then generic default.
// Must be called with the mutex locked.
func (rl *RateLimiter) limitForLocked(action string) Limit {
	action = util.NormalizeAction(action)
	if limit, ok := rl.limits[action]; ok {
		return limit
	}
	if limit, ok := wellKnownLimits[action]; ok {
		return limit
	}
	return rl.defaultLimit
}

// Check reports whether another attempt for the (action, identifier) pair is
// currently permitted. It never creates or mutates window entries; an expired
// or missing entry is treated as a fresh, virtual window.
func (rl *RateLimiter) Check(action, identifier string) Decision {
	return rl.check(action, identifier, nil)
}

// CheckWithLimit is Check with a one-off limit override that bypasses both
// registered overrides and predefined limits. Non-positive override fields
// are clamped to the generic defaults.
func (rl *RateLimiter) CheckWithLimit(action, identifier string, limit Limit) Decision {
	limit = clampLimit(limit, rl.logger)
	return rl.check(action, identifier, &limit)
}

func (rl *RateLimiter) check(action, identifier string, override *Limit) Decision {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rl.limitForLocked(action)
	if override != nil {
		limit = *override
	}

	elem, exists := rl.entries[rl.key(action, identifier)]
	if !exists {
		rl.totalAllowed++
		return Decision{Allowed: true, Remaining: limit.MaxRequests, ResetAt: now.Add(limit.Window)}
	}

	entry := elem.Value.(*limiterEntry)
	if now.Sub(entry.windowStart) >= entry.window {
		// Window expired; next Record opens a fresh one
		rl.totalAllowed++
		return Decision{Allowed: true, Remaining: limit.MaxRequests, ResetAt: now.Add(limit.Window)}
	}

	remaining := limit.MaxRequests - entry.count
	if remaining < 0 {
		remaining = 0
	}
	decision := Decision{
		Allowed:   entry.count < limit.MaxRequests,
		Remaining: remaining,
		ResetAt:   entry.windowStart.Add(entry.window),
	}

	if decision.Allowed {
		rl.totalAllowed++
	} else {
		rl.totalBlocked++
		rl.logger.Warn("Rate limit exceeded",
			"action", action,
			"count", entry.count,
			"max_requests", limit.MaxRequests,
			"window", entry.window,
			"total_blocked", rl.totalBlocked)
		if rl.metrics != nil {
			rl.metrics.RateLimitDenied.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("action", util.NormalizeAction(action))))
		}
	}
	return decision
}

// Record counts one attempt against the (action, identifier) pair, opening a
// fresh window if none exists or the current one has expired. This is the
// only operation that mutates counts.
func (rl *RateLimiter) Record(action, identifier string) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit := rl.limitForLocked(action)
	key := rl.key(action, identifier)

	if elem, exists := rl.entries[key]; exists {
		rl.lruList.MoveToFront(elem)
		entry := elem.Value.(*limiterEntry)
		entry.lastAccess = now
		if now.Sub(entry.windowStart) >= entry.window {
			entry.count = 0
			entry.windowStart = now
			entry.window = limit.Window
		}
		entry.count++
		return
	}

	if rl.maxEntries > 0 && len(rl.entries) >= rl.maxEntries {
		rl.evictLRU()
	}

	entry := &limiterEntry{
		key:         key,
		count:       1,
		windowStart: now,
		window:      limit.Window,
		lastAccess:  now,
	}
	rl.entries[key] = rl.lruList.PushFront(entry)
}

// Remaining returns how many attempts are left for the pair in the current
// window. A missing or expired entry means the full allowance.
func (rl *RateLimiter) Remaining(action, identifier string) int {
	return rl.Check(action, identifier).Remaining
}

// ResetAt returns when the pair's current window ends. The second return is
// false when no live (non-expired) entry exists.
func (rl *RateLimiter) ResetAt(action, identifier string) (time.Time, bool) {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	elem, exists := rl.entries[rl.key(action, identifier)]
	if !exists {
		return time.Time{}, false
	}
	entry := elem.Value.(*limiterEntry)
	if now.Sub(entry.windowStart) >= entry.window {
		return time.Time{}, false
	}
	return entry.windowStart.Add(entry.window), true
}

// Reset deletes the tracked window for one (action, identifier) pair.
func (rl *RateLimiter) Reset(action, identifier string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	key := rl.key(action, identifier)
	if elem, exists := rl.entries[key]; exists {
		rl.lruList.Remove(elem)
		delete(rl.entries, key)
	}
}

// ResetAll clears every tracked window and every per-action limit override,
// restoring the predefined and generic defaults.
func (rl *RateLimiter) ResetAll() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.entries = make(map[string]*list.Element)
	rl.lruList = list.New()
	rl.limits = make(map[string]Limit)
}

// SetLimit registers a per-action limit override. Non-positive fields are
// clamped to the generic defaults with a warning.
func (rl *RateLimiter) SetLimit(action string, limit Limit) {
	limit = clampLimit(limit, rl.logger)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limits[util.NormalizeAction(action)] = limit
}

// LimitFor returns the effective limit for an action: the registered
// override if present, else the predefined well-known limit, else the
// generic default.
func (rl *RateLimiter) LimitFor(action string) Limit {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limitForLocked(action)
}

// Cleanup proactively removes all entries whose window has expired.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.cleanupLocked(time.Now())
}

// cleanupLocked removes expired windows. Must be called with mutex locked.
func (rl *RateLimiter) cleanupLocked(now time.Time) {
	removed := 0

	var next *list.Element
	for elem := rl.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*limiterEntry)

		if now.Sub(entry.windowStart) >= entry.window {
			delete(rl.entries, entry.key)
			rl.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		rl.totalCleanups++
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.entries),
			"total_cleanups", rl.totalCleanups)
	}
}

// ActiveLimits returns a snapshot of all live (non-expired) windows keyed by
// their composite key. Expired entries are pruned as a side effect.
func (rl *RateLimiter) ActiveLimits() map[string]Entry {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.cleanupLocked(now)

	active := make(map[string]Entry, len(rl.entries))
	for key, elem := range rl.entries {
		entry := elem.Value.(*limiterEntry)
		active[key] = Entry{Count: entry.count, WindowStart: entry.windowStart}
	}
	return active
}

// evictLRU removes the least recently used entry from the cache.
// Must be called with mutex locked.
func (rl *RateLimiter) evictLRU() {
	elem := rl.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*limiterEntry)
	delete(rl.entries, entry.key)
	rl.lruList.Remove(elem)
	rl.totalEvictions++

	rl.logger.Debug("Rate limiter LRU eviction",
		"key", entry.key,
		"total_evictions", rl.totalEvictions,
		"current_entries", len(rl.entries))
}

// cleanupLoop periodically removes expired windows to prevent memory leaks
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup()
		case <-rl.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup goroutine.
// Safe to call multiple times concurrently.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

// Stats holds rate limiter statistics for monitoring
type Stats struct {
	CurrentEntries int     // Current number of tracked keys
	MaxEntries     int     // Maximum allowed entries (0 = unlimited)
	TotalAllowed   int64   // Total checks that were allowed
	TotalBlocked   int64   // Total checks that were denied
	TotalEvictions int64   // Total number of LRU evictions
	TotalCleanups  int64   // Total number of cleanup operations
	MemoryPressure float64 // Percentage of max capacity used (0-100)
}

// GetStats returns current rate limiter statistics for monitoring and alerting.
func (rl *RateLimiter) GetStats() Stats {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	stats := Stats{
		CurrentEntries: len(rl.entries),
		MaxEntries:     rl.maxEntries,
		TotalAllowed:   rl.totalAllowed,
		TotalBlocked:   rl.totalBlocked,
		TotalEvictions: rl.totalEvictions,
		TotalCleanups:  rl.totalCleanups,
	}
	if rl.maxEntries > 0 {
		stats.MemoryPressure = float64(stats.CurrentEntries) / float64(rl.maxEntries) * 100.0
	}
	return stats
}
