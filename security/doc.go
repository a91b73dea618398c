// Package security provides the policy-enforcement primitives of the
// sessionguard library: fixed-window rate limiting, an in-memory security
// event log with anomaly detection, PII masking, and a posture audit.
//
// # Rate Limiting
//
// The RateLimiter tracks attempts per (action, identifier) key over fixed
// windows, with per-action limits and automatic memory management through LRU
// (Least Recently Used) eviction. Checking and recording are separate
// operations so callers decide whether an attempt counts even when it fails:
//
//	limiter := security.NewRateLimiter(logger)
//	defer limiter.Stop()
//
//	decision := limiter.Check(security.ActionLogin, maskedEmail)
//	if !decision.Allowed {
//	    // Locked out until decision.ResetAt
//	    return
//	}
//	limiter.Record(security.ActionLogin, maskedEmail)
//
// Window expiry is evaluated lazily on every access rather than via per-key
// timers, so the limiter is allocation-cheap and stays correct across process
// sleeps.
//
// # Event Log
//
// The EventLog keeps security events in a fixed-capacity ring buffer (oldest
// evicted first) and counts repeated event subtypes per subject over a
// sliding window. Crossing a threshold emits a detection event: five login
// failures within the window produce a brute_force_attempt, three
// unauthorized access attempts produce a suspicious_pattern. Warning and
// critical events are mirrored into the diagnostic slog.Logger, throttled to
// protect operational logs from detection storms.
//
// Identifiers are masked before storage (MaskEmail, MaskIdentifier,
// HashForLogging); raw values never enter the buffer.
//
// # Audit
//
// The Auditor runs a fixed battery of posture checks over an AuditConfig
// snapshot and rolls them into secure / needs_attention / vulnerable. A run
// with failing checks emits a security_policy_violation event.
//
// ## Monitoring
//
// RateLimiter.GetStats and EventLog.GetStatistics expose counters for
// monitoring and alerting. Set up alerts when:
//   - Stats.MemoryPressure consistently > 80%: consider raising MaxTrackedKeys
//   - Stats.TotalEvictions increasing rapidly: possible distributed attack
//   - Statistics.MirrorDropped increasing: detection volume exceeds the
//     diagnostic mirror throttle
package security
