package security

// Event type constants for security event logging.
// These constants ensure consistency across the codebase and prevent typos
// when recording security-relevant events.
const (
	// Authentication events

	// EventLoginSuccess is recorded when an authentication attempt succeeds
	EventLoginSuccess = "login_success"

	// EventLoginFailure is recorded when an authentication attempt fails
	EventLoginFailure = "login_failure"

	// EventLogout is recorded when a session ends through an explicit sign-out
	EventLogout = "logout"

	// EventRegistrationSuccess is recorded when an account registration succeeds
	EventRegistrationSuccess = "registration_success"

	// EventRegistrationFailure is recorded when an account registration fails
	EventRegistrationFailure = "registration_failure"

	// Session lifecycle events

	// EventSessionRefreshed is recorded when an existing session is replaced
	// because the auth provider refreshed its token
	EventSessionRefreshed = "session_refreshed"

	// EventSessionExpired is recorded when a session is invalidated by the
	// idle timeout or the absolute expiry policy
	EventSessionExpired = "session_expired"

	// Policy violation events

	// EventUnauthorizedAccess is recorded when a principal attempts an
	// operation its role does not permit
	EventUnauthorizedAccess = "unauthorized_access_attempt"

	// EventRateLimitExceeded is recorded when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// Detection events

	// EventBruteForce is recorded when repeated login failures for the same
	// subject cross the brute-force threshold within the detection window
	EventBruteForce = "brute_force_attempt"

	// EventSuspiciousPattern is recorded when repeated unauthorized access
	// attempts for the same subject cross the detection threshold
	EventSuspiciousPattern = "suspicious_pattern"

	// EventPolicyViolation is recorded when a security audit run produces at
	// least one failing check
	EventPolicyViolation = "security_policy_violation"
)

// Severity classifies how urgently a security event needs attention.
type Severity string

const (
	// SeverityInfo marks routine, expected events (successful logins, logouts)
	SeverityInfo Severity = "info"

	// SeverityWarning marks events that may need attention (failures, limits)
	SeverityWarning Severity = "warning"

	// SeverityCritical marks events that need immediate attention (detections)
	SeverityCritical Severity = "critical"
)
