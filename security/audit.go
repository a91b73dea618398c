package security

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// CheckStatus is the outcome of a single audit check.
type CheckStatus string

const (
	CheckPass CheckStatus = "pass"
	CheckWarn CheckStatus = "warn"
	CheckFail CheckStatus = "fail"
)

// OverallStatus rolls the individual check outcomes into one posture verdict.
type OverallStatus string

const (
	// StatusSecure means every check passed
	StatusSecure OverallStatus = "secure"

	// StatusNeedsAttention means there were warnings but no failures
	StatusNeedsAttention OverallStatus = "needs_attention"

	// StatusVulnerable means at least one check failed
	StatusVulnerable OverallStatus = "vulnerable"
)

// Check is the result of one audit check.
type Check struct {
	Name           string
	Status         CheckStatus
	Detail         string
	Recommendation string // empty when the check passes or has no actionable fix
}

// Report is the result of one audit run.
type Report struct {
	Timestamp time.Time
	Overall   OverallStatus
	Checks    []Check
}

// AuditConfig is a snapshot of the deployment posture the audit evaluates.
// It is supplied by the application composition root, which knows how the
// surrounding app is built and configured.
type AuditConfig struct {
	// Production indicates a release build rather than a development one
	Production bool

	// DebugLogging indicates verbose/console logging is enabled
	DebugLogging bool

	// PersistentStorage indicates security events are also persisted
	// somewhere durable instead of living only in this process
	PersistentStorage bool

	// AuthConfigured indicates an authentication provider is wired in
	AuthConfigured bool

	// InputValidation indicates input validation/sanitization helpers are
	// wired into the request paths
	InputValidation bool
}

// Auditor runs a fixed battery of posture checks and reports an overall
// status. Any run producing at least one failing check also emits a
// security_policy_violation event through the event log.
type Auditor struct {
	cfg    AuditConfig
	events *EventLog
	logger *slog.Logger

	mu   sync.Mutex
	last *Report
}

// NewAuditor creates an auditor over the given posture snapshot and event log.
func NewAuditor(cfg AuditConfig, events *EventLog, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{
		cfg:    cfg,
		events: events,
		logger: logger,
	}
}

// RunAudit evaluates every check and returns the report. The report is also
// retained for Recommendations.
func (a *Auditor) RunAudit() Report {
	report := Report{
		Timestamp: time.Now(),
		Checks: []Check{
			a.checkStorage(),
			a.checkEnvironment(),
			a.checkLogHygiene(),
			a.checkAuthProvider(),
			a.checkInputValidation(),
		},
	}

	var failed []string
	warned := false
	for _, check := range report.Checks {
		switch check.Status {
		case CheckFail:
			failed = append(failed, check.Name)
		case CheckWarn:
			warned = true
		}
	}

	switch {
	case len(failed) > 0:
		report.Overall = StatusVulnerable
	case warned:
		report.Overall = StatusNeedsAttention
	default:
		report.Overall = StatusSecure
	}

	if len(failed) > 0 && a.events != nil {
		a.events.Log(EventPolicyViolation, SeverityCritical, map[string]any{
			"failed_checks": strings.Join(failed, ", "),
		}, "", "")
	}

	a.mu.Lock()
	a.last = &report
	a.mu.Unlock()

	return report
}

func (a *Auditor) checkStorage() Check {
	check := Check{Name: "storage_configuration", Status: CheckPass,
		Detail: "security events are persisted durably"}
	if !a.cfg.PersistentStorage {
		check.Status = CheckWarn
		check.Detail = "security events live only in process memory and are lost on restart"
		check.Recommendation = "Forward security events to durable storage or a log aggregator"
	}
	return check
}

func (a *Auditor) checkEnvironment() Check {
	check := Check{Name: "environment_mode", Status: CheckPass,
		Detail: "running a production build"}
	if !a.cfg.Production {
		check.Status = CheckWarn
		check.Detail = "running in development mode"
		check.Recommendation = "Disable development mode for release builds"
	}
	return check
}

func (a *Auditor) checkLogHygiene() Check {
	check := Check{Name: "log_hygiene", Status: CheckPass,
		Detail: "verbose logging is disabled"}
	if a.cfg.DebugLogging {
		if a.cfg.Production {
			check.Status = CheckFail
			check.Detail = "verbose logging is enabled in a production build"
			check.Recommendation = "Disable debug logging in production; it can leak sensitive data"
		} else {
			check.Status = CheckWarn
			check.Detail = "verbose logging is enabled"
			check.Recommendation = "Disable verbose logging before release"
		}
	}
	return check
}

func (a *Auditor) checkAuthProvider() Check {
	check := Check{Name: "authentication_provider", Status: CheckPass,
		Detail: "an authentication provider is configured"}
	if !a.cfg.AuthConfigured {
		check.Status = CheckFail
		check.Detail = "no authentication provider is configured"
		check.Recommendation = "Configure an authentication provider before serving users"
	}
	return check
}

func (a *Auditor) checkInputValidation() Check {
	check := Check{Name: "input_validation", Status: CheckPass,
		Detail: "input validation and sanitization helpers are wired in"}
	if !a.cfg.InputValidation {
		check.Status = CheckFail
		check.Detail = "input validation and sanitization helpers are not wired in"
		check.Recommendation = "Wire validation and sanitization helpers into all input paths"
	}
	return check
}

// Recommendations returns the actionable recommendations from the most recent
// audit run's warning and failing checks. Runs a fresh audit if none has been
// run yet.
func (a *Auditor) Recommendations() []string {
	a.mu.Lock()
	last := a.last
	a.mu.Unlock()

	if last == nil {
		report := a.RunAudit()
		last = &report
	}

	var recs []string
	for _, check := range last.Checks {
		if check.Status != CheckPass && check.Recommendation != "" {
			recs = append(recs, check.Recommendation)
		}
	}
	return recs
}

// FormatReport renders a report as a human-readable multi-line string.
func FormatReport(report Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Security Audit Report (%s)\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(&b, "Overall status: %s\n\n", report.Overall)

	passed, warned, failed := 0, 0, 0
	for _, check := range report.Checks {
		marker := "PASS"
		switch check.Status {
		case CheckWarn:
			marker = "WARN"
			warned++
		case CheckFail:
			marker = "FAIL"
			failed++
		default:
			passed++
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", marker, check.Name, check.Detail)
		if check.Recommendation != "" {
			fmt.Fprintf(&b, "       -> %s\n", check.Recommendation)
		}
	}

	fmt.Fprintf(&b, "\n%d passed, %d warnings, %d failures\n", passed, warned, failed)
	return b.String()
}
