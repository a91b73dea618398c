// Package instrumentation provides OpenTelemetry (OTEL) instrumentation for the
// sessionguard library.
//
// When instrumentation is disabled (or no providers are injected), no-op
// providers are used so the policy components carry zero observability
// overhead. Components record metrics nil-safely: a missing Metrics holder
// never affects correctness.
//
// # Quick Start
//
//	inst, err := instrumentation.New(instrumentation.Config{
//		ServiceName:    "my-app",
//		ServiceVersion: "1.0.0",
//		Enabled:        true,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer inst.Shutdown(context.Background())
//
//	guard, err := sessionguard.New(sessionguard.Config{
//		Provider:        provider,
//		Instrumentation: inst,
//	})
//
// # Available Metrics
//
// Rate limiting:
//   - guard.rate_limit.denied{action} - Attempts denied by the rate limiter
//
// Security events:
//   - guard.security.events.total{type, severity} - Security events recorded
//   - guard.security.patterns.detected{pattern} - Anomaly patterns detected
//
// Sessions:
//   - guard.session.started - Sessions created
//   - guard.session.ended{reason} - Sessions ended (logout, idle, absolute)
//   - guard.session.duration - Session duration in seconds
package instrumentation
