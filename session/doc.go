// Package session tracks the single active logical session per process and
// enforces idle-timeout and absolute-expiry policy.
//
// The Manager owns one session slot. An external authentication provider
// drives the state machine through HandleAuthChange (signed-in, signed-out,
// token-refreshed, user-updated); a periodic liveness check and IsValid both
// evaluate the idle and absolute expiry policies, clearing the session and
// emitting a security event when either is exceeded. When the manager
// invalidates a session unilaterally it also forces a provider sign-out so
// the provider's own state stays consistent.
//
// All accessors return defensive copies; callers can never mutate the live
// session record.
package session
