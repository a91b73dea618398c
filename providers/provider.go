// Package providers defines the boundary to the external authentication
// provider that backs the session layer. The core never authenticates anyone
// itself; it consumes the provider's current state at startup, subscribes to
// its auth-state pushes, and forces a sign-out when it unilaterally
// invalidates a session.
package providers

import (
	"context"

	"golang.org/x/oauth2"
)

// ChangeType identifies an auth-state transition pushed by the provider.
type ChangeType string

const (
	// SignedIn is pushed when a principal authenticates
	SignedIn ChangeType = "SIGNED_IN"

	// SignedOut is pushed when the provider ends the principal's session
	SignedOut ChangeType = "SIGNED_OUT"

	// TokenRefreshed is pushed when the provider rotates the session token
	TokenRefreshed ChangeType = "TOKEN_REFRESHED"

	// UserUpdated is pushed when the principal's profile data changes
	UserUpdated ChangeType = "USER_UPDATED"
)

// State is the provider's view of the current principal, queried at startup.
type State struct {
	// UserID is the opaque identifier of the authenticated principal
	UserID string

	// Role is the principal's role as the provider knows it
	Role string

	// Token is the provider-issued token backing the session, if any
	Token *oauth2.Token
}

// AuthChange is one auth-state transition pushed by the provider.
// UserID and Role may be empty when the provider has no identity data for
// the transition; the session layer treats such notifications as no-ops.
type AuthChange struct {
	Type   ChangeType
	UserID string
	Role   string
	Token  *oauth2.Token
}

// Provider is the narrow contract the session layer needs from an external
// authentication provider.
type Provider interface {
	// Name returns the provider name (e.g., "supabase", "firebase", "mock")
	Name() string

	// CurrentState queries the provider's current session/identity.
	// Returns nil when no principal is signed in.
	CurrentState(ctx context.Context) (*State, error)

	// Subscribe registers a callback for auth-state pushes and returns an
	// unsubscribe function. The callback is invoked for every subsequent
	// AuthChange until unsubscribed.
	Subscribe(fn func(AuthChange)) (unsubscribe func())

	// SignOut forces the provider to end the current session. The session
	// layer calls this when it invalidates a session (idle timeout,
	// absolute expiry) so the provider's state stays consistent.
	SignOut(ctx context.Context) error
}
