package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/aquaflow/sessionguard/providers"
	"github.com/aquaflow/sessionguard/providers/mock"
	"github.com/aquaflow/sessionguard/security"
)

func newTestManager(t *testing.T, cfg Config, provider providers.Provider) (*Manager, *security.EventLog) {
	t.Helper()
	events := security.NewEventLog(slog.Default())
	m := NewManager(cfg, provider, events, slog.Default())
	t.Cleanup(m.Close)
	return m, events
}

// rewindActivity moves the current session's last activity back by d.
func rewindActivity(m *Manager, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.LastActivity = m.current.LastActivity.Add(-d)
	}
}

// rewindExpiry moves the current session's absolute deadline back by d.
func rewindExpiry(m *Manager, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.ExpiresAt = m.current.ExpiresAt.Add(-d)
	}
}

func signIn(t *testing.T, m *Manager, userID, role string) {
	t.Helper()
	err := m.HandleAuthChange(context.Background(), providers.AuthChange{
		Type:   providers.SignedIn,
		UserID: userID,
		Role:   role,
	})
	if err != nil {
		t.Fatalf("HandleAuthChange(SignedIn) error: %v", err)
	}
}

func TestManager_Defaults(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.New())

	cfg := m.GetConfig()
	if cfg.MaxIdleTime != DefaultMaxIdleTime {
		t.Errorf("MaxIdleTime = %v, want %v", cfg.MaxIdleTime, DefaultMaxIdleTime)
	}
	if cfg.MaxSessionDuration != DefaultMaxSessionDuration {
		t.Errorf("MaxSessionDuration = %v, want %v", cfg.MaxSessionDuration, DefaultMaxSessionDuration)
	}
	if cfg.CheckInterval != DefaultCheckInterval {
		t.Errorf("CheckInterval = %v, want %v", cfg.CheckInterval, DefaultCheckInterval)
	}
}

func TestManager_SignInSignOut(t *testing.T) {
	m, events := newTestManager(t, Config{}, mock.New())

	signIn(t, m, "u1", "customer")

	s := m.Current()
	if s == nil {
		t.Fatal("Current() = nil after sign-in")
	}
	if s.ID == "" || s.UserID != "u1" || s.Role != "customer" {
		t.Errorf("unexpected session: %+v", s)
	}
	if s.ExpiresAt.IsZero() {
		t.Error("ExpiresAt should be set from MaxSessionDuration")
	}
	if want := s.CreatedAt.Add(DefaultMaxSessionDuration); !s.ExpiresAt.Equal(want) {
		t.Errorf("ExpiresAt = %v, want CreatedAt + MaxSessionDuration = %v", s.ExpiresAt, want)
	}
	if !m.IsValid(context.Background()) {
		t.Error("fresh session should be valid")
	}

	if err := m.HandleAuthChange(context.Background(), providers.AuthChange{Type: providers.SignedOut}); err != nil {
		t.Fatalf("HandleAuthChange(SignedOut) error: %v", err)
	}

	if m.Current() != nil {
		t.Error("Current() should be nil after sign-out")
	}
	if m.IsValid(context.Background()) {
		t.Error("IsValid should be false after sign-out")
	}

	logouts := events.ByType(security.EventLogout)
	if len(logouts) != 1 {
		t.Fatalf("logout events = %d, want exactly 1", len(logouts))
	}
	if logouts[0].UserID != "u1" {
		t.Errorf("logout event UserID = %q, want u1", logouts[0].UserID)
	}
	if _, ok := logouts[0].Details["duration_ms"]; !ok {
		t.Error("logout event should carry duration_ms")
	}
}

func TestManager_SignedOutDoesNotCallProviderSignOut(t *testing.T) {
	provider := mock.New()
	m, _ := newTestManager(t, Config{}, provider)

	signIn(t, m, "u1", "customer")
	if err := m.HandleAuthChange(context.Background(), providers.AuthChange{Type: providers.SignedOut}); err != nil {
		t.Fatalf("HandleAuthChange error: %v", err)
	}

	// The provider initiated this sign-out; echoing it back would loop
	if got := provider.Calls("SignOut"); got != 0 {
		t.Errorf("provider SignOut calls = %d, want 0", got)
	}
}

func TestManager_IdleTimeout(t *testing.T) {
	provider := mock.New()
	m, events := newTestManager(t, Config{MaxIdleTime: time.Second}, provider)

	signIn(t, m, "u1", "customer")
	rewindActivity(m, 2*time.Second)

	if m.IsValid(context.Background()) {
		t.Error("idle session should be invalid")
	}
	if m.Current() != nil {
		t.Error("expired session should be cleared from the slot")
	}
	if got := provider.Calls("SignOut"); got != 1 {
		t.Errorf("provider SignOut calls = %d, want 1 after unilateral invalidation", got)
	}

	expiries := events.ByType(security.EventSessionExpired)
	if len(expiries) != 1 {
		t.Fatalf("session_expired events = %d, want 1", len(expiries))
	}
	if reason := expiries[0].Details["reason"]; reason != "idle" {
		t.Errorf("expiry reason = %v, want idle", reason)
	}
}

func TestManager_AbsoluteTimeout(t *testing.T) {
	m, events := newTestManager(t, Config{MaxSessionDuration: time.Hour}, mock.New())

	signIn(t, m, "u1", "customer")
	m.UpdateActivity() // activity does not rescue an absolutely expired session
	rewindExpiry(m, 2*time.Hour)

	if m.IsValid(context.Background()) {
		t.Error("absolutely expired session should be invalid")
	}

	expiries := events.ByType(security.EventSessionExpired)
	if len(expiries) != 1 {
		t.Fatalf("session_expired events = %d, want 1", len(expiries))
	}
	if reason := expiries[0].Details["reason"]; reason != "absolute" {
		t.Errorf("expiry reason = %v, want absolute", reason)
	}
}

func TestManager_ActivityExtendsSession(t *testing.T) {
	m, _ := newTestManager(t, Config{MaxIdleTime: time.Second}, mock.New())

	signIn(t, m, "u1", "customer")
	rewindActivity(m, 900*time.Millisecond)
	m.UpdateActivity()
	rewindActivity(m, 900*time.Millisecond)

	if !m.IsValid(context.Background()) {
		t.Error("session with refreshed activity should still be valid")
	}
}

func TestManager_IsValidWithoutSession(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.New())

	if m.IsValid(context.Background()) {
		t.Error("IsValid should be false with no session")
	}
}

func TestManager_ClearWithoutSession(t *testing.T) {
	provider := mock.New()
	m, events := newTestManager(t, Config{}, provider)

	if err := m.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}
	if got := provider.Calls("SignOut"); got != 0 {
		t.Errorf("provider SignOut calls = %d, want 0 for a no-op clear", got)
	}
	if got := len(events.All()); got != 0 {
		t.Errorf("events after no-op clear = %d, want 0", got)
	}
}

func TestManager_ClearSignsOutAtProvider(t *testing.T) {
	provider := mock.New()
	m, _ := newTestManager(t, Config{}, provider)

	signIn(t, m, "u1", "customer")
	if err := m.Clear(context.Background()); err != nil {
		t.Fatalf("Clear() error: %v", err)
	}

	if got := provider.Calls("SignOut"); got != 1 {
		t.Errorf("provider SignOut calls = %d, want 1", got)
	}
	if m.Current() != nil {
		t.Error("Current() should be nil after Clear")
	}
}

func TestManager_ClearSwallowsProviderError(t *testing.T) {
	provider := mock.New()
	provider.SignOutFunc = func(ctx context.Context) error {
		return errors.New("network down")
	}
	m, _ := newTestManager(t, Config{}, provider)

	signIn(t, m, "u1", "customer")
	if err := m.Clear(context.Background()); err != nil {
		t.Errorf("Clear() should swallow provider faults, got %v", err)
	}
	if m.Current() != nil {
		t.Error("local session should be cleared even when the provider fails")
	}
}

func TestManager_CurrentReturnsCopy(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.New())
	signIn(t, m, "u1", "customer")

	first := m.Current()
	first.UserID = "mutated"

	second := m.Current()
	if second.UserID != "u1" {
		t.Errorf("session mutated through a returned copy: %q", second.UserID)
	}
	if first == second {
		t.Error("Current() should return distinct copies")
	}
}

func TestManager_IdentityLessSignInIgnored(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.New())

	err := m.HandleAuthChange(context.Background(), providers.AuthChange{Type: providers.SignedIn})
	if err != nil {
		t.Fatalf("HandleAuthChange error: %v", err)
	}
	if m.Current() != nil {
		t.Error("sign-in without identity data should not create a session")
	}
}

func TestManager_TokenRefreshedEmitsEvent(t *testing.T) {
	m, events := newTestManager(t, Config{}, mock.New())

	signIn(t, m, "u1", "customer")
	err := m.HandleAuthChange(context.Background(), providers.AuthChange{
		Type:   providers.TokenRefreshed,
		UserID: "u1",
		Role:   "customer",
	})
	if err != nil {
		t.Fatalf("HandleAuthChange error: %v", err)
	}

	if got := len(events.ByType(security.EventSessionRefreshed)); got != 1 {
		t.Errorf("session_refreshed events = %d, want 1", got)
	}
	if m.Current() == nil {
		t.Error("refresh should leave an active session")
	}
}

func TestManager_UserUpdatedTouchesActivity(t *testing.T) {
	m, _ := newTestManager(t, Config{MaxIdleTime: time.Second}, mock.New())

	signIn(t, m, "u1", "customer")
	rewindActivity(m, 900*time.Millisecond)

	err := m.HandleAuthChange(context.Background(), providers.AuthChange{Type: providers.UserUpdated})
	if err != nil {
		t.Fatalf("HandleAuthChange error: %v", err)
	}

	rewindActivity(m, 900*time.Millisecond)
	if !m.IsValid(context.Background()) {
		t.Error("profile update should count as activity")
	}
}

func TestManager_InitializeHydrates(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.WithState("u1", "customer"))

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	s := m.Current()
	if s == nil || s.UserID != "u1" || s.Role != "customer" {
		t.Fatalf("hydrated session = %+v, want u1/customer", s)
	}
}

func TestManager_InitializeSwallowsProviderError(t *testing.T) {
	provider := mock.New()
	provider.CurrentStateFunc = func(ctx context.Context) (*providers.State, error) {
		return nil, errors.New("provider unavailable")
	}
	m, _ := newTestManager(t, Config{}, provider)

	if err := m.Initialize(context.Background()); err != nil {
		t.Errorf("Initialize() should swallow provider faults, got %v", err)
	}
	if m.Current() != nil {
		t.Error("failed hydration should leave no session")
	}
}

func TestManager_InitializeSubscribesOnce(t *testing.T) {
	provider := mock.New()
	m, _ := newTestManager(t, Config{}, provider)

	for i := 0; i < 3; i++ {
		if err := m.Initialize(context.Background()); err != nil {
			t.Fatalf("Initialize() error: %v", err)
		}
	}
	if got := provider.Calls("Subscribe"); got != 1 {
		t.Errorf("Subscribe calls = %d, want 1", got)
	}
}

func TestManager_ProviderPushDrivesSession(t *testing.T) {
	provider := mock.New()
	m, _ := newTestManager(t, Config{}, provider)

	if err := m.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error: %v", err)
	}

	provider.Push(providers.AuthChange{Type: providers.SignedIn, UserID: "u1", Role: "driver"})
	if s := m.Current(); s == nil || s.Role != "driver" {
		t.Fatalf("session after push = %+v, want driver", s)
	}

	provider.Push(providers.AuthChange{Type: providers.SignedOut})
	if m.Current() != nil {
		t.Error("session should be gone after a signed-out push")
	}
}

func TestManager_LivenessCheckExpiresIdleSession(t *testing.T) {
	provider := mock.New()
	m, events := newTestManager(t, Config{
		MaxIdleTime:   10 * time.Millisecond,
		CheckInterval: 20 * time.Millisecond,
	}, provider)

	signIn(t, m, "u1", "customer")

	// The periodic check alone must end the session; no IsValid call here
	deadline := time.Now().Add(time.Second)
	for m.Current() != nil && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if m.Current() != nil {
		t.Fatal("liveness check should have expired the idle session")
	}
	if got := len(events.ByType(security.EventSessionExpired)); got != 1 {
		t.Errorf("session_expired events = %d, want 1", got)
	}
	if got := provider.Calls("SignOut"); got != 1 {
		t.Errorf("provider SignOut calls = %d, want 1", got)
	}
}

func TestManager_NewSessionReplacesOld(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.New())

	signIn(t, m, "u1", "customer")
	firstID := m.Current().ID
	signIn(t, m, "u2", "driver")

	s := m.Current()
	if s.UserID != "u2" || s.Role != "driver" {
		t.Errorf("current session = %+v, want u2/driver", s)
	}
	if s.ID == firstID {
		t.Error("a new sign-in should mint a new session ID")
	}
}

func TestManager_SetConfig(t *testing.T) {
	m, _ := newTestManager(t, Config{}, mock.New())

	m.SetConfig(Config{MaxIdleTime: 5 * time.Minute})

	cfg := m.GetConfig()
	if cfg.MaxIdleTime != 5*time.Minute {
		t.Errorf("MaxIdleTime = %v, want 5m", cfg.MaxIdleTime)
	}
	// Unset fields keep their previous values
	if cfg.MaxSessionDuration != DefaultMaxSessionDuration {
		t.Errorf("MaxSessionDuration = %v, want %v", cfg.MaxSessionDuration, DefaultMaxSessionDuration)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	m := NewManager(Config{}, mock.New(), nil, slog.Default())
	signIn(t, m, "u1", "customer")

	m.Close()
	m.Close()

	// Closing stops enforcement but does not end the session locally
	if m.Current() == nil {
		t.Error("Close should not clear the session slot")
	}
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()
	merged := base.merge(Config{CheckInterval: time.Second})

	if merged.CheckInterval != time.Second {
		t.Errorf("CheckInterval = %v, want 1s", merged.CheckInterval)
	}
	if merged.MaxIdleTime != base.MaxIdleTime {
		t.Errorf("MaxIdleTime = %v, want unchanged %v", merged.MaxIdleTime, base.MaxIdleTime)
	}
}
