// Package mock provides a mock implementation of the Provider interface for
// testing.
package mock

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/aquaflow/sessionguard/providers"
)

// Provider is a mock implementation of providers.Provider for testing.
// Override the Func fields to customize behavior; use Push to simulate
// auth-state pushes to subscribers.
type Provider struct {
	// NameFunc is called when Name() is invoked
	NameFunc func() string

	// CurrentStateFunc is called when CurrentState() is invoked
	CurrentStateFunc func(ctx context.Context) (*providers.State, error)

	// SignOutFunc is called when SignOut() is invoked
	SignOutFunc func(ctx context.Context) error

	// CallCounts tracks how many times each method was called
	CallCounts map[string]int

	mu          sync.RWMutex
	subscribers map[int]func(providers.AuthChange)
	nextSubID   int
}

// New creates a mock provider with default implementations: no current
// principal, sign-out always succeeds.
func New() *Provider {
	return &Provider{
		CallCounts:  make(map[string]int),
		subscribers: make(map[int]func(providers.AuthChange)),
		NameFunc: func() string {
			return "mock"
		},
		CurrentStateFunc: func(ctx context.Context) (*providers.State, error) {
			return nil, nil
		},
		SignOutFunc: func(ctx context.Context) error {
			return nil
		},
	}
}

// WithState returns a mock provider whose CurrentState reports the given
// signed-in principal.
func WithState(userID, role string) *Provider {
	p := New()
	p.CurrentStateFunc = func(ctx context.Context) (*providers.State, error) {
		return &providers.State{
			UserID: userID,
			Role:   role,
			Token:  &oauth2.Token{AccessToken: "mock-access-token", TokenType: "Bearer"},
		}, nil
	}
	return p
}

// Name implements providers.Provider
func (p *Provider) Name() string {
	p.recordCall("Name")
	return p.NameFunc()
}

// CurrentState implements providers.Provider
func (p *Provider) CurrentState(ctx context.Context) (*providers.State, error) {
	p.recordCall("CurrentState")
	return p.CurrentStateFunc(ctx)
}

// SignOut implements providers.Provider
func (p *Provider) SignOut(ctx context.Context) error {
	p.recordCall("SignOut")
	return p.SignOutFunc(ctx)
}

// Subscribe implements providers.Provider
func (p *Provider) Subscribe(fn func(providers.AuthChange)) func() {
	p.recordCall("Subscribe")

	p.mu.Lock()
	id := p.nextSubID
	p.nextSubID++
	p.subscribers[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.subscribers, id)
		p.mu.Unlock()
	}
}

// Push delivers an auth change to every current subscriber. Test helper.
func (p *Provider) Push(change providers.AuthChange) {
	p.mu.RLock()
	fns := make([]func(providers.AuthChange), 0, len(p.subscribers))
	for _, fn := range p.subscribers {
		fns = append(fns, fn)
	}
	p.mu.RUnlock()

	for _, fn := range fns {
		fn(change)
	}
}

// Calls returns how many times the named method was invoked.
func (p *Provider) Calls(method string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.CallCounts[method]
}

func (p *Provider) recordCall(method string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCounts[method]++
}
