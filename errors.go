package sessionguard

import "fmt"

// Policy error codes as constants
const (
	ErrorCodeInvalidConfig  = "invalid_config"
	ErrorCodeProviderError  = "provider_error"
	ErrorCodeNotInitialized = "not_initialized"
)

// PolicyError represents a configuration or collaborator failure surfaced by
// the guard. Policy outcomes (rate exceeded, session expired, patterns
// detected) are never errors; they are reported through return values and
// emitted events.
type PolicyError struct {
	Code        string // error code (e.g., "invalid_config")
	Description string // human-readable error description
}

// Error implements the error interface
func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewPolicyError creates a new policy error
func NewPolicyError(code, description string) *PolicyError {
	return &PolicyError{
		Code:        code,
		Description: description,
	}
}

// Common policy errors as reusable constructors
var (
	// ErrInvalidConfig indicates the guard configuration is unusable
	ErrInvalidConfig = func(desc string) *PolicyError {
		return NewPolicyError(ErrorCodeInvalidConfig, desc)
	}

	// ErrProviderError indicates the external auth provider failed
	ErrProviderError = func(desc string) *PolicyError {
		return NewPolicyError(ErrorCodeProviderError, desc)
	}

	// ErrNotInitialized indicates an operation that requires Initialize first
	ErrNotInitialized = func(desc string) *PolicyError {
		return NewPolicyError(ErrorCodeNotInitialized, desc)
	}
)
