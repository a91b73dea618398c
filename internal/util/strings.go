// Package util provides common utility functions used across the sessionguard
// library. These utilities handle string manipulation and other shared
// operations that don't fit into domain-specific packages.
package util

import "strings"

// SafeTruncate safely truncates a string to maxLen characters without panicking.
// Returns the original string if it's shorter than maxLen, otherwise returns
// the first maxLen characters. This prevents index out of bounds errors when
// masking identifiers, where only a prefix should be kept.
//
// If maxLen is negative, it's treated as 0 and returns an empty string.
//
// Example:
//
//	SafeTruncate("customer@example.com", 2) // Returns: "cu"
//	SafeTruncate("a", 2)                    // Returns: "a"
//	SafeTruncate("test", -1)                // Returns: ""
func SafeTruncate(s string, maxLen int) string {
	if maxLen < 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// NormalizeAction normalizes a rate limit action name for use as a map key.
// Action names are compared case-insensitively and without surrounding
// whitespace so "Login" and "login " address the same budget.
func NormalizeAction(action string) string {
	return strings.ToLower(strings.TrimSpace(action))
}
