package security

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/aquaflow/sessionguard/internal/util"
)

// maskedIdentifier is the fixed-width replacement for identifiers that are too
// short or too sensitive to keep a readable prefix of.
const maskedIdentifier = "********"

// MaskEmail irreversibly masks an email address for storage in logs.
// The local part is reduced to its first two characters; the domain is kept
// so that masked values remain useful for correlation.
//
// Example:
//
//	MaskEmail("customer@example.com") // Returns: "cu***@example.com"
func MaskEmail(email string) string {
	at := strings.Index(email, "@")
	if at <= 0 {
		return MaskIdentifier(email)
	}
	return util.SafeTruncate(email[:at], 2) + "***@" + email[at+1:]
}

// MaskIdentifier reduces an opaque identifier to a fixed-width mask string.
// Unlike MaskEmail it keeps no readable prefix at all; use it for short
// handles, phone numbers, and anything without a safe structure.
func MaskIdentifier(identifier string) string {
	if identifier == "" {
		return "<empty>"
	}
	return maskedIdentifier
}

// HashForLogging creates a SHA256 hash of sensitive data for logging.
// The hash is stable, so repeated events for the same value correlate in
// logs without the value itself ever appearing.
func HashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
