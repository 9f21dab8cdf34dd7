// Package services – request fingerprinting
//
// A fingerprint is a deterministic SHA-256 digest over a canonical
// serialization of a mutating request's method and raw body. It is an
// opaque comparison token: two requests with equal fingerprints are
// considered the same logical operation, and a key reused with a different
// fingerprint is a conflict. Header order, timestamps, and anything outside
// the body text never influence the digest.
package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// fingerprintPayload fixes the canonical serialization: a two-field JSON
// object whose key order is stable because struct fields marshal in
// declaration order.
type fingerprintPayload struct {
	Method string `json:"method"`
	Body   string `json:"body"`
}

// RequestFingerprint returns the hex SHA-256 digest of {method, body} with
// the method uppercased. Identical inputs always produce identical digests.
func RequestFingerprint(method, body string) string {
	raw, _ := json.Marshal(fingerprintPayload{
		Method: strings.ToUpper(method),
		Body:   body,
	})
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
