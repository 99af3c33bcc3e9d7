// Package signing computes the HMAC-SHA256 signatures carried in the
// X-Webhook-Signature header.
//
// Receivers verify a delivery by recomputing the signature over the exact
// raw bytes of the request body with the shared secret and comparing in
// constant time, as Verify does.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign returns the lowercase hex HMAC-SHA256 of payload under secret.
// Deterministic: identical inputs always produce the same 64-character
// string.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches payload under secret, using a
// constant-time comparison.
func Verify(secret string, payload []byte, signature string) bool {
	expected := Sign(secret, payload)
	return hmac.Equal([]byte(expected), []byte(signature))
}
