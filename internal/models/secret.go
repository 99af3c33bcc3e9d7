package models

import (
	"crypto/rand"
	"encoding/hex"
)

// SecretBytes is the entropy of a generated endpoint secret. Hex encoding
// makes the stored secret twice this length.
const SecretBytes = 32

// NewSecret returns a fresh signing secret: 32 random bytes, hex-encoded.
func NewSecret() string {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		panic("models: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}
