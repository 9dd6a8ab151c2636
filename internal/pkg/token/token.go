package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// codeBytes is the entropy of a scan code: 256 bits.
const codeBytes = 32

// NewScanCode generates a cryptographically random, URL-safe scan code.
// Codes are opaque and carry no sequence, so they cannot be enumerated.
func NewScanCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate scan code: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
