// Package random provides cryptographically random byte generation used for
// non-content-derived vault identifiers.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// IDByteLength is the number of random bytes used for a fresh vault
// identifier, chosen to match the 16-byte (32 hex character) width of a
// full-content fingerprint so that tier-1/tier-2 uniques and tier-3 uniques
// share the same destination path shape.
const IDByteLength = 16

// New returns a byte slice of the specified length with cryptographically
// random contents.
func New(length int) ([]byte, error) {
	// Create the buffer.
	result := make([]byte, length)

	// Read random data.
	if _, err := rand.Read(result); err != nil {
		return nil, fmt.Errorf("unable to read random data: %w", err)
	}

	// Success.
	return result, nil
}

// HexID generates a fresh IDByteLength-byte random value and returns it
// lowercase-hex-encoded.
func HexID() (string, error) {
	raw, err := New(IDByteLength)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
