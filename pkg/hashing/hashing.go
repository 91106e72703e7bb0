// Package hashing provides the non-cryptographic content fingerprints used to
// drive deduplication decisions: a fringe fingerprint over the first and last
// regions of a file and a full fingerprint over its entire contents. Both are
// 128-bit XXH3 values. These fingerprints are identity oracles for trusted
// inputs only; they make no cryptographic collision-resistance claims.
package hashing

import (
	"encoding/binary"
	"encoding/hex"
)

const (
	// FringeWindowSize is the number of bytes read from each end of a file
	// when computing its fringe fingerprint.
	FringeWindowSize = 64 * 1024
	// fullChunkSize is the buffer size used for streaming full-content
	// fingerprint computation.
	fullChunkSize = 256 * 1024
)

// FingerprintSize is the size of a fingerprint in bytes.
const FingerprintSize = 16

// Fingerprint is a 128-bit content fingerprint. It is stored and compared as
// an opaque byte string.
type Fingerprint [FingerprintSize]byte

// Hex returns the lowercase hexadecimal encoding of the fingerprint.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

// Hasher is the capability set required by the deduplication pipeline. It is
// abstracted so that tests can substitute in-memory implementations.
type Hasher interface {
	// Fringe computes the fringe fingerprint of the file at the specified
	// path, covering the first and last FringeWindowSize bytes of the file
	// (without double-counting any byte if the two regions overlap) and the
	// file's size.
	Fringe(path string, size uint64) (Fingerprint, error)
	// Full computes the full-content fingerprint of the file at the specified
	// path. The size argument is the size observed when the file was first
	// probed; Full fails if the file yields fewer bytes than that.
	Full(path string, size uint64) (Fingerprint, error)
}

// appendSize appends the 64-bit file size to the hashed stream in big-endian
// byte order so that distinct sizes with identical fringe bytes produce
// distinct fingerprints.
func appendSize(write func([]byte) (int, error), size uint64) error {
	var encoded [8]byte
	binary.BigEndian.PutUint64(encoded[:], size)
	_, err := write(encoded[:])
	return err
}
