package hashing

import (
	"fmt"
	"io"
	"os"

	"github.com/zeebo/xxh3"
)

// XXH3 is the production Hasher implementation, backed by the 128-bit variant
// of the XXH3 hash family.
type XXH3 struct {
	// hddMode indicates whether or not fringe reads should be performed as a
	// single contiguous read from the start of the file rather than as two
	// seeks to its ends. Fingerprints produced in the two modes are not
	// interchangeable for files larger than twice the fringe window.
	hddMode bool
}

// NewXXH3 creates a new XXH3 hasher. If hddMode is true, fringe fingerprints
// are computed from a single contiguous read of the first 2*FringeWindowSize
// bytes, an access pattern better suited to rotational media.
func NewXXH3(hddMode bool) *XXH3 {
	return &XXH3{hddMode: hddMode}
}

// Fringe implements Hasher.Fringe.
func (h *XXH3) Fringe(path string, size uint64) (Fingerprint, error) {
	// Open the file for reading and defer its closure.
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("unable to open file: %w", err)
	}
	defer file.Close()

	// Create the fingerprint state.
	state := xxh3.New()

	// Feed the fringe regions. If the file fits within the combined window
	// (which is also the only case in both read strategies where the two
	// regions could overlap), read the entire file once in order, so that no
	// byte is double-counted. Otherwise read the first window and then the
	// last window.
	window := uint64(FringeWindowSize)
	if size <= 2*window || h.hddMode {
		// In HDD mode, larger files are still read as a single contiguous
		// region of 2*FringeWindowSize bytes from the start of the file.
		limit := size
		if limit > 2*window {
			limit = 2 * window
		}
		if _, err := io.Copy(state, io.LimitReader(file, int64(limit))); err != nil {
			return Fingerprint{}, fmt.Errorf("unable to read fringe region: %w", err)
		}
	} else {
		if _, err := io.Copy(state, io.LimitReader(file, int64(window))); err != nil {
			return Fingerprint{}, fmt.Errorf("unable to read leading fringe region: %w", err)
		}
		if _, err := file.Seek(int64(size-window), io.SeekStart); err != nil {
			return Fingerprint{}, fmt.Errorf("unable to seek to trailing fringe region: %w", err)
		}
		if _, err := io.Copy(state, io.LimitReader(file, int64(window))); err != nil {
			return Fingerprint{}, fmt.Errorf("unable to read trailing fringe region: %w", err)
		}
	}

	// Mix in the file size.
	if err := appendSize(state.Write, size); err != nil {
		return Fingerprint{}, fmt.Errorf("unable to hash file size: %w", err)
	}

	// Done.
	return Fingerprint(state.Sum128().Bytes()), nil
}

// Full implements Hasher.Full.
func (h *XXH3) Full(path string, size uint64) (Fingerprint, error) {
	// Open the file for reading and defer its closure.
	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("unable to open file: %w", err)
	}
	defer file.Close()

	// Stream the file contents through the fingerprint state in fixed-size
	// chunks, tracking the total number of bytes consumed.
	state := xxh3.New()
	buffer := make([]byte, fullChunkSize)
	copied, err := io.CopyBuffer(state, file, buffer)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("unable to read file contents: %w", err)
	}

	// If the file yielded fewer bytes than originally observed, then it was
	// truncated mid-read and the fingerprint doesn't describe the observed
	// file.
	if uint64(copied) < size {
		return Fingerprint{}, fmt.Errorf(
			"file truncated during read: read %d of %d bytes", copied, size,
		)
	}

	// Done.
	return Fingerprint(state.Sum128().Bytes()), nil
}
