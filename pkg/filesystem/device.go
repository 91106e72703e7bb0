//go:build !windows

package filesystem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// DeviceID returns the filesystem device identifier for the specified path.
// It is used to reject cross-device moves before any link is attempted.
func DeviceID(path string) (uint64, error) {
	var metadata unix.Stat_t
	if err := unix.Stat(path, &metadata); err != nil {
		return 0, fmt.Errorf("unable to probe filesystem device: %w", err)
	}
	return uint64(metadata.Dev), nil
}
