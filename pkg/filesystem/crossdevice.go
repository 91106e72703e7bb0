//go:build !windows

package filesystem

import (
	"os"
	"syscall"
)

// IsCrossDeviceError checks whether or not an error returned by os.Link or
// os.Rename is due to an attempted operation across filesystem devices.
func IsCrossDeviceError(err error) bool {
	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return false
	}
	return linkErr.Err == syscall.EXDEV
}
