package filesystem

import (
	"path/filepath"
	"strings"
)

// DeviceID returns a stand-in filesystem device identifier for the specified
// path. Windows has no inexpensive device id probe, so the volume name is
// folded into a comparable value; link failures across volumes are still
// caught by IsCrossDeviceError.
func DeviceID(path string) (uint64, error) {
	absolute, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	volume := strings.ToLower(filepath.VolumeName(absolute))
	var id uint64
	for _, r := range volume {
		id = id*31 + uint64(r)
	}
	return id, nil
}
