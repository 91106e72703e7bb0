package vault

import (
	"fmt"
)

// CrossDeviceError indicates that a move was rejected because the source and
// the vault reside on different filesystem devices. Cross-device moves are
// rejected by design.
type CrossDeviceError struct {
	// Source is the path that was being moved.
	Source string
	// Destination is the vault path that was being moved to.
	Destination string
}

// Error implements error.Error.
func (e *CrossDeviceError) Error() string {
	return fmt.Sprintf("source %s and vault destination %s are on different filesystem devices", e.Source, e.Destination)
}

// DestinationExistsError indicates that the chosen vault path already exists
// on disk. Destinations are never overwritten.
type DestinationExistsError struct {
	// Destination is the colliding vault path.
	Destination string
}

// Error implements error.Error.
func (e *DestinationExistsError) Error() string {
	return fmt.Sprintf("vault destination already exists: %s", e.Destination)
}

// DatabaseUnavailableError indicates that the index store became unwritable
// during a move; the session should terminate. When the failure follows the
// link into the vault, the vault copy is appended (best-effort) to the
// emergency log for manual recovery. When recording the move intent fails,
// no link has been made and no emergency record is written.
type DatabaseUnavailableError struct {
	// Underlying is the store error that triggered the failure.
	Underlying error
}

// Error implements error.Error.
func (e *DatabaseUnavailableError) Error() string {
	return fmt.Sprintf("index store unavailable during move: %v", e.Underlying)
}

// Unwrap supports error chain inspection.
func (e *DatabaseUnavailableError) Unwrap() error {
	return e.Underlying
}
