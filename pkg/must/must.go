// Package must provides best-effort wrappers around operations whose errors
// can't be handled meaningfully at the call site (typically cleanup during an
// unwind) but shouldn't be silently discarded either. Each wrapper logs a
// warning on failure instead of returning an error.
package must

import (
	"io"
	"os"

	"github.com/vaultgate/vaultgate/pkg/logging"
)

// Close closes c, logging a warning on failure.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// Unlock unlocks locker, logging a warning on failure.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warnf("unable to unlock: %s", err.Error())
	}
}

// OSRemove removes the named file, logging a warning on failure.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}

// Sync calls Sync on f, logging a warning on failure.
func Sync(f interface{ Sync() error }, logger *logging.Logger) {
	if err := f.Sync(); err != nil {
		logger.Warnf("unable to sync: %s", err.Error())
	}
}
