//go:build !windows && !plan9

package locking

import (
	"golang.org/x/sys/unix"
)

// Lock attempts to acquire the file lock. Locks are advisory and attach to
// the open file description (flock semantics), so a second Locker conflicts
// even within the same process.
func (l *Locker) Lock(block bool) error {
	operation := unix.LOCK_EX
	if !block {
		operation |= unix.LOCK_NB
	}
	if err := unix.Flock(int(l.file.Fd()), operation); err != nil {
		return err
	}
	l.held = true
	return nil
}

// Unlock releases the file lock.
func (l *Locker) Unlock() error {
	if err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN); err != nil {
		return err
	}
	l.held = false
	return nil
}
