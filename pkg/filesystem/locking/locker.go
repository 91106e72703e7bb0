// Package locking provides advisory exclusive file locking used to ensure
// that only one session ever holds a given database file open for mutation.
package locking

import (
	"fmt"
	"os"
)

// Locker provides file locking facilities.
type Locker struct {
	// file is the underlying file object to be locked.
	file *os.File
	// held indicates whether or not the lock is currently held.
	held bool
}

// NewLocker attempts to create a lock with the file at the specified path,
// creating the file if necessary. The lock is returned in an unlocked state.
func NewLocker(path string, permissions os.FileMode) (*Locker, error) {
	mode := os.O_RDWR | os.O_CREATE
	file, err := os.OpenFile(path, mode, permissions)
	if err != nil {
		return nil, fmt.Errorf("unable to open lock file: %w", err)
	}
	return &Locker{file: file}, nil
}

// Held reports whether the lock is currently held by this Locker.
func (l *Locker) Held() bool {
	return l.held
}

// Close closes the underlying lock file. It does not release the lock; call
// Unlock first if the lock is held.
func (l *Locker) Close() error {
	return l.file.Close()
}
