package locking

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestLockerFailOnDirectory tests that a locker creation fails for a directory.
func TestLockerFailOnDirectory(t *testing.T) {
	if _, err := NewLocker(t.TempDir(), 0600); err == nil {
		t.Fatal("creating a locker on a directory path succeeded")
	}
}

// TestLockerCycle tests the lifecycle of a Locker.
func TestLockerCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	locker, err := NewLocker(path, 0600)
	if err != nil {
		t.Fatal("unable to create locker:", err)
	}

	if locker.Held() {
		t.Error("lock incorrectly reported as held before acquisition")
	}

	if err := locker.Lock(true); err != nil {
		t.Fatal("unable to acquire lock:", err)
	}

	if !locker.Held() {
		t.Error("lock incorrectly reported as unheld")
	}

	if err := locker.Unlock(); err != nil {
		t.Fatal("unable to release lock:", err)
	}

	if locker.Held() {
		t.Error("lock incorrectly reported as held after release")
	}

	if err := locker.Close(); err != nil {
		t.Fatal("unable to close locker:", err)
	}
}

// TestLockDuplicateFail tests that a second Locker on the same file fails to
// acquire a non-blocking lock while the first holds it.
func TestLockDuplicateFail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")

	first, err := NewLocker(path, 0600)
	if err != nil {
		t.Fatal("unable to create first locker:", err)
	}
	defer first.Close()
	if err := first.Lock(true); err != nil {
		t.Fatal("unable to acquire first lock:", err)
	}
	defer first.Unlock()

	second, err := NewLocker(path, 0600)
	if err != nil {
		t.Fatal("unable to create second locker:", err)
	}
	defer second.Close()

	if err := second.Lock(false); err == nil {
		second.Unlock()
		t.Fatal("second non-blocking lock acquisition succeeded unexpectedly")
	}
}

// TestLockerMissingParentFails verifies that locker creation fails cleanly
// when the parent directory doesn't exist.
func TestLockerMissingParentFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "lock")
	if _, err := NewLocker(path, 0600); err == nil {
		t.Fatal("creating a locker with a missing parent directory succeeded")
	} else if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected a not-exist error, got:", err)
	}
}
