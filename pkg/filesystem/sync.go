package filesystem

import (
	"fmt"
	"os"
)

// SyncDirectory flushes a directory's entry list to persistent storage. It is
// used to make link creation and removal durable before dependent operations
// proceed.
func SyncDirectory(path string) error {
	directory, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open directory: %w", err)
	}
	defer directory.Close()
	if err := directory.Sync(); err != nil {
		return fmt.Errorf("unable to sync directory: %w", err)
	}
	return nil
}
