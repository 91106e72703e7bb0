// Package walk provides the deterministic directory traversal used to feed
// candidate paths to the deduplication pipeline: lexicographic order within
// each directory, directories before their children in recursive mode. It
// implements no filtering policy; every entry it yields is a candidate.
package walk

import (
	"fmt"
	"os"
	"path/filepath"
)

// Walk invokes the specified callback for every regular file under root, in
// lexicographic order within each directory. If recursive is true,
// subdirectories are descended into at the point they're encountered, so a
// directory's path always precedes its children's. Non-regular entries are
// skipped silently. A callback error stops the traversal and is returned
// verbatim.
func Walk(root string, recursive bool, visit func(path string) error) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		return fmt.Errorf("unable to read directory: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(root, entry.Name())
		if entry.IsDir() {
			if recursive {
				if err := Walk(path, true, visit); err != nil {
					return err
				}
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := visit(path); err != nil {
			return err
		}
	}
	return nil
}
