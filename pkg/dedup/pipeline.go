package dedup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vaultgate/vaultgate/pkg/hashing"
	"github.com/vaultgate/vaultgate/pkg/logging"
	"github.com/vaultgate/vaultgate/pkg/random"
	"github.com/vaultgate/vaultgate/pkg/store"
	"github.com/vaultgate/vaultgate/pkg/vault"
)

// Mover is the capability required of the move engine by the pipeline. It is
// abstracted so that tests can substitute implementations.
type Mover interface {
	// Move relocates the file at source to the vault path derived from the
	// specified identifier and filename suffix, returning the destination
	// path.
	Move(source, identifier, suffix string, size uint64) (string, error)
	// Root returns the vault root directory.
	Root() string
}

// Pipeline drives the per-file decision procedure. Exactly one decision is in
// flight at any time; the pipeline performs no internal concurrency.
type Pipeline struct {
	// store is the index store.
	store *store.Store
	// hasher computes content fingerprints.
	hasher hashing.Hasher
	// mover relocates admitted files. A nil mover puts the pipeline in
	// read-only mode: indices are still updated, but files stay in place.
	mover Mover
	// logger is the pipeline's logger.
	logger *logging.Logger
}

// NewPipeline creates a decision pipeline over the specified store, hasher,
// and mover. The mover may be nil for read-only (indices-only) operation.
func NewPipeline(st *store.Store, hasher hashing.Hasher, mover Mover, logger *logging.Logger) *Pipeline {
	return &Pipeline{
		store:  st,
		hasher: hasher,
		mover:  mover,
		logger: logger,
	}
}

// insideRoot checks whether or not a path lies inside the specified root
// directory. Both paths must be absolute.
func insideRoot(path, root string) bool {
	relative, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return relative != ".." && !strings.HasPrefix(relative, ".."+string(filepath.Separator))
}

// skipped constructs a skip decision for the specified path, tier, and cause.
func skipped(path string, tier int, cause error) Decision {
	return Decision{
		Result:       ResultSkipped,
		Tier:         tier,
		OriginalPath: path,
		Err:          cause,
	}
}

// Process runs the four-tier decision procedure for a single file. The
// returned error is session-fatal (index store unavailability); all per-file
// failures are reported as skip decisions instead, and processing may
// continue with the next file.
func (p *Pipeline) Process(path string) (Decision, error) {
	// Work with absolute paths throughout: index rows, journal rows, and
	// decision records all carry them.
	if absolute, err := filepath.Abs(path); err != nil {
		return skipped(path, 0, fmt.Errorf("unable to resolve path: %w", err)), nil
	} else {
		path = absolute
	}

	// Tier 0: probe metadata. Stat failures and empty files are skipped; size
	// zero is never admitted under any condition.
	metadata, err := os.Stat(path)
	if err != nil {
		return skipped(path, 0, fmt.Errorf("unable to probe file: %w", err)), nil
	}
	if !metadata.Mode().IsRegular() {
		return skipped(path, 0, errors.New("not a regular file")), nil
	}
	size := uint64(metadata.Size())
	if size == 0 {
		return skipped(path, 0, errors.New("empty")), nil
	}

	// Tier 1: an unseen size proves uniqueness without reading any content.
	seen, err := p.store.SizeSeen(size)
	if err != nil {
		return skipped(path, 1, err), err
	}
	if !seen {
		return p.admit(path, size, 1, hashing.Fingerprint{}, hashing.Fingerprint{})
	}

	// Tier 2: an unseen (fringe, size) pair proves uniqueness from the file's
	// end regions alone. A hit is not a duplicate signal; it merely forces
	// tier 3.
	fringe, err := p.hasher.Fringe(path, size)
	if err != nil {
		return skipped(path, 2, err), nil
	}
	collision, err := p.store.FringeLookup(fringe, size)
	if err != nil {
		return skipped(path, 2, err), err
	}
	if collision == "" {
		return p.admit(path, size, 2, fringe, hashing.Fingerprint{})
	}

	// Tier 3: the full-content index is the sole duplicate oracle. The whole
	// file is read even if the fringe collision path no longer exists on
	// disk.
	full, err := p.hasher.Full(path, size)
	if err != nil {
		return skipped(path, 3, err), nil
	}
	original, err := p.store.FullLookup(full)
	if err != nil {
		return skipped(path, 3, err), err
	}
	if original != "" {
		// In active mode the canonical path always lives inside the vault, so
		// a hit naming the presented path itself means this file is its own
		// vault copy: re-scanning the vault is a no-op rather than a sea of
		// self-duplicates.
		if p.mover != nil && original == path {
			return Decision{
				Result:       ResultUnique,
				Tier:         3,
				OriginalPath: path,
				StoredPath:   path,
			}, nil
		}
		return Decision{
			Result:       ResultDuplicate,
			Tier:         3,
			OriginalPath: path,
			DuplicateOf:  original,
		}, nil
	}
	return p.admit(path, size, 3, fringe, full)
}

// admit finalizes a unique decision at the specified tier: it relocates the
// file (in active mode), then commits all index mutations for the decision in
// a single transaction. Index writes happen strictly after the move has
// completed.
func (p *Pipeline) admit(path string, size uint64, tier int, fringe, full hashing.Fingerprint) (Decision, error) {
	// Determine the stored path. In read-only mode the file stays in place,
	// and a file that already lives inside the vault is never relocated:
	// re-scanning the vault accretes index rows but moves nothing.
	stored := path
	if p.mover != nil && !insideRoot(path, p.mover.Root()) {
		// Tier-3 uniques are placed under their content fingerprint; lower
		// tiers use a fresh random identifier so that placement never
		// requires a full-content read.
		var identifier string
		if tier == 3 {
			identifier = full.Hex()
		} else {
			var err error
			identifier, err = random.HexID()
			if err != nil {
				err = fmt.Errorf("unable to generate vault identifier: %w", err)
				return skipped(path, tier, err), err
			}
		}

		var err error
		stored, err = p.mover.Move(path, identifier, filepath.Ext(path), size)
		if err != nil {
			// Index store unavailability aborts the session. All other move
			// failures (cross-device, destination collision, I/O errors with
			// the orphan already registered) skip this file and let the
			// session continue; no index is mutated.
			var unavailable *vault.DatabaseUnavailableError
			if errors.As(err, &unavailable) {
				return skipped(path, tier, err), err
			}
			var exists *vault.DestinationExistsError
			if errors.As(err, &exists) {
				p.logger.Warnf("vault path collision for %s: %s", path, err.Error())
			}
			return skipped(path, tier, err), nil
		}
	}

	// Commit the decision's index mutations atomically.
	err := p.store.Update(func(tx *store.Tx) error {
		if err := tx.SizeInsert(size); err != nil {
			return err
		}
		if tier >= 2 {
			if err := tx.FringeInsert(fringe, size, stored); err != nil {
				return err
			}
		}
		if tier == 3 {
			if err := tx.FullInsert(full, stored); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = fmt.Errorf("unable to commit index updates: %w", err)
		return skipped(path, tier, err), err
	}

	// Success.
	return Decision{
		Result:       ResultUnique,
		Tier:         tier,
		OriginalPath: path,
		StoredPath:   stored,
	}, nil
}
