package vault

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vaultgate/vaultgate/pkg/filesystem"
	"github.com/vaultgate/vaultgate/pkg/logging"
	"github.com/vaultgate/vaultgate/pkg/store"
)

// Recover resolves every non-terminal journal row and every pending orphan
// row left behind by an interrupted session. Interrupted moves are rolled
// back rather than completed, because their index rows were never written:
// the goal is to return the filesystem to the pre-attempt state. Recovery is
// idempotent; repeated invocation converges without disturbing files already
// in their correct state.
func Recover(st *store.Store, logger *logging.Logger) error {
	// Resolve non-terminal journal rows.
	rows, err := st.JournalUnterminated()
	if err != nil {
		return fmt.Errorf("unable to scan move journal: %w", err)
	}
	for _, row := range rows {
		// Roll the move back regardless of phase. A planned row usually
		// means the destination link was never created (rollback is then a
		// no-op), but a kill can land between the link and the promotion to
		// moving, leaving a planned row with a live vault link that must be
		// removed.
		logger.Infof("rolling back interrupted move of %s", row.Source)
		if err := rollback(row.Source, row.Destination, row.Size, st, logger); err != nil {
			logger.Warnf("unable to roll back move of %s: %s", row.Source, err.Error())
		}
		if err := st.JournalSetPhase(row.ID, store.JournalPhaseFailed); err != nil {
			return fmt.Errorf("unable to resolve journal row %d: %w", row.ID, err)
		}
	}

	// Reconcile pending orphans.
	orphans, err := st.OrphansPending()
	if err != nil {
		return fmt.Errorf("unable to scan orphan registry: %w", err)
	}
	for _, row := range orphans {
		logger.Infof("reconciling orphan %s", row.Orphan)
		if err := rollback(row.Source, row.Orphan, row.Size, nil, logger); err != nil {
			logger.Warnf("unable to reconcile orphan %s: %s", row.Orphan, err.Error())
			continue
		}
		if err := st.OrphanMark(row.ID, store.OrphanStatusRecovered); err != nil {
			return fmt.Errorf("unable to resolve orphan row %d: %w", row.ID, err)
		}
	}

	// Success.
	return nil
}

// rollback returns an interrupted move to its pre-attempt state: the source
// present, the destination absent. It is idempotent across the four
// existence combinations of the two paths. When the source is gone and
// restoring it fails, the destination is registered as a pending orphan in
// the supplied store (when one is provided; orphan reconciliation itself
// passes nil to avoid re-registering the row it is resolving).
func rollback(source, destination string, size uint64, st *store.Store, logger *logging.Logger) error {
	sourceExists, err := pathExists(source)
	if err != nil {
		return err
	}
	destinationExists, err := pathExists(destination)
	if err != nil {
		return err
	}

	// If the destination is already gone, the pre-attempt state holds
	// regardless of the source: either the move never linked or a previous
	// rollback finished.
	if !destinationExists {
		return nil
	}

	// If the source is gone, restore it from the destination before removing
	// the vault copy.
	if !sourceExists {
		if err := os.Link(destination, source); err != nil {
			if st != nil {
				if _, orphanErr := st.OrphanAdd(source, destination, size); orphanErr != nil {
					logger.Warnf("unable to register orphan %s: %s", destination, orphanErr.Error())
				}
			}
			return fmt.Errorf("unable to restore source: %w", err)
		}
		if err := filesystem.SyncDirectory(filepath.Dir(source)); err != nil {
			return err
		}
	}

	// Remove the vault copy and make its removal durable.
	if err := os.Remove(destination); err != nil {
		return fmt.Errorf("unable to remove vault copy: %w", err)
	}
	return filesystem.SyncDirectory(filepath.Dir(destination))
}

// pathExists probes for the existence of a path without following symbolic
// links.
func pathExists(path string) (bool, error) {
	if _, err := os.Lstat(path); err == nil {
		return true, nil
	} else if os.IsNotExist(err) {
		return false, nil
	} else {
		return false, fmt.Errorf("unable to probe %s: %w", path, err)
	}
}
