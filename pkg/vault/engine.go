package vault

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/vaultgate/vaultgate/pkg/filesystem"
	"github.com/vaultgate/vaultgate/pkg/logging"
	"github.com/vaultgate/vaultgate/pkg/signals"
	"github.com/vaultgate/vaultgate/pkg/store"
)

// Engine atomically relocates unique files into the vault. Every move is
// journaled before any filesystem mutation, made durable with ordered
// directory syncs, and bracketed by a termination-signal deferral so that a
// termination signal can never interrupt it between the link and its journal
// promotion; a harder kill or a crash at that point is rolled back by
// recovery.
type Engine struct {
	// root is the vault root directory.
	root string
	// rootDevice is the filesystem device holding the vault root.
	rootDevice uint64
	// store is the index store holding the move journal and orphan registry.
	store *store.Store
	// emergencyLogPath is the path of the emergency orphan log used when the
	// store itself is unwritable.
	emergencyLogPath string
	// logger is the engine's logger.
	logger *logging.Logger
}

// NewEngine creates a move engine rooted at the specified vault directory,
// creating the directory if necessary.
func NewEngine(root string, st *store.Store, emergencyLogPath string, logger *logging.Logger) (*Engine, error) {
	// Work with an absolute vault root so that containment checks against
	// absolute candidate paths are meaningful.
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve vault root: %w", err)
	}

	// Ensure the vault root exists.
	if err := os.MkdirAll(root, 0700); err != nil {
		return nil, fmt.Errorf("unable to create vault root: %w", err)
	}

	// Probe the vault's filesystem device for cross-device rejection.
	device, err := filesystem.DeviceID(root)
	if err != nil {
		return nil, fmt.Errorf("unable to identify vault device: %w", err)
	}

	// Success.
	return &Engine{
		root:             root,
		rootDevice:       device,
		store:            st,
		emergencyLogPath: emergencyLogPath,
		logger:           logger,
	}, nil
}

// Root returns the vault root directory.
func (e *Engine) Root() string {
	return e.root
}

// Move relocates the file at source to the vault path derived from the
// specified identifier (32 hex characters) and filename suffix, returning the
// destination path. The move is journaled, durable, and recoverable: if the
// process dies at any point, the next session's recovery pass returns the
// filesystem to a consistent state.
func (e *Engine) Move(source, identifier, suffix string, size uint64) (string, error) {
	// Compute the destination path.
	destination, _, err := pathForVault(e.root, identifier, suffix)
	if err != nil {
		return "", err
	}

	// Reject cross-device moves before touching anything. The link itself
	// would also fail with EXDEV, but probing up front avoids a pointless
	// journal row.
	device, err := filesystem.DeviceID(source)
	if err != nil {
		return "", fmt.Errorf("unable to identify source device: %w", err)
	}
	if device != e.rootDevice {
		return "", &CrossDeviceError{Source: source, Destination: destination}
	}

	// Reject existing destinations. Destinations are never overwritten.
	if _, err := os.Lstat(destination); err == nil {
		return "", &DestinationExistsError{Destination: destination}
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("unable to probe destination: %w", err)
	}

	// Record the move intent.
	journalID, err := e.store.JournalPlan(source, destination, size)
	if err != nil {
		return "", &DatabaseUnavailableError{Underlying: err}
	}

	// Enter the critical section. Termination signals arriving between here
	// and resolution are buffered and re-raised afterward.
	deferral := signals.Defer()
	defer deferral.Resolve()

	// Create the shard directory if it doesn't exist yet, tracking whether
	// this move created it.
	shardDirectory := filepath.Dir(destination)
	var createdShard bool
	if _, err := os.Lstat(shardDirectory); os.IsNotExist(err) {
		if err := os.Mkdir(shardDirectory, 0700); err != nil {
			e.abandonPlanned(journalID)
			return "", fmt.Errorf("unable to create shard directory: %w", err)
		}
		createdShard = true
	} else if err != nil {
		e.abandonPlanned(journalID)
		return "", fmt.Errorf("unable to probe shard directory: %w", err)
	}

	// Create the destination link.
	if err := os.Link(source, destination); err != nil {
		e.abandonPlanned(journalID)
		if os.IsExist(err) {
			return "", &DestinationExistsError{Destination: destination}
		} else if filesystem.IsCrossDeviceError(err) {
			return "", &CrossDeviceError{Source: source, Destination: destination}
		}
		return "", fmt.Errorf("unable to link into vault: %w", err)
	}

	// Make the link durable before removing the source: sync newly-created
	// parents from the vault root outward, then the destination's parent.
	if createdShard {
		if err := filesystem.SyncDirectory(e.root); err != nil {
			return "", e.recordOrphan(source, destination, size, err)
		}
	}
	if err := filesystem.SyncDirectory(shardDirectory); err != nil {
		return "", e.recordOrphan(source, destination, size, err)
	}

	// Promote the journal row: the destination now durably exists.
	if err := e.store.JournalSetPhase(journalID, store.JournalPhaseMoving); err != nil {
		return "", e.recordOrphan(source, destination, size, err)
	}

	// Remove the source and make its removal durable.
	if err := os.Remove(source); err != nil {
		return "", e.recordOrphan(source, destination, size, err)
	}
	if err := filesystem.SyncDirectory(filepath.Dir(source)); err != nil {
		return "", e.recordOrphan(source, destination, size, err)
	}

	// Complete the journal row. If the store is unwritable at this point, the
	// move itself has succeeded but can't be recorded, so the destination is
	// logged as an orphan for manual recovery.
	if err := e.store.JournalSetPhase(journalID, store.JournalPhaseCompleted); err != nil {
		e.logEmergency(source, destination, size, err)
		return "", &DatabaseUnavailableError{Underlying: err}
	}

	// Success.
	return destination, nil
}

// abandonPlanned marks a still-planned journal row as failed after a pre-link
// abort. This is best-effort: if the store is unwritable, the row stays
// planned and is resolved by the next recovery pass.
func (e *Engine) abandonPlanned(journalID uint64) {
	if err := e.store.JournalSetPhase(journalID, store.JournalPhaseFailed); err != nil {
		e.logger.Warnf("unable to abandon journal row %d: %s", journalID, err.Error())
	}
}

// recordOrphan handles a failure that occurred after the destination link was
// created: the vault copy is live but unreferenced, so it is recorded in the
// orphan registry and the triggering error is propagated. If the registry
// itself is unwritable, the orphan is recorded in the emergency log instead
// and the failure is escalated to a DatabaseUnavailableError.
func (e *Engine) recordOrphan(source, destination string, size uint64, cause error) error {
	if _, err := e.store.OrphanAdd(source, destination, size); err != nil {
		e.logEmergency(source, destination, size, err)
		return &DatabaseUnavailableError{Underlying: err}
	}
	e.logger.Warnf("move of %s failed after link; vault copy %s registered as orphan: %s",
		source, destination, cause.Error())
	return cause
}

// logEmergency appends an orphan record to the emergency log, used only when
// the store itself is unwritable.
func (e *Engine) logEmergency(source, destination string, size uint64, cause error) {
	record := emergencyRecord{
		Time:   time.Now(),
		Source: source,
		Orphan: destination,
		Size:   size,
		Cause:  cause.Error(),
	}
	if err := appendEmergencyRecord(e.emergencyLogPath, record); err != nil {
		e.logger.Warnf("unable to write emergency record for %s: %s", destination, err.Error())
	}
}
