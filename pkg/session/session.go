// Package session provides scoped acquisition of the index store and the
// deduplication pipeline: opening a session locks the database, verifies its
// schema, and runs crash recovery before the first file is processed; closing
// it runs housekeeping, commits, and releases everything on all exit paths.
package session

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vaultgate/vaultgate/pkg/configuration"
	"github.com/vaultgate/vaultgate/pkg/dedup"
	"github.com/vaultgate/vaultgate/pkg/filesystem/locking"
	"github.com/vaultgate/vaultgate/pkg/hashing"
	"github.com/vaultgate/vaultgate/pkg/housekeeping"
	"github.com/vaultgate/vaultgate/pkg/logging"
	"github.com/vaultgate/vaultgate/pkg/must"
	"github.com/vaultgate/vaultgate/pkg/store"
	"github.com/vaultgate/vaultgate/pkg/vault"
	"github.com/vaultgate/vaultgate/pkg/walk"
)

// Options configures a session.
type Options struct {
	// Database is the path of the index database file. Required.
	Database string
	// Vault is the vault root directory. If empty, the session runs in
	// read-only mode: indices are updated but files stay in place.
	Vault string
	// HDDMode selects the sequential fringe reader. The database records the
	// reader mode it was created with and refuses to open in the other.
	HDDMode bool
	// JournalRetention is the retention window for completed journal rows
	// during close-time housekeeping. Zero means the default.
	JournalRetention time.Duration
	// OrphanRetention is the retention window for recovered orphan rows
	// during close-time housekeeping. Zero means the default.
	OrphanRetention time.Duration
}

// ErrSessionActive indicates that another session already holds the database.
var ErrSessionActive = errors.New("another session is already active on this database")

// Session is an exclusive handle on a database, its vault, and the decision
// pipeline over them. It is not safe for concurrent use; exactly one decision
// is in flight at any time.
type Session struct {
	// logger is the session's logger.
	logger *logging.Logger
	// locker is the advisory lock held on the database's lock sidecar.
	locker *locking.Locker
	// store is the index store.
	store *store.Store
	// pipeline is the decision pipeline.
	pipeline *dedup.Pipeline
	// journalRetention and orphanRetention bound close-time housekeeping.
	journalRetention time.Duration
	orphanRetention  time.Duration
	// failed records whether a session-fatal error occurred, in which case
	// close-time housekeeping is skipped to avoid masking the root cause.
	failed bool
}

// Open acquires a session: it locks the database, opens the store (verifying
// its schema and reader mode), and runs recovery. The caller must Close the
// session on all exit paths.
func Open(options *Options, logger *logging.Logger) (*Session, error) {
	// Validate options and apply defaults.
	if options.Database == "" {
		return nil, errors.New("no database path specified")
	}
	journalRetention := options.JournalRetention
	if journalRetention == 0 {
		journalRetention = configuration.DefaultJournalRetention
	}
	orphanRetention := options.OrphanRetention
	if orphanRetention == 0 {
		orphanRetention = configuration.DefaultOrphanRetention
	}

	// Acquire the exclusive session lock, failing fast if another session
	// holds it.
	locker, err := locking.NewLocker(options.Database+".lock", 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to create session lock: %w", err)
	}
	if err := locker.Lock(false); err != nil {
		locker.Close()
		return nil, ErrSessionActive
	}

	// Open the store. A schema or reader mode mismatch aborts here, before
	// any file is processed.
	st, err := store.Open(options.Database, options.HDDMode, logger.Sublogger("store"))
	if err != nil {
		must.Unlock(locker, logger)
		must.Close(locker, logger)
		return nil, err
	}

	// Run recovery before the first file is processed.
	if err := vault.Recover(st, logger.Sublogger("recovery")); err != nil {
		must.Close(st, logger)
		must.Unlock(locker, logger)
		must.Close(locker, logger)
		return nil, fmt.Errorf("recovery failed: %w", err)
	}

	// Set up the move engine if a vault is configured.
	var mover dedup.Mover
	if options.Vault != "" {
		engine, err := vault.NewEngine(
			options.Vault, st,
			options.Database+".emergency.jsonl",
			logger.Sublogger("vault"),
		)
		if err != nil {
			must.Close(st, logger)
			must.Unlock(locker, logger)
			must.Close(locker, logger)
			return nil, err
		}
		mover = engine
	}

	// Success.
	return &Session{
		logger:           logger,
		locker:           locker,
		store:            st,
		pipeline:         dedup.NewPipeline(st, hashing.NewXXH3(options.HDDMode), mover, logger.Sublogger("pipeline")),
		journalRetention: journalRetention,
		orphanRetention:  orphanRetention,
	}, nil
}

// ProcessFile runs the decision procedure for a single file. The returned
// error is session-fatal; per-file failures are reported inside the decision
// record instead.
func (s *Session) ProcessFile(path string) (dedup.Decision, error) {
	decision, err := s.pipeline.Process(path)
	if err != nil {
		s.failed = true
	}
	return decision, err
}

// ProcessDirectory runs the decision procedure for every regular file under
// root in deterministic traversal order, invoking the specified callback with
// each decision record as it is produced. A callback error stops the
// traversal and is returned verbatim.
func (s *Session) ProcessDirectory(root string, recursive bool, handle func(dedup.Decision) error) error {
	// Verify that the root is a directory.
	if metadata, err := os.Stat(root); err != nil {
		return fmt.Errorf("unable to probe directory: %w", err)
	} else if !metadata.IsDir() {
		return fmt.Errorf("not a directory: %s", root)
	}

	// Traverse.
	return walk.Walk(root, recursive, func(path string) error {
		decision, err := s.ProcessFile(path)
		if err != nil {
			return err
		}
		return handle(decision)
	})
}

// Close releases the session: after a clean run it prunes aged recovery rows,
// then closes the store and releases the session lock on all paths.
func (s *Session) Close() error {
	if !s.failed {
		housekeeping.Housekeep(s.store, s.journalRetention, s.orphanRetention, s.logger.Sublogger("housekeeping"))
	}
	err := s.store.Close()
	must.Unlock(s.locker, s.logger)
	must.Close(s.locker, s.logger)
	if err != nil {
		return fmt.Errorf("unable to close store: %w", err)
	}
	return nil
}
