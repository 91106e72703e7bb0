package store

import (
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/vaultgate/vaultgate/pkg/hashing"
)

// fringeKey computes the fringe index key for a fingerprint/size pair.
func fringeKey(fringe hashing.Fingerprint, size uint64) []byte {
	key := make([]byte, 0, hashing.FingerprintSize+8)
	key = append(key, fringe[:]...)
	key = append(key, itob(size)...)
	return key
}

// Tx provides the index mutations available within a single atomic decision
// commit. Instances are only valid for the duration of the Update callback
// that provides them.
type Tx struct {
	// tx is the underlying database transaction.
	tx *bolt.Tx
}

// Update executes the specified callback inside a single read/write
// transaction. Either all of the callback's mutations commit or none do.
func (s *Store) Update(operation func(*Tx) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return operation(&Tx{tx: tx})
	})
}

// SizeInsert records a file size in the size index. Insertion is idempotent.
func (t *Tx) SizeInsert(size uint64) error {
	return t.tx.Bucket(bucketSizes).Put(itob(size), nil)
}

// FringeInsert records the canonical path for a fringe fingerprint/size pair.
// The first admitted path for a pair wins; re-insertion is a no-op.
func (t *Tx) FringeInsert(fringe hashing.Fingerprint, size uint64, path string) error {
	bucket := t.tx.Bucket(bucketFringe)
	key := fringeKey(fringe, size)
	if bucket.Get(key) != nil {
		return nil
	}
	return bucket.Put(key, []byte(path))
}

// FullInsert records the canonical path for a full-content fingerprint. The
// first admitted path for a fingerprint wins; re-insertion is a no-op.
func (t *Tx) FullInsert(full hashing.Fingerprint, path string) error {
	bucket := t.tx.Bucket(bucketFull)
	if bucket.Get(full[:]) != nil {
		return nil
	}
	return bucket.Put(full[:], []byte(path))
}

// SizeSeen checks whether or not a file size is present in the size index.
func (s *Store) SizeSeen(size uint64) (bool, error) {
	var seen bool
	err := s.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketSizes).Get(itob(size)) != nil
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("unable to query size index: %w", err)
	}
	return seen, nil
}

// FringeLookup returns the canonical path recorded for a fringe
// fingerprint/size pair, or an empty string if the pair has never been
// recorded.
func (s *Store) FringeLookup(fringe hashing.Fingerprint, size uint64) (string, error) {
	var path string
	err := s.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(bucketFringe).Get(fringeKey(fringe, size)); value != nil {
			path = string(value)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("unable to query fringe index: %w", err)
	}
	return path, nil
}

// FullLookup returns the canonical path recorded for a full-content
// fingerprint, or an empty string if the fingerprint has never been recorded.
func (s *Store) FullLookup(full hashing.Fingerprint) (string, error) {
	var path string
	err := s.db.View(func(tx *bolt.Tx) error {
		if value := tx.Bucket(bucketFull).Get(full[:]); value != nil {
			path = string(value)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("unable to query full index: %w", err)
	}
	return path, nil
}

// Stats describes the current contents of the store for inspection purposes.
type Stats struct {
	// Sizes is the number of entries in the size index.
	Sizes int
	// Fringes is the number of entries in the fringe index.
	Fringes int
	// Fulls is the number of entries in the full index.
	Fulls int
	// JournalUnterminated is the number of journal rows in a non-terminal
	// phase.
	JournalUnterminated int
	// OrphansPending is the number of orphan rows awaiting recovery.
	OrphansPending int
}

// Stats computes summary statistics over the store's contents.
func (s *Store) Stats() (Stats, error) {
	var stats Stats
	err := s.db.View(func(tx *bolt.Tx) error {
		stats.Sizes = tx.Bucket(bucketSizes).Stats().KeyN
		stats.Fringes = tx.Bucket(bucketFringe).Stats().KeyN
		stats.Fulls = tx.Bucket(bucketFull).Stats().KeyN
		if err := forEachJournalRow(tx, func(row JournalRow) error {
			if row.Phase == JournalPhasePlanned || row.Phase == JournalPhaseMoving {
				stats.JournalUnterminated++
			}
			return nil
		}); err != nil {
			return err
		}
		return forEachOrphanRow(tx, func(row OrphanRow) error {
			if row.Status == OrphanStatusPending {
				stats.OrphansPending++
			}
			return nil
		})
	})
	if err != nil {
		return Stats{}, fmt.Errorf("unable to compute store statistics: %w", err)
	}
	return stats, nil
}
