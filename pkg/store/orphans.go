package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// OrphanStatus represents the lifecycle status of an orphan registry row.
type OrphanStatus uint8

const (
	// OrphanStatusPending indicates that the orphaned vault file has not yet
	// been reconciled.
	OrphanStatusPending OrphanStatus = iota
	// OrphanStatusRecovered indicates that the orphaned vault file has been
	// reconciled successfully.
	OrphanStatusRecovered
	// OrphanStatusFailed indicates that reconciliation was abandoned; the row
	// is retained for human inspection.
	OrphanStatusFailed
)

// String provides a human-readable representation of an orphan status.
func (s OrphanStatus) String() string {
	switch s {
	case OrphanStatusPending:
		return "pending"
	case OrphanStatusRecovered:
		return "recovered"
	case OrphanStatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// OrphanRow describes a file that was linked into the vault but whose move
// never completed, leaving the vault copy unreferenced by any index.
type OrphanRow struct {
	// ID is the row's monotonically increasing identifier.
	ID uint64
	// Source is the original source path of the file.
	Source string
	// Orphan is the vault path holding the unreferenced copy.
	Orphan string
	// Size is the size of the file.
	Size uint64
	// CreatedAt is the time at which the orphan was recorded.
	CreatedAt time.Time
	// RecoveredAt is the time at which the orphan was reconciled. It is zero
	// for pending rows.
	RecoveredAt time.Time
	// Status is the row's current status.
	Status OrphanStatus
}

// encodeOrphanRow serializes an orphan row for storage.
func encodeOrphanRow(row OrphanRow) ([]byte, error) {
	buffer := &bytes.Buffer{}
	if err := gob.NewEncoder(buffer).Encode(row); err != nil {
		return nil, fmt.Errorf("unable to encode orphan row: %w", err)
	}
	return buffer.Bytes(), nil
}

// decodeOrphanRow deserializes an orphan row from storage.
func decodeOrphanRow(data []byte) (OrphanRow, error) {
	var row OrphanRow
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&row); err != nil {
		return OrphanRow{}, fmt.Errorf("unable to decode orphan row: %w", err)
	}
	return row, nil
}

// forEachOrphanRow invokes the specified callback for every orphan row in id
// order.
func forEachOrphanRow(tx *bolt.Tx, operation func(OrphanRow) error) error {
	return tx.Bucket(bucketOrphans).ForEach(func(_, value []byte) error {
		row, err := decodeOrphanRow(value)
		if err != nil {
			return err
		}
		return operation(row)
	})
}

// OrphanAdd records a pending orphan. Orphan (vault) paths are unique:
// attempting to record a second row for the same orphan path fails. The row
// is durably committed before this method returns.
func (s *Store) OrphanAdd(source, orphan string, size uint64) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		byPath := tx.Bucket(bucketOrphansByPath)
		if byPath.Get([]byte(orphan)) != nil {
			return fmt.Errorf("orphan path already registered: %s", orphan)
		}
		orphans := tx.Bucket(bucketOrphans)
		sequence, err := orphans.NextSequence()
		if err != nil {
			return fmt.Errorf("unable to allocate orphan id: %w", err)
		}
		id = sequence
		encoded, err := encodeOrphanRow(OrphanRow{
			ID:        id,
			Source:    source,
			Orphan:    orphan,
			Size:      size,
			CreatedAt: time.Now(),
			Status:    OrphanStatusPending,
		})
		if err != nil {
			return err
		}
		if err := orphans.Put(itob(id), encoded); err != nil {
			return err
		}
		return byPath.Put([]byte(orphan), itob(id))
	})
	if err != nil {
		return 0, fmt.Errorf("unable to record orphan: %w", err)
	}
	return id, nil
}

// OrphansPending returns all pending orphan rows in id order.
func (s *Store) OrphansPending() ([]OrphanRow, error) {
	var rows []OrphanRow
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachOrphanRow(tx, func(row OrphanRow) error {
			if row.Status == OrphanStatusPending {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("unable to scan orphan registry: %w", err)
	}
	return rows, nil
}

// OrphanMark transitions an orphan row to the specified status, timestamping
// recoveries.
func (s *Store) OrphanMark(id uint64, status OrphanStatus) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		orphans := tx.Bucket(bucketOrphans)
		existing := orphans.Get(itob(id))
		if existing == nil {
			return fmt.Errorf("orphan row %d does not exist", id)
		}
		row, err := decodeOrphanRow(existing)
		if err != nil {
			return err
		}
		row.Status = status
		if status == OrphanStatusRecovered {
			row.RecoveredAt = time.Now()
		}
		encoded, err := encodeOrphanRow(row)
		if err != nil {
			return err
		}
		return orphans.Put(itob(id), encoded)
	})
	if err != nil {
		return fmt.Errorf("unable to transition orphan row: %w", err)
	}
	return nil
}

// OrphanPruneRecovered deletes recovered orphan rows whose recovery happened
// before the specified cutoff, returning the number of rows deleted. Pending
// and failed rows are retained.
func (s *Store) OrphanPruneRecovered(cutoff time.Time) (int, error) {
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		orphans := tx.Bucket(bucketOrphans)
		byPath := tx.Bucket(bucketOrphansByPath)
		var stale []OrphanRow
		if err := forEachOrphanRow(tx, func(row OrphanRow) error {
			if row.Status == OrphanStatusRecovered && row.RecoveredAt.Before(cutoff) {
				stale = append(stale, row)
			}
			return nil
		}); err != nil {
			return err
		}
		for _, row := range stale {
			if err := orphans.Delete(itob(row.ID)); err != nil {
				return err
			}
			if err := byPath.Delete([]byte(row.Orphan)); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("unable to prune orphan registry: %w", err)
	}
	return pruned, nil
}
