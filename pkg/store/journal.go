package store

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// JournalPhase represents the lifecycle phase of a move journal row.
type JournalPhase uint8

const (
	// JournalPhasePlanned indicates that a move intent has been recorded but
	// the destination link has not yet been created.
	JournalPhasePlanned JournalPhase = iota
	// JournalPhaseMoving indicates that the destination link has been created
	// durably but the source has not yet been removed (or its removal has not
	// yet been recorded).
	JournalPhaseMoving
	// JournalPhaseCompleted indicates that the move finished. Completed rows
	// are terminal and may be pruned.
	JournalPhaseCompleted
	// JournalPhaseFailed indicates that the move did not finish and has been
	// resolved by recovery. Failed rows are terminal.
	JournalPhaseFailed
)

// String provides a human-readable representation of a journal phase.
func (p JournalPhase) String() string {
	switch p {
	case JournalPhasePlanned:
		return "planned"
	case JournalPhaseMoving:
		return "moving"
	case JournalPhaseCompleted:
		return "completed"
	case JournalPhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// JournalRow is a persisted move intent.
type JournalRow struct {
	// ID is the row's monotonically increasing identifier.
	ID uint64
	// Source is the path being moved.
	Source string
	// Destination is the vault path being moved to.
	Destination string
	// Size is the size of the file being moved.
	Size uint64
	// CreatedAt is the time at which the intent was recorded.
	CreatedAt time.Time
	// Phase is the row's current lifecycle phase.
	Phase JournalPhase
	// CompletedAt is the time at which the row reached a terminal phase. It
	// is zero for non-terminal rows.
	CompletedAt time.Time
}

// encodeJournalRow serializes a journal row for storage.
func encodeJournalRow(row JournalRow) ([]byte, error) {
	buffer := &bytes.Buffer{}
	if err := gob.NewEncoder(buffer).Encode(row); err != nil {
		return nil, fmt.Errorf("unable to encode journal row: %w", err)
	}
	return buffer.Bytes(), nil
}

// decodeJournalRow deserializes a journal row from storage.
func decodeJournalRow(data []byte) (JournalRow, error) {
	var row JournalRow
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&row); err != nil {
		return JournalRow{}, fmt.Errorf("unable to decode journal row: %w", err)
	}
	return row, nil
}

// forEachJournalRow invokes the specified callback for every journal row in
// id order.
func forEachJournalRow(tx *bolt.Tx, operation func(JournalRow) error) error {
	return tx.Bucket(bucketJournal).ForEach(func(_, value []byte) error {
		row, err := decodeJournalRow(value)
		if err != nil {
			return err
		}
		return operation(row)
	})
}

// JournalPlan records a new move intent in the planned phase and returns its
// identifier. The row is durably committed before this method returns.
func (s *Store) JournalPlan(source, destination string, size uint64) (uint64, error) {
	var id uint64
	err := s.db.Update(func(tx *bolt.Tx) error {
		journal := tx.Bucket(bucketJournal)
		sequence, err := journal.NextSequence()
		if err != nil {
			return fmt.Errorf("unable to allocate journal id: %w", err)
		}
		id = sequence
		encoded, err := encodeJournalRow(JournalRow{
			ID:          id,
			Source:      source,
			Destination: destination,
			Size:        size,
			CreatedAt:   time.Now(),
			Phase:       JournalPhasePlanned,
		})
		if err != nil {
			return err
		}
		return journal.Put(itob(id), encoded)
	})
	if err != nil {
		return 0, fmt.Errorf("unable to record move intent: %w", err)
	}
	return id, nil
}

// JournalSetPhase transitions a journal row to the specified phase,
// timestamping terminal transitions. The transition is durably committed
// before this method returns.
func (s *Store) JournalSetPhase(id uint64, phase JournalPhase) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		journal := tx.Bucket(bucketJournal)
		existing := journal.Get(itob(id))
		if existing == nil {
			return fmt.Errorf("journal row %d does not exist", id)
		}
		row, err := decodeJournalRow(existing)
		if err != nil {
			return err
		}
		row.Phase = phase
		if phase == JournalPhaseCompleted || phase == JournalPhaseFailed {
			row.CompletedAt = time.Now()
		}
		encoded, err := encodeJournalRow(row)
		if err != nil {
			return err
		}
		return journal.Put(itob(id), encoded)
	})
	if err != nil {
		return fmt.Errorf("unable to transition journal row: %w", err)
	}
	return nil
}

// JournalUnterminated returns all journal rows in a non-terminal phase, in id
// order.
func (s *Store) JournalUnterminated() ([]JournalRow, error) {
	var rows []JournalRow
	err := s.db.View(func(tx *bolt.Tx) error {
		return forEachJournalRow(tx, func(row JournalRow) error {
			if row.Phase == JournalPhasePlanned || row.Phase == JournalPhaseMoving {
				rows = append(rows, row)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("unable to scan journal: %w", err)
	}
	return rows, nil
}

// JournalPruneCompleted deletes completed journal rows that reached their
// terminal phase before the specified cutoff, returning the number of rows
// deleted. Failed rows are retained for human inspection.
func (s *Store) JournalPruneCompleted(cutoff time.Time) (int, error) {
	var pruned int
	err := s.db.Update(func(tx *bolt.Tx) error {
		journal := tx.Bucket(bucketJournal)
		var stale [][]byte
		if err := journal.ForEach(func(key, value []byte) error {
			row, err := decodeJournalRow(value)
			if err != nil {
				return err
			}
			if row.Phase == JournalPhaseCompleted && row.CompletedAt.Before(cutoff) {
				stale = append(stale, append([]byte(nil), key...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, key := range stale {
			if err := journal.Delete(key); err != nil {
				return err
			}
		}
		pruned = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("unable to prune journal: %w", err)
	}
	return pruned, nil
}
