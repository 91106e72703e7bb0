// Package store provides the embedded transactional index store backing
// deduplication decisions and crash recovery. It maintains three dedup
// indices (size, fringe, full), a write-ahead move journal, an orphan
// registry, and a schema version row, all inside a single bbolt database
// file. All mutations belonging to a single decision commit atomically in
// one transaction.
package store

import (
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/vaultgate/vaultgate/pkg/logging"
)

const (
	// schemaVersion is the current on-disk layout version. The persisted
	// schema value additionally carries the fringe reader mode in its lowest
	// bit, making databases written in different reader modes mutually
	// unopenable.
	schemaVersion uint64 = 1
	// openTimeout is the maximum amount of time to wait for the underlying
	// database file lock before failing the open.
	openTimeout = 1 * time.Second
	// initialMmapSize is the initial memory map size for the database read
	// path. Databases below this size never need to remap while growing.
	initialMmapSize = 256 * 1024 * 1024
)

// Bucket names for the logical tables.
var (
	bucketSizes         = []byte("sizes")
	bucketFringe        = []byte("fringe")
	bucketFull          = []byte("full")
	bucketJournal       = []byte("journal")
	bucketOrphans       = []byte("orphans")
	bucketOrphansByPath = []byte("orphans_by_path")
	bucketMeta          = []byte("meta")
)

// metaSchemaKey is the meta bucket key holding the encoded schema value.
var metaSchemaKey = []byte("schema")

// SchemaMismatchError indicates that a database was written with a different
// on-disk layout version or fringe reader mode than the one being opened. It
// is fatal: the store refuses to open.
type SchemaMismatchError struct {
	// Expected is the schema value this build would have written.
	Expected uint64
	// Found is the schema value found in the database.
	Found uint64
}

// Error implements error.Error.
func (e *SchemaMismatchError) Error() string {
	if e.Expected>>1 == e.Found>>1 {
		return fmt.Sprintf(
			"database written with a different fringe reader mode (schema %#x, expected %#x)",
			e.Found, e.Expected,
		)
	}
	return fmt.Sprintf(
		"database schema version mismatch (found %#x, expected %#x)",
		e.Found, e.Expected,
	)
}

// Store is the embedded index store. It is owned exclusively by a single
// session; concurrent access from multiple processes is prevented by the
// underlying database file lock (and, at a higher level, by the session's
// advisory lock).
type Store struct {
	// db is the underlying database.
	db *bolt.DB
	// logger is the store's logger.
	logger *logging.Logger
}

// encodeSchema computes the persisted schema value for the specified reader
// mode.
func encodeSchema(hddMode bool) uint64 {
	encoded := schemaVersion << 1
	if hddMode {
		encoded |= 1
	}
	return encoded
}

// itob converts a 64-bit unsigned integer to its big-endian byte encoding,
// which sorts identically to the numeric order under bbolt's byte-wise key
// comparison.
func itob(value uint64) []byte {
	encoded := make([]byte, 8)
	binary.BigEndian.PutUint64(encoded, value)
	return encoded
}

// Open opens (creating if necessary) the store at the specified path with the
// specified fringe reader mode. It returns a SchemaMismatchError if the
// database was written with a different layout version or reader mode.
func Open(path string, hddMode bool, logger *logging.Logger) (*Store, error) {
	// Open the underlying database with a bounded wait on its file lock so
	// that a second opener fails fast instead of hanging.
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:         openTimeout,
		InitialMmapSize: initialMmapSize,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Ensure buckets exist and verify (or initialize) the schema row.
	expected := encodeSchema(hddMode)
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{
			bucketSizes, bucketFringe, bucketFull,
			bucketJournal, bucketOrphans, bucketOrphansByPath,
			bucketMeta,
		} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("unable to create bucket %q: %w", string(name), err)
			}
		}
		meta := tx.Bucket(bucketMeta)
		if existing := meta.Get(metaSchemaKey); existing == nil {
			return meta.Put(metaSchemaKey, itob(expected))
		} else if found := binary.BigEndian.Uint64(existing); found != expected {
			return &SchemaMismatchError{Expected: expected, Found: found}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	// Success.
	return &Store{db: db, logger: logger}, nil
}

// OpenReadOnly opens an existing store for read-only inspection. The fringe
// reader mode is not checked since no fingerprints will be computed; only the
// layout version is verified.
func OpenReadOnly(path string, logger *logging.Logger) (*Store, error) {
	// Open the underlying database read-only.
	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout:  openTimeout,
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Verify the layout version.
	err = db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		if meta == nil {
			return fmt.Errorf("database is missing its meta table")
		}
		existing := meta.Get(metaSchemaKey)
		if existing == nil {
			return fmt.Errorf("database is missing its schema row")
		}
		if found := binary.BigEndian.Uint64(existing); found>>1 != schemaVersion {
			return &SchemaMismatchError{Expected: schemaVersion << 1, Found: found}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	// Success.
	return &Store{db: db, logger: logger}, nil
}

// Close closes the store. It must not be called while operations are in
// flight.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the path of the underlying database file.
func (s *Store) Path() string {
	return s.db.Path()
}
