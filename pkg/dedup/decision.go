// Package dedup implements the four-tier short-circuit deduplication
// pipeline. Each tier reads progressively more of the candidate file: the
// size index filters on metadata alone, the fringe index on the file's first
// and last regions, and the full index on its entire contents. A hit in the
// full index is the definitive duplicate signal; every miss declares the file
// unique at the tier that proved it.
package dedup

// Result is the outcome classification of a single file decision.
type Result uint8

const (
	// ResultUnique indicates that the file's content has not been seen
	// before and (in active mode) that the file was admitted to the vault.
	ResultUnique Result = iota
	// ResultDuplicate indicates that the file is byte-identical to a
	// previously admitted file.
	ResultDuplicate
	// ResultSkipped indicates that the file was not processed, either by
	// policy (empty files) or due to an error recorded in the decision.
	ResultSkipped
)

// String provides a human-readable representation of a result.
func (r Result) String() string {
	switch r {
	case ResultUnique:
		return "unique"
	case ResultDuplicate:
		return "duplicate"
	case ResultSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Decision is the structured outcome of processing a single file.
type Decision struct {
	// Result is the outcome classification.
	Result Result
	// Tier is the pipeline tier (0-3) at which the decision was made.
	Tier int
	// OriginalPath is the path at which the file was observed.
	OriginalPath string
	// StoredPath is the path under which a unique file now lives. In active
	// mode this is the vault path; in read-only mode it equals OriginalPath.
	// It is empty for non-unique results.
	StoredPath string
	// DuplicateOf is the stored path of the previously admitted file with
	// identical content. It is only set for duplicate results.
	DuplicateOf string
	// Err is the error that caused a skip, if any.
	Err error
}
