package dedup

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vaultgate/vaultgate/pkg/hashing"
	"github.com/vaultgate/vaultgate/pkg/store"
	"github.com/vaultgate/vaultgate/pkg/vault"
)

// pipelineEnvironment bundles the components needed for pipeline tests.
type pipelineEnvironment struct {
	store    *store.Store
	pipeline *Pipeline
	inbound  string
	vault    string
}

// newPipelineEnvironment creates a pipeline over a fresh store. If active is
// true, a real move engine is attached; otherwise the pipeline runs in
// read-only mode.
func newPipelineEnvironment(t *testing.T, active bool) *pipelineEnvironment {
	t.Helper()
	base := t.TempDir()

	st, err := store.Open(filepath.Join(base, "index.db"), false, nil)
	if err != nil {
		t.Fatal("unable to open store:", err)
	}
	t.Cleanup(func() { st.Close() })

	inbound := filepath.Join(base, "inbound")
	if err := os.Mkdir(inbound, 0700); err != nil {
		t.Fatal("unable to create inbound directory:", err)
	}

	environment := &pipelineEnvironment{
		store:   st,
		inbound: inbound,
		vault:   filepath.Join(base, "vault"),
	}

	var mover Mover
	if active {
		engine, err := vault.NewEngine(
			environment.vault, st, filepath.Join(base, "index.db.emergency.jsonl"), nil,
		)
		if err != nil {
			t.Fatal("unable to create move engine:", err)
		}
		mover = engine
	}
	environment.pipeline = NewPipeline(st, hashing.NewXXH3(false), mover, nil)

	return environment
}

// write writes a file into the environment's inbound directory.
func (e *pipelineEnvironment) write(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(e.inbound, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal("unable to write test file:", err)
	}
	return path
}

// process runs the pipeline over a path, failing the test on session-fatal
// errors.
func (e *pipelineEnvironment) process(t *testing.T, path string) Decision {
	t.Helper()
	decision, err := e.pipeline.Process(path)
	if err != nil {
		t.Fatal("session-fatal pipeline error:", err)
	}
	return decision
}

// randomContent generates deterministic pseudorandom content.
func randomContent(t *testing.T, seed int64, length int) []byte {
	t.Helper()
	content := make([]byte, length)
	if _, err := rand.New(rand.NewSource(seed)).Read(content); err != nil {
		t.Fatal("unable to generate content:", err)
	}
	return content
}

// TestProcessEmptyFile tests that empty files are skipped at tier 0 and never
// admitted.
func TestProcessEmptyFile(t *testing.T) {
	environment := newPipelineEnvironment(t, false)
	path := environment.write(t, "empty", nil)

	decision := environment.process(t, path)
	if decision.Result != ResultSkipped || decision.Tier != 0 {
		t.Fatalf("unexpected decision for empty file: %v(tier=%d)", decision.Result, decision.Tier)
	}
	if decision.Err == nil || decision.Err.Error() != "empty" {
		t.Error("empty file skip lacks the expected cause")
	}

	// Re-presenting the empty file yields the same skip.
	if repeat := environment.process(t, path); repeat.Result != ResultSkipped || repeat.Tier != 0 {
		t.Error("empty file not skipped on re-presentation")
	}
}

// TestProcessMissingFile tests that stat failures are skipped at tier 0
// without aborting the session.
func TestProcessMissingFile(t *testing.T) {
	environment := newPipelineEnvironment(t, false)

	decision := environment.process(t, filepath.Join(environment.inbound, "missing"))
	if decision.Result != ResultSkipped || decision.Tier != 0 || decision.Err == nil {
		t.Error("missing file not skipped at tier 0 with a cause")
	}
}

// TestProcessTiers walks the first-sight, size-collision, fringe-collision,
// and true-duplicate scenarios in sequence against a single database.
func TestProcessTiers(t *testing.T) {
	environment := newPipelineEnvironment(t, false)
	size := 256 * 1024

	// First sight: an unseen size decides at tier 1 without content reads.
	contentA := randomContent(t, 1, size)
	pathA := environment.write(t, "a.bin", contentA)
	decisionA := environment.process(t, pathA)
	if decisionA.Result != ResultUnique || decisionA.Tier != 1 {
		t.Fatalf("unexpected first-sight decision: %v(tier=%d)", decisionA.Result, decisionA.Tier)
	}
	if decisionA.StoredPath != pathA {
		t.Error("read-only unique decision has stored path different from original")
	}

	// Size collision with different content decides at tier 2.
	contentB := randomContent(t, 2, size)
	decisionB := environment.process(t, environment.write(t, "b.bin", contentB))
	if decisionB.Result != ResultUnique || decisionB.Tier != 2 {
		t.Fatalf("unexpected size-collision decision: %v(tier=%d)", decisionB.Result, decisionB.Tier)
	}

	// Fringe collision with the tier-2 admit (same ends, different middle)
	// decides at tier 3. B carries a fringe index row; A does not (it was
	// admitted on size alone), so the collision must be engineered against B.
	contentC := bytes.Clone(contentB)
	middle := len(contentC) / 2
	contentC[middle] ^= 0xff
	pathC := environment.write(t, "c.bin", contentC)
	decisionC := environment.process(t, pathC)
	if decisionC.Result != ResultUnique || decisionC.Tier != 3 {
		t.Fatalf("unexpected fringe-collision decision: %v(tier=%d)", decisionC.Result, decisionC.Tier)
	}

	// A true duplicate of C under a different name is detected at tier 3 and
	// names C's stored path: C is the only file so far with a full index row.
	decisionD := environment.process(t, environment.write(t, "d.bin", contentC))
	if decisionD.Result != ResultDuplicate || decisionD.Tier != 3 {
		t.Fatalf("unexpected duplicate decision: %v(tier=%d)", decisionD.Result, decisionD.Tier)
	}
	if decisionD.DuplicateOf != pathC {
		t.Errorf("duplicate names unexpected original: %s != %s", decisionD.DuplicateOf, pathC)
	}

	// A duplicate of A, by contrast, converges rather than matching at once:
	// A's first sight stored no content evidence, so the copy is unique at
	// tier 2 and only later copies hit the accreted rows.
	decisionE := environment.process(t, environment.write(t, "e.bin", contentA))
	if decisionE.Result != ResultUnique || decisionE.Tier != 2 {
		t.Fatalf("unexpected size-only-copy decision: %v(tier=%d)", decisionE.Result, decisionE.Tier)
	}
}

// TestProcessDuplicateLeavesSourceAlone tests that duplicate sources are
// neither moved nor deleted, in active mode. The duplicate target is a
// tier-3 admit, the only kind carrying a full index row.
func TestProcessDuplicateLeavesSourceAlone(t *testing.T) {
	environment := newPipelineEnvironment(t, true)
	size := 256 * 1024
	contentA := randomContent(t, 3, size)
	contentB := randomContent(t, 30, size)
	contentC := bytes.Clone(contentB)
	contentC[size/2] ^= 0xff

	environment.process(t, environment.write(t, "a.bin", contentA))
	environment.process(t, environment.write(t, "b.bin", contentB))
	admitted := environment.process(t, environment.write(t, "c.bin", contentC))
	if admitted.Result != ResultUnique || admitted.Tier != 3 {
		t.Fatalf("fringe-colliding file yielded %v(tier=%d)", admitted.Result, admitted.Tier)
	}

	duplicate := environment.write(t, "copy.bin", contentC)
	decision := environment.process(t, duplicate)
	if decision.Result != ResultDuplicate {
		t.Fatalf("unexpected result for duplicate: %v", decision.Result)
	}
	if decision.DuplicateOf != admitted.StoredPath {
		t.Error("duplicate doesn't name the vault copy as its original")
	}
	if _, err := os.Lstat(duplicate); err != nil {
		t.Error("duplicate source was moved or deleted")
	}
}

// TestProcessActiveMove tests that active-mode uniques land in the vault and
// that their indexed path is the vault path.
func TestProcessActiveMove(t *testing.T) {
	environment := newPipelineEnvironment(t, true)
	content := randomContent(t, 4, 256*1024)
	source := environment.write(t, "a.bin", content)

	decision := environment.process(t, source)
	if decision.Result != ResultUnique || decision.Tier != 1 {
		t.Fatalf("unexpected decision: %v(tier=%d)", decision.Result, decision.Tier)
	}

	// The source is gone and the stored path lives under the vault with the
	// original suffix.
	if _, err := os.Lstat(source); !os.IsNotExist(err) {
		t.Error("source still present after admission")
	}
	if !strings.HasPrefix(decision.StoredPath, environment.vault+string(filepath.Separator)) {
		t.Error("stored path not under the vault:", decision.StoredPath)
	}
	if filepath.Ext(decision.StoredPath) != ".bin" {
		t.Error("stored path lost the original suffix:", decision.StoredPath)
	}
	if moved, err := os.ReadFile(decision.StoredPath); err != nil {
		t.Error("unable to read vault copy:", err)
	} else if !bytes.Equal(moved, content) {
		t.Error("vault copy content mismatch")
	}

	// Re-presenting the vault copy itself must be a no-op: the file already
	// lives inside the vault, so it is admitted in place (at tier 2, since its
	// tier-1 first sight stored no fringe row), no duplicate is emitted, and
	// no second move occurs.
	repeat := environment.process(t, decision.StoredPath)
	if repeat.Result != ResultUnique || repeat.StoredPath != decision.StoredPath {
		t.Errorf("vault copy re-presentation yielded %v(stored=%s)", repeat.Result, repeat.StoredPath)
	}
}

// TestProcessTierThreeStoredUnderFingerprint tests that tier-3 uniques are
// sharded under their full-content fingerprint.
func TestProcessTierThreeStoredUnderFingerprint(t *testing.T) {
	environment := newPipelineEnvironment(t, true)
	size := 256 * 1024
	contentB := randomContent(t, 6, size)
	contentC := bytes.Clone(contentB)
	contentC[size/2] ^= 0xff

	environment.process(t, environment.write(t, "a.bin", randomContent(t, 5, size)))
	environment.process(t, environment.write(t, "b.bin", contentB))
	decision := environment.process(t, environment.write(t, "c.bin", contentC))
	if decision.Result != ResultUnique || decision.Tier != 3 {
		t.Fatalf("unexpected decision: %v(tier=%d)", decision.Result, decision.Tier)
	}

	expected := hashing.Fingerprint{}
	if fingerprint, err := hashing.NewXXH3(false).Full(decision.StoredPath, uint64(size)); err != nil {
		t.Fatal("unable to fingerprint vault copy:", err)
	} else {
		expected = fingerprint
	}
	shard := expected.Hex()[:2]
	name := expected.Hex()[2:] + ".bin"
	if decision.StoredPath != filepath.Join(environment.vault, shard, name) {
		t.Error("tier-3 vault path not derived from content fingerprint:", decision.StoredPath)
	}
}

// TestProcessReadOnlyConvergence tests repeated processing of the same path
// in read-only mode: each pass accretes one more tier of content evidence
// (size, then fringe, then full) until the full index row makes every further
// pass a duplicate of the recorded path.
func TestProcessReadOnlyConvergence(t *testing.T) {
	environment := newPipelineEnvironment(t, false)
	path := environment.write(t, "a.bin", randomContent(t, 7, 100000))

	for pass, expectedTier := range []int{1, 2, 3} {
		decision := environment.process(t, path)
		if decision.Result != ResultUnique || decision.Tier != expectedTier {
			t.Fatalf("pass %d yielded %v(tier=%d), expected unique at tier %d",
				pass, decision.Result, decision.Tier, expectedTier)
		}
		if decision.StoredPath != path {
			t.Fatal("read-only processing reported a foreign stored path")
		}
	}

	settled := environment.process(t, path)
	if settled.Result != ResultDuplicate || settled.DuplicateOf != path {
		t.Fatalf("settled processing yielded %v(of=%s)", settled.Result, settled.DuplicateOf)
	}
}

// TestProcessFringeCollisionWithMissingOriginal tests that tier 3 consults
// the full index even when the fringe collision path no longer exists on
// disk.
func TestProcessFringeCollisionWithMissingOriginal(t *testing.T) {
	environment := newPipelineEnvironment(t, false)
	size := 256 * 1024
	contentB := randomContent(t, 8, size)
	environment.process(t, environment.write(t, "a.bin", randomContent(t, 9, size)))
	pathB := environment.write(t, "b.bin", contentB)
	decisionB := environment.process(t, pathB)
	if decisionB.Tier != 2 {
		t.Fatal("expected a tier-2 admit to seed the fringe index")
	}

	// Remove the fringe-indexed file, then present a fringe-colliding file
	// with different content. The full-hash table (not the filesystem)
	// decides.
	if err := os.Remove(pathB); err != nil {
		t.Fatal("unable to remove indexed file:", err)
	}
	contentC := bytes.Clone(contentB)
	contentC[size/2] ^= 0xff
	decision := environment.process(t, environment.write(t, "c.bin", contentC))
	if decision.Result != ResultUnique || decision.Tier != 3 {
		t.Errorf("unexpected decision with missing original: %v(tier=%d)", decision.Result, decision.Tier)
	}
}
