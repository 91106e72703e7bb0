package session

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/vaultgate/vaultgate/pkg/dedup"
	"github.com/vaultgate/vaultgate/pkg/store"
)

// testLayout bundles the standard on-disk layout for session tests.
type testLayout struct {
	database string
	vault    string
	inbound  string
}

// newTestLayout creates the layout inside a single temporary directory.
func newTestLayout(t *testing.T) *testLayout {
	t.Helper()
	base := t.TempDir()
	inbound := filepath.Join(base, "inbound")
	if err := os.Mkdir(inbound, 0700); err != nil {
		t.Fatal("unable to create inbound directory:", err)
	}
	return &testLayout{
		database: filepath.Join(base, "index.db"),
		vault:    filepath.Join(base, "vault"),
		inbound:  inbound,
	}
}

// write writes a pseudorandom file of the specified size into the inbound
// directory.
func (l *testLayout) write(t *testing.T, name string, seed int64, size int) string {
	t.Helper()
	content := make([]byte, size)
	if _, err := rand.New(rand.NewSource(seed)).Read(content); err != nil {
		t.Fatal("unable to generate content:", err)
	}
	path := filepath.Join(l.inbound, name)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal("unable to write file:", err)
	}
	return path
}

// countFiles counts regular files under a root recursively.
func countFiles(t *testing.T, root string) int {
	t.Helper()
	var count int
	err := filepath.WalkDir(root, func(_ string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.Type().IsRegular() {
			count++
		}
		return nil
	})
	if os.IsNotExist(err) {
		return 0
	} else if err != nil {
		t.Fatal("unable to count files:", err)
	}
	return count
}

// TestSessionExclusivity tests that a second session on the same database
// fails fast while the first is open, and succeeds after it closes.
func TestSessionExclusivity(t *testing.T) {
	layout := newTestLayout(t)

	first, err := Open(&Options{Database: layout.database}, nil)
	if err != nil {
		t.Fatal("unable to open session:", err)
	}

	if _, err := Open(&Options{Database: layout.database}, nil); !errors.Is(err, ErrSessionActive) {
		t.Error("concurrent session open didn't fail with ErrSessionActive:", err)
	}

	if err := first.Close(); err != nil {
		t.Fatal("unable to close session:", err)
	}

	second, err := Open(&Options{Database: layout.database}, nil)
	if err != nil {
		t.Fatal("unable to reopen session after close:", err)
	}
	second.Close()
}

// TestSessionRequiresDatabase tests that opening without a database path is a
// configuration error.
func TestSessionRequiresDatabase(t *testing.T) {
	if _, err := Open(&Options{}, nil); err == nil {
		t.Error("session opened without a database path")
	}
}

// TestSessionReaderModeMismatch tests that a database created in one fringe
// reader mode refuses to open in the other.
func TestSessionReaderModeMismatch(t *testing.T) {
	layout := newTestLayout(t)

	first, err := Open(&Options{Database: layout.database, HDDMode: true}, nil)
	if err != nil {
		t.Fatal("unable to open session:", err)
	}
	if err := first.Close(); err != nil {
		t.Fatal("unable to close session:", err)
	}

	_, err = Open(&Options{Database: layout.database}, nil)
	var mismatch *store.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Error("reader mode mismatch not surfaced as SchemaMismatchError:", err)
	}
}

// TestSessionProcessDirectory tests an active-mode batch over a directory:
// uniques move to the vault at their deciding tiers, duplicates stay, and no
// file is lost or created (conservation of mass).
func TestSessionProcessDirectory(t *testing.T) {
	layout := newTestLayout(t)
	size := 200000

	// Four files engineered to exercise every tier: a fresh size, a size
	// collision, a fringe collision, and an exact duplicate of the
	// fringe-colliding file.
	contentB := make([]byte, size)
	if _, err := rand.New(rand.NewSource(2)).Read(contentB); err != nil {
		t.Fatal("unable to generate content:", err)
	}
	contentC := bytes.Clone(contentB)
	contentC[size/2] ^= 0xff
	layout.write(t, "a.bin", 1, size)
	if err := os.WriteFile(filepath.Join(layout.inbound, "b.bin"), contentB, 0600); err != nil {
		t.Fatal("unable to write file:", err)
	}
	if err := os.WriteFile(filepath.Join(layout.inbound, "c.bin"), contentC, 0600); err != nil {
		t.Fatal("unable to write file:", err)
	}
	if err := os.WriteFile(filepath.Join(layout.inbound, "d.bin"), bytes.Clone(contentC), 0600); err != nil {
		t.Fatal("unable to write file:", err)
	}

	before := countFiles(t, layout.inbound)

	session, err := Open(&Options{Database: layout.database, Vault: layout.vault}, nil)
	if err != nil {
		t.Fatal("unable to open session:", err)
	}
	defer session.Close()

	var decisions []dedup.Decision
	err = session.ProcessDirectory(layout.inbound, true, func(decision dedup.Decision) error {
		decisions = append(decisions, decision)
		return nil
	})
	if err != nil {
		t.Fatal("unable to process directory:", err)
	}

	if len(decisions) != 4 {
		t.Fatalf("unexpected decision count: %d != 4", len(decisions))
	}

	// Traversal is lexicographic: a.bin, b.bin, c.bin, d.bin.
	for index, expectedTier := range []int{1, 2, 3} {
		if decisions[index].Result != dedup.ResultUnique || decisions[index].Tier != expectedTier {
			t.Errorf("file %d yielded %v(tier=%d), expected unique at tier %d",
				index, decisions[index].Result, decisions[index].Tier, expectedTier)
		}
	}
	if decisions[3].Result != dedup.ResultDuplicate {
		t.Error("expected d.bin to be a duplicate")
	}
	if decisions[3].DuplicateOf != decisions[2].StoredPath {
		t.Error("duplicate doesn't reference the vault copy of c.bin")
	}

	// Conservation of mass: sources before == sources after + vault added.
	after := countFiles(t, layout.inbound)
	vaulted := countFiles(t, layout.vault)
	if before != after+vaulted {
		t.Errorf("files not conserved: %d != %d + %d", before, after, vaulted)
	}
	if vaulted != 3 {
		t.Error("unexpected vault file count:", vaulted)
	}
}

// TestSessionBatchIdempotence tests that re-running a directory scan over the
// vault itself yields no moves and no duplicates.
func TestSessionBatchIdempotence(t *testing.T) {
	layout := newTestLayout(t)
	layout.write(t, "a.bin", 3, 100000)
	layout.write(t, "b.bin", 4, 200000)

	session, err := Open(&Options{Database: layout.database, Vault: layout.vault}, nil)
	if err != nil {
		t.Fatal("unable to open session:", err)
	}
	if err := session.ProcessDirectory(layout.inbound, true, func(dedup.Decision) error {
		return nil
	}); err != nil {
		t.Fatal("unable to process directory:", err)
	}
	if err := session.Close(); err != nil {
		t.Fatal("unable to close session:", err)
	}

	// Re-scan the vault itself with a fresh session.
	session, err = Open(&Options{Database: layout.database, Vault: layout.vault}, nil)
	if err != nil {
		t.Fatal("unable to reopen session:", err)
	}
	defer session.Close()

	vaultedBefore := countFiles(t, layout.vault)
	err = session.ProcessDirectory(layout.vault, true, func(decision dedup.Decision) error {
		if decision.Result == dedup.ResultDuplicate {
			t.Error("vault re-scan emitted a duplicate for", decision.OriginalPath)
		}
		if decision.Result == dedup.ResultUnique && decision.StoredPath != decision.OriginalPath {
			t.Error("vault re-scan moved", decision.OriginalPath)
		}
		return nil
	})
	if err != nil {
		t.Fatal("unable to re-scan vault:", err)
	}
	if vaultedAfter := countFiles(t, layout.vault); vaultedAfter != vaultedBefore {
		t.Error("vault re-scan changed the vault file count")
	}
}

// TestSessionRecoveryOnOpen tests that opening a session resolves journal
// rows left behind by an interrupted predecessor.
func TestSessionRecoveryOnOpen(t *testing.T) {
	layout := newTestLayout(t)
	source := layout.write(t, "a.bin", 5, 1000)

	// Simulate an interrupted move: a moving-phase journal row with both
	// paths live, as left by a kill between link and unlink.
	st, err := store.Open(layout.database, false, nil)
	if err != nil {
		t.Fatal("unable to open store:", err)
	}
	destination := filepath.Join(layout.vault, "ab", "cdef")
	if err := os.MkdirAll(filepath.Dir(destination), 0700); err != nil {
		t.Fatal("unable to create shard directory:", err)
	}
	if err := os.Link(source, destination); err != nil {
		t.Fatal("unable to create vault link:", err)
	}
	id, err := st.JournalPlan(source, destination, 1000)
	if err != nil {
		t.Fatal("unable to plan move:", err)
	}
	if err := st.JournalSetPhase(id, store.JournalPhaseMoving); err != nil {
		t.Fatal("unable to promote journal row:", err)
	}
	if err := st.Close(); err != nil {
		t.Fatal("unable to close store:", err)
	}

	// Opening a session runs recovery: the vault copy disappears, the source
	// survives, and re-processing admits the file as unique.
	session, err := Open(&Options{Database: layout.database, Vault: layout.vault}, nil)
	if err != nil {
		t.Fatal("unable to open session:", err)
	}
	defer session.Close()

	if _, err := os.Lstat(destination); !os.IsNotExist(err) {
		t.Error("interrupted move's vault copy not rolled back")
	}
	if _, err := os.Lstat(source); err != nil {
		t.Error("interrupted move's source not preserved")
	}

	decision, err := session.ProcessFile(source)
	if err != nil {
		t.Fatal("unable to process recovered file:", err)
	}
	if decision.Result != dedup.ResultUnique {
		t.Error("recovered file not admitted as unique:", decision.Result)
	}
}

// TestSessionReadOnlyMode tests that a session without a vault updates
// indices but leaves files in place.
func TestSessionReadOnlyMode(t *testing.T) {
	layout := newTestLayout(t)
	path := layout.write(t, "a.bin", 6, 50000)

	session, err := Open(&Options{Database: layout.database}, nil)
	if err != nil {
		t.Fatal("unable to open session:", err)
	}
	defer session.Close()

	decision, err := session.ProcessFile(path)
	if err != nil {
		t.Fatal("unable to process file:", err)
	}
	if decision.Result != dedup.ResultUnique {
		t.Fatal("first sight not unique:", decision.Result)
	}
	if decision.StoredPath != path {
		t.Error("read-only stored path differs from original")
	}
	if _, err := os.Lstat(path); err != nil {
		t.Error("read-only mode moved the file")
	}

	// Repeated processing accretes evidence tier by tier, never moving the
	// file, until the full index row makes it a duplicate of itself.
	for _, expectedTier := range []int{2, 3} {
		repeat, err := session.ProcessFile(path)
		if err != nil {
			t.Fatal("unable to reprocess file:", err)
		}
		if repeat.Result != dedup.ResultUnique || repeat.Tier != expectedTier {
			t.Errorf("reprocessing yielded %v(tier=%d), expected unique at tier %d",
				repeat.Result, repeat.Tier, expectedTier)
		}
		if _, err := os.Lstat(path); err != nil {
			t.Error("read-only reprocessing moved the file")
		}
	}
	settled, err := session.ProcessFile(path)
	if err != nil {
		t.Fatal("unable to reprocess file:", err)
	}
	if settled.Result != dedup.ResultDuplicate || settled.DuplicateOf != path {
		t.Errorf("settled reprocessing yielded %v(of=%s)", settled.Result, settled.DuplicateOf)
	}
}
