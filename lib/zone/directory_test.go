package zone

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
)

func testKeyHash(key []byte) uint64 {
	h := fnv.New64a()
	h.Write(key)
	return h.Sum64()
}

func testMeta() Meta {
	now := time.Now().UnixNano()
	return Meta{Created: now, Modified: now, User: id.UidFromUint64(7)}
}

func openTestDir(t *testing.T, dir string) *Directory {
	t.Helper()
	d, err := Open(dir, testKeyHash)
	if err != nil {
		t.Fatalf("Failed to open zone slice: %v", err)
	}
	return d
}

func mustAppend(t *testing.T, d *Directory, key, value string) Location {
	t.Helper()
	loc, err := d.Append([]byte(key), []byte(value), testMeta())
	if err != nil {
		t.Fatalf("Failed to append %q: %v", key, err)
	}
	return loc
}

func mustGet(t *testing.T, d *Directory, key string) *Record {
	t.Helper()
	rec, found, err := d.Get([]byte(key))
	if err != nil {
		t.Fatalf("Failed to get %q: %v", key, err)
	}
	if !found {
		t.Fatalf("Expected %q to exist", key)
	}
	return rec
}

func TestAppendGetRoundTrip(t *testing.T) {
	d := openTestDir(t, t.TempDir())
	defer d.Close()

	meta := testMeta()
	loc, err := d.Append([]byte("alpha"), []byte("payload-a"), meta)
	if err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	mustAppend(t, d, "beta", "payload-b")

	rec, err := d.Read(loc)
	if err != nil {
		t.Fatalf("Failed to read location: %v", err)
	}
	if !bytes.Equal(rec.Key, []byte("alpha")) || !bytes.Equal(rec.Value, []byte("payload-a")) {
		t.Fatalf("Read returned wrong record: %q=%q", rec.Key, rec.Value)
	}
	if rec.Meta != meta {
		t.Fatalf("Expected meta %+v, got %+v", meta, rec.Meta)
	}

	if got := mustGet(t, d, "beta"); !bytes.Equal(got.Value, []byte("payload-b")) {
		t.Fatalf("Expected payload-b, got %q", got.Value)
	}
}

func TestOverwriteKeepsLatest(t *testing.T) {
	d := openTestDir(t, t.TempDir())
	defer d.Close()

	mustAppend(t, d, "key", "v1")
	mustAppend(t, d, "key", "v2")

	if got := mustGet(t, d, "key"); !bytes.Equal(got.Value, []byte("v2")) {
		t.Fatalf("Expected v2, got %q", got.Value)
	}

	st := d.Stats()
	if st.Live != 1 || st.Garbage != 1 {
		t.Fatalf("Expected 1 live / 1 garbage, got %d / %d", st.Live, st.Garbage)
	}
}

func TestDelete(t *testing.T) {
	d := openTestDir(t, t.TempDir())
	defer d.Close()

	mustAppend(t, d, "key", "value")

	deleted, err := d.Delete([]byte("key"), id.UidFromUint64(7))
	if err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if !deleted {
		t.Fatal("Expected delete to report an existing record")
	}

	if _, found, _ := d.Get([]byte("key")); found {
		t.Fatal("Expected key to be gone after delete")
	}

	deleted, err = d.Delete([]byte("key"), id.UidFromUint64(7))
	if err != nil {
		t.Fatalf("Failed to re-delete: %v", err)
	}
	if deleted {
		t.Fatal("Expected second delete to report a missing record")
	}
}

func TestCompact(t *testing.T) {
	d := openTestDir(t, t.TempDir())
	defer d.Close()

	for i := 0; i < 10; i++ {
		mustAppend(t, d, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i))
	}
	// Generate garbage: overwrites and a delete.
	mustAppend(t, d, "key-0", "value-0-new")
	mustAppend(t, d, "key-1", "value-1-new")
	if _, err := d.Delete([]byte("key-2"), id.UidFromUint64(7)); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	before := d.Stats()
	staleLoc, ok := d.Locate([]byte("key-3"))
	if !ok {
		t.Fatal("Expected key-3 to be located")
	}

	if err := d.Compact(); err != nil {
		t.Fatalf("Failed to compact: %v", err)
	}

	after := d.Stats()
	if after.Gen != before.Gen+1 {
		t.Fatalf("Expected generation %d, got %d", before.Gen+1, after.Gen)
	}
	if after.Live != 9 || after.Garbage != 0 {
		t.Fatalf("Expected 9 live / 0 garbage, got %d / %d", after.Live, after.Garbage)
	}
	if after.DataBytes >= before.DataBytes {
		t.Fatalf("Expected data file to shrink, %d -> %d", before.DataBytes, after.DataBytes)
	}

	// A pre-compaction location must be rejected, not silently misread.
	if _, err := d.Read(staleLoc); !dberr.HasCode(err, dberr.CodeNotFound) {
		t.Fatalf("Expected stale location to be rejected, got %v", err)
	}

	// Fresh lookups see all surviving records.
	if got := mustGet(t, d, "key-0"); !bytes.Equal(got.Value, []byte("value-0-new")) {
		t.Fatalf("Expected value-0-new, got %q", got.Value)
	}
	if _, found, _ := d.Get([]byte("key-2")); found {
		t.Fatal("Expected deleted key to stay gone after compaction")
	}
	for i := 3; i < 10; i++ {
		key := fmt.Sprintf("key-%d", i)
		if got := mustGet(t, d, key); !bytes.Equal(got.Value, []byte(fmt.Sprintf("value-%d", i))) {
			t.Fatalf("Expected %s to survive compaction, got %q", key, got.Value)
		}
	}
}

func TestReopenDurability(t *testing.T) {
	dir := t.TempDir()

	d := openTestDir(t, dir)
	mustAppend(t, d, "persisted", "across-restart")
	mustAppend(t, d, "removed", "soon")
	if _, err := d.Delete([]byte("removed"), id.UidFromUint64(7)); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	d = openTestDir(t, dir)
	defer d.Close()

	if got := mustGet(t, d, "persisted"); !bytes.Equal(got.Value, []byte("across-restart")) {
		t.Fatalf("Expected record to survive reopen, got %q", got.Value)
	}
	if _, found, _ := d.Get([]byte("removed")); found {
		t.Fatal("Expected tombstone to survive reopen")
	}
}

func TestReopenRebuildsLostIndex(t *testing.T) {
	dir := t.TempDir()

	d := openTestDir(t, dir)
	for i := 0; i < 5; i++ {
		mustAppend(t, d, fmt.Sprintf("key-%d", i), fmt.Sprintf("value-%d", i))
	}
	gen := d.Stats().Gen
	if err := d.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	if err := os.Remove(filepath.Join(dir, fileSeqName(gen, indexFileExt))); err != nil {
		t.Fatalf("Failed to remove index file: %v", err)
	}

	d = openTestDir(t, dir)
	defer d.Close()

	for i := 0; i < 5; i++ {
		key := fmt.Sprintf("key-%d", i)
		if got := mustGet(t, d, key); !bytes.Equal(got.Value, []byte(fmt.Sprintf("value-%d", i))) {
			t.Fatalf("Expected %s to be rebuilt from the data file, got %q", key, got.Value)
		}
	}
}

func TestReopenTruncatesPartialFrame(t *testing.T) {
	dir := t.TempDir()

	d := openTestDir(t, dir)
	mustAppend(t, d, "complete", "record")
	gen := d.Stats().Gen
	if err := d.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Simulate a crash mid-append: a torn frame at the data file tail.
	f, err := os.OpenFile(filepath.Join(dir, fileSeqName(gen, dataFileExt)), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("Failed to open data file: %v", err)
	}
	if _, err := f.Write(make([]byte, storedHeaderLen/2)); err != nil {
		t.Fatalf("Failed to write torn frame: %v", err)
	}
	f.Close()

	d = openTestDir(t, dir)
	defer d.Close()

	if got := mustGet(t, d, "complete"); !bytes.Equal(got.Value, []byte("record")) {
		t.Fatalf("Expected complete record to survive, got %q", got.Value)
	}
	st, err := os.Stat(filepath.Join(dir, fileSeqName(gen, dataFileExt)))
	if err != nil {
		t.Fatalf("Failed to stat data file: %v", err)
	}
	if st.Size() != d.Stats().DataBytes {
		t.Fatalf("Expected torn frame to be truncated, file has %d bytes, state says %d",
			st.Size(), d.Stats().DataBytes)
	}
}

func TestFailedCompactKeepsGeneration(t *testing.T) {
	dir := t.TempDir()

	d := openTestDir(t, dir)
	mustAppend(t, d, "alpha", "before-compact")
	gen := d.Stats().Gen

	// Squat on the next generation's index name so the publish rename
	// fails partway through compaction.
	blocker := filepath.Join(dir, fileSeqName(gen+1, indexFileExt))
	if err := os.Mkdir(blocker, 0o755); err != nil {
		t.Fatalf("Failed to create blocking directory: %v", err)
	}

	err := d.Compact()
	if err == nil {
		t.Fatal("Expected compaction to fail")
	}
	if !dberr.HasCode(err, dberr.CodeIO) {
		t.Fatalf("Expected IO error, got %v", err)
	}
	if got := d.Stats().Gen; got != gen {
		t.Fatalf("Expected generation to stay at %d after failed compaction, got %d", gen, got)
	}

	// No trace of the aborted generation may remain on disk.
	if _, err := os.Stat(filepath.Join(dir, fileSeqName(gen+1, dataFileExt))); !os.IsNotExist(err) {
		t.Fatalf("Expected no data file for aborted generation, stat returned %v", err)
	}

	mustAppend(t, d, "beta", "after-failed-compact")
	if err := d.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	d = openTestDir(t, dir)
	defer d.Close()

	if got := d.Stats().Gen; got != gen {
		t.Fatalf("Expected reopen to pick generation %d, got %d", gen, got)
	}
	if got := mustGet(t, d, "alpha"); !bytes.Equal(got.Value, []byte("before-compact")) {
		t.Fatalf("Expected alpha to survive, got %q", got.Value)
	}
	if got := mustGet(t, d, "beta"); !bytes.Equal(got.Value, []byte("after-failed-compact")) {
		t.Fatalf("Expected beta to survive, got %q", got.Value)
	}
}
