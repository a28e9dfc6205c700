package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/id"
	"github.com/ozonedb/ozone/lib/ozone"
)

// DBFactory creates a fresh database instance for one test.
type DBFactory func(t *testing.T) *ozone.DB

// RunDBTests runs the behavioral test suite against a database created by
// the factory. Callers run it once per scheme combination they support.
func RunDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Put&Get", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory(t))
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory(t))
		})

		t.Run("Metadata", func(t *testing.T) {
			testMetadata(t, factory(t))
		})

		t.Run("EdgeCases", func(t *testing.T) {
			testEdgeCases(t, factory(t))
		})

		t.Run("PerKeyOrdering", func(t *testing.T) {
			testPerKeyOrdering(t, factory(t))
		})

		t.Run("ConcurrentAccess", func(t *testing.T) {
			testConcurrentAccess(t, factory(t))
		})

		t.Run("Compact", func(t *testing.T) {
			testCompact(t, factory(t))
		})

		t.Run("Info", func(t *testing.T) {
			testInfo(t, factory(t))
		})

		t.Run("Close", func(t *testing.T) {
			testClose(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testPutGet(t *testing.T, db *ozone.DB) {
	defer db.Close()

	testKey := []byte("test-key")
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	if err := db.Put(testKey, testValue1); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}

	result, err := db.Get(testKey)
	if err != nil {
		t.Fatalf("Expected key %s to exist after Put: %v", testKey, err)
	}
	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	if err := db.Put(testKey, testValue2); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}
	result, err = db.Get(testKey)
	if err != nil {
		t.Fatalf("Expected key %s to exist after overwrite: %v", testKey, err)
	}
	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, err = db.Get([]byte("nonexistent-key"))
	if !dberr.HasCode(err, dberr.CodeNotFound) {
		t.Errorf("Expected a not-found error for a nonexistent key, got %v", err)
	}

	// Get must return a copy, not a reference to internal state.
	retrieved, _ := db.Get(testKey)
	retrieved[0] = 'X'
	original, _ := db.Get(testKey)
	if bytes.Equal(retrieved, original) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}
}

func testDelete(t *testing.T, db *ozone.DB) {
	defer db.Close()

	testKey := []byte("delete-key")

	if err := db.Put(testKey, []byte("value")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Delete(testKey); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}

	if _, err := db.Get(testKey); !dberr.HasCode(err, dberr.CodeNotFound) {
		t.Errorf("Expected a not-found error after delete, got %v", err)
	}

	// Deleting a missing key is idempotent.
	if err := db.Delete(testKey); err != nil {
		t.Errorf("Expected deleting a missing key to succeed, got %v", err)
	}
}

func testHas(t *testing.T, db *ozone.DB) {
	defer db.Close()

	testKey := []byte("has-key")

	found, err := db.Has(testKey)
	if err != nil {
		t.Fatalf("Failed to check key: %v", err)
	}
	if found {
		t.Error("Expected a missing key to report false")
	}

	if err := db.Put(testKey, []byte("value")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	found, err = db.Has(testKey)
	if err != nil {
		t.Fatalf("Failed to check key: %v", err)
	}
	if !found {
		t.Error("Expected a stored key to report true")
	}
}

func testMetadata(t *testing.T, db *ozone.DB) {
	defer db.Close()

	testKey := []byte("meta-key")
	user := id.UidFromUint64(1234)

	if err := db.PutAs(testKey, []byte("v1"), user); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	first, err := db.GetRecord(testKey)
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if first.User != user {
		t.Errorf("Expected user %s, got %s", user, first.User)
	}
	if first.Created == 0 || first.Created != first.Modified {
		t.Errorf("Expected a fresh record with created == modified, got %d / %d", first.Created, first.Modified)
	}

	if err := db.PutAs(testKey, []byte("v2"), user); err != nil {
		t.Fatalf("Failed to overwrite: %v", err)
	}
	second, err := db.GetRecord(testKey)
	if err != nil {
		t.Fatalf("Failed to get record: %v", err)
	}
	if second.Created != first.Created {
		t.Error("Expected the overwrite to keep the creation timestamp")
	}
	if second.Modified < first.Modified {
		t.Error("Expected the overwrite to advance the modification timestamp")
	}
}

func testEdgeCases(t *testing.T, db *ozone.DB) {
	defer db.Close()

	// Empty value.
	if err := db.Put([]byte("empty-value"), []byte{}); err != nil {
		t.Fatalf("Failed to put an empty value: %v", err)
	}
	result, err := db.Get([]byte("empty-value"))
	if err != nil {
		t.Fatalf("Failed to get an empty value: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("Expected an empty value, got %d bytes", len(result))
	}

	// Large value.
	large := make([]byte, 1<<20)
	for i := range large {
		large[i] = byte(i)
	}
	if err := db.Put([]byte("large-value"), large); err != nil {
		t.Fatalf("Failed to put a large value: %v", err)
	}
	result, err = db.Get([]byte("large-value"))
	if err != nil {
		t.Fatalf("Failed to get a large value: %v", err)
	}
	if !bytes.Equal(result, large) {
		t.Error("Large value came back different")
	}

	// Binary key.
	binKey := []byte{0x00, 0xFF, 0x10, 0x00}
	if err := db.Put(binKey, []byte("binary")); err != nil {
		t.Fatalf("Failed to put with a binary key: %v", err)
	}
	if result, err = db.Get(binKey); err != nil || !bytes.Equal(result, []byte("binary")) {
		t.Errorf("Binary key round trip failed: %q / %v", result, err)
	}
}

func testPerKeyOrdering(t *testing.T, db *ozone.DB) {
	defer db.Close()

	// All writes to one key land on the same bot and are processed in
	// submission order, so the last write wins.
	const n = 200
	key := []byte("ordered-key")
	for i := 0; i < n; i++ {
		if err := db.Put(key, []byte(fmt.Sprintf("v%d", i))); err != nil {
			t.Fatalf("Failed to put %d: %v", i, err)
		}
	}

	result, err := db.Get(key)
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if want := fmt.Sprintf("v%d", n-1); string(result) != want {
		t.Errorf("Expected %s, got %s", want, result)
	}
}

func testConcurrentAccess(t *testing.T, db *ozone.DB) {
	defer db.Close()

	const goroutines = 8
	const keysPerGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(g int) {
			defer wg.Done()
			for i := 0; i < keysPerGoroutine; i++ {
				key := []byte(fmt.Sprintf("g%d-key%d", g, i))
				value := []byte(fmt.Sprintf("g%d-value%d", g, i))
				if err := db.Put(key, value); err != nil {
					t.Errorf("Failed to put %s: %v", key, err)
					return
				}
				got, err := db.Get(key)
				if err != nil {
					t.Errorf("Failed to get %s: %v", key, err)
					return
				}
				if !bytes.Equal(got, value) {
					t.Errorf("Wrong value for %s: %s", key, got)
					return
				}
			}
		}(g)
	}
	wg.Wait()

	info, err := db.Info()
	if err != nil {
		t.Fatalf("Failed to get info: %v", err)
	}
	if info.LiveRecords != goroutines*keysPerGoroutine {
		t.Errorf("Expected %d live records, got %d", goroutines*keysPerGoroutine, info.LiveRecords)
	}
}

func testCompact(t *testing.T, db *ozone.DB) {
	defer db.Close()

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		if err := db.Put(key, []byte(fmt.Sprintf("value-%d", i))); err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
		// Every record overwritten once, half deleted.
		if err := db.Put(key, []byte(fmt.Sprintf("value-%d-final", i))); err != nil {
			t.Fatalf("Failed to overwrite: %v", err)
		}
		if i%2 == 0 {
			if err := db.Delete(key); err != nil {
				t.Fatalf("Failed to delete: %v", err)
			}
		}
	}

	before, err := db.Info()
	if err != nil {
		t.Fatalf("Failed to get info: %v", err)
	}
	if before.GarbageRecords == 0 {
		t.Fatal("Expected garbage before compaction")
	}

	if err := db.Compact(); err != nil {
		t.Fatalf("Failed to compact: %v", err)
	}

	after, err := db.Info()
	if err != nil {
		t.Fatalf("Failed to get info: %v", err)
	}
	if after.GarbageRecords != 0 {
		t.Errorf("Expected no garbage after compaction, got %d", after.GarbageRecords)
	}
	if after.LiveRecords != 10 {
		t.Errorf("Expected 10 live records after compaction, got %d", after.LiveRecords)
	}
	if after.DataBytes >= before.DataBytes {
		t.Errorf("Expected compaction to reclaim space, %d -> %d", before.DataBytes, after.DataBytes)
	}

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("key-%d", i))
		value, err := db.Get(key)
		if i%2 == 0 {
			if !dberr.HasCode(err, dberr.CodeNotFound) {
				t.Errorf("Expected %s to stay deleted, got %q / %v", key, value, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Expected %s to survive compaction: %v", key, err)
			continue
		}
		if want := fmt.Sprintf("value-%d-final", i); string(value) != want {
			t.Errorf("Expected %s, got %s", want, value)
		}
	}
}

func testInfo(t *testing.T, db *ozone.DB) {
	defer db.Close()

	for i := 0; i < 10; i++ {
		if err := db.Put([]byte(fmt.Sprintf("key-%d", i)), []byte("value")); err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
	}

	info, err := db.Info()
	if err != nil {
		t.Fatalf("Failed to get info: %v", err)
	}
	if info.LiveRecords != 10 {
		t.Errorf("Expected 10 live records, got %d", info.LiveRecords)
	}
	if !info.Healthy {
		t.Error("Expected a healthy database")
	}
	if len(info.Slices) != info.Zones*info.WorkersPerZone {
		t.Errorf("Expected %d slices, got %d", info.Zones*info.WorkersPerZone, len(info.Slices))
	}
	if info.DataBytes == 0 {
		t.Error("Expected data bytes to be accounted")
	}
}

func testClose(t *testing.T, db *ozone.DB) {
	if err := db.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	if err := db.Put([]byte("key"), []byte("late")); !dberr.HasCode(err, dberr.CodeShuttingDown) {
		t.Errorf("Expected writes after close to be rejected, got %v", err)
	}
	if db.Healthy() {
		t.Error("Expected a closed database to report unhealthy")
	}

	// Close is idempotent.
	if err := db.Close(); err != nil {
		t.Errorf("Expected a second close to succeed, got %v", err)
	}
}
