package ozone_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/ozone"
	dbtesting "github.com/ozonedb/ozone/lib/ozone/testing"
)

func factoryWith(schemes ozone.SchemeConfig) dbtesting.DBFactory {
	return func(t *testing.T) *ozone.DB {
		t.Helper()
		cfg := ozone.DefaultConfig(t.TempDir())
		cfg.Schemes = schemes
		db, err := ozone.Open(cfg)
		if err != nil {
			t.Fatalf("Failed to open database: %v", err)
		}
		return db
	}
}

func TestDB(t *testing.T) {
	key32 := bytes.Repeat([]byte{0x42}, 32)

	dbtesting.RunDBTests(t, "defaults", factoryWith(ozone.SchemeConfig{
		KeyHash:  "xxhash",
		Checksum: "crc32c",
		Sign:     "none",
		Encrypt:  "none",
	}))

	dbtesting.RunDBTests(t, "signed-encrypted", factoryWith(ozone.SchemeConfig{
		KeyHash:    "blake2b",
		Checksum:   "sha256",
		Sign:       "hmac-sha256",
		SignKey:    key32,
		Encrypt:    "aes-gcm",
		EncryptKey: key32,
	}))

	dbtesting.RunDBTests(t, "chacha20", factoryWith(ozone.SchemeConfig{
		KeyHash:    "xxhash",
		Checksum:   "crc32c",
		Sign:       "none",
		Encrypt:    "chacha20",
		EncryptKey: key32,
	}))
}

// singleSliceConfig pins everything to one zone slice so tests can find
// the record's data file on disk.
func singleSliceConfig(dir string) ozone.Config {
	cfg := ozone.DefaultConfig(dir)
	cfg.Zones = 1
	cfg.WorkersPerZone = 1
	return cfg
}

func TestDurabilityAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := ozone.DefaultConfig(dir)

	db, err := ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Put([]byte("persisted"), []byte("across-restart")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Put([]byte("removed"), []byte("soon")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Delete([]byte("removed")); err != nil {
		t.Fatalf("Failed to delete: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	db, err = ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	value, err := db.Get([]byte("persisted"))
	if err != nil {
		t.Fatalf("Expected the record to survive the restart: %v", err)
	}
	if !bytes.Equal(value, []byte("across-restart")) {
		t.Fatalf("Expected across-restart, got %q", value)
	}
	if _, err := db.Get([]byte("removed")); !dberr.HasCode(err, dberr.CodeNotFound) {
		t.Fatalf("Expected the delete to survive the restart, got %v", err)
	}
}

func TestCorruptValueFailsClosed(t *testing.T) {
	dir := t.TempDir()
	cfg := singleSliceConfig(dir)

	db, err := ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Put([]byte("key"), []byte("a value worth protecting")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Flip one payload byte in the single zone slice's data file.
	path := filepath.Join(dir, "z000", "w00", "000001.dat")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read data file: %v", err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatalf("Failed to write corrupted data file: %v", err)
	}

	db, err = ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	value, err := db.Get([]byte("key"))
	if !dberr.HasCode(err, dberr.CodeIntegrity) {
		t.Fatalf("Expected an integrity failure, got %q / %v", value, err)
	}
	if value != nil {
		t.Fatal("A failed read must not return data")
	}
	// Only the record is damaged, the database stays serviceable.
	if !db.Healthy() {
		t.Fatal("Expected the database to stay healthy")
	}
	if err := db.Put([]byte("other"), []byte("still works")); err != nil {
		t.Fatalf("Expected writes to keep working: %v", err)
	}
}

func TestCompactSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	cfg := ozone.DefaultConfig(dir)

	db, err := ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	for i := 0; i < 3; i++ {
		// Repeated overwrites leave garbage behind.
		if err := db.Put([]byte("key"), []byte{byte('a' + i)}); err != nil {
			t.Fatalf("Failed to put: %v", err)
		}
	}
	if err := db.Compact(); err != nil {
		t.Fatalf("Failed to compact: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	db, err = ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen after compaction: %v", err)
	}
	defer db.Close()

	value, err := db.Get([]byte("key"))
	if err != nil {
		t.Fatalf("Expected the record to survive compaction and restart: %v", err)
	}
	if !bytes.Equal(value, []byte("c")) {
		t.Fatalf("Expected c, got %q", value)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*ozone.Config)
	}{
		{"EmptyDir", func(c *ozone.Config) { c.Dir = "" }},
		{"NoZones", func(c *ozone.Config) { c.Zones = 0 }},
		{"NoWorkers", func(c *ozone.Config) { c.WorkersPerZone = 0 }},
		{"NoTimeout", func(c *ozone.Config) { c.RequestTimeout = 0 }},
		{"UnknownChecksum", func(c *ozone.Config) { c.Schemes.Checksum = "md5" }},
		{"ShortEncryptKey", func(c *ozone.Config) {
			c.Schemes.Encrypt = "aes-gcm"
			c.Schemes.EncryptKey = []byte("too short")
		}},
		{"MissingSignKey", func(c *ozone.Config) { c.Schemes.Sign = "hmac-sha256" }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := ozone.DefaultConfig(t.TempDir())
			tc.mutate(&cfg)
			if _, err := ozone.Open(cfg); !dberr.HasCode(err, dberr.CodeConfig) {
				t.Fatalf("Expected a configuration error, got %v", err)
			}
		})
	}
}

func TestSchemeMismatchOnReopen(t *testing.T) {
	dir := t.TempDir()

	cfg := singleSliceConfig(dir)
	db, err := ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Put([]byte("key"), []byte("value")); err != nil {
		t.Fatalf("Failed to put: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Reopen with a different checksum scheme. The stored record's scheme
	// ids no longer match, the read must fail closed.
	cfg.Schemes.Checksum = "sha256"
	db, err = ozone.Open(cfg)
	if err != nil {
		t.Fatalf("Failed to reopen database: %v", err)
	}
	defer db.Close()

	if _, err := db.Get([]byte("key")); !dberr.HasCode(err, dberr.CodeIntegrity) {
		t.Fatalf("Expected an integrity failure for a scheme mismatch, got %v", err)
	}
}
