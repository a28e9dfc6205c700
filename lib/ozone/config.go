package ozone

import (
	"time"

	"github.com/ozonedb/ozone/lib/dberr"
	"github.com/ozonedb/ozone/lib/scheme"
)

// SchemeConfig selects the at-rest pipeline stages by name. Keys are only
// needed for the stages that use them.
type SchemeConfig struct {
	KeyHash    string // "xxhash" or "blake2b"
	Checksum   string // "crc32c" or "sha256"
	Sign       string // "none" or "hmac-sha256"
	SignKey    []byte
	Encrypt    string // "none", "aes-gcm" or "chacha20"
	EncryptKey []byte
}

// Config describes one database instance.
type Config struct {
	// Dir is the root directory. Zone slices live in numbered
	// subdirectories below it.
	Dir string

	// Zones is the number of keyspace shards. Fixed for the lifetime of
	// the on-disk state; changing it reshuffles which zone owns which
	// key.
	Zones int

	// WorkersPerZone is the bot pool size per zone.
	WorkersPerZone int

	// RequestTimeout bounds how long a caller waits for a bot's reply.
	RequestTimeout time.Duration

	// ShutdownTimeout bounds the drain on Close.
	ShutdownTimeout time.Duration

	Schemes SchemeConfig

	LogLevel string
}

// DefaultConfig returns a config with conservative defaults rooted at dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:             dir,
		Zones:           4,
		WorkersPerZone:  2,
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Schemes: SchemeConfig{
			KeyHash:  "xxhash",
			Checksum: "crc32c",
			Sign:     "none",
			Encrypt:  "none",
		},
		LogLevel: "warning",
	}
}

// Validate checks the config for structural problems.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return dberr.New(dberr.CodeConfig, "database directory must not be empty")
	}
	if c.Zones <= 0 {
		return dberr.New(dberr.CodeConfig, "need at least one zone, got %d", c.Zones)
	}
	if c.WorkersPerZone <= 0 {
		return dberr.New(dberr.CodeConfig, "need at least one worker per zone, got %d", c.WorkersPerZone)
	}
	if c.RequestTimeout <= 0 {
		return dberr.New(dberr.CodeConfig, "request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.ShutdownTimeout <= 0 {
		return dberr.New(dberr.CodeConfig, "shutdown timeout must be positive, got %s", c.ShutdownTimeout)
	}
	return nil
}

// buildSchemes instantiates the at-rest pipeline from the config.
func (c *Config) buildSchemes() (*scheme.RestSchemes, error) {
	hasher, err := scheme.NewHasher(c.Schemes.KeyHash)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeConfig, err, "invalid key hash scheme")
	}
	checksummer, err := scheme.NewChecksummer(c.Schemes.Checksum)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeConfig, err, "invalid checksum scheme")
	}
	signer, err := scheme.NewSigner(c.Schemes.Sign, c.Schemes.SignKey)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeConfig, err, "invalid signing scheme")
	}
	encrypter, err := scheme.NewEncrypter(c.Schemes.Encrypt, c.Schemes.EncryptKey)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeConfig, err, "invalid encryption scheme")
	}
	return &scheme.RestSchemes{
		Key:      hasher,
		Checksum: checksummer,
		Sign:     signer,
		Encrypt:  encrypter,
	}, nil
}
