package scheme

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// --------------------------------------------------------------------------
// CRC32C (default checksummer)
// --------------------------------------------------------------------------

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type crc32cChecksummer struct{}

// NewCRC32CChecksummer returns the CRC32C (Castagnoli) checksummer, the
// default scheme for detecting accidental corruption.
func NewCRC32CChecksummer() Checksummer { return crc32cChecksummer{} }

func (crc32cChecksummer) ID() ID { return ChecksumCRC32C }
func (crc32cChecksummer) Len() int { return 4 }

func (crc32cChecksummer) Calculate(data []byte) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, crc32.Checksum(data, castagnoli))
	return out
}

func (c crc32cChecksummer) Verify(data, sum []byte) bool {
	if len(sum) != c.Len() {
		return false
	}
	return binary.BigEndian.Uint32(sum) == crc32.Checksum(data, castagnoli)
}

// --------------------------------------------------------------------------
// Truncated SHA-256
// --------------------------------------------------------------------------

type sha256Checksummer struct{}

// NewSHA256Checksummer returns a checksummer using the first 8 bytes of a
// SHA-256 digest, for deployments that want a longer tag than CRC32C.
func NewSHA256Checksummer() Checksummer { return sha256Checksummer{} }

func (sha256Checksummer) ID() ID { return ChecksumSHA256T }
func (sha256Checksummer) Len() int { return 8 }

func (sha256Checksummer) Calculate(data []byte) []byte {
	sum := sha256.Sum256(data)
	out := make([]byte, 8)
	copy(out, sum[:8])
	return out
}

func (c sha256Checksummer) Verify(data, sum []byte) bool {
	if len(sum) != c.Len() {
		return false
	}
	full := sha256.Sum256(data)
	return subtle.ConstantTimeCompare(full[:8], sum) == 1
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// NewChecksummer builds a Checksummer from its configured name.
func NewChecksummer(name string) (Checksummer, error) {
	switch name {
	case "", "crc32c":
		return NewCRC32CChecksummer(), nil
	case "sha256":
		return NewSHA256Checksummer(), nil
	default:
		return nil, fmt.Errorf("unknown checksummer %q (expected one of: crc32c, sha256)", name)
	}
}
