package scheme

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/crypto/blake2b"
)

// --------------------------------------------------------------------------
// xxHash64 (default key hasher)
// --------------------------------------------------------------------------

type xxHasher struct{}

// NewXXHasher returns the xxHash64 key hasher. Fast and well distributed,
// the right default for routing and index hashing where collision
// resistance against an adversary is not required.
func NewXXHasher() Hasher { return xxHasher{} }

func (xxHasher) ID() ID { return HashXX64 }
func (xxHasher) Len() int { return 8 }

func (xxHasher) Hash(data []byte) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, xxhash.Sum64(data))
	return out
}

// --------------------------------------------------------------------------
// BLAKE2b-256
// --------------------------------------------------------------------------

type blake2bHasher struct{}

// NewBlake2bHasher returns the BLAKE2b-256 key hasher for deployments that
// want a cryptographic key digest.
func NewBlake2bHasher() Hasher { return blake2bHasher{} }

func (blake2bHasher) ID() ID { return HashBlake2b }
func (blake2bHasher) Len() int { return blake2b.Size256 }

func (blake2bHasher) Hash(data []byte) []byte {
	sum := blake2b.Sum256(data)
	return sum[:]
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// NewHasher builds a Hasher from its configured name.
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", "xxhash":
		return NewXXHasher(), nil
	case "blake2b":
		return NewBlake2bHasher(), nil
	default:
		return nil, fmt.Errorf("unknown hasher %q (expected one of: xxhash, blake2b)", name)
	}
}
