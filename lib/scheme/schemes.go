package scheme

import (
	"github.com/ozonedb/ozone/lib/dberr"
)

// --------------------------------------------------------------------------
// RestSchemes
// --------------------------------------------------------------------------

// RestSchemes is the ordered, overridable set of at-rest transforms applied
// around raw record bytes. Each stage is independently substitutable;
// Defaults() applies where no override is configured.
//
// Thread-safety: a RestSchemes value is immutable after construction and
// safe to share across all worker bots.
type RestSchemes struct {
	Key      Hasher      // Hashes plaintext keys for indexing, outside the pipeline.
	Checksum Checksummer // First encode stage.
	Sign     Signer      // Second encode stage, covers the checksum.
	Encrypt  Encrypter   // Third encode stage, covers checksum and signature.
}

// Defaults returns the default scheme set: xxhash key hashing, CRC32C
// checksums, no signing, no encryption.
func Defaults() *RestSchemes {
	return &RestSchemes{
		Key:      NewXXHasher(),
		Checksum: NewCRC32CChecksummer(),
		Sign:     NewNoneSigner(),
		Encrypt:  NewNoneEncrypter(),
	}
}

// headerLen is the number of scheme id bytes prepended to every encoded
// payload: checksummer, signer, encrypter.
const headerLen = 3

// --------------------------------------------------------------------------
// Encode / Decode
// --------------------------------------------------------------------------

// Encode runs the at-rest pipeline over plain in the fixed order
// checksum -> sign -> encrypt and prepends the per-stage scheme ids.
// The input slice is not modified.
func (s *RestSchemes) Encode(plain []byte) ([]byte, error) {
	body := make([]byte, len(plain), len(plain)+s.Checksum.Len()+s.Sign.Len())
	copy(body, plain)

	// [1] checksum over the plaintext
	body = append(body, s.Checksum.Calculate(body)...)

	// [2] signature over plaintext + checksum
	body = append(body, s.Sign.Sign(body)...)

	// [3] encryption over the whole tagged body
	sealed, err := s.Encrypt.Encrypt(body)
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeIO, err, "encrypt stage failed")
	}

	out := make([]byte, 0, headerLen+len(sealed))
	out = append(out, byte(s.Checksum.ID()), byte(s.Sign.ID()), byte(s.Encrypt.ID()))
	out = append(out, sealed...)
	return out, nil
}

// Decode inverts Encode: decrypt -> verify signature -> verify checksum,
// failing closed at the first stage that fails. Partially decoded data is
// never returned.
func (s *RestSchemes) Decode(payload []byte) ([]byte, error) {
	if len(payload) < headerLen {
		return nil, dberr.New(dberr.CodeIntegrity, "payload shorter than scheme header")
	}

	// A record written under a different scheme combination must not be
	// decoded with this one.
	if ID(payload[0]) != s.Checksum.ID() ||
		ID(payload[1]) != s.Sign.ID() ||
		ID(payload[2]) != s.Encrypt.ID() {
		return nil, dberr.New(dberr.CodeIntegrity,
			"record encoded with scheme set [%#x %#x %#x], configured set is [%#x %#x %#x]",
			payload[0], payload[1], payload[2],
			byte(s.Checksum.ID()), byte(s.Sign.ID()), byte(s.Encrypt.ID()))
	}

	body, err := s.Encrypt.Decrypt(payload[headerLen:])
	if err != nil {
		return nil, dberr.Wrap(dberr.CodeIntegrity, err, "decrypt stage failed")
	}

	sigLen := s.Sign.Len()
	sumLen := s.Checksum.Len()
	if len(body) < sigLen+sumLen {
		return nil, dberr.New(dberr.CodeIntegrity, "decrypted body shorter than its tags")
	}

	signed, sig := body[:len(body)-sigLen], body[len(body)-sigLen:]
	if !s.Sign.Verify(signed, sig) {
		return nil, dberr.New(dberr.CodeIntegrity, "signature verification failed")
	}

	plain, sum := signed[:len(signed)-sumLen], signed[len(signed)-sumLen:]
	if !s.Checksum.Verify(plain, sum) {
		return nil, dberr.New(dberr.CodeIntegrity, "checksum verification failed")
	}

	out := make([]byte, len(plain))
	copy(out, plain)
	return out, nil
}

// KeyHash returns the index hash of a plaintext key as a uint64, derived
// from the first 8 bytes of the configured key hasher's digest.
func (s *RestSchemes) KeyHash(key []byte) uint64 {
	digest := s.Key.Hash(key)
	var h uint64
	for i := 0; i < 8 && i < len(digest); i++ {
		h = h<<8 | uint64(digest[i])
	}
	return h
}
