package scheme

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/ozonedb/ozone/lib/dberr"
)

var testKey = []byte("0123456789abcdef0123456789abcdef") // 32 bytes

// allCombinations builds every configured scheme combination for the
// round-trip tests.
func allCombinations(t *testing.T) []*RestSchemes {
	t.Helper()

	hmacSigner, err := NewHMACSigner(testKey)
	if err != nil {
		t.Fatalf("NewHMACSigner failed: %v", err)
	}
	aesEnc, err := NewAESGCMEncrypter(testKey)
	if err != nil {
		t.Fatalf("NewAESGCMEncrypter failed: %v", err)
	}
	chachaEnc, err := NewChaCha20Encrypter(testKey)
	if err != nil {
		t.Fatalf("NewChaCha20Encrypter failed: %v", err)
	}

	hashers := []Hasher{NewXXHasher(), NewBlake2bHasher()}
	checksummers := []Checksummer{NewCRC32CChecksummer(), NewSHA256Checksummer()}
	signers := []Signer{NewNoneSigner(), hmacSigner}
	encrypters := []Encrypter{NewNoneEncrypter(), aesEnc, chachaEnc}

	var combos []*RestSchemes
	for _, h := range hashers {
		for _, cs := range checksummers {
			for _, sg := range signers {
				for _, enc := range encrypters {
					combos = append(combos, &RestSchemes{Key: h, Checksum: cs, Sign: sg, Encrypt: enc})
				}
			}
		}
	}
	return combos
}

// TestEncodeDecodeRoundTrip tests Decode(Encode(x)) == x for every scheme combination
func TestEncodeDecodeRoundTrip(t *testing.T) {
	payloads := [][]byte{
		[]byte("hello world"),
		{},
		{0x00},
		bytes.Repeat([]byte{0xab}, 64*1024),
	}

	for i, s := range allCombinations(t) {
		s := s
		t.Run(fmt.Sprintf("combo-%d", i), func(t *testing.T) {
			for _, plain := range payloads {
				encoded, err := s.Encode(plain)
				if err != nil {
					t.Fatalf("Encode failed: %v", err)
				}

				decoded, err := s.Decode(encoded)
				if err != nil {
					t.Fatalf("Decode failed: %v", err)
				}

				if !bytes.Equal(decoded, plain) {
					t.Errorf("Round trip changed the payload: got %d bytes, want %d bytes",
						len(decoded), len(plain))
				}
			}
		})
	}
}

// TestDecodeFailsClosed tests that tampering with any stage yields an
// integrity error, never garbage bytes
func TestDecodeFailsClosed(t *testing.T) {
	hmacSigner, err := NewHMACSigner(testKey)
	if err != nil {
		t.Fatalf("NewHMACSigner failed: %v", err)
	}
	aesEnc, err := NewAESGCMEncrypter(testKey)
	if err != nil {
		t.Fatalf("NewAESGCMEncrypter failed: %v", err)
	}

	s := &RestSchemes{
		Key:      NewXXHasher(),
		Checksum: NewCRC32CChecksummer(),
		Sign:     hmacSigner,
		Encrypt:  aesEnc,
	}

	plain := []byte("sensitive record value")
	encoded, err := s.Encode(plain)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Flip one byte at every position and expect an integrity error each time
	for i := range encoded {
		corrupted := make([]byte, len(encoded))
		copy(corrupted, encoded)
		corrupted[i] ^= 0x01

		decoded, err := s.Decode(corrupted)
		if err == nil {
			t.Fatalf("Decode accepted a payload corrupted at byte %d", i)
		}
		if !dberr.HasCode(err, dberr.CodeIntegrity) {
			t.Errorf("Expected an integrity error for byte %d, got: %v", i, err)
		}
		if decoded != nil {
			t.Errorf("Decode returned partial data for byte %d", i)
		}
	}
}

// TestDecodeChecksumTamperWithoutCrypto tests checksum detection with the
// default (no sign, no encrypt) pipeline, where the tag is directly on disk
func TestDecodeChecksumTamperWithoutCrypto(t *testing.T) {
	s := Defaults()

	plain := []byte("plain value")
	encoded, err := s.Encode(plain)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// The last 4 bytes are the CRC32C tag; corrupt one of them
	encoded[len(encoded)-1] ^= 0xff

	if _, err := s.Decode(encoded); !dberr.HasCode(err, dberr.CodeIntegrity) {
		t.Errorf("Expected an integrity error for a corrupted checksum tag, got: %v", err)
	}
}

// TestDecodeSchemeMismatch tests that a record written under one scheme set
// is not decoded under another
func TestDecodeSchemeMismatch(t *testing.T) {
	writer := Defaults()
	encoded, err := writer.Encode([]byte("value"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	reader := Defaults()
	reader.Checksum = NewSHA256Checksummer()

	if _, err := reader.Decode(encoded); !dberr.HasCode(err, dberr.CodeIntegrity) {
		t.Errorf("Expected an integrity error for a scheme mismatch, got: %v", err)
	}
}

// TestSignerVerify tests the Signer contract directly
func TestSignerVerify(t *testing.T) {
	signer, err := NewHMACSigner(testKey)
	if err != nil {
		t.Fatalf("NewHMACSigner failed: %v", err)
	}

	data := []byte("data to sign")
	sig := signer.Sign(data)

	if len(sig) != signer.Len() {
		t.Errorf("Expected a %d-byte signature, got %d", signer.Len(), len(sig))
	}
	if !signer.Verify(data, sig) {
		t.Error("Verify(data, Sign(data)) failed")
	}
	if signer.Verify([]byte("different data"), sig) {
		t.Error("Verify accepted a signature for different data")
	}

	otherSigner, err := NewHMACSigner([]byte("another-key-entirely-32-bytes!!!"))
	if err != nil {
		t.Fatalf("NewHMACSigner failed: %v", err)
	}
	if otherSigner.Verify(data, sig) {
		t.Error("Verify accepted a signature made with different key material")
	}
}

// TestKeyDeriver tests the Argon2id KeyDeriver contract
func TestKeyDeriver(t *testing.T) {
	kd := NewArgon2Deriver()

	secret := []byte("correct horse battery staple")
	salt := []byte("ozone-db-salt")

	derived := kd.Derive(secret, salt)
	if len(derived) != 32 {
		t.Fatalf("Expected 32 bytes of key material, got %d", len(derived))
	}

	if !kd.Verify(secret, salt, derived) {
		t.Error("Verify failed for the original secret")
	}
	if kd.Verify([]byte("wrong passphrase"), salt, derived) {
		t.Error("Verify accepted a different secret")
	}

	encoded := kd.EncodeToString(derived)
	decoded, err := kd.DecodeString(encoded)
	if err != nil {
		t.Fatalf("DecodeString failed: %v", err)
	}
	if !bytes.Equal(decoded, derived) {
		t.Error("EncodeToString/DecodeString round trip changed the key material")
	}
}

// TestRegistry tests the name-based constructors used by the config surface
func TestRegistry(t *testing.T) {
	if _, err := NewHasher("xxhash"); err != nil {
		t.Errorf("NewHasher(xxhash) failed: %v", err)
	}
	if _, err := NewHasher("no-such-hasher"); err == nil {
		t.Error("NewHasher accepted an unknown name")
	}
	if _, err := NewChecksummer("sha256"); err != nil {
		t.Errorf("NewChecksummer(sha256) failed: %v", err)
	}
	if _, err := NewSigner("hmac-sha256", nil); err == nil {
		t.Error("NewSigner(hmac-sha256) accepted an empty key")
	}
	if _, err := NewEncrypter("aes-gcm", []byte("short")); err == nil {
		t.Error("NewEncrypter(aes-gcm) accepted a short key")
	}
	if _, err := NewEncrypter("", nil); err != nil {
		t.Errorf("default encrypter failed: %v", err)
	}
}
