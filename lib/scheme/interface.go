package scheme

// --------------------------------------------------------------------------
// Scheme Identifiers
// --------------------------------------------------------------------------

// ID is a single-byte scheme identifier written into every encoded payload
// so that decode can detect a scheme mismatch. Identifiers are namespaced
// per stage and must never be reused for a different algorithm.
type ID byte

const (
	// Hashers (key indexing)
	HashXX64    ID = 0x11
	HashBlake2b ID = 0x12

	// Checksummers
	ChecksumCRC32C  ID = 0x21
	ChecksumSHA256T ID = 0x22

	// Signers
	SignNone       ID = 0x31
	SignHMACSHA256 ID = 0x32

	// Encrypters
	EncryptNone     ID = 0x41
	EncryptAESGCM   ID = 0x42
	EncryptChaCha20 ID = 0x43
)

// --------------------------------------------------------------------------
// Capability Interfaces
// --------------------------------------------------------------------------

// Hasher hashes database keys for indexing. The hash is computed over the
// plaintext key, independent of the at-rest pipeline.
//
// Thread-safety: implementations must be safe for concurrent use.
type Hasher interface {
	ID() ID
	// Len returns the fixed digest length in bytes.
	Len() int
	// Hash returns the digest of data.
	Hash(data []byte) []byte
}

// Checksummer detects accidental corruption of data at rest.
//
// Thread-safety: implementations must be safe for concurrent use.
type Checksummer interface {
	ID() ID
	// Len returns the fixed checksum length in bytes.
	Len() int
	// Calculate returns the checksum of data.
	Calculate(data []byte) []byte
	// Verify reports whether sum matches the checksum of data.
	Verify(data, sum []byte) bool
}

// Signer authenticates data at rest against deliberate tampering.
// Verify(data, Sign(data)) must hold for the same key material.
//
// Thread-safety: implementations must be safe for concurrent use.
type Signer interface {
	ID() ID
	// Len returns the fixed signature length in bytes (0 for the identity
	// signer).
	Len() int
	// Sign returns the signature of data.
	Sign(data []byte) []byte
	// Verify reports whether sig is a valid signature of data.
	Verify(data, sig []byte) bool
}

// Encrypter encrypts data at rest. Decrypt(Encrypt(x)) == x for the same
// key material.
//
// Thread-safety: implementations must be safe for concurrent use.
type Encrypter interface {
	ID() ID
	// Encrypt returns the ciphertext of plain, including any nonce or tag
	// the scheme needs to invert itself.
	Encrypt(plain []byte) ([]byte, error)
	// Decrypt inverts Encrypt, failing if the ciphertext does not
	// authenticate.
	Decrypt(ciphertext []byte) ([]byte, error)
}

// KeyDeriver derives fixed-length key material from a low-entropy secret,
// for example a passphrase supplied on the command line.
//
// Thread-safety: implementations must be safe for concurrent use.
type KeyDeriver interface {
	// Derive returns key material for the given secret and salt.
	Derive(secret, salt []byte) []byte
	// Verify reports whether derived was produced from secret and salt.
	Verify(secret, salt, derived []byte) bool
	// EncodeToString renders derived key material as a printable string.
	EncodeToString(derived []byte) string
	// DecodeString inverts EncodeToString.
	DecodeString(s string) ([]byte, error)
}
