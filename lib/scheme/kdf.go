package scheme

import (
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/argon2"
)

// --------------------------------------------------------------------------
// Argon2id Key Deriver
// --------------------------------------------------------------------------

// Argon2 parameters. Conservative interactive-use settings; changing them
// changes every derived key, so they are fixed here rather than configured.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024 // KiB
	argonThreads = 4
	argonKeyLen  = 32
)

type argon2Deriver struct{}

// NewArgon2Deriver returns the Argon2id key deriver used to turn a
// passphrase into 32 bytes of key material for the signing and encryption
// schemes.
func NewArgon2Deriver() KeyDeriver { return argon2Deriver{} }

func (argon2Deriver) Derive(secret, salt []byte) []byte {
	return argon2.IDKey(secret, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

func (d argon2Deriver) Verify(secret, salt, derived []byte) bool {
	return subtle.ConstantTimeCompare(d.Derive(secret, salt), derived) == 1
}

func (argon2Deriver) EncodeToString(derived []byte) string {
	return base64.RawStdEncoding.EncodeToString(derived)
}

func (argon2Deriver) DecodeString(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(s)
}
