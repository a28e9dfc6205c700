package scheme

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"
)

// --------------------------------------------------------------------------
// Identity Signer (default)
// --------------------------------------------------------------------------

type noneSigner struct{}

// NewNoneSigner returns the identity signer: no signature is appended and
// verification always succeeds. The default when no signing key is
// configured.
func NewNoneSigner() Signer { return noneSigner{} }

func (noneSigner) ID() ID { return SignNone }
func (noneSigner) Len() int { return 0 }
func (noneSigner) Sign(_ []byte) []byte { return nil }
func (noneSigner) Verify(_, _ []byte) bool { return true }

// --------------------------------------------------------------------------
// HMAC-SHA256
// --------------------------------------------------------------------------

type hmacSigner struct {
	key []byte
}

// NewHMACSigner returns an HMAC-SHA256 signer keyed with key. The key must
// not be empty.
func NewHMACSigner(key []byte) (Signer, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("hmac signer requires a non-empty key")
	}
	own := make([]byte, len(key))
	copy(own, key)
	return &hmacSigner{key: own}, nil
}

func (s *hmacSigner) ID() ID { return SignHMACSHA256 }
func (s *hmacSigner) Len() int { return sha256.Size }

func (s *hmacSigner) Sign(data []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return mac.Sum(nil)
}

func (s *hmacSigner) Verify(data, sig []byte) bool {
	if len(sig) != s.Len() {
		return false
	}
	mac := hmac.New(sha256.New, s.key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), sig)
}

// --------------------------------------------------------------------------
// Registry
// --------------------------------------------------------------------------

// NewSigner builds a Signer from its configured name and key material.
func NewSigner(name string, key []byte) (Signer, error) {
	switch name {
	case "", "none":
		return NewNoneSigner(), nil
	case "hmac-sha256":
		return NewHMACSigner(key)
	default:
		return nil, fmt.Errorf("unknown signer %q (expected one of: none, hmac-sha256)", name)
	}
}
