// Package identity wraps the long-term node keypair and the chain-hash
// digest function used by the bootstrap frame codec (spec §3.1, §4.1).
//
// Key generation and signature verification are assumed primitives per the
// spec's non-goals; this package supplies the concrete implementation the
// rest of the module compiles and links against.
package identity

import (
	"crypto/rand"

	"golang.org/x/crypto/ed25519"
	"lukechampine.com/blake3"
)

// HashSize is the width in bytes of every chain hash and digest produced
// here (spec §3.1: "a 32-byte digest").
const HashSize = 32

// KeyPair is a node's long-term signing identity.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// Generate creates a fresh random keypair.
func Generate() (KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{Public: pub, Private: priv}, nil
}

// Sign returns the signature over digest using the node's private key.
func (k KeyPair) Sign(digest []byte) []byte {
	return ed25519.Sign(k.Private, digest)
}

// Verify checks sig over digest against the given public key.
func Verify(pub ed25519.PublicKey, digest, sig []byte) bool {
	return ed25519.Verify(pub, digest, sig)
}

// Hash is a fixed-size 32-byte digest, used both as the rolling chain hash
// and as the per-message digest signed over.
type Hash [HashSize]byte

// HashOf returns the blake3-32 digest of the concatenation of parts.
func HashOf(parts ...[]byte) Hash {
	h := blake3.New(HashSize, nil)
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// RandomNonce returns n cryptographically random bytes.
func RandomNonce(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
