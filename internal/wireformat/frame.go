// Package wireformat implements the bootstrap session's frame codec (spec
// §4.1, C1): length-prefixed, signed, chain-hashed frames over an ordered
// byte stream.
//
// Encode/decode are modelled as a pair of free functions over small structs,
// the same shape as the teacher's wire-primitive section in replication.go
// (msgType + explicit envelope structs), even though the chain/signature
// math itself has no teacher precedent.
package wireformat

import (
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/ed25519"

	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/identity"
)

// SignatureSize is the width in bytes of an ed25519 signature.
const SignatureSize = ed25519.SignatureSize

// SizeFieldLen returns the minimum number of big-endian bytes needed to
// represent any value in [0, maxMessageSize], per spec §6.1.
func SizeFieldLen(maxMessageSize uint64) int {
	n := 0
	for v := maxMessageSize; v > 0; v >>= 8 {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// Codec encodes and decodes frames for one session. It is not safe for
// concurrent use on the same direction (a session has one reader goroutine
// and one writer goroutine at most, matching §5's ordering guarantee).
type Codec struct {
	MaxMessageSize int
	SizeFieldLen   int

	// LocalKeys signs outbound frames; RemotePublicKey verifies inbound ones.
	LocalKeys       identity.KeyPair
	RemotePublicKey ed25519.PublicKey
}

// NewCodec builds a Codec for the given negotiated ceiling.
func NewCodec(maxMessageSize uint64, local identity.KeyPair, remotePub ed25519.PublicKey) *Codec {
	return &Codec{
		MaxMessageSize:  int(maxMessageSize),
		SizeFieldLen:    SizeFieldLen(maxMessageSize),
		LocalKeys:       local,
		RemotePublicKey: remotePub,
	}
}

func putLen(buf []byte, n int) {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i] = byte(n)
		n >>= 8
	}
}

func getLen(buf []byte) int {
	n := 0
	for _, b := range buf {
		n = n<<8 | int(b)
	}
	return n
}

func digestFor(prevHash *identity.Hash, payload []byte) identity.Hash {
	if prevHash != nil {
		return identity.HashOf(prevHash[:], payload)
	}
	return identity.HashOf(payload)
}

// Send writes one frame for payload, signed and chained from prevHash (nil
// when no chain has been seeded; the client and server binders seed it from
// the handshake, so their first frame is already chained). It returns the
// new chain hash to pass to the next call. The write (header + body) is
// bounded by deadline.
func (c *Codec) Send(conn net.Conn, payload []byte, prevHash *identity.Hash, deadline time.Duration) (identity.Hash, error) {
	if len(payload) > c.MaxMessageSize {
		return identity.Hash{}, bootstraperr.ErrMessageTooLarge
	}

	digest := digestFor(prevHash, payload)
	sig := c.LocalKeys.Sign(digest[:])

	header := make([]byte, SignatureSize+c.SizeFieldLen)
	copy(header, sig)
	putLen(header[SignatureSize:], len(payload))

	if deadline > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(deadline)); err != nil {
			return identity.Hash{}, bootstraperr.Wrap(err, "set write deadline")
		}
	}
	if _, err := conn.Write(header); err != nil {
		return identity.Hash{}, wrapIOErr(err)
	}
	if _, err := conn.Write(payload); err != nil {
		return identity.Hash{}, wrapIOErr(err)
	}

	return digest, nil
}

// Recv reads exactly one frame, verifying its signature against prevHash
// (nil when no chain has been seeded). It returns the decoded payload and
// the new chain hash. The read (header + body) is bounded by deadline.
func (c *Codec) Recv(conn net.Conn, prevHash *identity.Hash, deadline time.Duration) ([]byte, identity.Hash, error) {
	if deadline > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return nil, identity.Hash{}, bootstraperr.Wrap(err, "set read deadline")
		}
	}

	header := make([]byte, SignatureSize+c.SizeFieldLen)
	if _, err := io.ReadFull(conn, header); err != nil {
		return nil, identity.Hash{}, wrapIOErr(err)
	}
	sig := header[:SignatureSize]
	length := getLen(header[SignatureSize:])
	if length > c.MaxMessageSize {
		return nil, identity.Hash{}, bootstraperr.ErrFrameTooLarge
	}

	body := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, body); err != nil {
			return nil, identity.Hash{}, wrapIOErr(err)
		}
	}

	digest := digestFor(prevHash, body)
	if !identity.Verify(c.RemotePublicKey, digest[:], sig) {
		return nil, identity.Hash{}, bootstraperr.ErrBadSignature
	}

	return body, digest, nil
}

func wrapIOErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return fmt.Errorf("%w: %v", bootstraperr.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", bootstraperr.ErrIo, err)
}
