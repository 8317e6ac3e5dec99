// Package client implements the bootstrap client binder (C2, spec §4.2):
// handshake, then typed send/recv of ClientMessage/ServerMessage over the
// C1 frame codec.
//
// Grounded on core/replication.go's Replicator, which pairs a net.Conn with
// a small set of typed send/receive helpers (sendMsg/readLoop) rather than
// exposing the raw codec to callers.
package client

import (
	"net"
	"time"

	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/identity"
	"synnergy-bootstrap/internal/protocol"
	"synnergy-bootstrap/internal/wireformat"
)

// Version is the bootstrap protocol version string exchanged in the
// handshake and echoed back in BootstrapTime.
const Version = "BOOT.1"

// Binder is the client side of one bootstrap session.
type Binder struct {
	conn     net.Conn
	codec    *wireformat.Codec
	prevHash *identity.Hash
}

// Dial connects to addr and returns an unhandshaken Binder.
func Dial(addr string, maxMessageSize uint64, local identity.KeyPair, remotePub []byte) (*Binder, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, bootstraperr.Wrap(err, "dial bootstrap server")
	}
	return NewWithConn(conn, maxMessageSize, local, remotePub), nil
}

// NewWithConn wraps an already-established connection (e.g. a net.Pipe end
// in tests, or a socket accepted by an embedding transport) as a Binder.
func NewWithConn(conn net.Conn, maxMessageSize uint64, local identity.KeyPair, remotePub []byte) *Binder {
	return &Binder{
		conn:  conn,
		codec: wireformat.NewCodec(maxMessageSize, local, remotePub),
	}
}

// Close closes the underlying connection.
func (b *Binder) Close() error { return b.conn.Close() }

// Handshake writes version||nonce (nonce length = randomnessSizeBytes) and
// seeds prev_hash = hash(version || nonce) (spec §4.2, §3.1).
func (b *Binder) Handshake(randomnessSizeBytes int) error {
	nonce, err := identity.RandomNonce(randomnessSizeBytes)
	if err != nil {
		return bootstraperr.Wrap(err, "generate handshake nonce")
	}
	payload := append([]byte(Version), nonce...)
	if _, err := b.conn.Write(payload); err != nil {
		return bootstraperr.Wrap(err, "write handshake")
	}
	h := identity.HashOf(payload)
	b.prevHash = &h
	return nil
}

// Send encodes and transmits a ClientMessage, bounded by timeout.
func (b *Binder) Send(msg protocol.ClientMessage, timeout time.Duration) error {
	payload, err := protocol.EncodeClientMessage(msg)
	if err != nil {
		return err
	}
	newHash, err := b.codec.Send(b.conn, payload, b.prevHash, timeout)
	if err != nil {
		return err
	}
	b.prevHash = &newHash
	return nil
}

// Next reads and decodes the next ServerMessage, bounded by timeout. A
// ServerBootstrapError variant is surfaced as a *bootstraperr.ReceivedError.
func (b *Binder) Next(timeout time.Duration) (protocol.ServerMessage, error) {
	payload, newHash, err := b.codec.Recv(b.conn, b.prevHash, timeout)
	if err != nil {
		return protocol.ServerMessage{}, err
	}
	b.prevHash = &newHash

	msg, err := protocol.DecodeServerMessage(payload)
	if err != nil {
		return protocol.ServerMessage{}, err
	}
	if msg.Kind == protocol.ServerBootstrapError {
		return msg, &bootstraperr.ReceivedError{Text: msg.Text}
	}
	return msg, nil
}
