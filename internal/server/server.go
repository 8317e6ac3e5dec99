// Package server implements the bootstrap server binder (C3, spec §4.3):
// mirror of the client binder plus a best-effort error-and-close helper used
// by both the scheduler (admission refusal) and the bootstrap state machine
// (fatal errors).
package server

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/identity"
	"synnergy-bootstrap/internal/protocol"
	"synnergy-bootstrap/internal/wireformat"
)

// Binder is the server side of one bootstrap session.
type Binder struct {
	Conn     net.Conn
	codec    *wireformat.Codec
	prevHash *identity.Hash
	log      logrus.FieldLogger
}

// New wraps an accepted connection. Every inbound frame is verified against
// remotePub, which is fixed here at construction; the handshake does not
// carry or change the remote key.
func New(conn net.Conn, maxMessageSize uint64, local identity.KeyPair, remotePub []byte, log logrus.FieldLogger) *Binder {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Binder{
		Conn:  conn,
		codec: wireformat.NewCodec(maxMessageSize, local, remotePub),
		log:   log,
	}
}

// ReadHandshake reads the client's version||nonce preamble (unsigned, per
// spec §6.1) and seeds prev_hash = hash(version || nonce). nonceSize is the
// configured randomness_size_bytes.
func (b *Binder) ReadHandshake(versionLen, nonceSize int, deadline time.Duration) error {
	if deadline > 0 {
		if err := b.Conn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
			return bootstraperr.Wrap(err, "set handshake read deadline")
		}
	}
	buf := make([]byte, versionLen+nonceSize)
	if _, err := readFull(b.Conn, buf); err != nil {
		return bootstraperr.Wrap(err, "read handshake")
	}
	h := identity.HashOf(buf)
	b.prevHash = &h
	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Send encodes and transmits a ServerMessage, bounded by timeout.
func (b *Binder) Send(msg protocol.ServerMessage, timeout time.Duration) error {
	payload, err := protocol.EncodeServerMessage(msg)
	if err != nil {
		return err
	}
	newHash, err := b.codec.Send(b.Conn, payload, b.prevHash, timeout)
	if err != nil {
		return err
	}
	b.prevHash = &newHash
	return nil
}

// Next reads and decodes the next ClientMessage, bounded by timeout.
func (b *Binder) Next(timeout time.Duration) (protocol.ClientMessage, error) {
	payload, newHash, err := b.codec.Recv(b.Conn, b.prevHash, timeout)
	if err != nil {
		return protocol.ClientMessage{}, err
	}
	b.prevHash = &newHash
	return protocol.DecodeClientMessage(payload)
}

// CloseAndSendError best-effort sends a BootstrapError frame then closes the
// stream (spec §4.3). It never fails the caller; any I/O error is logged.
// onClose, if non-nil, runs after the connection is closed (e.g. to release
// a session token or decrement the active-session counter).
func (b *Binder) CloseAndSendError(text string, remoteAddr string, writeTimeout time.Duration, onClose func()) {
	err := b.Send(protocol.ServerMessage{Kind: protocol.ServerBootstrapError, Text: text}, writeTimeout)
	if err != nil {
		b.log.WithError(err).WithField("remote_addr", remoteAddr).Debug("server: failed to send bootstrap error frame")
	}
	if err := b.Conn.Close(); err != nil {
		b.log.WithError(err).WithField("remote_addr", remoteAddr).Debug("server: failed to close connection")
	}
	if onClose != nil {
		onClose()
	}
}
