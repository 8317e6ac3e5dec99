package server

import (
	"errors"
	"net"
	"testing"
	"time"

	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/client"
	"synnergy-bootstrap/internal/identity"
	"synnergy-bootstrap/internal/protocol"
)

func pipePair(t *testing.T) (*client.Binder, *Binder, func()) {
	t.Helper()
	clientConn, serverConn := net.Pipe()

	clientKeys, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate client keys: %v", err)
	}
	serverKeys, err := identity.Generate()
	if err != nil {
		t.Fatalf("generate server keys: %v", err)
	}

	c := client.NewWithConn(clientConn, 1<<20, clientKeys, serverKeys.Public)
	s := New(serverConn, 1<<20, serverKeys, clientKeys.Public, nil)
	return c, s, func() {
		clientConn.Close()
		serverConn.Close()
	}
}

func TestHandshakeThenMessageRoundTrip(t *testing.T) {
	c, s, cleanup := pipePair(t)
	defer cleanup()

	done := make(chan error, 1)
	go func() {
		done <- c.Handshake(32)
	}()
	if err := s.ReadHandshake(len(client.Version), 32, time.Second); err != nil {
		t.Fatalf("server read handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- s.Send(protocol.ServerMessage{Kind: protocol.BootstrapTime, ServerTime: 42, Version: "BOOT.1"}, time.Second)
	}()
	msg, err := c.Next(time.Second)
	if err != nil {
		t.Fatalf("client next: %v", err)
	}
	if err := <-serverDone; err != nil {
		t.Fatalf("server send: %v", err)
	}
	if msg.Kind != protocol.BootstrapTime || msg.ServerTime != 42 {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestCloseAndSendErrorDeliversErrorThenCloses(t *testing.T) {
	c, s, cleanup := pipePair(t)
	defer cleanup()

	done := make(chan error, 1)
	go func() {
		done <- c.Handshake(32)
	}()
	if err := s.ReadHandshake(len(client.Version), 32, time.Second); err != nil {
		t.Fatalf("server read handshake: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	onCloseCalled := make(chan struct{}, 1)
	go s.CloseAndSendError("no slots available", "10.0.0.1:1234", time.Second, func() {
		onCloseCalled <- struct{}{}
	})

	_, err := c.Next(time.Second)
	var recvErr *bootstraperr.ReceivedError
	if !errors.As(err, &recvErr) {
		t.Fatalf("expected a ReceivedError, got %v", err)
	}
	if recvErr.Text != "no slots available" {
		t.Fatalf("unexpected error text: %q", recvErr.Text)
	}
	select {
	case <-onCloseCalled:
	case <-time.After(time.Second):
		t.Fatal("expected onClose hook to run")
	}
}
