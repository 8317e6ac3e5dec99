package bootstrap

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"synnergy-bootstrap/internal/client"
	"synnergy-bootstrap/internal/consensusiface"
	"synnergy-bootstrap/internal/finalstate"
	"synnergy-bootstrap/internal/identity"
	"synnergy-bootstrap/internal/peernet"
	"synnergy-bootstrap/internal/protocol"
	"synnergy-bootstrap/internal/server"
)

func quietLog() logrus.FieldLogger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

// newSessionPair wires a net.Pipe()-backed client/server binder pair and
// drives the server's handshake plus RunServerSession in a goroutine,
// leaving the test free to drive RunClientSession (or raw Send/Next calls)
// on the calling goroutine.
func newSessionPair(t *testing.T, deps ServerDeps) (*client.Binder, <-chan string) {
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
	s := server.New(serverConn, 1<<20, serverKeys, clientKeys.Public, deps.Log)

	result := make(chan string, 1)
	go func() {
		if err := s.ReadHandshake(len(client.Version), 32, time.Second); err != nil {
			result <- "handshake_error"
			return
		}
		result <- RunServerSession(s, "pipe", deps)
	}()
	return c, result
}

func entriesOf(n int, prefix byte) []finalstate.Entry {
	out := make([]finalstate.Entry, n)
	for i := 0; i < n; i++ {
		out[i] = finalstate.Entry{Key: []byte{prefix, byte(i >> 8), byte(i)}, Value: []byte("v")}
	}
	return out
}

func baseDeps(store finalstate.Store, pageSize int) ServerDeps {
	return ServerDeps{
		Store:             store,
		Consensus:         consensusiface.NewMemoryController(nil),
		Peers:             peernet.NewMemoryDirectory(nil),
		Log:               quietLog(),
		BootstrapPartSize: pageSize,
		Version:           client.Version,
		ReadTimeout:       2 * time.Second,
		WriteTimeout:      2 * time.Second,
		ReadErrorTimeout:  50 * time.Millisecond,
		BootstrapTimeout:  5 * time.Second,
	}
}

func TestHappyPathAssemblesFullLedger(t *testing.T) {
	store := finalstate.NewMemoryStore(16)
	store.SeedLedger(entriesOf(1200, 1))

	c, result := newSessionPair(t, baseDeps(store, 100))
	state, err := RunClientSession(c, 32, ClientDeps{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("client session: %v", err)
	}
	if len(state.Ledger) != 1200 {
		t.Fatalf("expected 1200 assembled ledger entries, got %d", len(state.Ledger))
	}

	select {
	case res := <-result:
		if res != "finished" {
			t.Fatalf("expected server result %q, got %q", "finished", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server session did not complete")
	}
}

// mutateAfterFirstRead runs mutate once, right after the first Step A read
// has returned, so the mutation lands after the first page was streamed.
type mutateAfterFirstRead struct {
	*finalstate.MemoryStore
	once   sync.Once
	mutate func()
}

func (s *mutateAfterFirstRead) Read(fn func(finalstate.ReadView)) {
	s.MemoryStore.Read(fn)
	s.once.Do(s.mutate)
}

func TestMutationDuringStreamingIsReconciledViaChangesLog(t *testing.T) {
	store := finalstate.NewMemoryStore(32)
	store.SeedLedger(entriesOf(200, 1))

	// A mutation landing on a key already streamed should surface in the
	// client's final assembled state via the changes log, not a second
	// ledger page (spec §8 scenario 2). Key {1,0,5} is in the first page.
	mutated := finalstate.Entry{Key: []byte{1, 0, 5}, Value: []byte("mutated")}
	mutating := &mutateAfterFirstRead{
		MemoryStore: store,
		mutate: func() {
			store.AdvanceSlot(1, encodeEntries([]finalstate.Entry{mutated}))
		},
	}

	c, result := newSessionPair(t, baseDeps(mutating, 20))
	state, err := RunClientSession(c, 32, ClientDeps{ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second})
	if err != nil {
		t.Fatalf("client session: %v", err)
	}
	if got := string(state.Ledger[string(mutated.Key)]); got != "mutated" {
		t.Fatalf("expected mutated value to be applied via the changes log, got %q", got)
	}

	select {
	case res := <-result:
		if res != "finished" {
			t.Fatalf("expected server result %q, got %q", "finished", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server session did not complete")
	}
}

func TestStaleClientReceivesSlotTooOld(t *testing.T) {
	store := finalstate.NewMemoryStore(2)
	store.SeedLedger(entriesOf(5, 1))

	// A slot far outside the retained changes-log window (spec §8 scenario 3).
	staleSlot := protocol.Slot{Period: 0, Thread: 0}
	for i := 0; i < 10; i++ {
		store.AdvanceSlot(1, []byte{byte(i)})
	}

	c, result := newSessionPair(t, baseDeps(store, 100))

	if err := c.Handshake(32); err != nil {
		t.Fatalf("handshake: %v", err)
	}
	if _, err := c.Next(2 * time.Second); err != nil {
		t.Fatalf("read BootstrapTime: %v", err)
	}

	cursors := protocol.StartedCursors()
	askMsg := protocol.ClientMessage{Kind: protocol.AskBootstrapPart, Cursors: &cursors, LastSlot: &staleSlot}
	if err := c.Send(askMsg, 2*time.Second); err != nil {
		t.Fatalf("send AskBootstrapPart: %v", err)
	}

	msg, err := c.Next(2 * time.Second)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if msg.Kind != protocol.SlotTooOld {
		t.Fatalf("expected SlotTooOld, got kind %d", msg.Kind)
	}

	select {
	case res := <-result:
		if res != "slot_too_old" {
			t.Fatalf("expected server result %q, got %q", "slot_too_old", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server session did not complete")
	}
}
