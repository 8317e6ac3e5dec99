package bootstrap

import (
	"time"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"synnergy-bootstrap/internal/bootstraperr"
	"synnergy-bootstrap/internal/client"
	"synnergy-bootstrap/internal/protocol"
)

// ClientState is the client's locally assembled copy of the remote final
// state, built up by repeatedly applying BootstrapPart frames (spec §4.6.3,
// end-to-end scenario 1).
type ClientState struct {
	Slot    protocol.Slot
	Ledger  map[string][]byte
	Pool    map[string][]byte
	ExecOps map[string][]byte
	Cycles  map[uint64][]byte
	Credits map[uint64][]byte
}

func newClientState() *ClientState {
	return &ClientState{
		Ledger:  map[string][]byte{},
		Pool:    map[string][]byte{},
		ExecOps: map[string][]byte{},
		Cycles:  map[uint64][]byte{},
		Credits: map[uint64][]byte{},
	}
}

func applyEntries(dst map[string][]byte, b []byte) error {
	entries, err := decodeEntries(b)
	if err != nil {
		return err
	}
	for _, e := range entries {
		dst[string(e.Key)] = e.Value
	}
	return nil
}

// applyPart installs one BootstrapPart's pages, then replays its state-
// changes log (spec §4.6.3 rationale: "the client first installs the
// (possibly stale) snapshot, then applies changes up to the server's
// current slot").
func (s *ClientState) applyPart(part protocol.BootstrapPart) error {
	if err := applyEntries(s.Ledger, part.LedgerPart); err != nil {
		return bootstraperr.Wrap(err, "decode ledger part")
	}
	if err := applyEntries(s.Pool, part.AsyncPoolPart); err != nil {
		return bootstraperr.Wrap(err, "decode async pool part")
	}
	if err := applyEntries(s.ExecOps, part.ExecOpsPart); err != nil {
		return bootstraperr.Wrap(err, "decode executed ops part")
	}

	cycles, err := decodeCycles(part.PoSCyclePart)
	if err != nil {
		return bootstraperr.Wrap(err, "decode PoS cycle part")
	}
	for _, c := range cycles {
		s.Cycles[c.Cycle] = c.Value
	}

	credits, err := decodeCredits(part.PoSCreditsPart)
	if err != nil {
		return bootstraperr.Wrap(err, "decode deferred credits part")
	}
	for _, c := range credits {
		s.Credits[c.Period] = c.Value
	}

	if len(part.StateChanges) > 0 {
		var chunks [][]byte
		if err := rlp.DecodeBytes(part.StateChanges, &chunks); err != nil {
			return bootstraperr.Wrap(err, "decode state changes log")
		}
		for _, chunk := range chunks {
			if err := applyEntries(s.Ledger, chunk); err != nil {
				return bootstraperr.Wrap(err, "apply state change")
			}
		}
	}

	s.Slot = part.Slot
	return nil
}

// ClientDeps bundles the client driver's timeouts.
type ClientDeps struct {
	Log          logrus.FieldLogger
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RunClientSession drives the handshake, the single AskBootstrapPart
// request, and consumption of the resulting stream to completion (spec
// §4.2, §4.6.2, §4.6.3). It returns the assembled state, or
// bootstraperr.ErrInvalidSlot if the server replied SlotTooOld (the caller
// must then restart from scratch per spec §4.6.3 Step B).
func RunClientSession(binder *client.Binder, randomnessSizeBytes int, deps ClientDeps) (*ClientState, error) {
	if err := binder.Handshake(randomnessSizeBytes); err != nil {
		return nil, err
	}

	timeMsg, err := binder.Next(deps.ReadTimeout)
	if err != nil {
		return nil, err
	}
	if timeMsg.Kind != protocol.BootstrapTime {
		return nil, bootstraperr.ErrUnexpectedClientMessage
	}

	cursors := protocol.StartedCursors()
	if err := binder.Send(protocol.ClientMessage{Kind: protocol.AskBootstrapPart, Cursors: &cursors}, deps.WriteTimeout); err != nil {
		return nil, err
	}

	state := newClientState()
	for {
		msg, err := binder.Next(deps.ReadTimeout)
		if err != nil {
			return state, err
		}
		switch msg.Kind {
		case protocol.BootstrapPartMsg:
			if msg.Part == nil {
				return state, bootstraperr.ErrDeserialize
			}
			if err := state.applyPart(*msg.Part); err != nil {
				return state, err
			}
		case protocol.SlotTooOld:
			return state, bootstraperr.ErrInvalidSlot
		case protocol.BootstrapFinished:
			return state, nil
		default:
			return state, bootstraperr.ErrUnexpectedClientMessage
		}
	}
}
