// Package protocol defines the bootstrap wire message schema (spec §3.2)
// and streaming cursors (spec §3.3). The frame codec in internal/wireformat
// treats a serialized message as an opaque byte string; this package owns
// the (de)serialization.
//
// The top-level tagged union stays on encoding/json, matching the teacher's
// own wire-message convention in replication.go (invMsg/getDataMsg/
// getRangeMsg are all JSON). Substate pages are RLP-encoded independently
// (by internal/bootstrap) and carried here as opaque byte strings, the same
// way replication.go's blockMsg.Block embeds an RLP-encoded block inside a
// JSON envelope.
package protocol

import (
	"encoding/json"
	"fmt"

	"synnergy-bootstrap/internal/bootstraperr"
)

// Slot identifies a (period, thread) blockchain time coordinate.
type Slot struct {
	Period uint64 `json:"period"`
	Thread uint8  `json:"thread"`
}

func (s Slot) String() string { return fmt.Sprintf("(%d,%d)", s.Period, s.Thread) }

// After reports whether s is strictly later than other.
func (s Slot) After(other Slot) bool {
	return s.Period > other.Period || (s.Period == other.Period && s.Thread > other.Thread)
}

// Before reports whether s is strictly earlier than other.
func (s Slot) Before(other Slot) bool {
	return other.After(s)
}

//-----------------------------------------------------------------------
// ClientMessage
//-----------------------------------------------------------------------

// ClientMessageKind discriminates the ClientMessage tagged union (§3.2).
type ClientMessageKind uint8

const (
	AskBootstrapPeers ClientMessageKind = iota
	AskBootstrapPart
	BootstrapSuccess
	ClientBootstrapError
)

// ClientMessage is the tagged union of messages a client may send.
type ClientMessage struct {
	Kind     ClientMessageKind `json:"kind"`
	Cursors  *Cursors          `json:"cursors,omitempty"`
	LastSlot *Slot             `json:"last_slot,omitempty"`
	Text     string            `json:"text,omitempty"`
}

// EncodeClientMessage serializes m for transmission over internal/wireformat.
func EncodeClientMessage(m ClientMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, bootstraperr.Wrap(err, "encode client message")
	}
	return b, nil
}

// DecodeClientMessage parses a frame payload into a ClientMessage.
func DecodeClientMessage(b []byte) (ClientMessage, error) {
	var m ClientMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return ClientMessage{}, fmt.Errorf("%w: %v", bootstraperr.ErrDeserialize, err)
	}
	return m, nil
}

//-----------------------------------------------------------------------
// ServerMessage
//-----------------------------------------------------------------------

// ServerMessageKind discriminates the ServerMessage tagged union (§3.2).
type ServerMessageKind uint8

const (
	BootstrapTime ServerMessageKind = iota
	BootstrapPeers
	BootstrapPartMsg
	SlotTooOld
	BootstrapFinished
	ServerBootstrapError
)

// BootstrapPart is one paginated page across all substates, plus a changes
// log and (if applicable) a consensus-graph page (spec §4.6.3, GLOSSARY).
//
// Substate page fields carry opaque, already RLP-encoded bytes produced by
// internal/bootstrap; this package never interprets their contents.
type BootstrapPart struct {
	Slot                 Slot     `json:"slot"`
	LedgerPart           []byte   `json:"ledger_part,omitempty"`
	AsyncPoolPart        []byte   `json:"async_pool_part,omitempty"`
	PoSCyclePart         []byte   `json:"pos_cycle_part,omitempty"`
	PoSCreditsPart       []byte   `json:"pos_credits_part,omitempty"`
	ExecOpsPart          []byte   `json:"exec_ops_part,omitempty"`
	StateChanges         []byte   `json:"state_changes,omitempty"`
	ConsensusPart        []byte   `json:"consensus_part,omitempty"`
	ConsensusOutdatedIDs [][]byte `json:"consensus_outdated_ids,omitempty"`

	Cursors     Cursors             `json:"cursors"`
	GlobalStep  StreamingStep[Slot] `json:"global_step"`
	ChangesStep StreamingStep[Slot] `json:"changes_step"`
}

// ServerMessage is the tagged union of messages a server may send.
type ServerMessage struct {
	Kind       ServerMessageKind `json:"kind"`
	ServerTime int64             `json:"server_time,omitempty"`
	Version    string            `json:"version,omitempty"`
	Peers      []string          `json:"peers,omitempty"`
	Part       *BootstrapPart    `json:"part,omitempty"`
	Text       string            `json:"text,omitempty"`
}

// EncodeServerMessage serializes m for transmission over internal/wireformat.
func EncodeServerMessage(m ServerMessage) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, bootstraperr.Wrap(err, "encode server message")
	}
	return b, nil
}

// DecodeServerMessage parses a frame payload into a ServerMessage.
func DecodeServerMessage(b []byte) (ServerMessage, error) {
	var m ServerMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return ServerMessage{}, fmt.Errorf("%w: %v", bootstraperr.ErrDeserialize, err)
	}
	return m, nil
}
