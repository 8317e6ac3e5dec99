package bootstrap

import (
	"github.com/ethereum/go-ethereum/rlp"

	"synnergy-bootstrap/internal/finalstate"
)

// Substate pages travel as opaque RLP-encoded byte strings inside a
// protocol.BootstrapPart (spec §3.2 GLOSSARY: "the core treats them as
// opaque byte strings for chain/signature purposes"). This file is the one
// place that knows how to pack and unpack them, mirroring the teacher's own
// blockMsg.Block / Block.EncodeRLP split between wire envelope and payload
// encoding.

func encodeEntries(entries []finalstate.Entry) []byte {
	if len(entries) == 0 {
		return nil
	}
	b, err := rlp.EncodeToBytes(entries)
	if err != nil {
		return nil
	}
	return b
}

func decodeEntries(b []byte) ([]finalstate.Entry, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var entries []finalstate.Entry
	if err := rlp.DecodeBytes(b, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func encodeCycles(records []finalstate.CycleRecord) []byte {
	if len(records) == 0 {
		return nil
	}
	b, err := rlp.EncodeToBytes(records)
	if err != nil {
		return nil
	}
	return b
}

func decodeCycles(b []byte) ([]finalstate.CycleRecord, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var records []finalstate.CycleRecord
	if err := rlp.DecodeBytes(b, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func encodeCredits(records []finalstate.CreditRecord) []byte {
	if len(records) == 0 {
		return nil
	}
	b, err := rlp.EncodeToBytes(records)
	if err != nil {
		return nil
	}
	return b
}

func decodeCredits(b []byte) ([]finalstate.CreditRecord, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var records []finalstate.CreditRecord
	if err := rlp.DecodeBytes(b, &records); err != nil {
		return nil, err
	}
	return records, nil
}
