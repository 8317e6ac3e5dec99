// Package finalstate describes the paginated-read interface the bootstrap
// state machine (C6) consumes from the node's authoritative final-state
// store (spec §6.3). The core only ever reads through this interface, and
// only inside Step A of the streaming loop (spec §4.6.3) — it never holds
// the lock across I/O.
//
// Grounded on core/replication.go's BlockReader interface: a small,
// reader-only interface the domain logic depends on, with a concrete
// in-package implementation supplied for tests.
package finalstate

import "synnergy-bootstrap/internal/protocol"

// Entry is one (key, value) pair of a byte-keyed substate (ledger, async
// pool, executed-ops set).
type Entry struct {
	Key   []byte
	Value []byte
}

// CycleRecord is one entry of the PoS cycle-history substate, keyed by
// cycle number.
type CycleRecord struct {
	Cycle uint64
	Value []byte
}

// CreditRecord is one entry of the PoS deferred-credits substate, keyed by
// target slot period.
type CreditRecord struct {
	Period uint64
	Value  []byte
}

// StateChanges is the log of changes covering a (since, upTo] slot range,
// applied by the client after installing a (possibly stale) snapshot (spec
// §4.6.3 rationale).
type StateChanges struct {
	Since Since
	Ops   []byte // opaque RLP-encoded change records
}

// Since describes the open lower bound of a changes-log request.
type Since struct {
	Slot    protocol.Slot
	Present bool // false means "from genesis" (client has no prior slot)
}

// ReadView is a read-locked snapshot of the final state, valid only for the
// duration of one Step A (spec §4.6.3). Implementations must not block on
// I/O from within these methods.
type ReadView interface {
	Slot() protocol.Slot

	LedgerPart(cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte])
	PoolPart(cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte])
	ExecutedOpsPart(cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte])

	CycleHistoryPart(cursor protocol.StreamingStep[uint64], pageSize int) ([]CycleRecord, protocol.StreamingStep[uint64])
	DeferredCreditsPart(cursor protocol.StreamingStep[uint64], pageSize int) ([]CreditRecord, protocol.StreamingStep[uint64])

	// StateChangesPart returns the changes covering (since.Slot, Slot()] and
	// ok=false if since.Slot predates the store's retained history (spec
	// §4.6.3 step A.4: "the store answers InvalidSlot").
	StateChangesPart(since Since) (changes StateChanges, ok bool)
}

// Store exposes the shared final-state through a reader-preferring lock; Read
// holds the lock only for the duration of fn (spec §5 "Final-state store:
// multi-reader, single-writer; C6 only reads, and only inside Step A").
type Store interface {
	Read(fn func(ReadView))
}
