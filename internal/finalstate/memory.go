package finalstate

import (
	"bytes"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"synnergy-bootstrap/internal/protocol"
)

type change struct {
	slot protocol.Slot
	ops  []byte
}

// MemoryStore is a reference, in-memory implementation of Store used by
// tests and the example CLI. It is not the authoritative final-state store
// spec.md treats as an external collaborator — it exists only to give that
// interface a concrete, exercisable body.
type MemoryStore struct {
	mu   sync.RWMutex
	slot protocol.Slot

	ledger  []Entry
	pool    []Entry
	execOps []Entry
	cycles  []CycleRecord
	credits []CreditRecord

	changeLog    []change
	retain       int
	retainedFrom protocol.Slot
}

// NewMemoryStore returns an empty store that retains up to retain change-log
// entries before the oldest ones age out (simulating a bounded history
// window past which a client is told SlotTooOld).
func NewMemoryStore(retain int) *MemoryStore {
	if retain <= 0 {
		retain = 1
	}
	return &MemoryStore{retain: retain}
}

// SeedLedger, SeedPool, and SeedExecutedOps install the initial substate
// contents. Call before any session starts reading; entries are sorted by
// key.
func (s *MemoryStore) SeedLedger(entries []Entry)      { s.ledger = sortedEntries(entries) }
func (s *MemoryStore) SeedPool(entries []Entry)        { s.pool = sortedEntries(entries) }
func (s *MemoryStore) SeedExecutedOps(entries []Entry) { s.execOps = sortedEntries(entries) }

// SeedCycles and SeedCredits install the initial PoS substate contents.
func (s *MemoryStore) SeedCycles(records []CycleRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Cycle < records[j].Cycle })
	s.cycles = records
}

func (s *MemoryStore) SeedCredits(records []CreditRecord) {
	sort.Slice(records, func(i, j int) bool { return records[i].Period < records[j].Period })
	s.credits = records
}

func sortedEntries(entries []Entry) []Entry {
	out := append([]Entry(nil), entries...)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Key, out[j].Key) < 0 })
	return out
}

// AdvanceSlot moves the store's current slot forward by periods and records
// an opaque change-log entry for the transition, simulating the server
// continuing to produce new slots while a bootstrap session streams (spec
// §8 scenario 2).
func (s *MemoryStore) AdvanceSlot(periods uint64, ops []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slot.Period += periods
	s.changeLog = append(s.changeLog, change{slot: s.slot, ops: ops})
	for len(s.changeLog) > s.retain {
		evicted := s.changeLog[0]
		s.changeLog = s.changeLog[1:]
		s.retainedFrom = evicted.slot
	}
}

// Read implements Store. The lock is held only for the duration of fn.
func (s *MemoryStore) Read(fn func(ReadView)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&memoryView{store: s})
}

type memoryView struct{ store *MemoryStore }

func (v *memoryView) Slot() protocol.Slot { return v.store.slot }

func (v *memoryView) LedgerPart(cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte]) {
	return paginateEntries(v.store.ledger, cursor, pageSize)
}

func (v *memoryView) PoolPart(cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte]) {
	return paginateEntries(v.store.pool, cursor, pageSize)
}

func (v *memoryView) ExecutedOpsPart(cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte]) {
	return paginateEntries(v.store.execOps, cursor, pageSize)
}

func (v *memoryView) CycleHistoryPart(cursor protocol.StreamingStep[uint64], pageSize int) ([]CycleRecord, protocol.StreamingStep[uint64]) {
	store := v.store
	if cursor.Kind == protocol.Finished {
		return nil, cursor
	}
	start := 0
	if cursor.Kind == protocol.Ongoing {
		start = sort.Search(len(store.cycles), func(i int) bool { return store.cycles[i].Cycle > cursor.Key })
	}
	if start >= len(store.cycles) {
		return nil, protocol.NewFinished[uint64](cursor.Key)
	}
	end := start + pageSize
	if end > len(store.cycles) {
		end = len(store.cycles)
	}
	page := store.cycles[start:end]
	return page, protocol.NewOngoing(page[len(page)-1].Cycle)
}

func (v *memoryView) DeferredCreditsPart(cursor protocol.StreamingStep[uint64], pageSize int) ([]CreditRecord, protocol.StreamingStep[uint64]) {
	store := v.store
	if cursor.Kind == protocol.Finished {
		return nil, cursor
	}
	start := 0
	if cursor.Kind == protocol.Ongoing {
		start = sort.Search(len(store.credits), func(i int) bool { return store.credits[i].Period > cursor.Key })
	}
	if start >= len(store.credits) {
		return nil, protocol.NewFinished[uint64](cursor.Key)
	}
	end := start + pageSize
	if end > len(store.credits) {
		end = len(store.credits)
	}
	page := store.credits[start:end]
	return page, protocol.NewOngoing(page[len(page)-1].Period)
}

func (v *memoryView) StateChangesPart(since Since) (StateChanges, bool) {
	store := v.store
	if !since.Present {
		return StateChanges{Since: since}, true
	}
	if since.Slot.Before(store.retainedFrom) {
		return StateChanges{}, false
	}
	var ops [][]byte
	for _, c := range store.changeLog {
		if c.slot.After(since.Slot) {
			ops = append(ops, c.ops)
		}
	}
	encoded, err := rlp.EncodeToBytes(ops)
	if err != nil {
		return StateChanges{}, false
	}
	return StateChanges{Since: since, Ops: encoded}, true
}

// paginateEntries implements the substate cursor contract: a cursor only
// becomes Finished once a request past the last entry returns an empty page
// (spec §8 scenario 1: a substate whose size is an exact multiple of the
// page size still takes one extra, empty round trip to confirm the end).
func paginateEntries(items []Entry, cursor protocol.StreamingStep[[]byte], pageSize int) ([]Entry, protocol.StreamingStep[[]byte]) {
	if cursor.Kind == protocol.Finished {
		return nil, cursor
	}
	start := 0
	if cursor.Kind == protocol.Ongoing {
		start = sort.Search(len(items), func(i int) bool { return bytes.Compare(items[i].Key, cursor.Key) > 0 })
	}
	if start >= len(items) {
		return nil, protocol.NewFinished[[]byte](cursor.Key)
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	page := items[start:end]
	return page, protocol.NewOngoing(page[len(page)-1].Key)
}
