// Package consensusiface describes the bootstrap state machine's (C6) one
// dependency on the consensus graph: a single paginated read of the
// bootstrapable blocks plus the IDs the client should discard because they
// were superseded while it streamed (spec §4.6.3, §6.3).
//
// Grounded on core/replication.go's Synchronize loop, which drives its own
// "start := ledger.LastHeight()+1; request a batch; advance" cursor against
// a small reader interface rather than reaching into the ledger directly.
package consensusiface

import (
	"sort"
	"sync"

	"synnergy-bootstrap/internal/protocol"
)

// Block is one opaque, already-serialized consensus-graph entry.
type Block struct {
	ID   []byte
	Data []byte
}

// Controller is the bootstrap state machine's view of the consensus graph.
type Controller interface {
	// GetBootstrapPart returns up to pageSize blocks past cursor, the IDs of
	// any previously-sent blocks that are now known to be outdated (pruned
	// from the graph since changesStep was last advanced), and the new
	// cursor.
	GetBootstrapPart(cursor protocol.StreamingStep[[]byte], changesStep protocol.StreamingStep[protocol.Slot], pageSize int) (blocks []Block, outdatedIDs [][]byte, next protocol.StreamingStep[[]byte])
}

// MemoryController is a reference in-memory Controller used by tests and the
// example CLI.
type MemoryController struct {
	mu       sync.RWMutex
	blocks   []Block
	outdated map[string][]byte
}

// NewMemoryController returns a controller over a fixed, ID-sorted block set.
func NewMemoryController(blocks []Block) *MemoryController {
	sorted := append([]Block(nil), blocks...)
	sort.Slice(sorted, func(i, j int) bool { return string(sorted[i].ID) < string(sorted[j].ID) })
	return &MemoryController{blocks: sorted, outdated: map[string][]byte{}}
}

// Prune removes the block with id and marks id as outdated. The mark is
// never cleared: every later GetBootstrapPart call whose changesStep is not
// Started reports it again, in every session.
func (c *MemoryController) Prune(id []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outdated[string(id)] = id
	for i, b := range c.blocks {
		if string(b.ID) == string(id) {
			c.blocks = append(c.blocks[:i], c.blocks[i+1:]...)
			break
		}
	}
}

func (c *MemoryController) GetBootstrapPart(cursor protocol.StreamingStep[[]byte], changesStep protocol.StreamingStep[protocol.Slot], pageSize int) ([]Block, [][]byte, protocol.StreamingStep[[]byte]) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if cursor.Kind == protocol.Finished {
		return nil, c.outdatedSince(changesStep), cursor
	}

	start := 0
	if cursor.Kind == protocol.Ongoing {
		start = sort.Search(len(c.blocks), func(i int) bool { return string(c.blocks[i].ID) > string(cursor.Key) })
	}
	if start >= len(c.blocks) {
		return nil, c.outdatedSince(changesStep), protocol.NewFinished[[]byte](cursor.Key)
	}
	end := start + pageSize
	if end > len(c.blocks) {
		end = len(c.blocks)
	}
	page := append([]Block(nil), c.blocks[start:end]...)
	return page, c.outdatedSince(changesStep), protocol.NewOngoing(page[len(page)-1].ID)
}

// outdatedSince reports all tracked prunes. changesStep is a coarse gate: a
// client on its very first request (Started) has nothing to invalidate yet.
func (c *MemoryController) outdatedSince(changesStep protocol.StreamingStep[protocol.Slot]) [][]byte {
	if changesStep.Kind == protocol.Started || len(c.outdated) == 0 {
		return nil
	}
	ids := make([][]byte, 0, len(c.outdated))
	for _, id := range c.outdated {
		ids = append(ids, id)
	}
	return ids
}
