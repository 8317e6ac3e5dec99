// Package peernet describes the bootstrap server's one dependency on peer
// discovery: a snapshot of advertised peer addresses to hand a client on
// AskBootstrapPeers (spec §4.6.2, §6.3).
//
// Grounded on core/peer_management.go's PeerManagement.Sample, which draws a
// crypto/rand-shuffled subset of known peers rather than returning the full
// set in a fixed order.
package peernet

import (
	"crypto/rand"
	"math/big"
	"sync"
)

// Directory is the bootstrap server's view of peer discovery.
type Directory interface {
	// BootstrapPeers returns up to n peer addresses, in random order.
	BootstrapPeers(n int) ([]string, error)
}

// MemoryDirectory is a reference in-memory Directory backed by a fixed or
// externally-updated address list.
type MemoryDirectory struct {
	mu        sync.RWMutex
	addresses []string
}

// NewMemoryDirectory returns a directory over addresses.
func NewMemoryDirectory(addresses []string) *MemoryDirectory {
	return &MemoryDirectory{addresses: append([]string(nil), addresses...)}
}

// SetAddresses replaces the advertised peer set.
func (d *MemoryDirectory) SetAddresses(addresses []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.addresses = append([]string(nil), addresses...)
}

func (d *MemoryDirectory) BootstrapPeers(n int) ([]string, error) {
	d.mu.RLock()
	pool := append([]string(nil), d.addresses...)
	d.mu.RUnlock()

	if n > len(pool) {
		n = len(pool)
	}
	out := make([]string, 0, n)
	for len(out) < n && len(pool) > 0 {
		idx, err := rand.Int(rand.Reader, big.NewInt(int64(len(pool))))
		if err != nil {
			return nil, err
		}
		i := idx.Int64()
		out = append(out, pool[i])
		pool[i] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return out, nil
}
