// Package peer models a connected node just far enough for the
// transaction propagation control plane to schedule announcements against
// it: an identity, a direction, and the set of inventory it is already
// known to have. The wire handshake, message dispatch and output queueing
// a full peer implementation would need are out of this repository's
// scope; see the wire package's reduced message set.
package peer

import (
	"sync"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/decred/dcrd/lru"
)

// maxKnownInventory is the maximum number of items to keep in the known
// inventory cache for a single peer.
const maxKnownInventory = 5000

// Peer tracks one connected peer's identity and the inventory it is known
// to already have.
type Peer struct {
	// These fields are set at creation time and never modified, so they are
	// safe to read from concurrently without a mutex.
	id      int32
	addr    string
	inbound bool

	knownInventory lru.Cache

	statsMtx           sync.RWMutex
	lastAnnouncedBlock *chainhash.Hash
}

// NewPeer returns a new peer for the given connection details. The inbound
// flag distinguishes a peer that connected to us from one we dialed out
// to; the download scheduler treats the two differently (see IsOutbound).
func NewPeer(id int32, addr string, inbound bool) *Peer {
	return &Peer{
		id:             id,
		addr:           addr,
		inbound:        inbound,
		knownInventory: lru.NewCache(maxKnownInventory),
	}
}

// ID returns the peer id.
func (p *Peer) ID() int32 {
	return p.id
}

// Addr returns the peer's remote address.
func (p *Peer) Addr() string {
	return p.addr
}

// Inbound returns whether the peer connected to us rather than the other
// way around.
func (p *Peer) Inbound() bool {
	return p.inbound
}

// IsOutbound returns whether we dialed out to this peer.
func (p *Peer) IsOutbound() bool {
	return !p.inbound
}

// AddKnownInventory adds hash to the set this peer is already known to
// have, so it is never announced back to it.
func (p *Peer) AddKnownInventory(hash *chainhash.Hash) {
	p.knownInventory.Add(*hash)
}

// IsKnownInventory returns whether hash is already known to this peer.
func (p *Peer) IsKnownInventory(hash *chainhash.Hash) bool {
	return p.knownInventory.Contains(*hash)
}

// LastAnnouncedBlock returns the hash of the block most recently announced
// to this peer, or nil if none has been.
func (p *Peer) LastAnnouncedBlock() *chainhash.Hash {
	p.statsMtx.RLock()
	defer p.statsMtx.RUnlock()
	return p.lastAnnouncedBlock
}

// UpdateLastAnnouncedBlock records blkHash as the most recent block
// announced to this peer.
func (p *Peer) UpdateLastAnnouncedBlock(blkHash *chainhash.Hash) {
	p.statsMtx.Lock()
	defer p.statsMtx.Unlock()
	p.lastAnnouncedBlock = blkHash
}
