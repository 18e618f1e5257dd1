package netsync

import "github.com/acbcsuite/acbc/chaincfg/chainhash"

// Mempool is the subset of mempool.TxPool the download scheduler needs: a
// way to tell whether an announced hash is already known locally and can be
// skipped instead of requested.
type Mempool interface {
	HaveTransaction(hash chainhash.Hash) bool
}

// MisbehaviorFunc reports a peer misbehavior event to the surrounding
// network layer.  The scheduler never disconnects a peer itself; it only
// reports.  A nil MisbehaviorFunc means events are logged only.
type MisbehaviorFunc func(peerID int32, score uint32, reason string)

// Peer is the subset of a connected peer the scheduler needs to register
// it: its identity and whether the connection is one this node dialed out
// to (outbound) or accepted from a listener (inbound).
type Peer interface {
	ID() int32
	IsOutbound() bool
}
