package mempool

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/acbcsuite/acbc/acbcutil"
	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/acbcsuite/acbc/mining"
)

const (
	// DefaultBlockPrioritySize is the default size in bytes for high-
	// priority / low-fee transactions.  This pool applies no acceptance
	// policy, so nothing in it consults this value.
	DefaultBlockPrioritySize = 50000
)

// TxDesc is a descriptor containing a transaction in the mempool along with
// additional metadata.
type TxDesc struct {
	mining.TxDesc

	// StartingPriority is the priority of the transaction when it was added
	// to the pool.
	StartingPriority float64
}

// TxRemovedNotifier is invoked, outside of the pool's lock, whenever a
// transaction leaves the pool for any reason.  The transaction propagation
// download and rebroadcast state should drop their own bookkeeping for the
// wtxid when this fires.
type TxRemovedNotifier func(wtxid chainhash.Hash)

// TxPool is used as a source of transactions that need to be mined into
// blocks and relayed to other peers.  It is safe for concurrent access from
// multiple peers.
//
// This is a deliberately simplified mempool: acceptance policy, orphan
// handling and fee bumping are all out of scope for the propagation control
// plane this repository focuses on.  What remains is exactly the surface
// the download scheduler and rebroadcast selector need: membership tests by
// both txid and wtxid, and an unordered snapshot of every descriptor for
// the block assembler, which does its own fee-rate ordering.
type TxPool struct {
	// lastUpdated must only be used atomically.
	lastUpdated int64 // unix time of last mutation

	mtx sync.RWMutex
	cfg Config

	pool       map[chainhash.Hash]*TxDesc       // keyed by txid
	wtxidIndex map[chainhash.Hash]chainhash.Hash // wtxid -> txid

	// nextExpireScan is the time after which the orphan pool would be
	// scanned in order to evict orphans.  Orphan handling itself is out of
	// scope, but the field is retained so a future orphan pool can be
	// grafted onto this struct without a layout change.
	nextExpireScan time.Time

	onRemoved TxRemovedNotifier
}

// Config houses the pool's settings.  There are no policy validation
// tunables (min relay fee, dust thresholds), since this pool does not
// implement transaction acceptance.
type Config struct {
	// BestHeight returns the current height of the main chain.  The pool
	// stores it but never calls it, and the propagation control plane does
	// not consult it.
	BestHeight func() int32
}

// New returns a new, empty transaction pool.
func New(cfg Config) *TxPool {
	return &TxPool{
		cfg:        cfg,
		pool:       make(map[chainhash.Hash]*TxDesc),
		wtxidIndex: make(map[chainhash.Hash]chainhash.Hash),
	}
}

// SetTxRemovedNotifier registers fn to be called whenever a transaction is
// removed from the pool, keyed by wtxid.  Only one notifier may be
// registered; wiring code should fan out to multiple listeners itself.
func (mp *TxPool) SetTxRemovedNotifier(fn TxRemovedNotifier) {
	mp.mtx.Lock()
	defer mp.mtx.Unlock()
	mp.onRemoved = fn
}

// LastUpdated returns the last time the pool was updated.
func (mp *TxPool) LastUpdated() time.Time {
	return time.Unix(atomic.LoadInt64(&mp.lastUpdated), 0)
}

// Count returns the number of transactions currently in the pool.
func (mp *TxPool) Count() int {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	return len(mp.pool)
}

// HaveTransaction returns whether the passed txid is already known to the
// pool.  This is the "already known locally" test the download scheduler
// consults before requesting an announced hash.
func (mp *TxPool) HaveTransaction(txid chainhash.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	_, exists := mp.pool[txid]
	return exists
}

// HaveWitness returns whether the passed wtxid is already known to the
// pool.
func (mp *TxPool) HaveWitness(wtxid chainhash.Hash) bool {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	_, exists := mp.wtxidIndex[wtxid]
	return exists
}

// FetchTransaction returns the transaction identified by txid, if it is
// currently in the pool.
func (mp *TxPool) FetchTransaction(txid chainhash.Hash) (*acbcutil.Tx, error) {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	desc, exists := mp.pool[txid]
	if !exists {
		return nil, fmt.Errorf("transaction %v is not in the pool", txid)
	}
	return desc.Tx, nil
}

// MiningDescs returns a point-in-time snapshot of every transaction
// descriptor in the pool, for consumption by a block assembler.  The
// returned slice and its elements must not be mutated.
func (mp *TxPool) MiningDescs() []*mining.TxDesc {
	mp.mtx.RLock()
	defer mp.mtx.RUnlock()
	descs := make([]*mining.TxDesc, 0, len(mp.pool))
	for _, desc := range mp.pool {
		txDesc := desc.TxDesc
		descs = append(descs, &txDesc)
	}
	return descs
}

// AddTransaction inserts tx into the pool at the given fee (satoshis) and
// arrival time, and returns the resulting descriptor.  No acceptance policy
// is applied; callers are expected to have already validated the
// transaction elsewhere.
func (mp *TxPool) AddTransaction(tx *acbcutil.Tx, fee int64, added time.Time) *TxDesc {
	weight := tx.MsgTx().Weight()
	desc := &TxDesc{
		TxDesc: mining.TxDesc{
			Tx:      tx,
			Added:   added,
			Fee:     fee,
			FeeRate: mining.FeeRateFromDesc(fee, weight),
		},
	}

	mp.mtx.Lock()
	mp.pool[*tx.Hash()] = desc
	mp.wtxidIndex[*tx.WitnessHash()] = *tx.Hash()
	mp.mtx.Unlock()

	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
	return desc
}

// RemoveTransaction removes the transaction identified by txid from the
// pool, if present, and notifies the registered removal callback.  It is
// the caller's responsibility to invoke this for every way a transaction
// can leave the mempool (mined, replaced, expired, evicted) so that the
// rebroadcast selector's attempt tracker stays in sync.
func (mp *TxPool) RemoveTransaction(txid chainhash.Hash) {
	mp.mtx.Lock()
	desc, exists := mp.pool[txid]
	if !exists {
		mp.mtx.Unlock()
		return
	}
	wtxid := *desc.Tx.WitnessHash()
	delete(mp.pool, txid)
	delete(mp.wtxidIndex, wtxid)
	notify := mp.onRemoved
	mp.mtx.Unlock()

	atomic.StoreInt64(&mp.lastUpdated, time.Now().Unix())
	if notify != nil {
		notify(wtxid)
	}
}
