package rebroadcast

import (
	"sync"
	"time"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/acbcsuite/acbc/log"
	"github.com/acbcsuite/acbc/mining"
)

// TxIDPair is the (txid, wtxid) pair a rebroadcast pass reports for each
// admitted candidate.
type TxIDPair struct {
	Txid  chainhash.Hash
	Wtxid chainhash.Hash
}

// Handler periodically selects local mempool transactions worth
// re-announcing to the network. It owns one mutex guarding both the
// fee-rate cache and the attempt tracker, matching the requirement that a
// reader see either the old or the new cached fee rate/tip pair, never a
// mix.
type Handler struct {
	mtx sync.Mutex

	cfg       Config
	clock     Clock
	assembler BlockAssembler
	chain     Chainstate

	cache   feeRateCache
	tracker *attemptTracker

	lastBlockWeight int64
}

// NewHandler returns a Handler using cfg for its tunables. Candidates are
// sourced exclusively through assembler, which is itself bound to the real
// mempool at construction time; the handler never touches the mempool
// directly. If clock is nil, SystemClock is used.
func NewHandler(cfg Config, assembler BlockAssembler, chain Chainstate, clock Clock) *Handler {
	if clock == nil {
		clock = SystemClock
	}
	return &Handler{
		cfg:       cfg,
		clock:     clock,
		assembler: assembler,
		chain:     chain,
		tracker:   newAttemptTracker(cfg),
	}
}

// CacheMinRebroadcastFee recomputes the cached minimum rebroadcast fee rate
// from the assembler's marginal inclusion fee rate. It is a no-op during
// initial sync. Callers drive this once per block-connected notification,
// or on a periodic tick in systems without one.
func (h *Handler) CacheMinRebroadcastFee() {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.chain.IsInitialBlockDownload() {
		return
	}
	tip := h.chain.ActiveTip()
	h.cache.refresh(h.assembler, tip)
	log.TxmpLog.Debugf("rebroadcast fee cache refreshed: %d -> %d sat/kwu at tip",
		h.cache.previousCachedFeeRate, h.cache.cachedFeeRate)
}

// GetRebroadcastTransactions returns the (txid, wtxid) pairs that should be
// re-announced right now. It consults the external block assembler for
// candidate selection, applies the attempt-tracker throttling policy to
// each candidate, and trims the attempt tracker before returning.
func (h *Handler) GetRebroadcastTransactions() []TxIDPair {
	h.mtx.Lock()
	defer h.mtx.Unlock()

	if h.chain.IsInitialBlockDownload() {
		return nil
	}
	tip := h.chain.ActiveTip()
	if h.cache.ranForTip(tip) {
		return nil
	}
	if h.cache.cachedFeeRate == 0 {
		return nil
	}

	now := h.clock.Now()
	maxWeight := h.cfg.MaxRebroadcastWeight
	if h.lastBlockWeight > 0 {
		threeQuarters := h.lastBlockWeight * 3 / 4
		if threeQuarters < maxWeight {
			maxWeight = threeQuarters
		}
	}

	opts := mining.BlockTemplateOptions{
		MaxWeight:     maxWeight,
		SkipUntil:     now.Add(-h.cfg.RebroadcastMinTxAge),
		MinFeeRate:    h.cache.cachedFeeRate,
		ValidateBlock: false,
	}

	tmpl, err := h.assembler.CreateNewBlock(opts)
	if err != nil || tmpl == nil {
		log.TxmpLog.Debugf("rebroadcast candidate selection failed: %v", err)
		return nil
	}
	if len(tmpl.Vtx) == 0 {
		return nil
	}

	var result []TxIDPair
	for _, tx := range tmpl.Vtx[1:] { // drop the coinbase placeholder
		wtxid := *tx.WitnessHash()
		if !h.admit(wtxid, now) {
			continue
		}
		result = append(result, TxIDPair{Txid: *tx.Hash(), Wtxid: wtxid})
	}

	h.tracker.trim(now)
	return result
}

// admit applies the per-transaction rebroadcast policy to wtxid and, if
// admitted, records or advances its attempt-tracker entry.
func (h *Handler) admit(wtxid chainhash.Hash, now time.Time) bool {
	e, exists := h.tracker.get(wtxid)
	if !exists {
		h.tracker.admitNew(wtxid, now)
		return true
	}
	if e.count >= h.cfg.MaxRebroadcastCount {
		return false
	}
	if e.lastAttempt.After(now.Add(-h.cfg.MinReattemptInterval)) {
		return false
	}
	h.tracker.advance(wtxid, now)
	return true
}

// RemoveFromAttemptTracker drops wtxid's attempt-tracker entry, if any. This
// is called when a transaction leaves the mempool for any reason, so a
// transaction that has been replaced or mined does not linger in the
// tracker occupying a throttling slot forever.
func (h *Handler) RemoveFromAttemptTracker(wtxid chainhash.Hash) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.tracker.remove(wtxid)
}

// SetLastBlockWeight records the weight of the most recently connected
// block, used to tighten MaxRebroadcastWeight below its static default when
// the real chain is running smaller blocks. A value of zero or less falls
// back to the static default.
func (h *Handler) SetLastBlockWeight(weight int64) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	h.lastBlockWeight = weight
}

// TrackerStats summarizes the attempt tracker for diagnostics.
type TrackerStats struct {
	Entries int
}

// Stats returns a snapshot of the attempt tracker's current size.
func (h *Handler) Stats() TrackerStats {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	return TrackerStats{Entries: h.tracker.len()}
}
