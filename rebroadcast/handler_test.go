package rebroadcast

import (
	"testing"
	"time"

	"github.com/acbcsuite/acbc/acbcutil"
	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/acbcsuite/acbc/mining"
	"github.com/acbcsuite/acbc/wire"
	"github.com/stretchr/testify/require"
)

type manualClock struct{ now time.Time }

func (c *manualClock) Now() time.Time { return c.now }

type fakeChainstate struct {
	tip TipID
	ibd bool
}

func (f *fakeChainstate) ActiveTip() TipID            { return f.tip }
func (f *fakeChainstate) IsInitialBlockDownload() bool { return f.ibd }

type fakeAssembler struct {
	descs   []*mining.TxDesc
	minFee  mining.FeeRate
	err     error
}

func (a *fakeAssembler) CreateNewBlock(opts mining.BlockTemplateOptions) (*mining.BlockTemplate, error) {
	if a.err != nil {
		return nil, a.err
	}
	tmpl := &mining.BlockTemplate{Vtx: []*acbcutil.Tx{coinbase()}}
	for _, d := range a.descs {
		if !opts.SkipUntil.IsZero() && d.Added.After(opts.SkipUntil) {
			continue
		}
		if d.FeeRate < opts.MinFeeRate {
			continue
		}
		tmpl.Vtx = append(tmpl.Vtx, d.Tx)
	}
	return tmpl, nil
}

func (a *fakeAssembler) MinTxFeeRate() mining.FeeRate { return a.minFee }

func coinbase() *acbcutil.Tx {
	return acbcutil.NewTx(&wire.MsgTx{Version: 1})
}

func txWithLockTime(lockTime uint32) *acbcutil.Tx {
	return acbcutil.NewTx(&wire.MsgTx{Version: 1, LockTime: lockTime})
}

func newHandler(now time.Time, chain *fakeChainstate, asm *fakeAssembler) (*Handler, *manualClock) {
	clock := &manualClock{now: now}
	h := NewHandler(DefaultConfig(), asm, chain, clock)
	return h, clock
}

func TestGetRebroadcastTransactions_InitialSyncGuard(t *testing.T) {
	chain := &fakeChainstate{tip: "tip1", ibd: true}
	asm := &fakeAssembler{minFee: 10}
	h, _ := newHandler(time.Unix(0, 0), chain, asm)

	h.CacheMinRebroadcastFee()
	got := h.GetRebroadcastTransactions()
	require.Empty(t, got)
}

func TestGetRebroadcastTransactions_ZeroFeeRateGuard(t *testing.T) {
	chain := &fakeChainstate{tip: "tip1"}
	asm := &fakeAssembler{minFee: 0}
	h, _ := newHandler(time.Unix(0, 0), chain, asm)

	h.CacheMinRebroadcastFee() // cachedFeeRate stays 0; tip_at_cache_time = "tip1"
	chain.tip = "tip2"         // move past the tip-unchanged guard to isolate this one
	got := h.GetRebroadcastTransactions()
	require.Empty(t, got)
}

func TestGetRebroadcastTransactions_TipUnchangedGuard(t *testing.T) {
	chain := &fakeChainstate{tip: "tip1"}
	asm := &fakeAssembler{minFee: 10}
	h, _ := newHandler(time.Unix(0, 0), chain, asm)

	h.CacheMinRebroadcastFee() // tip_at_cache_time = "tip1"
	got := h.GetRebroadcastTransactions()
	require.Empty(t, got, "selection must not run again for the same tip the cache was refreshed against")
}

// Scenario 3: rebroadcast recency filter.
func TestGetRebroadcastTransactions_RecencyFilter(t *testing.T) {
	now := time.Unix(0, 0).Add(time.Hour)
	txOld := txWithLockTime(1)
	txNew := txWithLockTime(2)

	descs := []*mining.TxDesc{
		{Tx: txOld, Added: now.Add(-35 * time.Minute), FeeRate: 10},
		{Tx: txNew, Added: now, FeeRate: 10},
	}
	chain := &fakeChainstate{tip: "tip1"}
	asm := &fakeAssembler{descs: descs, minFee: 10}
	h, _ := newHandler(now.Add(-time.Hour), chain, asm)

	h.CacheMinRebroadcastFee()   // tip_at_cache_time = "tip1"
	chain.tip = "tip2"           // a block connects; the cache is not refreshed for it
	h.clockAdvance(now)

	got := h.GetRebroadcastTransactions()
	require.Len(t, got, 1)
	require.Equal(t, *txOld.Hash(), got[0].Txid)
}

// Scenario 4: rebroadcast attempt ceiling and reattempt throttle.
func TestGetRebroadcastTransactions_AttemptCeilingAndThrottle(t *testing.T) {
	tx := txWithLockTime(1)
	descs := []*mining.TxDesc{{Tx: tx, Added: time.Unix(0, 0), FeeRate: 10}}
	chain := &fakeChainstate{tip: "tip1"}
	asm := &fakeAssembler{descs: descs, minFee: 10}
	now := time.Unix(0, 0).Add(2 * time.Hour)
	h, _ := newHandler(now, chain, asm)

	h.CacheMinRebroadcastFee() // tip_at_cache_time = "tip1", cachedFeeRate = 10
	chain.tip = "tip2"         // simulate a block connecting; cache not refreshed for it
	h.clockAdvance(now)
	got := h.GetRebroadcastTransactions()
	require.Len(t, got, 1)
	require.EqualValues(t, 1, h.mustEntry(*tx.WitnessHash()).count)

	// Re-invoke within MIN_REATTEMPT_INTERVAL: empty, tracker unchanged.
	chain.tip = "tip3"
	got = h.GetRebroadcastTransactions()
	require.Empty(t, got)
	require.EqualValues(t, 1, h.mustEntry(*tx.WitnessHash()).count)

	// Advance clock by 4h: one-entry result, count = 2.
	later := now.Add(4 * time.Hour)
	h.clockAdvance(later)
	chain.tip = "tip4"
	got = h.GetRebroadcastTransactions()
	require.Len(t, got, 1)
	require.EqualValues(t, 2, h.mustEntry(*tx.WitnessHash()).count)

	// Force count = 6 and call again: empty, last_attempt unchanged.
	h.forceCount(*tx.WitnessHash(), 6)
	before := h.mustEntry(*tx.WitnessHash()).lastAttempt

	evenLater := later.Add(4 * time.Hour)
	h.clockAdvance(evenLater)
	chain.tip = "tip5"
	got = h.GetRebroadcastTransactions()
	require.Empty(t, got)
	require.Equal(t, before, h.mustEntry(*tx.WitnessHash()).lastAttempt)
}

// clockAdvance is a test-only helper that mutates the Handler's clock.
func (h *Handler) clockAdvance(t time.Time) {
	h.clock.(*manualClock).now = t
}

func (h *Handler) mustEntry(wtxid chainhash.Hash) entry {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	e, _ := h.tracker.get(wtxid)
	return e
}

func (h *Handler) forceCount(wtxid chainhash.Hash, count uint32) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	e, _ := h.tracker.get(wtxid)
	e.count = count
	h.tracker.byHash[wtxid] = e
}

func TestAttemptTracker_Trim(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxEntries = 2
	cfg.MaxEntryAge = time.Hour
	tr := newAttemptTracker(cfg)

	now := time.Unix(0, 0)
	tr.admitNew(hashN(1), now)
	tr.admitNew(hashN(2), now.Add(time.Minute))
	tr.admitNew(hashN(3), now.Add(2*time.Minute))

	tr.trim(now.Add(2 * time.Minute))
	require.Equal(t, 2, tr.len())
	_, ok := tr.get(hashN(1))
	require.False(t, ok, "oldest entry should be evicted once capacity is exceeded")

	tr.trim(now.Add(2*time.Minute + 2*time.Hour))
	require.Equal(t, 0, tr.len(), "all entries should age out past MaxEntryAge")
}

func hashN(n byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = n
	return h
}
