package rebroadcast

import "github.com/acbcsuite/acbc/mining"

// feeRateCache remembers the marginal inclusion fee rate observed the last
// time the assembler was consulted, along with the tip identity that
// observation was made against. The rebroadcast selector refuses to run
// while the cache's tip is still the active tip, that is, until a block has
// connected since the last refresh (see ranForTip).
type feeRateCache struct {
	cachedFeeRate         mining.FeeRate
	previousCachedFeeRate mining.FeeRate
	tipAtCacheTime        TipID
	hasTip                bool
}

// refresh recomputes cachedFeeRate from assembler's marginal inclusion fee
// rate and records tip as the tip this observation was made against.
func (c *feeRateCache) refresh(assembler BlockAssembler, tip TipID) {
	c.previousCachedFeeRate = c.cachedFeeRate
	c.cachedFeeRate = assembler.MinTxFeeRate()
	c.tipAtCacheTime = tip
	c.hasTip = true
}

// ranForTip reports whether the cache was last refreshed against tip,
// meaning no block has connected since that refresh and a rebroadcast pass
// right now would just repeat the last one for no new information.
func (c *feeRateCache) ranForTip(tip TipID) bool {
	return c.hasTip && c.tipAtCacheTime == tip
}
