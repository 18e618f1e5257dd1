// Package mining provides candidate block assembly for the block templates
// consumed by the transaction rebroadcast selector.  It intentionally omits
// consensus validation: callers that need a validated, minable block must
// look elsewhere.  This package exists to answer one question cheaply and
// deterministically: "which mempool transactions would make it into the
// next block, and at what marginal fee rate?"
package mining

import (
	"sort"
	"time"

	"github.com/acbcsuite/acbc/acbcutil"
	"github.com/acbcsuite/acbc/wire"
)

// FeeRate is expressed in satoshis per 1000 weight units, mirroring the
// units used throughout the real fee-rate plumbing this package is modeled
// on (satoshis per kilobyte, adjusted for segwit weight).
type FeeRate int64

// FeeRateFromDesc computes the fee rate of a transaction descriptor.
func FeeRateFromDesc(fee, weight int64) FeeRate {
	if weight <= 0 {
		return 0
	}
	return FeeRate(fee * 1000 / weight)
}

// TxDesc is a descriptor containing a transaction along with the extra
// metadata the block assembler and mempool need to order it.
type TxDesc struct {
	// Tx is the transaction associated with the entry.
	Tx *acbcutil.Tx

	// Added is the time the transaction entered the mempool.
	Added time.Time

	// Fee is the total fee, in satoshis, paid by the transaction.
	Fee int64

	// FeeRate is Fee normalized against the transaction's weight.
	FeeRate FeeRate
}

// BlockTemplateOptions bounds and filters candidate selection.  See
// Assembler.CreateNewBlock.
type BlockTemplateOptions struct {
	// MaxWeight caps the total weight of the selected transactions,
	// excluding the coinbase placeholder.
	MaxWeight int64

	// SkipUntil excludes any transaction added to the mempool more
	// recently than this timestamp.
	SkipUntil time.Time

	// MinFeeRate excludes any transaction whose fee rate falls below
	// this floor.
	MinFeeRate FeeRate

	// ValidateBlock requests full consensus validation of the resulting
	// template.  This package only ever supports false; a request with
	// ValidateBlock set true returns ErrValidationUnsupported.
	ValidateBlock bool
}

// BlockTemplate is the result of a candidate selection pass.  Vtx always
// carries a coinbase placeholder as its first element, matching the shape
// real block templates take, so that callers written against "drop the
// coinbase, keep the rest" logic behave the same regardless of assembler.
type BlockTemplate struct {
	Vtx []*acbcutil.Tx
}

// MempoolSource supplies the universe of candidate transactions, in any
// order; the Assembler sorts them by fee rate itself.  Concrete mempool
// implementations satisfy this directly.
type MempoolSource interface {
	MiningDescs() []*TxDesc
}

// Assembler greedily selects mempool transactions in descending fee-rate
// order, skipping any that would not fit in the remaining weight budget.
// It keeps no state between
// calls other than the marginal fee rate of the most recently produced
// template, which mirrors the "last block's minimum fee rate" concept the
// caller relies on to decide whether relaying at that rate is still worth
// it.
type Assembler struct {
	mp MempoolSource

	lastMinFeeRate FeeRate
}

// NewAssembler returns an Assembler that pulls candidates from mp.
func NewAssembler(mp MempoolSource) *Assembler {
	return &Assembler{mp: mp}
}

// CreateNewBlock walks the mempool in descending fee-rate order, keeping
// every transaction that clears opts.MinFeeRate and was added no later than
// opts.SkipUntil.  A transaction that would push the total past
// opts.MaxWeight is skipped, and the walk goes on with the next one.
func (a *Assembler) CreateNewBlock(opts BlockTemplateOptions) (*BlockTemplate, error) {
	if opts.ValidateBlock {
		return nil, ErrValidationUnsupported
	}

	descs := a.mp.MiningDescs()
	candidates := make([]*TxDesc, 0, len(descs))
	for _, d := range descs {
		if !opts.SkipUntil.IsZero() && d.Added.After(opts.SkipUntil) {
			continue
		}
		if d.FeeRate < opts.MinFeeRate {
			continue
		}
		candidates = append(candidates, d)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FeeRate > candidates[j].FeeRate
	})

	tmpl := &BlockTemplate{Vtx: make([]*acbcutil.Tx, 0, len(candidates)+1)}
	tmpl.Vtx = append(tmpl.Vtx, coinbasePlaceholder())

	var usedWeight int64
	marginal := FeeRate(0)
	for _, d := range candidates {
		w := d.Tx.MsgTx().Weight()
		if opts.MaxWeight > 0 && usedWeight+w > opts.MaxWeight {
			continue
		}
		usedWeight += w
		marginal = d.FeeRate
		tmpl.Vtx = append(tmpl.Vtx, d.Tx)
	}

	a.lastMinFeeRate = marginal
	return tmpl, nil
}

// MinTxFeeRate returns the marginal (lowest) fee rate among transactions
// included in the most recently created block template.  It returns zero
// until CreateNewBlock has been called at least once.
func (a *Assembler) MinTxFeeRate() FeeRate {
	return a.lastMinFeeRate
}

// coinbasePlaceholder stands in for the block reward transaction a real
// assembler would prepend.  Candidate selection for rebroadcast only ever
// inspects transactions after dropping index 0, so the placeholder need not
// carry a real coinbase input.
func coinbasePlaceholder() *acbcutil.Tx {
	return acbcutil.NewTx(&wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
		}},
	})
}
