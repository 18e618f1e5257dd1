package rebroadcast

import (
	"time"

	"github.com/acbcsuite/acbc/mining"
)

// BlockAssembler is the external candidate-block builder the selector
// queries for its per-pass fee floor and marginal inclusion fee rate.
// mining.Assembler is this repository's own implementation.
type BlockAssembler interface {
	CreateNewBlock(opts mining.BlockTemplateOptions) (*mining.BlockTemplate, error)
	MinTxFeeRate() mining.FeeRate
}

// TipID identifies a chain tip well enough to detect whether it has changed
// since the fee-rate cache was last refreshed. Concrete implementations
// must be comparable with ==; chainhash.Hash satisfies this directly.
type TipID interface{}

// Chainstate is the subset of chain state the selector needs: whether the
// node is still catching up (in which case rebroadcasting is pointless and
// potentially harmful) and the identity of the current tip.
type Chainstate interface {
	ActiveTip() TipID
	IsInitialBlockDownload() bool
}

// Clock abstracts wall-clock time so tests can drive the selector and its
// attempt tracker deterministically.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the default Clock used outside of tests.
var SystemClock Clock = systemClock{}
