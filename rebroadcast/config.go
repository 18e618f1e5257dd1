// Package rebroadcast implements the periodic selection of local mempool
// transactions worth re-announcing to the network: which transactions, at
// what fee rate, and how often, gated by a per-tx attempt tracker so the
// same transaction cannot flood peers with rebroadcasts.
package rebroadcast

import "time"

// Config carries every tunable of the rebroadcast selector. DefaultConfig
// returns the values this repository ships with.
type Config struct {
	// RebroadcastMinTxAge excludes transactions younger than this from a
	// rebroadcast pass; a transaction that entered the mempool moments ago
	// is still propagating on its own.
	RebroadcastMinTxAge time.Duration

	// MinReattemptInterval is the minimum gap between two successful
	// rebroadcasts of the same transaction.
	MinReattemptInterval time.Duration

	// MaxRebroadcastCount is the hard ceiling on how many times a single
	// transaction is ever rebroadcast.
	MaxRebroadcastCount uint32

	// MaxEntries bounds the attempt tracker's size.
	MaxEntries int

	// MaxEntryAge is the age ceiling on attempt tracker entries.
	MaxEntryAge time.Duration

	// MaxRebroadcastWeight caps the total weight of the candidate block the
	// assembler is asked to build for selection purposes.
	MaxRebroadcastWeight int64

	// TxRebroadcastInterval is the average period between rebroadcast
	// passes when driven by a ticker rather than block-connected events.
	TxRebroadcastInterval time.Duration

	// FeeRateCacheInterval is the average period between fee-rate cache
	// refreshes when driven by a ticker rather than block-connected events.
	FeeRateCacheInterval time.Duration
}

// maxBlockWeight mirrors the consensus block weight limit this repository's
// mining package is modeled against; rebroadcast candidate selection never
// asks for more than three quarters of it.
const maxBlockWeight = 4_000_000

// DefaultConfig returns the tuning values this repository ships with.
func DefaultConfig() Config {
	return Config{
		RebroadcastMinTxAge:   30 * time.Minute,
		MinReattemptInterval:  4 * time.Hour,
		MaxRebroadcastCount:   6,
		MaxEntries:            500,
		MaxEntryAge:           90 * 24 * time.Hour,
		MaxRebroadcastWeight:  maxBlockWeight * 3 / 4,
		TxRebroadcastInterval: time.Hour,
		FeeRateCacheInterval:  20 * time.Minute,
	}
}
