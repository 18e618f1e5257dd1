package acbcutil

import (
	"github.com/acbcsuite/acbc/chaincfg/chainhash"
	"github.com/acbcsuite/acbc/wire"
)

// Tx defines a bitcoin transaction that provides easier and more efficient
// manipulation of raw transactions.  It also memoizes the hash for the
// transaction on its first access so subsequent accesses don't have to repeat
// the relatively expensive hashing operations.
type Tx struct {
	msgTx         *wire.MsgTx     // Underlying MsgTx
	txHash        *chainhash.Hash // Cached transaction hash
	txHashWitness *chainhash.Hash // Cached transaction witness hash
	txHasWitness  *bool           // If the transaction has witness data
}

// NewTx returns a new instance of a bitcoin transaction given an underlying
// wire.MsgTx.  See Tx.
func NewTx(msgTx *wire.MsgTx) *Tx {
	return &Tx{
		msgTx: msgTx,
	}
}

// MsgTx returns the underlying wire.MsgTx for the transaction.
func (t *Tx) MsgTx() *wire.MsgTx {
	// Return the cached transaction.
	return t.msgTx
}

// Hash returns the hash of the transaction (txid).  This is equivalent to
// calling TxHash on the underlying wire.MsgTx, however it caches the result
// so subsequent calls are more efficient.
func (t *Tx) Hash() *chainhash.Hash {
	if t.txHash != nil {
		return t.txHash
	}
	hash := t.msgTx.TxHash()
	t.txHash = &hash
	return t.txHash
}

// WitnessHash returns the witness hash (wtxid) of the transaction.  Unlike
// Hash, this includes any witness data present on the transaction's inputs.
// For a transaction with no witness data the two hashes are identical.
func (t *Tx) WitnessHash() *chainhash.Hash {
	if t.txHashWitness != nil {
		return t.txHashWitness
	}
	hash := t.msgTx.WitnessHash()
	t.txHashWitness = &hash
	return t.txHashWitness
}

// HasWitness returns whether or not the transaction has any inputs with
// witness data.
func (t *Tx) HasWitness() bool {
	if t.txHasWitness != nil {
		return *t.txHasWitness
	}
	has := *t.Hash() != *t.WitnessHash()
	t.txHasWitness = &has
	return has
}
