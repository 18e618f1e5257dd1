package wire

import (
	"encoding/binary"

	"github.com/acbcsuite/acbc/chaincfg/chainhash"
)

// OutPoint defines a bitcoin data type that is used to track previous
// transaction outputs.
type OutPoint struct {
	Hash  chainhash.Hash
	Index uint32
}

// TxIn defines a bitcoin transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Witness          [][]byte
	Sequence         uint32
}

// TxOut defines a bitcoin transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// HasWitness returns true if this input carries a segregated witness.
func (t *TxIn) HasWitness() bool {
	return len(t.Witness) > 0
}

// MsgTx represents a bitcoin transaction.
//
// This is a deliberately reduced form of the real wire transaction: only the
// fields the propagation control plane and its tests touch (identity,
// witness-ness, and a size proxy for weight) are represented. Script
// interpretation and consensus-level (de)serialization are out of scope.
type MsgTx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// hasWitness reports whether any input of the transaction carries witness
// data.
func (msg *MsgTx) hasWitness() bool {
	for _, txIn := range msg.TxIn {
		if txIn.HasWitness() {
			return true
		}
	}
	return false
}

// legacyDigest returns the byte serialization, unhashed, of the fields of
// the transaction that are covered by both the legacy and the witness
// transaction identifier.
func (msg *MsgTx) legacyDigest() []byte {
	buf := make([]byte, 0, 64)
	var b4 [4]byte
	binary.LittleEndian.PutUint32(b4[:], uint32(msg.Version))
	buf = append(buf, b4[:]...)
	for _, txIn := range msg.TxIn {
		buf = append(buf, txIn.PreviousOutPoint.Hash[:]...)
		binary.LittleEndian.PutUint32(b4[:], txIn.PreviousOutPoint.Index)
		buf = append(buf, b4[:]...)
		buf = append(buf, txIn.SignatureScript...)
		binary.LittleEndian.PutUint32(b4[:], txIn.Sequence)
		buf = append(buf, b4[:]...)
	}
	for _, txOut := range msg.TxOut {
		var b8 [8]byte
		binary.LittleEndian.PutUint64(b8[:], uint64(txOut.Value))
		buf = append(buf, b8[:]...)
		buf = append(buf, txOut.PkScript...)
	}
	binary.LittleEndian.PutUint32(b4[:], msg.LockTime)
	buf = append(buf, b4[:]...)
	return buf
}

// TxHash generates the hash for the transaction, which does not include the
// witness data even if present.  This is the identifier by which the
// transaction is referred to in most other bitcoin messages (txid).
func (msg *MsgTx) TxHash() chainhash.Hash {
	return chainhash.DoubleHashH(msg.legacyDigest())
}

// WitnessHash generates the witness hash (wtxid) of the transaction: the
// double SHA-256 of the legacyDigest bytes followed by every input's witness
// elements.  This is not the BIP0144 witness serialization.  If the
// transaction has no witness data, this is identical to TxHash.
func (msg *MsgTx) WitnessHash() chainhash.Hash {
	if !msg.hasWitness() {
		return msg.TxHash()
	}
	buf := msg.legacyDigest()
	for _, txIn := range msg.TxIn {
		for _, elem := range txIn.Witness {
			buf = append(buf, elem...)
		}
	}
	return chainhash.DoubleHashH(buf)
}

// SerializeSize returns the number of bytes it would take to serialize the
// transaction, excluding witness data.
func (msg *MsgTx) SerializeSize() int {
	n := 8 // version + locktime
	for _, txIn := range msg.TxIn {
		n += chainhash.HashSize + 4 + len(txIn.SignatureScript) + 4
	}
	for _, txOut := range msg.TxOut {
		n += 8 + len(txOut.PkScript)
	}
	return n
}

// SerializeSizeWitness returns the number of bytes it would take to
// serialize the transaction including any witness data.
func (msg *MsgTx) SerializeSizeWitness() int {
	n := msg.SerializeSize()
	if !msg.hasWitness() {
		return n
	}
	n += 2 // segwit marker + flag
	for _, txIn := range msg.TxIn {
		for _, elem := range txIn.Witness {
			n += len(elem)
		}
	}
	return n
}

// Weight computes the value weight of the transaction per BIP0141: non-
// witness data is counted 4x, witness data counted 1x.
func (msg *MsgTx) Weight() int64 {
	base := msg.SerializeSize()
	total := msg.SerializeSizeWitness()
	witness := total - base
	return int64(base*4 + witness)
}
