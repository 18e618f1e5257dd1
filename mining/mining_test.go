package mining

import (
	"testing"
	"time"

	"github.com/acbcsuite/acbc/acbcutil"
	"github.com/acbcsuite/acbc/wire"
	"github.com/stretchr/testify/require"
)

// fakeMempoolSource is a fixed set of descriptors handed to the assembler,
// standing in for a real mempool snapshot.
type fakeMempoolSource struct {
	descs []*TxDesc
}

func (f *fakeMempoolSource) MiningDescs() []*TxDesc {
	return f.descs
}

func txWithLockTime(lockTime uint32) *acbcutil.Tx {
	return acbcutil.NewTx(&wire.MsgTx{Version: 1, LockTime: lockTime})
}

func desc(tx *acbcutil.Tx, added time.Time, feeRate FeeRate) *TxDesc {
	return &TxDesc{
		Tx:      tx,
		Added:   added,
		FeeRate: feeRate,
	}
}

func TestCreateNewBlock_OrdersByFeeRateDescending(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	low := desc(txWithLockTime(1), now, 5)
	high := desc(txWithLockTime(2), now, 50)
	mid := desc(txWithLockTime(3), now, 25)

	asm := NewAssembler(&fakeMempoolSource{descs: []*TxDesc{low, high, mid}})
	tmpl, err := asm.CreateNewBlock(BlockTemplateOptions{MaxWeight: 1_000_000})
	require.NoError(t, err)

	require.Len(t, tmpl.Vtx, 4) // coinbase + 3
	require.Equal(t, high.Tx, tmpl.Vtx[1])
	require.Equal(t, mid.Tx, tmpl.Vtx[2])
	require.Equal(t, low.Tx, tmpl.Vtx[3])
}

func TestCreateNewBlock_MinFeeRateExcludesBelowFloor(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	below := desc(txWithLockTime(1), now, 5)
	above := desc(txWithLockTime(2), now, 50)

	asm := NewAssembler(&fakeMempoolSource{descs: []*TxDesc{below, above}})
	tmpl, err := asm.CreateNewBlock(BlockTemplateOptions{
		MaxWeight:  1_000_000,
		MinFeeRate: 10,
	})
	require.NoError(t, err)

	require.Len(t, tmpl.Vtx, 2) // coinbase + above only
	require.Equal(t, above.Tx, tmpl.Vtx[1])
	require.Equal(t, FeeRate(50), asm.MinTxFeeRate())
}

func TestCreateNewBlock_SkipUntilExcludesNewerTransactions(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	old := desc(txWithLockTime(1), base, 10)
	fresh := desc(txWithLockTime(2), base.Add(time.Hour), 10)

	asm := NewAssembler(&fakeMempoolSource{descs: []*TxDesc{old, fresh}})
	tmpl, err := asm.CreateNewBlock(BlockTemplateOptions{
		MaxWeight: 1_000_000,
		SkipUntil: base.Add(time.Minute),
	})
	require.NoError(t, err)

	require.Len(t, tmpl.Vtx, 2) // coinbase + old only
	require.Equal(t, old.Tx, tmpl.Vtx[1])
}

func TestCreateNewBlock_MaxWeightStopsAtBudget(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	a := desc(txWithLockTime(1), now, 50)
	b := desc(txWithLockTime(2), now, 40)
	c := desc(txWithLockTime(3), now, 30)

	weight := a.Tx.MsgTx().Weight()
	asm := NewAssembler(&fakeMempoolSource{descs: []*TxDesc{a, b, c}})
	tmpl, err := asm.CreateNewBlock(BlockTemplateOptions{MaxWeight: weight})
	require.NoError(t, err)

	require.Len(t, tmpl.Vtx, 2) // coinbase + the single highest fee-rate tx
	require.Equal(t, a.Tx, tmpl.Vtx[1])
	require.Equal(t, FeeRate(50), asm.MinTxFeeRate())
}

func TestCreateNewBlock_ValidateBlockUnsupported(t *testing.T) {
	asm := NewAssembler(&fakeMempoolSource{})
	_, err := asm.CreateNewBlock(BlockTemplateOptions{ValidateBlock: true})
	require.ErrorIs(t, err, ErrValidationUnsupported)
}

func TestMinTxFeeRate_ZeroBeforeAnyBlock(t *testing.T) {
	asm := NewAssembler(&fakeMempoolSource{})
	require.Equal(t, FeeRate(0), asm.MinTxFeeRate())
}
