package condition

import (
	"slices"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func blockCondition(t *testing.T, height uint64) []byte {
	c, err := EncodeBlockCondition(height)
	require.NoError(t, err)
	return c
}

func ids(vs ...uint64) []uint256.Int {
	out := make([]uint256.Int, len(vs))
	for i, v := range vs {
		out[i] = *uint256.NewInt(v)
	}
	return out
}

func TestEncodeDecode(t *testing.T) {
	for _, h := range []uint64{0, 1, 42, 1 << 40} {
		got, err := DecodeBlockCondition(blockCondition(t, h))
		require.NoError(t, err)
		require.Equal(t, h, got)
	}
}

func TestDecodeMalformed(t *testing.T) {
	_, err := DecodeBlockCondition(nil)
	require.ErrorIs(t, err, ErrMalformedCondition)

	_, err = DecodeBlockCondition([]byte{0x01, 0x02})
	require.ErrorIs(t, err, ErrMalformedCondition)

	wrongTag, err := blockConditionArgs.Pack("T", uint256.NewInt(5).ToBig())
	require.NoError(t, err)
	_, err = DecodeBlockCondition(wrongTag)
	require.ErrorIs(t, err, ErrMalformedCondition)

	huge := new(uint256.Int).Lsh(uint256.NewInt(1), 100)
	tooHigh, err := blockConditionArgs.Pack(BlockConditionTag, huge.ToBig())
	require.NoError(t, err)
	_, err = DecodeBlockCondition(tooHigh)
	require.ErrorIs(t, err, ErrMalformedCondition)
}

func TestAddCondition(t *testing.T) {
	r := NewBlockResolver()
	id := *uint256.NewInt(1)

	require.NoError(t, r.AddCondition(id, blockCondition(t, 10)))
	require.ErrorIs(t, r.AddCondition(id, blockCondition(t, 11)), ErrDuplicateCondition)
	require.ErrorIs(t, r.AddCondition(*uint256.NewInt(2), []byte("garbage")), ErrMalformedCondition)

	block, ok := r.Block(id)
	require.True(t, ok)
	require.Equal(t, uint64(10), block)
	require.Equal(t, 1, r.Len())
}

func TestUpdateCondition(t *testing.T) {
	r := NewBlockResolver()
	require.NoError(t, r.AddCondition(*uint256.NewInt(3), blockCondition(t, 5)))
	require.NoError(t, r.AddCondition(*uint256.NewInt(1), blockCondition(t, 2)))
	require.NoError(t, r.AddCondition(*uint256.NewInt(2), blockCondition(t, 5)))
	require.NoError(t, r.AddCondition(*uint256.NewInt(4), blockCondition(t, 9)))

	require.Empty(t, slices.Collect(r.UpdateCondition(1)))
	require.Equal(t, ids(1), slices.Collect(r.UpdateCondition(2)))
	// Satisfied entries are reported once.
	require.Empty(t, slices.Collect(r.UpdateCondition(4)))
	require.Equal(t, ids(2, 3), slices.Collect(r.UpdateCondition(7)))
	require.Equal(t, 1, r.Len())
	require.Equal(t, ids(4), slices.Collect(r.UpdateCondition(100)))
	require.Equal(t, 0, r.Len())
}

func TestUpdateConditionIsLazy(t *testing.T) {
	r := NewBlockResolver()
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, r.AddCondition(*uint256.NewInt(i), blockCondition(t, i)))
	}

	seq := r.UpdateCondition(10)
	require.Equal(t, 3, r.Len(), "nothing is removed before iteration")

	for id := range seq {
		require.Equal(t, *uint256.NewInt(1), id)
		break
	}
	require.Equal(t, 2, r.Len(), "stopping early keeps unreported requests")
	require.Equal(t, ids(2, 3), slices.Collect(r.UpdateCondition(10)))
}

func TestRemoveCondition(t *testing.T) {
	r := NewBlockResolver()
	require.NoError(t, r.AddCondition(*uint256.NewInt(1), blockCondition(t, 2)))
	require.NoError(t, r.AddCondition(*uint256.NewInt(2), blockCondition(t, 2)))

	r.RemoveCondition(*uint256.NewInt(1))
	r.RemoveCondition(*uint256.NewInt(99))
	require.Equal(t, ids(2), slices.Collect(r.UpdateCondition(2)))

	// A removed id can be tracked again.
	require.NoError(t, r.AddCondition(*uint256.NewInt(1), blockCondition(t, 3)))
}
