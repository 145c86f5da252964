package party

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/pairing/bn256"
)

func TestIterAll(t *testing.T) {
	seq := IterAll(4)

	var first []ID
	for id := range seq {
		first = append(first, id)
	}
	require.Equal(t, []ID{1, 2, 3, 4}, first)

	// Restartable.
	var second []ID
	for id := range seq {
		second = append(second, id)
	}
	require.Equal(t, first, second)

	// Early stop.
	var prefix []ID
	for id := range seq {
		if id == 3 {
			break
		}
		prefix = append(prefix, id)
	}
	require.Equal(t, []ID{1, 2}, prefix)

	for range IterAll(0) {
		t.Fatal("empty scheme yields no identifiers")
	}
}

func TestValid(t *testing.T) {
	require.False(t, ID(0).Valid(3))
	require.True(t, ID(1).Valid(3))
	require.True(t, ID(3).Valid(3))
	require.False(t, ID(4).Valid(3))
}

func TestScalar(t *testing.T) {
	g := bn256.NewSuite().G1()
	require.True(t, ID(5).Scalar(g).Equal(g.Scalar().SetInt64(5)))
	require.False(t, ID(5).Scalar(g).Equal(ID(6).Scalar(g)))
}

func TestEncoding(t *testing.T) {
	id := ID(513)
	got, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, got)

	_, err = FromBytes([]byte{1})
	require.Error(t, err)

	parsed, err := IDFromString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)

	_, err = IDFromString("70000")
	require.Error(t, err)
}
