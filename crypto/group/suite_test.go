package group

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashToPoint(t *testing.T) {
	s := BN256G1()
	dst := []byte("TEST-DST")

	p1, err := s.HashToPoint([]byte("round 1"), dst)
	require.NoError(t, err)
	p2, err := s.HashToPoint([]byte("round 1"), dst)
	require.NoError(t, err)
	require.True(t, p1.Equal(p2), "hashing is deterministic")

	other, err := s.HashToPoint([]byte("round 2"), dst)
	require.NoError(t, err)
	require.False(t, p1.Equal(other))

	otherDST, err := s.HashToPoint([]byte("round 1"), []byte("OTHER-DST"))
	require.NoError(t, err)
	require.False(t, p1.Equal(otherDST), "domain tag separates outputs")

	require.False(t, p1.Equal(s.Point().Null()))
	require.False(t, p1.Equal(s.Point().Base()))
}

func TestHashToPointRejectsBadDST(t *testing.T) {
	s := BN256G1()
	_, err := s.HashToPoint([]byte("m"), nil)
	require.Error(t, err)
	_, err = s.HashToPoint([]byte("m"), make([]byte, MaxDSTLen+1))
	require.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(BN256G1())
	require.NoError(t, err)
	require.Equal(t, BN256G1().String(), s.String())
}

func TestFactories(t *testing.T) {
	s := BN256G1()
	require.Equal(t, 32, s.Hash().Size())

	a := s.Scalar().Pick(s.XOF([]byte("seed")))
	b := s.Scalar().Pick(s.XOF([]byte("seed")))
	require.True(t, a.Equal(b))

	c := s.Scalar().Pick(s.RandomStream())
	require.False(t, a.Equal(c))
}

func TestBN256G1PointEncoding(t *testing.T) {
	s := BN256G1()
	require.Equal(t, 64, s.PointLen())

	p, err := s.HashToPoint([]byte("encoding"), []byte("TEST-DST"))
	require.NoError(t, err)
	b, err := p.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, b, s.PointLen())

	decoded := s.Point()
	require.NoError(t, decoded.UnmarshalBinary(b))
	require.True(t, p.Equal(decoded))
}
