package polynomial

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/xof/blake2xb"

	"github.com/dcipher-network/dcipher/crypto/party"
)

func randomPolynomial(group kyber.Group, degree int, seed string) []kyber.Scalar {
	rng := blake2xb.New([]byte(seed))
	coeffs := make([]kyber.Scalar, degree+1)
	for i := range coeffs {
		coeffs[i] = group.Scalar().Pick(rng)
	}
	return coeffs
}

func TestEval(t *testing.T) {
	group := bn256.NewSuite().G1()
	s := func(v int64) kyber.Scalar { return group.Scalar().SetInt64(v) }

	// 3 + 2x + x²
	coeffs := []kyber.Scalar{s(3), s(2), s(1)}
	require.True(t, Eval(group, s(0), coeffs).Equal(s(3)))
	require.True(t, Eval(group, s(1), coeffs).Equal(s(6)))
	require.True(t, Eval(group, s(4), coeffs).Equal(s(27)))

	require.True(t, Eval(group, s(9), nil).Equal(s(0)))
}

func TestInterpolateAtRecoversSecret(t *testing.T) {
	group := bn256.NewSuite().G1()
	const n, threshold = 7, 4
	coeffs := randomPolynomial(group, threshold-1, "interpolate")

	shares := make(map[party.ID]kyber.Scalar)
	for id := range party.IterAll(n) {
		shares[id] = Eval(group, id.Scalar(group), coeffs)
	}

	for _, subset := range [][]party.ID{
		{1, 2, 3, 4},
		{7, 5, 3, 1},
		{2, 4, 6, 7},
	} {
		values := make([]kyber.Scalar, len(subset))
		for i, id := range subset {
			values[i] = shares[id]
		}
		secret, err := InterpolateAt(group, subset, values, group.Scalar().Zero())
		require.NoError(t, err)
		require.True(t, secret.Equal(coeffs[0]), "subset %v", subset)

		at9, err := InterpolateAt(group, subset, values, group.Scalar().SetInt64(9))
		require.NoError(t, err)
		require.True(t, at9.Equal(Eval(group, group.Scalar().SetInt64(9), coeffs)))
	}
}

func TestInterpolatePointsAt(t *testing.T) {
	group := bn256.NewSuite().G1()
	coeffs := randomPolynomial(group, 2, "points")

	ids := []party.ID{2, 3, 5}
	points := make([]kyber.Point, len(ids))
	for i, id := range ids {
		points[i] = group.Point().Mul(Eval(group, id.Scalar(group), coeffs), nil)
	}

	got, err := InterpolatePointsAt(group, ids, points, group.Scalar().Zero())
	require.NoError(t, err)
	require.True(t, got.Equal(group.Point().Mul(coeffs[0], nil)))

	// A corrupted point changes the result but not the ability to compute it.
	points[1] = group.Point().Add(points[1], points[1])
	bad, err := InterpolatePointsAt(group, ids, points, group.Scalar().Zero())
	require.NoError(t, err)
	require.False(t, bad.Equal(got))
}

func TestInterpolateErrors(t *testing.T) {
	group := bn256.NewSuite().G1()
	one := group.Scalar().One()

	_, err := InterpolateAt(group, []party.ID{1, 1}, []kyber.Scalar{one, one}, group.Scalar().Zero())
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = InterpolateAt(group, []party.ID{1, 2}, []kyber.Scalar{one}, group.Scalar().Zero())
	require.Error(t, err)

	_, err = InterpolatePointsAt(group, []party.ID{3, 3}, []kyber.Point{group.Point().Base(), group.Point().Base()}, group.Scalar().Zero())
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestCoefficientsSumToOne(t *testing.T) {
	group := bn256.NewSuite().G1()
	coeffs, err := Coefficients(group, []party.ID{1, 4, 9, 10}, group.Scalar().SetInt64(3))
	require.NoError(t, err)

	// Interpolating the constant polynomial 1 yields 1 everywhere.
	sum := group.Scalar().Zero()
	for _, c := range coeffs {
		sum.Add(sum, c)
	}
	require.True(t, sum.Equal(group.Scalar().One()))
}
