package polynomial

import (
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"

	"github.com/dcipher-network/dcipher/crypto/party"
)

// ErrDuplicateID is returned when an interpolation domain contains an identifier twice.
var ErrDuplicateID = errors.New("polynomial: duplicate identifier in interpolation domain")

// Coefficients returns the Lagrange basis polynomials lⱼ evaluated at x, one
// per identifier of the domain, in the same order.
//
//	lⱼ(x) = Π_{m≠j} (x - x_m) / (x_j - x_m)
//
// The coefficients depend only on the identifiers, never on the values being
// interpolated.
func Coefficients(group kyber.Group, domain []party.ID, x kyber.Scalar) ([]kyber.Scalar, error) {
	xs := make([]kyber.Scalar, len(domain))
	seen := make(map[party.ID]struct{}, len(domain))
	for i, id := range domain {
		if _, ok := seen[id]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
		seen[id] = struct{}{}
		xs[i] = id.Scalar(group)
	}

	coeffs := make([]kyber.Scalar, len(domain))
	num := group.Scalar()
	den := group.Scalar()
	tmp := group.Scalar()
	for j, xj := range xs {
		num.One()
		den.One()
		for m, xm := range xs {
			if m == j {
				continue
			}
			num.Mul(num, tmp.Sub(x, xm))
			den.Mul(den, tmp.Sub(xj, xm))
		}
		coeffs[j] = group.Scalar().Div(num, den)
	}
	return coeffs, nil
}

// InterpolateAt returns P(x) for the unique polynomial P of degree
// len(ids)-1 with P(ids[i]) = values[i].
func InterpolateAt(group kyber.Group, ids []party.ID, values []kyber.Scalar, x kyber.Scalar) (kyber.Scalar, error) {
	if len(ids) != len(values) {
		return nil, fmt.Errorf("polynomial: %d identifiers for %d values", len(ids), len(values))
	}
	coeffs, err := Coefficients(group, ids, x)
	if err != nil {
		return nil, err
	}
	result := group.Scalar().Zero()
	term := group.Scalar()
	for i, c := range coeffs {
		result.Add(result, term.Mul(c, values[i]))
	}
	return result, nil
}

// InterpolatePointsAt interpolates in the exponent: given points[i] = [P(ids[i])]·B
// it returns [P(x)]·B. Every point is multiplied and accumulated, whatever its
// value, so the work performed only depends on the number of points.
func InterpolatePointsAt(group kyber.Group, ids []party.ID, points []kyber.Point, x kyber.Scalar) (kyber.Point, error) {
	if len(ids) != len(points) {
		return nil, fmt.Errorf("polynomial: %d identifiers for %d points", len(ids), len(points))
	}
	coeffs, err := Coefficients(group, ids, x)
	if err != nil {
		return nil, err
	}
	result := group.Point().Null()
	term := group.Point()
	for i, c := range coeffs {
		result.Add(result, term.Mul(c, points[i]))
	}
	return result, nil
}
