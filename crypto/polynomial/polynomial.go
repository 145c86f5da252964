// Package polynomial implements polynomial evaluation and Lagrange
// interpolation over the scalar field of a kyber group.
package polynomial

import (
	"go.dedis.ch/kyber/v3"
)

// Eval evaluates Σ coeffs[i]·x^i using Horner's method.
// An empty coefficient list is the zero polynomial.
func Eval(group kyber.Group, x kyber.Scalar, coeffs []kyber.Scalar) kyber.Scalar {
	result := group.Scalar().Zero()
	for i := len(coeffs) - 1; i >= 0; i-- {
		result.Mul(result, x)
		result.Add(result, coeffs[i])
	}
	return result
}
