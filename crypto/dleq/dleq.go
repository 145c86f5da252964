// Package dleq implements non-interactive Chaum-Pedersen proofs of discrete
// logarithm equality: given (G1, H1) and (G2, H2) it proves knowledge of x
// with H1 = x·G1 and H2 = x·G2 without revealing x.
package dleq

import (
	"crypto/cipher"
	"errors"
	"fmt"

	"go.dedis.ch/kyber/v3"
	"golang.org/x/crypto/sha3"

	"github.com/dcipher-network/dcipher/crypto/group"
)

// challengeSeedLen is the number of transcript bytes used to seed the challenge.
const challengeSeedLen = 64

var (
	// ErrInvalidProof is the only error returned by Verify.
	ErrInvalidProof = errors.New("dleq: invalid proof")

	// ErrProve is returned when a proof cannot be produced.
	ErrProve = errors.New("dleq: proof generation failed")
)

// Proof is a Fiat-Shamir transformed Chaum-Pedersen proof.
type Proof struct {
	// C is the challenge.
	C kyber.Scalar
	// R = v - c·x, with v the prover's nonce.
	R kyber.Scalar
}

// challenge derives c from the statement and the commitments (a1, a2),
// bound to dst through the cSHAKE128 customization string.
func challenge(suite group.Suite, dst []byte, points ...kyber.Point) (kyber.Scalar, error) {
	h := sha3.NewCShake128(nil, dst)
	for _, p := range points {
		if p == nil {
			return nil, errors.New("dleq: nil point in transcript")
		}
		if _, err := p.MarshalTo(h); err != nil {
			return nil, err
		}
	}
	seed := make([]byte, challengeSeedLen)
	if _, err := h.Read(seed); err != nil {
		return nil, err
	}
	return suite.Scalar().Pick(suite.XOF(seed)), nil
}

// Prove shows that h1 = secret·g1 and h2 = secret·g2. The nonce is drawn from rng.
func Prove(suite group.Suite, secret kyber.Scalar, g1, g2, h1, h2 kyber.Point, dst []byte, rng cipher.Stream) (*Proof, error) {
	if secret == nil || rng == nil {
		return nil, ErrProve
	}
	v := suite.Scalar().Pick(rng)
	a1 := suite.Point().Mul(v, g1)
	a2 := suite.Point().Mul(v, g2)

	c, err := challenge(suite, dst, g1, g2, h1, h2, a1, a2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProve, err)
	}
	r := suite.Scalar().Sub(v, suite.Scalar().Mul(c, secret))
	return &Proof{C: c, R: r}, nil
}

// Verify checks the proof against the statement and dst. Every failure,
// malformed input included, is reported as ErrInvalidProof.
func (p *Proof) Verify(suite group.Suite, g1, g2, h1, h2 kyber.Point, dst []byte) error {
	if p == nil || p.C == nil || p.R == nil || g1 == nil || g2 == nil || h1 == nil || h2 == nil {
		return ErrInvalidProof
	}
	// a = r·G + c·H
	a1 := suite.Point().Add(suite.Point().Mul(p.R, g1), suite.Point().Mul(p.C, h1))
	a2 := suite.Point().Add(suite.Point().Mul(p.R, g2), suite.Point().Mul(p.C, h2))

	c, err := challenge(suite, dst, g1, g2, h1, h2, a1, a2)
	if err != nil || !c.Equal(p.C) {
		return ErrInvalidProof
	}
	return nil
}

// MarshalBinary encodes the proof as c || r.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if p == nil || p.C == nil || p.R == nil {
		return nil, errors.New("dleq: incomplete proof")
	}
	c, err := p.C.MarshalBinary()
	if err != nil {
		return nil, err
	}
	r, err := p.R.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return append(c, r...), nil
}

// Decode parses a proof produced by MarshalBinary.
func Decode(suite group.Suite, data []byte) (*Proof, error) {
	n := suite.ScalarLen()
	if len(data) != 2*n {
		return nil, fmt.Errorf("dleq: proof must be %d bytes, got %d", 2*n, len(data))
	}
	c := suite.Scalar()
	if err := c.UnmarshalBinary(data[:n]); err != nil {
		return nil, fmt.Errorf("dleq: challenge: %w", err)
	}
	r := suite.Scalar()
	if err := r.UnmarshalBinary(data[n:]); err != nil {
		return nil, fmt.Errorf("dleq: response: %w", err)
	}
	return &Proof{C: c, R: r}, nil
}
