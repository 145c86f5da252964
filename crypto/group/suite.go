// Package group abstracts the pairing-friendly groups the threshold
// primitives operate on.
package group

import (
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/util/random"
	"go.dedis.ch/kyber/v3/xof/blake2xb"
)

// MaxDSTLen is the longest accepted domain separation tag.
const MaxDSTLen = 255

// ErrNotHashable is returned for groups without a hash-to-point map.
var ErrNotHashable = errors.New("group: points cannot be hashed to")

// Suite is a prime-order group together with the hashing capabilities the
// threshold primitives need.
//
// Points are serialized with the group's MarshalBinary, which is the canonical
// encoding for every hash, transcript and wire format built on the suite. It is
// a protocol constant: all parties of a deployment must use the same one.
type Suite interface {
	kyber.Group
	kyber.HashFactory
	kyber.XOFFactory
	kyber.Random

	// HashToPoint deterministically maps msg to a point, separated by dst.
	// The discrete logarithm of the result with respect to the base point
	// is unknown.
	HashToPoint(msg, dst []byte) (kyber.Point, error)
}

// hashablePoint is implemented by points of groups with a hash-to-curve map.
type hashablePoint interface {
	Hash([]byte) kyber.Point
}

type suite struct {
	kyber.Group
}

// New wraps a kyber group whose points implement a hash-to-curve map.
// Groups that only offer Pick are rejected: a picked point is a known
// multiple of the base point.
func New(g kyber.Group) (Suite, error) {
	if _, ok := g.Point().(hashablePoint); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotHashable, g.String())
	}
	return &suite{Group: g}, nil
}

// BN256G1 returns the G1 group of the BN256 pairing. Its points encode to
// 64 bytes, the affine coordinates x || y; the group has no compressed form.
func BN256G1() Suite {
	return &suite{Group: bn256.NewSuite().G1()}
}

// Hash returns the fixed-output digest used for coin derivation and transcripts.
func (s *suite) Hash() hash.Hash {
	return sha256.New()
}

// XOF returns an extendable output function seeded with seed.
func (s *suite) XOF(seed []byte) kyber.XOF {
	return blake2xb.New(seed)
}

// RandomStream returns a cryptographically secure random stream.
func (s *suite) RandomStream() cipher.Stream {
	return random.New()
}

func (s *suite) HashToPoint(msg, dst []byte) (kyber.Point, error) {
	if len(dst) == 0 || len(dst) > MaxDSTLen {
		return nil, fmt.Errorf("group: invalid domain separation tag length %d", len(dst))
	}
	h, ok := s.Point().(hashablePoint)
	if !ok {
		return nil, ErrNotHashable
	}
	input := make([]byte, 0, 1+len(dst)+len(msg))
	input = append(input, byte(len(dst)))
	input = append(input, dst...)
	input = append(input, msg...)
	return h.Hash(input), nil
}
