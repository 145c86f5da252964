// Package party identifies the participants of a threshold scheme.
package party

import (
	"encoding/binary"
	"fmt"
	"iter"
	"strconv"

	"go.dedis.ch/kyber/v3"
)

// ByteSize is the number of bytes required to store an ID.
const ByteSize = 2

// MAX is the largest representable party ID, and so the largest scheme size.
const MAX = (1 << (ByteSize * 8)) - 1

// ID is the 1-based identifier of a participant. For a scheme with n
// participants valid identifiers are 1..n; 0 is never a valid identifier
// since it is the interpolation point of the shared secret.
type ID uint16

// Size is an alias for ID used for party counts and thresholds.
type Size = ID

// IterAll returns the identifiers 1..n in increasing order.
// The sequence can be ranged over any number of times.
func IterAll(n Size) iter.Seq[ID] {
	return func(yield func(ID) bool) {
		for i := 1; i <= int(n); i++ {
			if !yield(ID(i)) {
				return
			}
		}
	}
}

// Valid reports whether the identifier belongs to a scheme of size n.
func (p ID) Valid(n Size) bool {
	return p >= 1 && p <= n
}

// Scalar returns the field element the identifier maps to.
func (p ID) Scalar(group kyber.Group) kyber.Scalar {
	return group.Scalar().SetInt64(int64(p))
}

// Bytes returns the big-endian encoding of the identifier.
func (p ID) Bytes() []byte {
	b := make([]byte, ByteSize)
	binary.BigEndian.PutUint16(b, uint16(p))
	return b
}

// String returns a base 10 representation of ID.
func (p ID) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// FromBytes reads the first ByteSize bytes of b.
func FromBytes(b []byte) (ID, error) {
	if len(b) < ByteSize {
		return 0, fmt.Errorf("party: need %d bytes, got %d", ByteSize, len(b))
	}
	return ID(binary.BigEndian.Uint16(b)), nil
}

// IDFromString parses a base 10 identifier.
func IDFromString(str string) (ID, error) {
	p, err := strconv.ParseUint(str, 10, 16)
	if err != nil {
		return 0, err
	}
	return ID(p), nil
}
