// Package coin implements a threshold common coin from ECDH evaluations
// with DLEQ proofs, in the style of Cachin, Kursawe and Shoup.
//
// Each party i holds a Shamir share s_i of a secret s and publishes
// vk_i = s_i·g. For a coin input m, party i releases s_i·H(m) with a proof
// that it used the same exponent as in vk_i. Any t valid evaluations
// interpolate to s·H(m), whose hash yields the coin.
package coin

import (
	"errors"
	"fmt"
)

// Coin is a single shared random bit.
type Coin uint8

const (
	// Zero is the coin value 0.
	Zero Coin = 0
	// One is the coin value 1.
	One Coin = 1
)

// ErrInvalidCoin is returned when converting a byte other than 0 or 1.
var ErrInvalidCoin = errors.New("coin: invalid coin value")

// FromUint8 converts 0 and 1 to a Coin.
func FromUint8(b uint8) (Coin, error) {
	switch b {
	case 0:
		return Zero, nil
	case 1:
		return One, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidCoin, b)
	}
}

// Uint8 returns 0 or 1.
func (c Coin) Uint8() uint8 {
	return uint8(c)
}

// String implements fmt.Stringer.
func (c Coin) String() string {
	switch c {
	case Zero:
		return "zero"
	case One:
		return "one"
	default:
		return fmt.Sprintf("coin(%d)", uint8(c))
	}
}

// fromDigest maps a digest to the most significant bit of its first byte.
func fromDigest(digest []byte) Coin {
	return Coin((digest[0] >> 7) & 1)
}
