// Package util contains utility functionality shared by agents.
package util

import (
	"fmt"
	"math"
	"time"
)

const (
	minimumTimeoutLowerBound = 0
	maximumTimeoutUpperBound = time.Duration(math.MaxInt64 / 2)
)

// Backoff adapts a polling interval to failures: it grows on failure and
// shrinks back towards the minimum on success.
type Backoff struct {
	minimumTimeout time.Duration
	currentTimeout time.Duration
	maximumTimeout time.Duration
}

// NewBackoff returns a new backoff starting at minimumTimeout.
func NewBackoff(minimumTimeout time.Duration, maximumTimeout time.Duration) (*Backoff, error) {
	if minimumTimeout <= minimumTimeoutLowerBound {
		return nil, fmt.Errorf(
			"minimum timeout %fs less than lower bound %ds",
			minimumTimeout.Seconds(),
			minimumTimeoutLowerBound,
		)
	}
	if maximumTimeout >= maximumTimeoutUpperBound {
		return nil, fmt.Errorf(
			"maximum timeout %fs greater than upper bound %fs",
			maximumTimeout.Seconds(),
			maximumTimeoutUpperBound.Seconds(),
		)
	}
	if maximumTimeout < minimumTimeout {
		return nil, fmt.Errorf("maximum timeout %v below minimum timeout %v", maximumTimeout, minimumTimeout)
	}
	return &Backoff{minimumTimeout, minimumTimeout, maximumTimeout}, nil
}

// Failure doubles the timeout, up to the maximum.
func (b *Backoff) Failure() {
	b.currentTimeout *= 2
	if b.currentTimeout > b.maximumTimeout {
		b.currentTimeout = b.maximumTimeout
	}
}

// Success halves the timeout, down to the minimum.
func (b *Backoff) Success() {
	b.currentTimeout /= 2
	if b.currentTimeout < b.minimumTimeout {
		b.currentTimeout = b.minimumTimeout
	}
}

// Reset resets the backoff to its minimum.
func (b *Backoff) Reset() {
	b.currentTimeout = b.minimumTimeout
}

// Timeout returns the backoff timeout.
func (b *Backoff) Timeout() time.Duration {
	return b.currentTimeout
}
