// Package condition tracks release conditions of pending decryption requests.
package condition

import (
	"errors"
	"fmt"
	"iter"

	"github.com/holiman/uint256"
	"github.com/tidwall/btree"
)

var (
	// ErrDuplicateCondition is returned when a request already has a condition.
	ErrDuplicateCondition = errors.New("condition: request already tracked")
	// ErrMalformedCondition is returned for condition bytes that cannot be parsed.
	ErrMalformedCondition = errors.New("condition: malformed condition")
)

type entry struct {
	block uint64
	id    uint256.Int
}

func lessEntry(a, b entry) bool {
	if a.block != b.block {
		return a.block < b.block
	}
	return a.id.Lt(&b.id)
}

// BlockResolver releases requests once the chain reaches their block height.
// It is not safe for concurrent use.
type BlockResolver struct {
	pending *btree.BTreeG[entry]
	blocks  map[uint256.Int]uint64
}

// NewBlockResolver returns an empty resolver.
func NewBlockResolver() *BlockResolver {
	return &BlockResolver{
		pending: btree.NewBTreeGOptions(lessEntry, btree.Options{NoLocks: true}),
		blocks:  make(map[uint256.Int]uint64),
	}
}

// AddCondition starts tracking id with the block condition encoded in condition.
func (r *BlockResolver) AddCondition(id uint256.Int, condition []byte) error {
	if _, ok := r.blocks[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateCondition, id.Dec())
	}
	block, err := DecodeBlockCondition(condition)
	if err != nil {
		return err
	}
	r.blocks[id] = block
	r.pending.Set(entry{block: block, id: id})
	return nil
}

// UpdateCondition reports the requests whose block is at most block, lowest
// block first. Requests are dropped from the resolver as they are reported,
// so the sequence can only be consumed once; stopping early leaves the
// remaining requests tracked.
func (r *BlockResolver) UpdateCondition(block uint64) iter.Seq[uint256.Int] {
	return func(yield func(uint256.Int) bool) {
		for {
			e, ok := r.pending.Min()
			if !ok || e.block > block {
				return
			}
			r.pending.Delete(e)
			delete(r.blocks, e.id)
			if !yield(e.id) {
				return
			}
		}
	}
}

// RemoveCondition stops tracking id. Unknown ids are ignored.
func (r *BlockResolver) RemoveCondition(id uint256.Int) {
	block, ok := r.blocks[id]
	if !ok {
		return
	}
	delete(r.blocks, id)
	r.pending.Delete(entry{block: block, id: id})
}

// Block returns the release block of id.
func (r *BlockResolver) Block(id uint256.Int) (uint64, bool) {
	block, ok := r.blocks[id]
	return block, ok
}

// Len returns the number of tracked requests.
func (r *BlockResolver) Len() int {
	return len(r.blocks)
}
