package blocklock

import (
	"context"
	"slices"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/dcipher-network/dcipher/agent/condition"
	"github.com/dcipher-network/dcipher/log"
)

const testScheme = "BN254-BLS-BLOCKLOCK"

func u256(v uint64) uint256.Int {
	return *uint256.NewInt(v)
}

func blockCondition(t *testing.T, height uint64) []byte {
	c, err := condition.EncodeBlockCondition(height)
	require.NoError(t, err)
	return c
}

// mockChain is an in-memory decryption sender contract.
type mockChain struct {
	mu sync.Mutex

	height   uint64
	lastID   uint256.Int
	requests map[uint256.Int]RawRequest
	events   []DecryptionRequested

	blockNumberErr error
	lastIDErr      error
	unfulfilledErr error
	// failBatch makes BatchGetRequests fail for the batches it returns an error for.
	failBatch func(ids []uint256.Int) error

	batchCalls  int
	inflight    int
	maxInflight int
}

func newMockChain() *mockChain {
	return &mockChain{requests: make(map[uint256.Int]RawRequest)}
}

// request creates a request in block createdAt, releasable at releaseAt, and
// returns its event. The chain height is left untouched.
func (c *mockChain) request(t *testing.T, scheme string, createdAt, releaseAt uint64) DecryptionRequested {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lastID.AddUint64(&c.lastID, 1)
	ev := DecryptionRequested{
		RequestID:   c.lastID,
		SchemeID:    scheme,
		Condition:   blockCondition(t, releaseAt),
		Ciphertext:  []byte("ciphertext-" + c.lastID.Dec()),
		BlockNumber: createdAt,
	}
	c.requests[ev.RequestID] = RawRequest{
		SchemeID:   scheme,
		Ciphertext: ev.Ciphertext,
		Condition:  ev.Condition,
	}
	c.events = append(c.events, ev)
	return ev
}

func (c *mockChain) fulfill(id uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.requests[u256(id)]
	r.IsFulfilled = true
	c.requests[u256(id)] = r
}

func (c *mockChain) setHeight(h uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = h
}

func (c *mockChain) setFailBatch(f func(ids []uint256.Int) error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failBatch = f
}

func (c *mockChain) BlockNumber(_ context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, c.blockNumberErr
}

func (c *mockChain) LastRequestID(_ context.Context) (uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID, c.lastIDErr
}

func (c *mockChain) AllUnfulfilledRequestIDs(_ context.Context) ([]uint256.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unfulfilledErr != nil {
		return nil, c.unfulfilledErr
	}
	var ids []uint256.Int
	for id, r := range c.requests {
		if !r.IsFulfilled {
			ids = append(ids, id)
		}
	}
	slices.SortFunc(ids, func(x, y uint256.Int) int { return x.Cmp(&y) })
	return ids, nil
}

func (c *mockChain) BatchGetRequests(ctx context.Context, ids []uint256.Int) ([]RequestResult, error) {
	c.mu.Lock()
	c.batchCalls++
	c.inflight++
	c.maxInflight = max(c.maxInflight, c.inflight)
	failBatch := c.failBatch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.inflight--
		c.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if failBatch != nil {
		if err := failBatch(ids); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]RequestResult, len(ids))
	for i, id := range ids {
		out[i] = RequestResult{ID: id, Request: c.requests[id]}
	}
	return out, nil
}

func (c *mockChain) DecryptionRequestedEvents(_ context.Context, from, to uint64) ([]DecryptionRequested, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []DecryptionRequested
	for _, ev := range c.events {
		if ev.BlockNumber >= from && ev.BlockNumber <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

// recordingFulfiller keeps every released request.
type recordingFulfiller struct {
	mu      sync.Mutex
	batches [][]DecryptionRequest
}

func (f *recordingFulfiller) RegisterRequests(reqs []DecryptionRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, slices.Clone(reqs))
}

// releasedIDs returns the ids of the released requests, in release order.
func (f *recordingFulfiller) releasedIDs() []uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint64
	for _, b := range f.batches {
		for _, r := range b {
			ids = append(ids, r.ID.Uint64())
		}
	}
	return ids
}

func pendingIDs(a *Agent) []uint64 {
	var ids []uint64
	for _, r := range a.Requests() {
		ids = append(ids, r.ID.Uint64())
	}
	return ids
}

func newTestAgent(cfg Config, chain *mockChain) (*Agent, *recordingFulfiller) {
	if cfg.SchemeID == "" {
		cfg.SchemeID = testScheme
	}
	f := &recordingFulfiller{}
	return New(cfg, f, chain, log.NewNopLogger()), f
}
