package blocklock

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dcipher-network/dcipher/metrics"
)

func feedBlocks(ctx context.Context, a *Agent, from, to uint64) {
	for h := from; h <= to; h++ {
		a.HandleNewBlock(ctx, h)
	}
}

func TestReleaseAtConditionBlock(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 5))
	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 5))
	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 7))
	require.Equal(t, []uint64{1, 2, 3}, pendingIDs(a))
	require.Equal(t, u256(3), a.LastSeenRequestID())

	feedBlocks(ctx, a, 1, 4)
	require.Empty(t, f.releasedIDs())

	a.HandleNewBlock(ctx, 5)
	require.Equal(t, []uint64{1, 2}, f.releasedIDs())
	require.Equal(t, []uint64{3}, pendingIDs(a))

	a.HandleNewBlock(ctx, 6)
	require.Equal(t, []uint64{1, 2}, f.releasedIDs())

	a.HandleNewBlock(ctx, 7)
	require.Equal(t, []uint64{1, 2, 3}, f.releasedIDs())
	require.Empty(t, pendingIDs(a))
	require.EqualValues(t, 7, a.LastSeenBlock())
}

func TestReleasedOnce(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 2))
	feedBlocks(ctx, a, 1, 10)
	require.Equal(t, []uint64{1}, f.releasedIDs())
	require.Len(t, f.batches, 1)
}

func TestConditionAlreadyMet(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	feedBlocks(ctx, a, 1, 5)
	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 5, 3))
	require.Empty(t, f.releasedIDs())

	a.HandleNewBlock(ctx, 6)
	require.Equal(t, []uint64{1}, f.releasedIDs())
}

func TestStaleBlockIgnored(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 8))
	feedBlocks(ctx, a, 1, 5)

	for _, h := range []uint64{0, 3, 5} {
		a.HandleNewBlock(ctx, h)
		require.EqualValues(t, 5, a.LastSeenBlock())
	}
	require.Empty(t, f.releasedIDs())
	require.Zero(t, chain.batchCalls)
}

func TestBlockGapSynchronizes(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	a.HandleNewBlock(ctx, 1)
	// Requests the agent never saw an event for.
	chain.request(t, testScheme, 2, 4)
	chain.request(t, testScheme, 3, 20)
	chain.setHeight(10)

	a.HandleNewBlock(ctx, 10)
	require.EqualValues(t, 10, a.LastSeenBlock())
	require.Equal(t, u256(2), a.LastSeenRequestID())
	require.Equal(t, []uint64{1}, f.releasedIDs())
	require.Equal(t, []uint64{2}, pendingIDs(a))
}

func TestBlockGapUsesChainHeight(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 12))
	a.HandleNewBlock(ctx, 1)
	chain.setHeight(15)

	// The notified block lags behind the chain.
	a.HandleNewBlock(ctx, 9)
	require.EqualValues(t, 15, a.LastSeenBlock())
	require.Equal(t, []uint64{1}, f.releasedIDs())
}

func TestRequestGapSynchronizes(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, _ := newTestAgent(Config{}, chain)

	chain.request(t, testScheme, 1, 50)
	chain.request(t, testScheme, 1, 50)
	ev := chain.request(t, testScheme, 2, 50)
	chain.setHeight(2)

	a.HandleDecryptionRequested(ctx, ev)
	require.Equal(t, u256(3), a.LastSeenRequestID())
	require.Equal(t, []uint64{1, 2, 3}, pendingIDs(a))
	require.EqualValues(t, 2, a.LastSeenBlock())
}

func TestReplayedRequest(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, _ := newTestAgent(Config{}, chain)

	ev := chain.request(t, testScheme, 1, 50)
	a.HandleDecryptionRequested(ctx, ev)
	stored := a.Requests()

	a.HandleDecryptionRequested(ctx, ev)
	require.Equal(t, stored, a.Requests())

	tampered := ev
	tampered.Ciphertext = []byte("other")
	a.HandleDecryptionRequested(ctx, tampered)
	require.Equal(t, stored, a.Requests())
	require.Equal(t, u256(1), a.LastSeenRequestID())
	require.Zero(t, chain.batchCalls)
}

func TestRequestAlreadySynchronized(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	var events []DecryptionRequested
	for range 4 {
		events = append(events, chain.request(t, testScheme, 1, 30))
	}
	chain.setFailBatch(func(ids []uint256.Int) error {
		if ids[0].Uint64() == 1 {
			return errRPC
		}
		return nil
	})

	a, _ := newTestAgent(Config{SyncBatchSize: 2}, chain)
	require.NoError(t, a.SyncState(ctx))
	require.Equal(t, []uint64{3, 4}, pendingIDs(a))
	lastSeen := a.LastSeenRequestID()
	require.True(t, lastSeen.IsZero())

	rejected := testutil.ToFloat64(a.metrics.Requests(metrics.OutcomeRejected))
	for _, ev := range events {
		a.HandleDecryptionRequested(ctx, ev)
	}
	require.Equal(t, []uint64{1, 2, 3, 4}, pendingIDs(a))
	require.Equal(t, u256(4), a.LastSeenRequestID())
	require.Equal(t, rejected, testutil.ToFloat64(a.metrics.Requests(metrics.OutcomeRejected)))
}

func TestReplayOfForgottenRequest(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	ev := chain.request(t, testScheme, 1, 1)
	a.HandleDecryptionRequested(ctx, ev)
	a.HandleNewBlock(ctx, 1)
	require.Equal(t, []uint64{1}, f.releasedIDs())

	a.HandleDecryptionRequested(ctx, ev)
	require.Empty(t, pendingIDs(a))
	a.HandleNewBlock(ctx, 2)
	require.Equal(t, []uint64{1}, f.releasedIDs())
}

func TestUnsupportedScheme(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, _ := newTestAgent(Config{}, chain)

	a.HandleDecryptionRequested(ctx, chain.request(t, "OTHER-SCHEME", 1, 5))
	require.Equal(t, u256(1), a.LastSeenRequestID())
	require.Empty(t, pendingIDs(a))

	a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 5))
	require.Equal(t, []uint64{2}, pendingIDs(a))
	require.Zero(t, chain.batchCalls)
}

func TestMalformedConditionDropped(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, f := newTestAgent(Config{}, chain)

	ev := chain.request(t, testScheme, 1, 5)
	ev.Condition = []byte{0xde, 0xad}
	a.HandleDecryptionRequested(ctx, ev)
	require.Equal(t, u256(1), a.LastSeenRequestID())
	require.Empty(t, pendingIDs(a))

	feedBlocks(ctx, a, 1, 10)
	require.Empty(t, f.releasedIDs())
}

func TestRequestsOrdered(t *testing.T) {
	ctx := context.Background()
	chain := newMockChain()
	a, _ := newTestAgent(Config{}, chain)

	for range 20 {
		a.HandleDecryptionRequested(ctx, chain.request(t, testScheme, 1, 100))
	}
	ids := pendingIDs(a)
	require.Len(t, ids, 20)
	for i := 1; i < len(ids); i++ {
		require.Less(t, ids[i-1], ids[i])
	}
}
