package postgres_test

import (
	"context"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/dcipher-network/dcipher/agent/blocklock"
	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/storage/postgres"
	"github.com/dcipher-network/dcipher/storage/postgres/testutil"
)

func TestInvalidConnect(t *testing.T) {
	_, err := postgres.NewClient(context.Background(), "an invalid connstring", log.NewNopLogger())
	require.Error(t, err)
}

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := postgres.NewStateStore(testutil.NewTestClient(t))

	empty, err := store.LoadState(ctx, "scheme")
	require.NoError(t, err)
	require.Nil(t, empty)

	var maxID uint256.Int
	maxID.SetAllOne()
	want := blocklock.SavedState{
		LastSeenBlock:     1 << 63,
		LastSeenRequestID: maxID,
		DecryptionRequests: []blocklock.DecryptionRequest{
			{ID: *uint256.NewInt(2), Ciphertext: []byte("ct-2"), Condition: []byte{0x01}},
			{ID: *uint256.NewInt(10), Ciphertext: []byte("ct-10"), Condition: []byte{0x02}},
		},
	}
	require.NoError(t, store.SaveState(ctx, "scheme", want))

	got, err := store.LoadState(ctx, "scheme")
	require.NoError(t, err)
	require.Equal(t, want, *got)

	// A new snapshot replaces the old one entirely.
	next := blocklock.SavedState{LastSeenBlock: 7, DecryptionRequests: []blocklock.DecryptionRequest{}}
	require.NoError(t, store.SaveState(ctx, "scheme", next))
	got, err = store.LoadState(ctx, "scheme")
	require.NoError(t, err)
	require.Equal(t, next, *got)

	other, err := store.LoadState(ctx, "other")
	require.NoError(t, err)
	require.Nil(t, other)
}
