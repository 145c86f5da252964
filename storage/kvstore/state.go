package kvstore

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/holiman/uint256"

	"github.com/dcipher-network/dcipher/agent/blocklock"
)

var encMode = func() cbor.EncMode {
	mode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// storedRequest and storedState are the on-disk layout of a snapshot. Ids
// are stored as 32-byte big-endian integers.
type storedRequest struct {
	ID         []byte `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
	Condition  []byte `cbor:"3,keyasint"`
}

type storedState struct {
	LastSeenBlock     uint64          `cbor:"1,keyasint"`
	LastSeenRequestID []byte          `cbor:"2,keyasint"`
	Requests          []storedRequest `cbor:"3,keyasint"`
}

func stateKey(schemeID string) []byte {
	return []byte("blocklock/state/" + schemeID)
}

func encodeState(state *blocklock.SavedState) ([]byte, error) {
	lastID := state.LastSeenRequestID.Bytes32()
	stored := storedState{
		LastSeenBlock:     state.LastSeenBlock,
		LastSeenRequestID: lastID[:],
		Requests:          make([]storedRequest, len(state.DecryptionRequests)),
	}
	for i, req := range state.DecryptionRequests {
		id := req.ID.Bytes32()
		stored.Requests[i] = storedRequest{
			ID:         id[:],
			Ciphertext: req.Ciphertext,
			Condition:  req.Condition,
		}
	}
	return encMode.Marshal(stored)
}

func decodeState(raw []byte) (*blocklock.SavedState, error) {
	var stored storedState
	if err := cbor.Unmarshal(raw, &stored); err != nil {
		return nil, err
	}
	if len(stored.LastSeenRequestID) > 32 {
		return nil, fmt.Errorf("last seen request id has %d bytes", len(stored.LastSeenRequestID))
	}
	state := &blocklock.SavedState{
		LastSeenBlock:      stored.LastSeenBlock,
		DecryptionRequests: make([]blocklock.DecryptionRequest, len(stored.Requests)),
	}
	state.LastSeenRequestID.SetBytes(stored.LastSeenRequestID)
	for i, req := range stored.Requests {
		if len(req.ID) > 32 {
			return nil, fmt.Errorf("request id has %d bytes", len(req.ID))
		}
		var id uint256.Int
		id.SetBytes(req.ID)
		state.DecryptionRequests[i] = blocklock.DecryptionRequest{
			ID:         id,
			Ciphertext: req.Ciphertext,
			Condition:  req.Condition,
		}
	}
	return state, nil
}

// StateStore keeps agent snapshots in a KVStore, one key per scheme.
type StateStore struct {
	kv KVStore
}

var _ blocklock.StateStore = (*StateStore)(nil)

// NewStateStore returns a snapshot store backed by kv.
func NewStateStore(kv KVStore) *StateStore {
	return &StateStore{kv: kv}
}

// LoadState implements blocklock.StateStore.
func (s *StateStore) LoadState(_ context.Context, schemeID string) (*blocklock.SavedState, error) {
	key := stateKey(schemeID)
	ok, err := s.kv.Has(key)
	if err != nil {
		return nil, fmt.Errorf("kvstore: checking %s: %w", key, err)
	}
	if !ok {
		return nil, nil
	}
	raw, err := s.kv.Get(key)
	if err != nil {
		return nil, fmt.Errorf("kvstore: reading %s: %w", key, err)
	}
	state, err := decodeState(raw)
	if err != nil {
		return nil, fmt.Errorf("kvstore: decoding %s: %w; raw value was %x", key, err, raw)
	}
	return state, nil
}

// SaveState implements blocklock.StateStore.
func (s *StateStore) SaveState(_ context.Context, schemeID string, state blocklock.SavedState) error {
	raw, err := encodeState(&state)
	if err != nil {
		return fmt.Errorf("kvstore: encoding state: %w", err)
	}
	if err := s.kv.Put(stateKey(schemeID), raw); err != nil {
		return fmt.Errorf("kvstore: writing %s: %w", stateKey(schemeID), err)
	}
	return nil
}

// Close closes the underlying store.
func (s *StateStore) Close() error {
	return s.kv.Close()
}
