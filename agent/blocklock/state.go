package blocklock

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/holiman/uint256"

	"github.com/dcipher-network/dcipher/log"
)

// SavedState is the snapshot an agent is restored from. Every request in it
// was unfulfilled when the snapshot was taken. The zero value is the state of
// a fresh agent.
type SavedState struct {
	LastSeenBlock      uint64              `json:"last_seen_block"`
	LastSeenRequestID  uint256.Int         `json:"last_seen_request_id"`
	DecryptionRequests []DecryptionRequest `json:"decryption_requests"`
}

type savedStateJSON struct {
	LastSeenBlock      uint64              `json:"last_seen_block"`
	LastSeenRequestID  string              `json:"last_seen_request_id"`
	DecryptionRequests []DecryptionRequest `json:"decryption_requests"`
}

// MarshalJSON encodes the request cursor as a decimal string. Missing
// requests are written as an empty list.
func (s SavedState) MarshalJSON() ([]byte, error) {
	reqs := s.DecryptionRequests
	if reqs == nil {
		reqs = []DecryptionRequest{}
	}
	return json.Marshal(savedStateJSON{
		LastSeenBlock:      s.LastSeenBlock,
		LastSeenRequestID:  s.LastSeenRequestID.Dec(),
		DecryptionRequests: reqs,
	})
}

func (s *SavedState) UnmarshalJSON(data []byte) error {
	var raw savedStateJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var id uint256.Int
	if raw.LastSeenRequestID != "" {
		if err := id.SetFromDecimal(raw.LastSeenRequestID); err != nil {
			return fmt.Errorf("last seen request id %q: %w", raw.LastSeenRequestID, err)
		}
	}
	*s = SavedState{
		LastSeenBlock:      raw.LastSeenBlock,
		LastSeenRequestID:  id,
		DecryptionRequests: raw.DecryptionRequests,
	}
	return nil
}

// SaveState returns a snapshot of the agent, requests ordered by id.
func (a *Agent) SaveState() SavedState {
	return SavedState{
		LastSeenBlock:      a.lastSeenBlock,
		LastSeenRequestID:  a.lastSeenRequestID,
		DecryptionRequests: a.Requests(),
	}
}

// FromState rebuilds an agent from a snapshot. Snapshot requests fulfilled
// since are dropped, requests created since are fetched, then the agent is
// synchronized with the chain and releases the requests whose condition
// matured in the meantime.
//
// An error is only returned when the set of unfulfilled requests cannot be
// queried. A failed synchronization is logged: the agent recovers on the next
// gap it observes.
func FromState(ctx context.Context, cfg Config, state SavedState, fulfiller Fulfiller, chain ChainClient, logger *log.Logger) (*Agent, error) {
	a := New(cfg, fulfiller, chain, logger)
	a.lastSeenBlock = state.LastSeenBlock
	a.lastSeenRequestID = state.LastSeenRequestID

	unfulfilled, err := chain.AllUnfulfilledRequestIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("querying unfulfilled requests: %w", err)
	}
	toFetch := make(map[uint256.Int]struct{}, len(unfulfilled))
	var maxID uint256.Int
	for _, id := range unfulfilled {
		toFetch[id] = struct{}{}
		if id.Gt(&maxID) {
			maxID = id
		}
	}

	restored, dropped := 0, 0
	for _, req := range state.DecryptionRequests {
		if _, ok := toFetch[req.ID]; !ok {
			dropped++
			continue
		}
		delete(toFetch, req.ID)
		if a.tryStoreRequest(req) {
			restored++
		}
	}
	a.logger.Info("restored requests from snapshot",
		"restored", restored,
		"fulfilled_since", dropped,
		"to_fetch", len(toFetch),
	)

	if len(toFetch) > 0 {
		ids := make([]uint256.Int, 0, len(toFetch))
		for id := range toFetch {
			ids = append(ids, id)
		}
		slices.SortFunc(ids, func(x, y uint256.Int) int { return x.Cmp(&y) })
		failed, err := a.fetchAndApply(ctx, slices.Values(ids))
		if err != nil {
			return nil, err
		}
		if maxID.Gt(&a.lastSeenRequestID) {
			a.lastSeenRequestID = maxID
		}
		for _, id := range failed {
			if id.Cmp(&a.lastSeenRequestID) <= 0 {
				a.lastSeenRequestID.SubUint64(&id, 1)
			}
		}
	}

	if err := a.SyncState(ctx); err != nil {
		a.logger.Warn("failed to synchronize restored agent", "err", err)
	}
	a.releaseRequests(a.lastSeenBlock)
	a.metrics.LastSeenBlock().Set(float64(a.lastSeenBlock))
	return a, nil
}
