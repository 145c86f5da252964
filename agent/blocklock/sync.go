package blocklock

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/dcipher-network/dcipher/metrics"
)

// ErrMissingCountOverflow is returned when the number of requests to fetch
// does not fit a uint64.
var ErrMissingCountOverflow = errors.New("blocklock: missing request count overflows uint64")

// SyncState reconciles the agent with the contract: it fetches every request
// created since the request cursor, drops locally pending requests that were
// fulfilled in the meantime and moves both cursors to the chain's values.
//
// Failures to query the height or to fetch a batch are logged and tolerated;
// the request cursor stops before the first request that could not be
// fetched so that a later synchronization picks it up. Only a failure to
// query the last request id, or an overflowing number of missing requests,
// is returned, besides ctx's error when the call is abandoned. An abandoned
// call leaves the cursors untouched.
func (a *Agent) SyncState(ctx context.Context) error {
	block, err := a.chain.BlockNumber(ctx)
	if err != nil {
		a.logger.Warn("failed to query block number, keeping last seen block",
			"last_seen_block", a.lastSeenBlock,
			"err", err,
		)
		block = a.lastSeenBlock
	}

	lastID, err := a.chain.LastRequestID(ctx)
	if err != nil {
		a.metrics.Resyncs(metrics.OutcomeFailure).Inc()
		return fmt.Errorf("querying last request id: %w", err)
	}

	var missing uint256.Int
	if lastID.Gt(&a.lastSeenRequestID) {
		missing.Sub(&lastID, &a.lastSeenRequestID)
	} else if lastID.Lt(&a.lastSeenRequestID) {
		a.logger.Warn("chain reports a last request id below the local cursor",
			"last_request_id", lastID.Dec(),
			"last_seen_request_id", a.lastSeenRequestID.Dec(),
		)
	}
	if !missing.IsUint64() {
		a.metrics.Resyncs(metrics.OutcomeFailure).Inc()
		return fmt.Errorf("%w: %s", ErrMissingCountOverflow, missing.Dec())
	}

	pending := slices.SortedFunc(maps.Keys(a.requests), func(x, y uint256.Int) int {
		return x.Cmp(&y)
	})
	a.logger.Info("synchronizing with chain",
		"block", block,
		"last_request_id", lastID.Dec(),
		"missing", missing.Uint64(),
		"pending", len(pending),
	)
	failed, err := a.fetchAndApply(ctx, concat(slices.Values(pending), idRange(a.lastSeenRequestID, missing.Uint64())))
	if err != nil {
		a.metrics.Resyncs(metrics.OutcomeFailure).Inc()
		return err
	}

	// Keep the request cursor below the first id that could not be fetched,
	// so that the next synchronization retries it.
	cursor := lastID
	for _, id := range failed {
		if id.Gt(&a.lastSeenRequestID) && id.Cmp(&cursor) <= 0 {
			cursor.SubUint64(&id, 1)
		}
	}

	a.lastSeenBlock = block
	a.lastSeenRequestID = cursor
	a.metrics.LastSeenBlock().Set(float64(block))
	a.metrics.Resyncs(metrics.OutcomeSuccess).Inc()
	return nil
}

// idRange yields the count ids following after.
func idRange(after uint256.Int, count uint64) iter.Seq[uint256.Int] {
	return func(yield func(uint256.Int) bool) {
		id := after
		for i := uint64(0); i < count; i++ {
			id.AddUint64(&id, 1)
			if !yield(id) {
				return
			}
		}
	}
}

func concat(seqs ...iter.Seq[uint256.Int]) iter.Seq[uint256.Int] {
	return func(yield func(uint256.Int) bool) {
		for _, seq := range seqs {
			for id := range seq {
				if !yield(id) {
					return
				}
			}
		}
	}
}

// fetchAndApply fetches the requests in batches of SyncBatchSize, running up
// to MaxParallelBatches batches at once. Results are applied in order once
// every batch of a round has completed, so a batch is applied entirely or
// not at all. It returns the ids of the batches that could not be fetched,
// and ctx's error if it was canceled before every round ran.
func (a *Agent) fetchAndApply(ctx context.Context, ids iter.Seq[uint256.Int]) ([]uint256.Int, error) {
	var failed []uint256.Int
	round := make([][]uint256.Int, 0, a.cfg.MaxParallelBatches)
	batch := make([]uint256.Int, 0, a.cfg.SyncBatchSize)
	for id := range ids {
		batch = append(batch, id)
		if len(batch) < a.cfg.SyncBatchSize {
			continue
		}
		round = append(round, batch)
		batch = make([]uint256.Int, 0, a.cfg.SyncBatchSize)
		if len(round) == a.cfg.MaxParallelBatches {
			f, err := a.fetchRound(ctx, round)
			if err != nil {
				return nil, err
			}
			failed = append(failed, f...)
			round = round[:0]
		}
	}
	if len(batch) > 0 {
		round = append(round, batch)
	}
	if len(round) > 0 {
		f, err := a.fetchRound(ctx, round)
		if err != nil {
			return nil, err
		}
		failed = append(failed, f...)
	}
	return failed, nil
}

// fetchRound fetches the batches concurrently and applies the results.
func (a *Agent) fetchRound(ctx context.Context, round [][]uint256.Int) ([]uint256.Int, error) {
	results := make([][]RequestResult, len(round))
	errs := make([]error, len(round))
	var g errgroup.Group
	for i, batch := range round {
		g.Go(func() error {
			res, err := a.chain.BatchGetRequests(ctx, batch)
			if err == nil && len(res) != len(batch) {
				err = fmt.Errorf("got %d results for %d ids", len(res), len(batch))
			}
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		a.logger.Warn("request fetch interrupted", "err", err)
		return nil, err
	}

	var failed []uint256.Int
	for i, batch := range round {
		if errs[i] != nil {
			a.logger.Warn("failed to fetch batch of requests, skipping",
				"first_request_id", batch[0].Dec(),
				"size", len(batch),
				"err", errs[i],
			)
			a.metrics.BatchFetches(metrics.OutcomeFailure).Inc()
			failed = append(failed, batch...)
			continue
		}
		a.metrics.BatchFetches(metrics.OutcomeSuccess).Inc()
		for _, r := range results[i] {
			a.applyFetched(r)
		}
	}
	return failed, nil
}

// applyFetched reconciles the local state with a request read from chain.
func (a *Agent) applyFetched(r RequestResult) {
	switch {
	case r.Request.SchemeID == "":
		// Slot never written.
		return
	case r.Request.SchemeID != a.cfg.SchemeID:
		return
	case r.Request.IsFulfilled:
		a.removeRequest(r.ID)
		return
	}

	req := DecryptionRequest{
		ID:         r.ID,
		Ciphertext: r.Request.Ciphertext,
		Condition:  r.Request.Condition,
	}
	if stored, ok := a.requests[r.ID]; ok {
		if !stored.Equal(&req) {
			a.logger.Error("request read from chain differs from the stored one",
				"request_id", r.ID.Dec(),
			)
			a.metrics.Requests(metrics.OutcomeInconsistent).Inc()
		}
		return
	}
	a.tryStoreRequest(req)
}
