// Package blocklock implements the blocklock agent: it follows decryption
// requests created on chain and hands them over for fulfillment once the
// chain reaches their release block.
//
// The agent is driven by two event streams, new blocks and new requests, and
// keeps a cursor on each. A gap in either stream triggers a full
// synchronization with the contract state.
package blocklock

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/holiman/uint256"

	"github.com/dcipher-network/dcipher/agent/condition"
	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/metrics"
)

const (
	moduleName = "blocklock"

	defaultSyncBatchSize      = 100
	defaultMaxParallelBatches = 4
)

// Config parameterizes an Agent.
type Config struct {
	// SchemeID selects the handled requests. Compared byte for byte.
	SchemeID string
	// SyncBatchSize is the number of requests fetched per chain call.
	SyncBatchSize int
	// MaxParallelBatches bounds the batches fetched concurrently.
	MaxParallelBatches int
}

func (cfg Config) withDefaults() Config {
	if cfg.SyncBatchSize <= 0 {
		cfg.SyncBatchSize = defaultSyncBatchSize
	}
	if cfg.MaxParallelBatches <= 0 {
		cfg.MaxParallelBatches = defaultMaxParallelBatches
	}
	return cfg
}

// Agent tracks pending decryption requests of one scheme.
//
// Agent is not safe for concurrent use: callers must serialize calls to its
// methods.
type Agent struct {
	cfg Config

	resolver          ConditionResolver
	lastSeenBlock     uint64
	lastSeenRequestID uint256.Int
	requests          map[uint256.Int]DecryptionRequest

	fulfiller Fulfiller
	chain     ChainClient

	logger  *log.Logger
	metrics metrics.AgentMetrics
}

// New returns an agent with empty state.
func New(cfg Config, fulfiller Fulfiller, chain ChainClient, logger *log.Logger) *Agent {
	cfg = cfg.withDefaults()
	return &Agent{
		cfg:       cfg,
		resolver:  condition.NewBlockResolver(),
		requests:  make(map[uint256.Int]DecryptionRequest),
		fulfiller: fulfiller,
		chain:     chain,
		logger:    logger.WithModule(moduleName).With("scheme_id", cfg.SchemeID),
		metrics:   metrics.NewDefaultAgentMetrics(moduleName, cfg.SchemeID),
	}
}

// HandleNewBlock processes the notification of a new block and releases the
// requests whose condition it satisfies.
func (a *Agent) HandleNewBlock(ctx context.Context, block uint64) {
	if block <= a.lastSeenBlock {
		a.logger.Debug("ignoring stale block", "block", block, "last_seen_block", a.lastSeenBlock)
		a.metrics.Blocks("stale").Inc()
		return
	}

	if block != a.lastSeenBlock+1 {
		a.logger.Warn("gap in blocks, synchronizing with chain",
			"block", block,
			"last_seen_block", a.lastSeenBlock,
		)
		a.metrics.Blocks("gap").Inc()
		if err := a.SyncState(ctx); err != nil {
			a.logger.Error("failed to synchronize with chain", "err", err)
		}
		// The synchronized height supersedes the notified one.
		block = a.lastSeenBlock
	} else {
		a.metrics.Blocks("next").Inc()
	}

	a.releaseRequests(block)
	a.lastSeenBlock = block
	a.metrics.LastSeenBlock().Set(float64(block))
}

// HandleDecryptionRequested processes a DecryptionRequested event.
func (a *Agent) HandleDecryptionRequested(ctx context.Context, ev DecryptionRequested) {
	id := ev.RequestID
	logger := a.logger.With("request_id", id.Dec())

	if id.Cmp(&a.lastSeenRequestID) <= 0 {
		a.handleReplay(logger, ev)
		return
	}

	next := new(uint256.Int).AddUint64(&a.lastSeenRequestID, 1)
	if !id.Eq(next) {
		logger.Warn("gap in request ids, synchronizing with chain",
			"last_seen_request_id", a.lastSeenRequestID.Dec(),
		)
		if err := a.SyncState(ctx); err != nil {
			logger.Error("failed to synchronize with chain", "err", err)
		}
		return
	}

	a.lastSeenRequestID = id
	if _, ok := a.requests[id]; ok {
		// Already fetched by a sync that stopped short of a failed batch.
		a.handleReplay(logger, ev)
		return
	}
	if ev.SchemeID != a.cfg.SchemeID {
		logger.Debug("ignoring request of unsupported scheme", "request_scheme_id", ev.SchemeID)
		a.metrics.Requests(metrics.OutcomeUnsupported).Inc()
		return
	}
	a.tryStoreRequest(ev.Request())
}

func (a *Agent) handleReplay(logger *log.Logger, ev DecryptionRequested) {
	a.metrics.Requests(metrics.OutcomeReplay).Inc()
	stored, ok := a.requests[ev.RequestID]
	if !ok {
		logger.Debug("ignoring replayed request, assumed fulfilled")
		return
	}
	replayed := ev.Request()
	if !stored.Equal(&replayed) {
		logger.Error("replayed request differs from the stored one, the chain history is inconsistent",
			"stored_condition", fmt.Sprintf("%x", stored.Condition),
			"replayed_condition", fmt.Sprintf("%x", replayed.Condition),
		)
		a.metrics.Requests(metrics.OutcomeInconsistent).Inc()
		return
	}
	logger.Debug("ignoring replayed request")
}

// tryStoreRequest tracks req in the resolver, then locally. A request the
// resolver rejects is dropped.
func (a *Agent) tryStoreRequest(req DecryptionRequest) bool {
	if err := a.resolver.AddCondition(req.ID, req.Condition); err != nil {
		a.logger.Warn("dropping request with unusable condition",
			"request_id", req.ID.Dec(),
			"err", err,
		)
		a.metrics.Requests(metrics.OutcomeRejected).Inc()
		return false
	}
	a.requests[req.ID] = req
	a.metrics.Requests(metrics.OutcomeStored).Inc()
	a.metrics.PendingRequests().Set(float64(len(a.requests)))
	a.logger.Debug("stored request", "request_id", req.ID.Dec())
	return true
}

// removeRequest forgets a request, typically fulfilled by another party.
func (a *Agent) removeRequest(id uint256.Int) {
	if _, ok := a.requests[id]; !ok {
		return
	}
	delete(a.requests, id)
	a.resolver.RemoveCondition(id)
	a.metrics.Requests(metrics.OutcomeFulfilled).Inc()
	a.metrics.PendingRequests().Set(float64(len(a.requests)))
	a.logger.Debug("removed fulfilled request", "request_id", id.Dec())
}

// releaseRequests forwards every request whose condition is met at block.
func (a *Agent) releaseRequests(block uint64) {
	var released []DecryptionRequest
	for id := range a.resolver.UpdateCondition(block) {
		req, ok := a.requests[id]
		if !ok {
			a.logger.Error("resolved request is not stored locally", "request_id", id.Dec(), "block", block)
			continue
		}
		delete(a.requests, id)
		released = append(released, req)
	}
	if len(released) == 0 {
		return
	}

	a.logger.Info("releasing requests", "block", block, "count", len(released))
	a.fulfiller.RegisterRequests(released)
	a.metrics.Released().Add(float64(len(released)))
	a.metrics.PendingRequests().Set(float64(len(a.requests)))
}

// LastSeenBlock returns the block cursor.
func (a *Agent) LastSeenBlock() uint64 {
	return a.lastSeenBlock
}

// LastSeenRequestID returns the request cursor.
func (a *Agent) LastSeenRequestID() uint256.Int {
	return a.lastSeenRequestID
}

// SchemeID returns the handled scheme.
func (a *Agent) SchemeID() string {
	return a.cfg.SchemeID
}

// Requests returns the pending requests ordered by id.
func (a *Agent) Requests() []DecryptionRequest {
	ids := slices.SortedFunc(maps.Keys(a.requests), func(x, y uint256.Int) int {
		return x.Cmp(&y)
	})
	out := make([]DecryptionRequest, len(ids))
	for i, id := range ids {
		out[i] = a.requests[id]
	}
	return out
}
