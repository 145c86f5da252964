package blocklock

import (
	"context"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dcipher-network/dcipher/agent"
	"github.com/dcipher-network/dcipher/agent/util"
	"github.com/dcipher-network/dcipher/log"
)

const (
	// Idle polling slows down to this multiple of the poll interval.
	maxBackoffFactor = 10

	defaultPollInterval  = 2 * time.Second
	defaultMaxBlockRange = 500
)

// EventSource reads DecryptionRequested events from the chain.
type EventSource interface {
	// DecryptionRequestedEvents returns the events emitted in blocks
	// [from, to], in chain order.
	DecryptionRequestedEvents(ctx context.Context, from, to uint64) ([]DecryptionRequested, error)
}

// StateStore persists agent snapshots.
type StateStore interface {
	// LoadState returns the latest snapshot of the scheme, or nil if there is none.
	LoadState(ctx context.Context, schemeID string) (*SavedState, error)
	// SaveState replaces the snapshot of the scheme.
	SaveState(ctx context.Context, schemeID string, state SavedState) error
}

// Status is a summary of the agent state, published after each step.
type Status struct {
	SchemeID          string    `json:"scheme_id"`
	LastSeenBlock     uint64    `json:"last_seen_block"`
	LastSeenRequestID string    `json:"last_seen_request_id"`
	PendingRequests   int       `json:"pending_requests"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// RunnerConfig parameterizes the chain polling of a Runner.
type RunnerConfig struct {
	// PollInterval is the delay between chain head queries.
	PollInterval time.Duration
	// MaxBlockRange bounds the block span of a single event query.
	MaxBlockRange uint64
}

var _ agent.Service = (*Runner)(nil)

// Runner drives an Agent from the chain: it restores the agent, then polls
// for new blocks, feeds their events and the blocks themselves to the agent
// in chain order and persists a snapshot after each step.
type Runner struct {
	cfg       Config
	runnerCfg RunnerConfig

	chain     ChainClient
	events    EventSource
	store     StateStore
	fulfiller Fulfiller

	logger *log.Logger
	status atomic.Pointer[Status]
}

// NewRunner returns a runner. The agent is created when the runner starts.
func NewRunner(cfg Config, runnerCfg RunnerConfig, chain ChainClient, events EventSource, store StateStore, fulfiller Fulfiller, logger *log.Logger) *Runner {
	if runnerCfg.PollInterval <= 0 {
		runnerCfg.PollInterval = defaultPollInterval
	}
	if runnerCfg.MaxBlockRange == 0 {
		runnerCfg.MaxBlockRange = defaultMaxBlockRange
	}
	return &Runner{
		cfg:       cfg.withDefaults(),
		runnerCfg: runnerCfg,
		chain:     chain,
		events:    events,
		store:     store,
		fulfiller: fulfiller,
		logger:    logger.WithModule(moduleName).With("scheme_id", cfg.SchemeID),
	}
}

// Name returns the name of the service.
func (r *Runner) Name() string {
	return fmt.Sprintf("%s_%s", moduleName, r.cfg.SchemeID)
}

// Status returns the last published status. The boolean is false until the
// agent has been initialized.
func (r *Runner) Status() (Status, bool) {
	s := r.status.Load()
	if s == nil {
		return Status{}, false
	}
	return *s, true
}

// Start runs the runner until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	backoff, err := util.NewBackoff(r.runnerCfg.PollInterval, maxBackoffFactor*r.runnerCfg.PollInterval)
	if err != nil {
		r.logger.Error("error configuring backoff policy", "err", err)
		return
	}

	var a *Agent
	for a == nil {
		if a, err = r.initAgent(ctx); err != nil {
			r.logger.Error("failed to initialize agent", "err", err)
			backoff.Failure()
			select {
			case <-time.After(backoff.Timeout()):
			case <-ctx.Done():
				r.logger.Warn("shutting down blocklock runner", "reason", ctx.Err())
				return
			}
		}
	}
	backoff.Reset()
	r.persist(ctx, a)

	for {
		select {
		case <-time.After(backoff.Timeout()):
		case <-ctx.Done():
			r.logger.Warn("shutting down blocklock runner", "reason", ctx.Err())
			return
		}

		advanced, err := r.step(ctx, a)
		switch {
		case err != nil:
			r.logger.Error("failed to process blocks", "err", err)
			backoff.Failure()
		case advanced:
			r.persist(ctx, a)
			backoff.Success()
		default:
			// No new block, poll a bit less often.
			backoff.Failure()
		}
	}
}

func (r *Runner) initAgent(ctx context.Context) (*Agent, error) {
	state, err := r.store.LoadState(ctx, r.cfg.SchemeID)
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if state != nil {
		r.logger.Info("restoring agent from snapshot",
			"last_seen_block", state.LastSeenBlock,
			"requests", len(state.DecryptionRequests),
		)
		return FromState(ctx, r.cfg, *state, r.fulfiller, r.chain, r.logger)
	}

	r.logger.Info("no snapshot found, starting from chain state")
	a := New(r.cfg, r.fulfiller, r.chain, r.logger)
	if err := a.SyncState(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// step feeds the blocks following the agent's cursor, up to MaxBlockRange of
// them, and reports whether any was available.
func (r *Runner) step(ctx context.Context, a *Agent) (bool, error) {
	latest, err := r.chain.BlockNumber(ctx)
	if err != nil {
		return false, fmt.Errorf("querying block number: %w", err)
	}
	from := a.LastSeenBlock() + 1
	if latest < from {
		return false, nil
	}
	to := min(latest, from+r.runnerCfg.MaxBlockRange-1)

	events, err := r.events.DecryptionRequestedEvents(ctx, from, to)
	if err != nil {
		return false, fmt.Errorf("fetching events of blocks [%d, %d]: %w", from, to, err)
	}
	slices.SortStableFunc(events, func(x, y DecryptionRequested) int {
		if x.BlockNumber != y.BlockNumber {
			if x.BlockNumber < y.BlockNumber {
				return -1
			}
			return 1
		}
		return int(x.LogIndex) - int(y.LogIndex)
	})

	i := 0
	for i < len(events) && events[i].BlockNumber < from {
		i++
	}
	for height := from; height <= to; height++ {
		for ; i < len(events) && events[i].BlockNumber == height; i++ {
			a.HandleDecryptionRequested(ctx, events[i])
		}
		a.HandleNewBlock(ctx, height)
	}
	r.logger.Debug("processed blocks", "from", from, "to", to, "events", len(events))
	return true, nil
}

// persist saves a snapshot of the agent and publishes its status.
func (r *Runner) persist(ctx context.Context, a *Agent) {
	state := a.SaveState()
	if err := r.store.SaveState(ctx, r.cfg.SchemeID, state); err != nil {
		r.logger.Error("failed to save agent state", "err", err)
	}
	r.status.Store(&Status{
		SchemeID:          r.cfg.SchemeID,
		LastSeenBlock:     state.LastSeenBlock,
		LastSeenRequestID: state.LastSeenRequestID.Dec(),
		PendingRequests:   len(state.DecryptionRequests),
		UpdatedAt:         time.Now().UTC(),
	})
}
