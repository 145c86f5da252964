package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/holiman/uint256"
	"github.com/jackc/pgx/v5"

	"github.com/dcipher-network/dcipher/agent/blocklock"
	"github.com/dcipher-network/dcipher/metrics"
)

const (
	upsertState = `
		INSERT INTO blocklock_agent_state (scheme_id, last_seen_block, last_seen_request_id, updated_at)
			VALUES ($1, $2::numeric, $3::numeric, now())
		ON CONFLICT (scheme_id) DO UPDATE SET
			last_seen_block = excluded.last_seen_block,
			last_seen_request_id = excluded.last_seen_request_id,
			updated_at = excluded.updated_at`

	deleteRequests = `
		DELETE FROM blocklock_pending_requests WHERE scheme_id = $1`

	insertRequest = `
		INSERT INTO blocklock_pending_requests (scheme_id, request_id, ciphertext, condition)
			VALUES ($1, $2::numeric, $3, $4)`

	selectState = `
		SELECT last_seen_block::text, last_seen_request_id::text
		FROM blocklock_agent_state
		WHERE scheme_id = $1`

	selectRequests = `
		SELECT request_id::text, ciphertext, condition
		FROM blocklock_pending_requests
		WHERE scheme_id = $1
		ORDER BY request_id`
)

// StateStore keeps agent snapshots in PostgreSQL.
type StateStore struct {
	client *Client
}

var _ blocklock.StateStore = (*StateStore)(nil)

// NewStateStore returns a snapshot store using client. The schema must have
// been migrated.
func NewStateStore(client *Client) *StateStore {
	return &StateStore{client: client}
}

func (s *StateStore) observe(op string, err error) {
	status := metrics.OutcomeSuccess
	if err != nil {
		status = metrics.OutcomeFailure
	}
	s.client.metrics.DatabaseOperations(op, status).Inc()
}

// SaveState implements blocklock.StateStore. The snapshot replaces the
// previous one atomically.
func (s *StateStore) SaveState(ctx context.Context, schemeID string, state blocklock.SavedState) (err error) {
	timer := s.client.metrics.DatabaseLatencies("save_state")
	defer timer.ObserveDuration()
	defer func() { s.observe("save_state", err) }()

	tx, err := s.client.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
				s.client.logger.Warn("failed to rollback tx", "err", rollbackErr)
			}
		}
	}()

	batch := &pgx.Batch{}
	batch.Queue(upsertState, schemeID, strconv.FormatUint(state.LastSeenBlock, 10), state.LastSeenRequestID.Dec())
	batch.Queue(deleteRequests, schemeID)
	for _, req := range state.DecryptionRequests {
		batch.Queue(insertRequest, schemeID, req.ID.Dec(), req.Ciphertext, req.Condition)
	}
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err = results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("query %d: %w", i, err)
		}
	}
	if err = results.Close(); err != nil {
		return fmt.Errorf("closing batch: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit tx: %w", err)
	}
	return nil
}

// LoadState implements blocklock.StateStore.
func (s *StateStore) LoadState(ctx context.Context, schemeID string) (state *blocklock.SavedState, err error) {
	timer := s.client.metrics.DatabaseLatencies("load_state")
	defer timer.ObserveDuration()
	defer func() { s.observe("load_state", err) }()

	tx, err := s.client.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var block, lastID string
	switch err = tx.QueryRow(ctx, selectState, schemeID).Scan(&block, &lastID); {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("querying state: %w", err)
	}

	state = &blocklock.SavedState{DecryptionRequests: []blocklock.DecryptionRequest{}}
	if state.LastSeenBlock, err = strconv.ParseUint(block, 10, 64); err != nil {
		return nil, fmt.Errorf("parsing last seen block: %w", err)
	}
	if err = state.LastSeenRequestID.SetFromDecimal(lastID); err != nil {
		return nil, fmt.Errorf("parsing last seen request id: %w", err)
	}

	rows, err := tx.Query(ctx, selectRequests, schemeID)
	if err != nil {
		return nil, fmt.Errorf("querying requests: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id  string
			req blocklock.DecryptionRequest
		)
		if err = rows.Scan(&id, &req.Ciphertext, &req.Condition); err != nil {
			return nil, fmt.Errorf("scanning request: %w", err)
		}
		var parsed *uint256.Int
		if parsed, err = uint256.FromDecimal(id); err != nil {
			return nil, fmt.Errorf("parsing request id %q: %w", id, err)
		}
		req.ID = *parsed
		state.DecryptionRequests = append(state.DecryptionRequests, req)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}
	return state, nil
}
