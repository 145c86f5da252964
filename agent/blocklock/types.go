package blocklock

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// DecryptionRequest is a pending request tracked by the agent.
type DecryptionRequest struct {
	ID         uint256.Int `json:"id"`
	Ciphertext []byte      `json:"ciphertext"`
	Condition  []byte      `json:"condition"`
}

type requestJSON struct {
	ID         string `json:"id"`
	Ciphertext []byte `json:"ciphertext"`
	Condition  []byte `json:"condition"`
}

// MarshalJSON encodes the id as a decimal string.
func (r DecryptionRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestJSON{
		ID:         r.ID.Dec(),
		Ciphertext: r.Ciphertext,
		Condition:  r.Condition,
	})
}

func (r *DecryptionRequest) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := r.ID.SetFromDecimal(raw.ID); err != nil {
		return fmt.Errorf("request id %q: %w", raw.ID, err)
	}
	r.Ciphertext = raw.Ciphertext
	r.Condition = raw.Condition
	return nil
}

// Equal reports whether both requests have the same id and contents.
func (r *DecryptionRequest) Equal(other *DecryptionRequest) bool {
	return r.ID.Eq(&other.ID) &&
		bytes.Equal(r.Ciphertext, other.Ciphertext) &&
		bytes.Equal(r.Condition, other.Condition)
}

// DecryptionRequested is the contract event announcing a new request.
type DecryptionRequested struct {
	RequestID  uint256.Int
	Callback   common.Address
	SchemeID   string
	Condition  []byte
	Ciphertext []byte

	// Position of the event on chain.
	BlockNumber uint64
	LogIndex    uint
}

// Request returns the request carried by the event.
func (e *DecryptionRequested) Request() DecryptionRequest {
	return DecryptionRequest{
		ID:         e.RequestID,
		Ciphertext: e.Ciphertext,
		Condition:  e.Condition,
	}
}

// RawRequest is a request as stored by the contract. Slots that were never
// written have an empty SchemeID.
type RawRequest struct {
	SchemeID    string
	Ciphertext  []byte
	Condition   []byte
	IsFulfilled bool
}

// RequestResult associates a fetched request with its id.
type RequestResult struct {
	ID      uint256.Int
	Request RawRequest
}

// ChainClient queries the decryption sender contract.
type ChainClient interface {
	// BlockNumber returns the current chain height.
	BlockNumber(ctx context.Context) (uint64, error)
	// LastRequestID returns the id of the latest request created on chain.
	LastRequestID(ctx context.Context) (uint256.Int, error)
	// AllUnfulfilledRequestIDs returns the ids of every request not yet fulfilled.
	AllUnfulfilledRequestIDs(ctx context.Context) ([]uint256.Int, error)
	// BatchGetRequests fetches the given requests, one result per id in the
	// same order. Unknown ids yield an empty RawRequest rather than an error.
	BatchGetRequests(ctx context.Context, ids []uint256.Int) ([]RequestResult, error)
}

// Fulfiller receives requests whose condition is met.
type Fulfiller interface {
	// RegisterRequests hands the requests over. There is no result: the
	// fulfiller owns the requests from then on.
	RegisterRequests(reqs []DecryptionRequest)
}

// ConditionResolver maps request ids to release conditions.
type ConditionResolver interface {
	AddCondition(id uint256.Int, condition []byte) error
	UpdateCondition(block uint64) iter.Seq[uint256.Int]
	RemoveCondition(id uint256.Int)
	Len() int
}
