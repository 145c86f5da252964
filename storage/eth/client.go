// Package eth implements the chain client of the blocklock agent over
// Ethereum JSON-RPC.
package eth

import (
	"context"
	"fmt"
	"math/big"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/holiman/uint256"

	"github.com/dcipher-network/dcipher/agent/blocklock"
	"github.com/dcipher-network/dcipher/log"
	"github.com/dcipher-network/dcipher/metrics"
)

const (
	moduleName = "eth"

	dialMaxRetries = 5
)

// Client queries a DecryptionSender contract.
type Client struct {
	rpc      *rpc.Client
	client   *ethclient.Client
	contract ethCommon.Address

	logger  *log.Logger
	metrics metrics.StorageMetrics
}

var (
	_ blocklock.ChainClient = (*Client)(nil)
	_ blocklock.EventSource = (*Client)(nil)
)

// NewClient dials the JSON-RPC endpoint at url, retrying with exponential
// backoff.
func NewClient(ctx context.Context, url string, contract ethCommon.Address, logger *log.Logger) (*Client, error) {
	var rpcClient *rpc.Client
	dial := func() error {
		var err error
		rpcClient, err = rpc.DialContext(ctx, url)
		if err != nil {
			logger.Warn("failed to dial rpc endpoint, retrying", "url", url, "err", err)
		}
		return err
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), dialMaxRetries), ctx)
	if err := backoff.Retry(dial, policy); err != nil {
		return nil, fmt.Errorf("rpc DialContext %s: %w", url, err)
	}
	return NewClientFromRPC(rpcClient, contract, logger), nil
}

// NewClientFromRPC wraps an established RPC connection.
func NewClientFromRPC(rpcClient *rpc.Client, contract ethCommon.Address, logger *log.Logger) *Client {
	return &Client{
		rpc:      rpcClient,
		client:   ethclient.NewClient(rpcClient),
		contract: contract,
		logger:   logger.WithModule(moduleName).With("contract", contract.Hex()),
		metrics:  metrics.NewDefaultStorageMetrics(moduleName, "jsonrpc"),
	}
}

// Close closes the connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// instrument starts timing op; the returned func records its outcome.
func (c *Client) instrument(op string) func(error) {
	timer := c.metrics.DatabaseLatencies(op)
	return func(err error) {
		timer.ObserveDuration()
		status := metrics.OutcomeSuccess
		if err != nil {
			status = metrics.OutcomeFailure
		}
		c.metrics.DatabaseOperations(op, status).Inc()
	}
}

// BlockNumber implements blocklock.ChainClient.
func (c *Client) BlockNumber(ctx context.Context) (n uint64, err error) {
	done := c.instrument("block_number")
	defer func() { done(err) }()
	n, err = c.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("eth_blockNumber: %w", err)
	}
	return n, nil
}

// call runs a read-only contract method at the latest block.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := DecryptionSender.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("packing %s call: %w", method, err)
	}
	out, err := c.client.CallContract(ctx, ethereum.CallMsg{To: &c.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("ethclient CallContract %s: %w", method, err)
	}
	values, err := DecryptionSender.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("unpacking %s result: %w", method, err)
	}
	return values, nil
}

// LastRequestID implements blocklock.ChainClient.
func (c *Client) LastRequestID(ctx context.Context) (id uint256.Int, err error) {
	done := c.instrument(methodLastRequestID)
	defer func() { done(err) }()
	values, err := c.call(ctx, methodLastRequestID)
	if err != nil {
		return id, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return id, fmt.Errorf("%s: unexpected result type %T", methodLastRequestID, values[0])
	}
	if overflow := id.SetFromBig(v); overflow {
		return id, fmt.Errorf("%s: result %s overflows uint256", methodLastRequestID, v)
	}
	return id, nil
}

// AllUnfulfilledRequestIDs implements blocklock.ChainClient.
func (c *Client) AllUnfulfilledRequestIDs(ctx context.Context) (ids []uint256.Int, err error) {
	done := c.instrument(methodUnfulfilledIDs)
	defer func() { done(err) }()
	values, err := c.call(ctx, methodUnfulfilledIDs)
	if err != nil {
		return nil, err
	}
	raw, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected result type %T", methodUnfulfilledIDs, values[0])
	}
	ids = make([]uint256.Int, len(raw))
	for i, v := range raw {
		if overflow := ids[i].SetFromBig(v); overflow {
			return nil, fmt.Errorf("%s: id %s overflows uint256", methodUnfulfilledIDs, v)
		}
	}
	return ids, nil
}

// BatchGetRequests implements blocklock.ChainClient. The getRequest calls
// go out as a single JSON-RPC batch; the batch fails as a whole if any call
// fails.
func (c *Client) BatchGetRequests(ctx context.Context, ids []uint256.Int) (results []blocklock.RequestResult, err error) {
	done := c.instrument("batch_get_request")
	defer func() { done(err) }()

	elems := make([]rpc.BatchElem, len(ids))
	outs := make([]hexutil.Bytes, len(ids))
	for i, id := range ids {
		data, err := DecryptionSender.Pack(methodGetRequest, id.ToBig())
		if err != nil {
			return nil, fmt.Errorf("packing %s call: %w", methodGetRequest, err)
		}
		elems[i] = rpc.BatchElem{
			Method: "eth_call",
			Args: []interface{}{
				map[string]interface{}{
					"to":    c.contract,
					"input": hexutil.Bytes(data),
				},
				"latest",
			},
			Result: &outs[i],
		}
	}
	if err := c.rpc.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("rpc BatchCallContext: %w", err)
	}

	results = make([]blocklock.RequestResult, len(ids))
	for i, elem := range elems {
		if elem.Error != nil {
			return nil, fmt.Errorf("%s %s: %w", methodGetRequest, ids[i].Dec(), elem.Error)
		}
		req, err := unpackRequest(outs[i])
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", methodGetRequest, ids[i].Dec(), err)
		}
		results[i] = blocklock.RequestResult{ID: ids[i], Request: req}
	}
	return results, nil
}

func unpackRequest(out []byte) (blocklock.RawRequest, error) {
	values, err := DecryptionSender.Unpack(methodGetRequest, out)
	if err != nil {
		return blocklock.RawRequest{}, fmt.Errorf("unpacking result: %w", err)
	}
	req, ok := abi.ConvertType(values[0], new(contractRequest)).(*contractRequest)
	if !ok {
		return blocklock.RawRequest{}, fmt.Errorf("unexpected result type %T", values[0])
	}
	return blocklock.RawRequest{
		SchemeID:    req.SchemeID,
		Ciphertext:  req.Ciphertext,
		Condition:   req.Condition,
		IsFulfilled: req.IsFulfilled,
	}, nil
}

// DecryptionRequestedEvents implements blocklock.EventSource.
func (c *Client) DecryptionRequestedEvents(ctx context.Context, from, to uint64) (events []blocklock.DecryptionRequested, err error) {
	done := c.instrument("filter_logs")
	defer func() { done(err) }()

	event := DecryptionSender.Events[eventDecryptionRequested]
	logs, err := c.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []ethCommon.Address{c.contract},
		Topics:    [][]ethCommon.Hash{{event.ID}},
	})
	if err != nil {
		return nil, fmt.Errorf("ethclient FilterLogs [%d, %d]: %w", from, to, err)
	}

	events = make([]blocklock.DecryptionRequested, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		ev, err := decodeDecryptionRequested(&l)
		if err != nil {
			c.logger.Warn("skipping undecodable DecryptionRequested log",
				"block", l.BlockNumber,
				"log_index", l.Index,
				"tx_hash", l.TxHash.Hex(),
				"err", err,
			)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func decodeDecryptionRequested(l *types.Log) (blocklock.DecryptionRequested, error) {
	var ev blocklock.DecryptionRequested
	event := DecryptionSender.Events[eventDecryptionRequested]
	if len(l.Topics) != 3 || l.Topics[0] != event.ID {
		return ev, fmt.Errorf("unexpected topics %v", l.Topics)
	}
	ev.RequestID.SetBytes32(l.Topics[1].Bytes())
	ev.Callback = ethCommon.BytesToAddress(l.Topics[2].Bytes())

	values, err := event.Inputs.NonIndexed().Unpack(l.Data)
	if err != nil {
		return ev, fmt.Errorf("unpacking data: %w", err)
	}
	var ok bool
	if ev.SchemeID, ok = values[0].(string); !ok {
		return ev, fmt.Errorf("unexpected scheme id type %T", values[0])
	}
	if ev.Condition, ok = values[1].([]byte); !ok {
		return ev, fmt.Errorf("unexpected condition type %T", values[1])
	}
	if ev.Ciphertext, ok = values[2].([]byte); !ok {
		return ev, fmt.Errorf("unexpected ciphertext type %T", values[2])
	}
	ev.BlockNumber = l.BlockNumber
	ev.LogIndex = l.Index
	return ev, nil
}
