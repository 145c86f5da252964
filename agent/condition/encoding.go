package condition

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// BlockConditionTag marks a release-at-block condition.
const BlockConditionTag = "B"

// Block conditions are ABI encoded as (string tag, uint256 height), the way
// requesting contracts build them with abi.encode.
var blockConditionArgs = abi.Arguments{
	{Type: mustNewType("string")},
	{Type: mustNewType("uint256")},
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// EncodeBlockCondition returns the condition releasing a request at height.
func EncodeBlockCondition(height uint64) ([]byte, error) {
	return blockConditionArgs.Pack(BlockConditionTag, new(big.Int).SetUint64(height))
}

// DecodeBlockCondition parses a condition produced by EncodeBlockCondition.
func DecodeBlockCondition(data []byte) (uint64, error) {
	values, err := blockConditionArgs.Unpack(data)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformedCondition, err)
	}
	if len(values) != 2 {
		return 0, fmt.Errorf("%w: expected 2 values, got %d", ErrMalformedCondition, len(values))
	}
	tag, ok := values[0].(string)
	if !ok || tag != BlockConditionTag {
		return 0, fmt.Errorf("%w: unsupported condition tag %v", ErrMalformedCondition, values[0])
	}
	height, ok := values[1].(*big.Int)
	if !ok || !height.IsUint64() {
		return 0, fmt.Errorf("%w: block height out of range", ErrMalformedCondition)
	}
	return height.Uint64(), nil
}
