package eth

import (
	_ "embed"
	"encoding/json"

	"github.com/ethereum/go-ethereum/accounts/abi"
	ethCommon "github.com/ethereum/go-ethereum/common"
)

func mustUnmarshalABI(artifactJSON []byte) *abi.ABI {
	var artifact struct {
		ABI *abi.ABI
	}
	if err := json.Unmarshal(artifactJSON, &artifact); err != nil {
		panic(err)
	}
	return artifact.ABI
}

//go:embed contracts/DecryptionSender.json
var artifactDecryptionSenderJSON []byte

// DecryptionSender is the ABI of the contract requests are created on.
var DecryptionSender = mustUnmarshalABI(artifactDecryptionSenderJSON)

// Contract method and event names.
const (
	methodLastRequestID      = "lastRequestID"
	methodUnfulfilledIDs     = "getAllUnfulfilledRequestIds"
	methodGetRequest         = "getRequest"
	eventDecryptionRequested = "DecryptionRequested"
)

// contractRequest mirrors the TypesLib.DecryptionRequest tuple.
type contractRequest struct {
	SchemeID      string
	Ciphertext    []byte
	Condition     []byte
	DecryptionKey []byte
	Signature     []byte
	Callback      ethCommon.Address
	IsFulfilled   bool
}
