package coin

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dcipher-network/dcipher/crypto/dleq"
	"github.com/dcipher-network/dcipher/crypto/group"
)

// evaluationJSON is the text encoding of an Evaluation: the point in the
// suite's canonical encoding and the proof as c || r. Byte slices are base64
// encoded by encoding/json.
type evaluationJSON struct {
	Eval  []byte `json:"eval"`
	Proof []byte `json:"proof"`
}

// MarshalJSON implements json.Marshaler.
func (ev *Evaluation) MarshalJSON() ([]byte, error) {
	if ev == nil || ev.Eval == nil || ev.Proof == nil {
		return nil, errors.New("coin: incomplete evaluation")
	}
	point, err := ev.Eval.MarshalBinary()
	if err != nil {
		return nil, err
	}
	proof, err := ev.Proof.MarshalBinary()
	if err != nil {
		return nil, err
	}
	return json.Marshal(evaluationJSON{Eval: point, Proof: proof})
}

// DecodeEvaluation parses the JSON encoding of an evaluation on suite.
func DecodeEvaluation(suite group.Suite, data []byte) (*Evaluation, error) {
	var raw evaluationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("coin: decoding evaluation: %w", err)
	}
	point := suite.Point()
	if err := point.UnmarshalBinary(raw.Eval); err != nil {
		return nil, fmt.Errorf("coin: decoding eval point: %w", err)
	}
	proof, err := dleq.Decode(suite, raw.Proof)
	if err != nil {
		return nil, fmt.Errorf("coin: decoding proof: %w", err)
	}
	return &Evaluation{Eval: point, Proof: proof}, nil
}
