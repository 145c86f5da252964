package coin

import (
	"crypto/cipher"
	"errors"

	"go.dedis.ch/kyber/v3"

	"github.com/dcipher-network/dcipher/crypto/dleq"
	"github.com/dcipher-network/dcipher/crypto/group"
	"github.com/dcipher-network/dcipher/crypto/party"
	"github.com/dcipher-network/dcipher/crypto/polynomial"
)

// Domain separation tags. Every node of a deployment must use the same values.
const (
	// GeneratorDST separates the hash of the coin input to a group element.
	GeneratorDST = "DCIPHER-ECDH-COIN-TOSS-V01"
	// ProofDST binds evaluation proofs to the coin toss.
	ProofDST = "DCIPHER-ECDH-COIN-TOSS-V01"
)

var (
	// ErrEval is the only error returned by Eval.
	ErrEval = errors.New("coin: evaluation failed")
	// ErrVerify is the only error returned by Verify.
	ErrVerify = errors.New("coin: invalid evaluation")
	// ErrInvalidInput is the only error returned by GetCoin.
	ErrInvalidInput = errors.New("coin: invalid input")
)

// Evaluation is a party's contribution to a coin: s_i·H(coinInput) together
// with a proof that the same s_i was used for its verification key.
type Evaluation struct {
	Eval  kyber.Point
	Proof *dleq.Proof
}

func generator(suite group.Suite, coinInput []byte) (kyber.Point, error) {
	return suite.HashToPoint(coinInput, []byte(GeneratorDST))
}

// Eval computes the contribution of the holder of share for coinInput.
// The Eval field only depends on (share, coinInput); the proof is randomized by rng.
func Eval(suite group.Suite, share kyber.Scalar, coinInput []byte, g kyber.Point, rng cipher.Stream) (*Evaluation, error) {
	if share == nil || g == nil {
		return nil, ErrEval
	}
	gTilde, err := generator(suite, coinInput)
	if err != nil {
		return nil, ErrEval
	}
	vk := suite.Point().Mul(share, g)
	eval := suite.Point().Mul(share, gTilde)

	proof, err := dleq.Prove(suite, share, g, gTilde, vk, eval, []byte(ProofDST), rng)
	if err != nil {
		return nil, ErrEval
	}
	return &Evaluation{Eval: eval, Proof: proof}, nil
}

// Verify checks an evaluation against the verification key vk of its author.
func Verify(suite group.Suite, ev *Evaluation, vk kyber.Point, coinInput []byte, g kyber.Point) error {
	if ev == nil || ev.Eval == nil || ev.Proof == nil || vk == nil || g == nil {
		return ErrVerify
	}
	gTilde, err := generator(suite, coinInput)
	if err != nil {
		return ErrVerify
	}
	if err := ev.Proof.Verify(suite, g, gTilde, vk, ev.Eval, []byte(ProofDST)); err != nil {
		return ErrVerify
	}
	return nil
}

// GetCoin reconstructs the coin for coinInput from the evaluations of the
// parties ids, whose verification keys are vks. At least t evaluations from
// distinct parties must verify; the others, including repeats of a party that
// already has a valid evaluation, are ignored.
//
// All evaluations are verified and an interpolation over t of them is always
// performed, so the amount of work does not reveal which parties misbehaved.
func GetCoin(suite group.Suite, evals []*Evaluation, ids []party.ID, vks []kyber.Point, coinInput []byte, g kyber.Point, t int) (Coin, error) {
	if t < 1 || len(evals) != len(ids) || len(evals) != len(vks) || len(evals) < t {
		return 0, ErrInvalidInput
	}

	valid := make([]int, 0, len(evals))
	invalid := make([]int, 0, len(evals))
	seen := make(map[party.ID]struct{}, len(evals))
	for i := range evals {
		err := Verify(suite, evals[i], vks[i], coinInput, g)
		_, dup := seen[ids[i]]
		if err == nil && !dup {
			seen[ids[i]] = struct{}{}
			valid = append(valid, i)
		} else {
			invalid = append(invalid, i)
		}
	}
	good := len(valid) >= t

	selected := append(valid, invalid...)[:t]
	domain := make([]party.ID, t)
	points := make([]kyber.Point, t)
	for k, i := range selected {
		domain[k] = ids[i]
		points[k] = suite.Point().Null()
		if evals[i] != nil && evals[i].Eval != nil {
			points[k] = evals[i].Eval
		}
	}

	secret, err := polynomial.InterpolatePointsAt(suite, domain, points, suite.Scalar().Zero())
	if err != nil {
		return 0, ErrInvalidInput
	}
	// The coin is derived from the suite's canonical point encoding.
	b, err := secret.MarshalBinary()
	good = good && err == nil

	h := suite.Hash()
	_, _ = h.Write(b)
	c := fromDigest(h.Sum(nil))

	if !good {
		return 0, ErrInvalidInput
	}
	return c, nil
}
