// Package validate holds the input checks shared by the ballot builders and
// the proxy signer.
package validate

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"

	"proxyvote/models"
)

// StrictHex decodes a 0x-prefixed, even-length hex string. "0x" decodes to an
// empty slice.
func StrictHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") {
		return nil, models.NewValidationError(models.CheckStrictHex, s)
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, models.NewValidationError(models.CheckStrictHex, s)
	}
	return b, nil
}

// VoteData decodes a strict hex string that must hold exactly 32 bytes.
func VoteData(s string) (common.Hash, error) {
	b, err := StrictHex(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, models.NewValidationError(models.CheckVoteDataLength, s)
	}
	return common.BytesToHash(b), nil
}

// BallotIDFromHex canonicalizes a strict hex ballot id of exactly 32 bytes.
func BallotIDFromHex(s string) (common.Hash, error) {
	b, err := StrictHex(s)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, models.NewValidationError(models.CheckBallotIDLength, s)
	}
	return common.BytesToHash(b), nil
}

// BallotIDFromBig canonicalizes a ballot id given as an integer in [0, 2^256).
func BallotIDFromBig(id *big.Int) (common.Hash, error) {
	if id == nil || id.Sign() < 0 || id.BitLen() > 256 {
		return common.Hash{}, models.NewValidationError(models.CheckBallotIDLength, id)
	}
	return common.BytesToHash(math.U256Bytes(new(big.Int).Set(id))), nil
}

// BallotID accepts either a strict hex id or a decimal integer string, the two
// textual forms used on the CLI and the API.
func BallotID(s string) (common.Hash, error) {
	if strings.HasPrefix(s, "0x") {
		return BallotIDFromHex(s)
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return common.Hash{}, models.NewValidationError(models.CheckBallotIDLength, s)
	}
	return BallotIDFromBig(id)
}
