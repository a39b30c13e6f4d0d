// Package ballot builds the packed ballot metadata, encodes range votes and
// checks off-chain ballot content against its commitment.
package ballot

import (
	"math/big"

	"proxyvote/models"
)

var (
	maxSubmissionBits = big.NewInt(1 << 16)
	mask64            = new(big.Int).SetUint64(^uint64(0))
)

// MkSubmissionBits combines capability flags into one SubmissionBits value.
// Flags must be non-negative, must not share bits, and must fit 16 bits.
func MkSubmissionBits(flags []int) (models.SubmissionBits, error) {
	var or uint64
	sum := new(big.Int)
	for i, f := range flags {
		if f < 0 {
			return 0, &models.ValidationError{Check: models.CheckNegativeFlag, Value: f, Index: i}
		}
		or |= uint64(f)
		sum.Add(sum, big.NewInt(int64(f)))
	}
	if new(big.Int).SetUint64(or).Cmp(sum) != 0 {
		return 0, models.NewValidationError(models.CheckOverlappingFlags, flags)
	}
	if sum.Cmp(maxSubmissionBits) >= 0 {
		return 0, models.NewValidationError(models.CheckBitsTooLarge, or)
	}
	return models.SubmissionBits(or), nil
}

// MkPacked packs (bits << 128) + (start << 64) + end.
func MkPacked(start, end uint64, bits models.SubmissionBits) models.PackedBallotSpec {
	packed := new(big.Int).SetUint64(uint64(bits))
	packed.Lsh(packed, 64)
	packed.Or(packed, new(big.Int).SetUint64(start))
	packed.Lsh(packed, 64)
	packed.Or(packed, new(big.Int).SetUint64(end))
	return packed
}

// UnpackSpec splits a packed ballot spec into its window and submission bits.
func UnpackSpec(packed models.PackedBallotSpec) (models.BallotWindow, error) {
	if packed == nil || packed.Sign() < 0 || packed.BitLen() > 144 {
		return models.BallotWindow{}, models.NewValidationError(models.CheckSpecTooLarge, packed)
	}
	end := new(big.Int).And(packed, mask64)
	start := new(big.Int).Rsh(packed, 64)
	start.And(start, mask64)
	bits := new(big.Int).Rsh(packed, 128)
	return models.BallotWindow{
		Start: start.Uint64(),
		End:   end.Uint64(),
		Bits:  models.SubmissionBits(bits.Uint64()),
	}, nil
}
