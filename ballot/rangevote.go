package ballot

import "proxyvote/models"

const range3Bits = 3

// GenRange3VoteData encodes up to 85 votes in [-3, 3] as consecutive 3-bit
// fields holding v+3, the first vote in the most significant bits of the
// first byte. Unused trailing bits are zero.
func GenRange3VoteData(votes []int) (models.VotePayload, error) {
	var payload models.VotePayload
	if len(votes) > models.MaxRangeVotes {
		return payload, models.NewValidationError(models.CheckTooManyVotes, len(votes))
	}
	for i, v := range votes {
		if v < models.MinRangeVote || v > models.MaxRangeVote {
			return payload, &models.ValidationError{Check: models.CheckVoteRange, Value: v, Index: i}
		}
	}

	for i, v := range votes {
		field := uint(v - models.MinRangeVote)
		for b := 0; b < range3Bits; b++ {
			if field&(1<<(range3Bits-1-b)) == 0 {
				continue
			}
			pos := i*range3Bits + b
			payload[pos/8] |= 1 << (7 - pos%8)
		}
	}
	return payload, nil
}

// DecodeRange3VoteData reads the first n votes back out of payload.
func DecodeRange3VoteData(payload models.VotePayload, n int) ([]int, error) {
	if n < 0 || n > models.MaxRangeVotes {
		return nil, models.NewValidationError(models.CheckPayloadVoteCount, n)
	}
	votes := make([]int, n)
	for i := range votes {
		field := 0
		for b := 0; b < range3Bits; b++ {
			pos := i*range3Bits + b
			field <<= 1
			if payload[pos/8]&(1<<(7-pos%8)) != 0 {
				field |= 1
			}
		}
		if field > models.MaxRangeVote-models.MinRangeVote {
			return nil, &models.ValidationError{Check: models.CheckVoteRange, Value: field + models.MinRangeVote, Index: i}
		}
		votes[i] = field + models.MinRangeVote
	}
	return votes, nil
}
