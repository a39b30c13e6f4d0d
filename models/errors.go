package models

import "fmt"

// Names of the validation checks reported in ValidationError.Check.
const (
	CheckNegativeFlag      = "flag is negative"
	CheckOverlappingFlags  = "flags overlap (bitwise OR differs from sum)"
	CheckBitsTooLarge      = "submission bits exceed 16 bits"
	CheckVoteRange         = "range vote outside [-3, 3]"
	CheckTooManyVotes      = "more than 85 range votes"
	CheckStrictHex         = "not a strict 0x-prefixed hex string"
	CheckBallotIDLength    = "ballot id is not 32 bytes"
	CheckVoteDataLength    = "vote data is not 32 bytes"
	CheckSequenceRange     = "sequence number outside (0, 2^32)"
	CheckSequenceWidth     = "sequence number does not fit 4 bytes"
	CheckPayloadVoteCount  = "requested vote count exceeds payload capacity"
	CheckSpecTooLarge      = "packed ballot spec exceeds 144 bits"
	CheckContentSerialized = "ballot content is not serializable JSON"
	CheckMissingBallot     = "signed ballot is missing"
)

// ValidationError reports malformed or out-of-range input. Index is the
// position of the failing element when the input is a list, or -1.
type ValidationError struct {
	Check string
	Value interface{}
	Index int
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation failed: %s (index %d, value %v)", e.Check, e.Index, e.Value)
	}
	return fmt.Sprintf("validation failed: %s (value %v)", e.Check, e.Value)
}

// NewValidationError builds a ValidationError for a scalar input.
func NewValidationError(check string, value interface{}) *ValidationError {
	return &ValidationError{Check: check, Value: value, Index: -1}
}

// CryptographicError is returned when the signing primitive rejects
// signature components while signing or recovering.
type CryptographicError struct {
	Op  string
	Err error
}

func (e *CryptographicError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CryptographicError) Unwrap() error {
	return e.Err
}
