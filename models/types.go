// File: models/types.go
package models

import (
	"encoding/json"
	"math/big"
)

// SubmissionBits is the 16-bit capability field of a ballot. Each set bit is
// an independent flag.
type SubmissionBits uint16

const (
	SubmissionUseLedger      SubmissionBits = 1 << 0
	SubmissionUseSigned      SubmissionBits = 1 << 1
	SubmissionUseUnencrypted SubmissionBits = 1 << 2
	SubmissionUseEncrypted   SubmissionBits = 1 << 3
	SubmissionIsBinding      SubmissionBits = 1 << 13
	SubmissionIsOfficial     SubmissionBits = 1 << 14
	SubmissionIsTesting      SubmissionBits = 1 << 15
)

// SubmissionFlagNames maps the CLI/API names of the reserved flags.
var SubmissionFlagNames = map[string]SubmissionBits{
	"use-ledger":      SubmissionUseLedger,
	"use-signed":      SubmissionUseSigned,
	"use-unencrypted": SubmissionUseUnencrypted,
	"use-encrypted":   SubmissionUseEncrypted,
	"is-binding":      SubmissionIsBinding,
	"is-official":     SubmissionIsOfficial,
	"is-testing":      SubmissionIsTesting,
}

// Has reports whether every bit of flag is set.
func (b SubmissionBits) Has(flag SubmissionBits) bool {
	return b&flag == flag
}

// PackedBallotSpec is (submissionBits << 128) + (startTime << 64) + endTime.
type PackedBallotSpec = *big.Int

// BallotWindow is the unpacked form of a PackedBallotSpec.
type BallotWindow struct {
	Start uint64         `json:"start"`
	End   uint64         `json:"end"`
	Bits  SubmissionBits `json:"submission_bits"`
}

// Contains reports whether the unix time t lies inside the window, bounds
// included.
func (w BallotWindow) Contains(t int64) bool {
	if t < 0 {
		return false
	}
	return uint64(t) >= w.Start && uint64(t) <= w.End
}

// GlobalBallot is the composite ballot object carrying the off-chain content
// next to the commitment it must match.
type GlobalBallot struct {
	Data       json.RawMessage `json:"data"`
	BallotHash string          `json:"ballotHash"`
}
