package models

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Submission is a proxy ballot a relay accepted for broadcast.
type Submission struct {
	ID         uuid.UUID          `json:"id"`
	BallotID   common.Hash        `json:"ballot_id"`
	Voter      common.Address     `json:"voter"`
	Sequence   uint32             `json:"sequence"`
	Record     *ProxySignedBallot `json:"record"`
	ReceivedAt int64              `json:"received_at"`
}

// RegisteredBallot is a ballot a relay accepts proxy submissions for.
type RegisteredBallot struct {
	BallotID   common.Hash  `json:"ballot_id"`
	PackedSpec string       `json:"packed_spec"` // decimal
	Window     BallotWindow `json:"window"`
	Closed     bool         `json:"closed,omitempty"`
}
