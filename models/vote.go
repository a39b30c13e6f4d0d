package models

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	MinRangeVote      = -3
	MaxRangeVote      = 3
	MaxRangeVotes     = 85
	VotePayloadLength = 32
)

// Word indexes of a ProxySignedBallot.
const (
	WordR = iota
	WordS
	WordPacked2
	WordBallotID
	WordVoteData
)

// VotePayload holds up to 85 range votes as 3-bit fields, first vote in the
// most significant bits.
type VotePayload [VotePayloadLength]byte

func (p VotePayload) Hex() string {
	return hexutil.Encode(p[:])
}

func (p VotePayload) MarshalText() ([]byte, error) {
	return hexutil.Bytes(p[:]).MarshalText()
}

func (p *VotePayload) UnmarshalText(input []byte) error {
	return hexutil.UnmarshalFixedText("VotePayload", input, p[:])
}

// ProxySignedBallot is the record a relayer broadcasts on a voter's behalf.
// Words are ordered [r, s, packed2, ballotId, voteData].
type ProxySignedBallot struct {
	Words [5]common.Hash
	Extra []byte
}

func (b *ProxySignedBallot) R() common.Hash        { return b.Words[WordR] }
func (b *ProxySignedBallot) S() common.Hash        { return b.Words[WordS] }
func (b *ProxySignedBallot) Packed2() common.Hash  { return b.Words[WordPacked2] }
func (b *ProxySignedBallot) BallotID() common.Hash { return b.Words[WordBallotID] }
func (b *ProxySignedBallot) VoteData() common.Hash { return b.Words[WordVoteData] }

// RecoveryID is the first byte of packed2.
func (b *ProxySignedBallot) RecoveryID() byte {
	return b.Words[WordPacked2][0]
}

// Sequence is the big-endian integer in the last four bytes of packed2.
func (b *ProxySignedBallot) Sequence() uint32 {
	return binary.BigEndian.Uint32(b.Words[WordPacked2][28:])
}

// Clone returns a deep copy.
func (b *ProxySignedBallot) Clone() *ProxySignedBallot {
	c := &ProxySignedBallot{Words: b.Words}
	c.Extra = append([]byte{}, b.Extra...)
	return c
}

type proxySignedBallotJSON struct {
	ProxyReq []common.Hash `json:"proxyReq"`
	Extra    hexutil.Bytes `json:"extra"`
}

func (b ProxySignedBallot) MarshalJSON() ([]byte, error) {
	extra := b.Extra
	if extra == nil {
		extra = []byte{}
	}
	return json.Marshal(proxySignedBallotJSON{
		ProxyReq: b.Words[:],
		Extra:    extra,
	})
}

func (b *ProxySignedBallot) UnmarshalJSON(input []byte) error {
	var dec proxySignedBallotJSON
	if err := json.Unmarshal(input, &dec); err != nil {
		return err
	}
	if len(dec.ProxyReq) != len(b.Words) {
		return fmt.Errorf("proxyReq must hold %d words, got %d", len(b.Words), len(dec.ProxyReq))
	}
	copy(b.Words[:], dec.ProxyReq)
	b.Extra = dec.Extra
	return nil
}

// VerifyResult is the outcome of recovering the signer of a ProxySignedBallot.
// Valid is true whenever recovery succeeded; it does not mean the signer is the
// expected voter. Use SignedBy for that comparison.
type VerifyResult struct {
	Address common.Address `json:"address"`
	Valid   bool           `json:"valid"`
}

// SignedBy reports whether recovery succeeded and yielded voter.
func (r VerifyResult) SignedBy(voter common.Address) bool {
	return r.Valid && r.Address == voter
}
