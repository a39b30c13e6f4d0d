// Package proxy builds and verifies proxy-submittable signed ballots: records
// a relayer can broadcast on a voter's behalf but cannot alter.
//
// The record is five 32-byte words [r, s, packed2, ballotId, voteData] plus a
// variable-length extra field. packed2 carries the recovery id in its first
// byte and the sequence number right-aligned in the remaining 31 bytes, which
// is also the first field of the signed message. Deployed verifiers expect
// exactly this layout.
package proxy

import (
	"crypto/ecdsa"
	"encoding/binary"
	"math"

	"github.com/ethereum/go-ethereum/common"

	"proxyvote/cryptoutil"
	"proxyvote/models"
	"proxyvote/validate"
)

const seqFieldLength = 31

// Signer is the hash/sign primitive the proxy protocol runs on.
// *cryptoutil.CryptoService implements it.
type Signer interface {
	PackedKeccak256(args ...cryptoutil.PackedArg) (common.Hash, error)
	SignHash(hash common.Hash, key *ecdsa.PrivateKey) (v byte, r, s common.Hash, err error)
	RecoverAddress(hash common.Hash, v byte, r, s common.Hash) (common.Address, error)
}

// Request is the content a voter authorizes.
type Request struct {
	BallotID common.Hash
	Sequence uint64
	VoteData string // strict hex, 32 bytes
	Extra    string // strict hex, any length
}

// Options relaxes Sign's input checks.
type Options struct {
	// SkipSequenceSizeCheck allows sequence 0. Sequences that do not fit the
	// 4-byte field are rejected regardless.
	SkipSequenceSizeCheck bool
}

// Sign validates req, signs its canonical message with key and returns the
// packed record.
func Sign(signer Signer, key *ecdsa.PrivateKey, req Request, opts Options) (*models.ProxySignedBallot, error) {
	if !opts.SkipSequenceSizeCheck && (req.Sequence == 0 || req.Sequence > math.MaxUint32) {
		return nil, models.NewValidationError(models.CheckSequenceRange, req.Sequence)
	}
	if req.Sequence > math.MaxUint32 {
		return nil, models.NewValidationError(models.CheckSequenceWidth, req.Sequence)
	}
	voteData, err := validate.VoteData(req.VoteData)
	if err != nil {
		return nil, err
	}
	extra, err := validate.StrictHex(req.Extra)
	if err != nil {
		return nil, err
	}

	var seqField [seqFieldLength]byte
	binary.BigEndian.PutUint32(seqField[seqFieldLength-4:], uint32(req.Sequence))

	hash, err := messageHash(signer, seqField[:], req.BallotID, voteData, extra)
	if err != nil {
		return nil, err
	}
	v, r, s, err := signer.SignHash(hash, key)
	if err != nil {
		return nil, err
	}

	var packed2 common.Hash
	packed2[0] = v
	copy(packed2[1:], seqField[:])

	return &models.ProxySignedBallot{
		Words: [5]common.Hash{r, s, packed2, req.BallotID, voteData},
		Extra: extra,
	}, nil
}

// Verify recovers the signer of b. The sequence field of the message is taken
// verbatim from packed2[1:]. Verify does not compare the result against any
// expected voter; callers do that with VerifyResult.SignedBy.
func Verify(signer Signer, b *models.ProxySignedBallot) (models.VerifyResult, error) {
	if b == nil {
		return models.VerifyResult{}, models.NewValidationError(models.CheckMissingBallot, nil)
	}
	packed2 := b.Packed2()
	hash, err := messageHash(signer, packed2[1:], b.BallotID(), b.VoteData(), b.Extra)
	if err != nil {
		return models.VerifyResult{}, err
	}
	addr, err := signer.RecoverAddress(hash, b.RecoveryID(), b.R(), b.S())
	if err != nil {
		return models.VerifyResult{}, err
	}
	return models.VerifyResult{Address: addr, Valid: true}, nil
}

// MessageHash returns the digest a voter signs for req without signing it.
func MessageHash(signer Signer, req Request) (common.Hash, error) {
	voteData, err := validate.VoteData(req.VoteData)
	if err != nil {
		return common.Hash{}, err
	}
	extra, err := validate.StrictHex(req.Extra)
	if err != nil {
		return common.Hash{}, err
	}
	if req.Sequence > math.MaxUint32 {
		return common.Hash{}, models.NewValidationError(models.CheckSequenceWidth, req.Sequence)
	}
	var seqField [seqFieldLength]byte
	binary.BigEndian.PutUint32(seqField[seqFieldLength-4:], uint32(req.Sequence))
	return messageHash(signer, seqField[:], req.BallotID, voteData, extra)
}

func messageHash(signer Signer, seqField []byte, ballotID, voteData common.Hash, extra []byte) (common.Hash, error) {
	return signer.PackedKeccak256(
		cryptoutil.Bytes31(seqField),
		cryptoutil.Bytes32(ballotID[:]),
		cryptoutil.Bytes32(voteData[:]),
		cryptoutil.Bytes(extra),
	)
}
