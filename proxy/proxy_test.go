package proxy

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyvote/ballot"
	"proxyvote/cryptoutil"
	"proxyvote/models"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var cs = cryptoutil.NewCryptoService()

func testRequest(t *testing.T) Request {
	t.Helper()
	payload, err := ballot.GenRange3VoteData([]int{1, 2, -1, 3, -3})
	require.NoError(t, err)
	return Request{
		BallotID: common.HexToHash("0x6e6c5875a8c41d9a9e5f8fbd25bd7f981b0e0557a8be4c13b1a3e5d6263e1ea1"),
		Sequence: 7,
		VoteData: payload.Hex(),
		Extra:    "0xdeadbeef",
	}
}

func signTestRequest(t *testing.T) (*models.ProxySignedBallot, common.Address) {
	t.Helper()
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	signed, err := Sign(cs, key, testRequest(t), Options{})
	require.NoError(t, err)
	return signed, crypto.PubkeyToAddress(key.PublicKey)
}

func TestSignThenVerify(t *testing.T) {
	signed, voter := signTestRequest(t)

	res, err := Verify(cs, signed)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, voter, res.Address)
	assert.True(t, res.SignedBy(voter))
	assert.False(t, res.SignedBy(common.Address{}))
}

func TestSignedLayout(t *testing.T) {
	signed, _ := signTestRequest(t)
	req := testRequest(t)

	assert.Equal(t, req.BallotID, signed.BallotID())
	assert.Equal(t, req.VoteData, signed.VoteData().Hex())
	assert.Equal(t, "0xdeadbeef", hexutil.Encode(signed.Extra))

	packed2 := signed.Packed2()
	assert.Contains(t, []byte{27, 28}, packed2[0])
	assert.Equal(t, make([]byte, 27), packed2[1:28])
	assert.Equal(t, []byte{0, 0, 0, 7}, packed2[28:])
	assert.Equal(t, uint32(7), signed.Sequence())
	assert.Equal(t, packed2[0], signed.RecoveryID())
}

func TestMessageHashLayout(t *testing.T) {
	req := testRequest(t)
	voteData := common.HexToHash(req.VoteData)

	var msg bytes.Buffer
	msg.Write(make([]byte, 27))
	msg.Write([]byte{0, 0, 0, 7})
	msg.Write(req.BallotID[:])
	msg.Write(voteData[:])
	msg.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	require.Equal(t, 31+32+32+4, msg.Len())

	hash, err := MessageHash(cs, req)
	require.NoError(t, err)
	assert.Equal(t, crypto.Keccak256Hash(msg.Bytes()), hash)

	// The signature is over exactly that digest.
	signed, voter := signTestRequest(t)
	sig := append(append(signed.R().Bytes(), signed.S().Bytes()...), signed.RecoveryID()-27)
	pub, err := crypto.SigToPub(hash[:], sig)
	require.NoError(t, err)
	assert.Equal(t, voter, crypto.PubkeyToAddress(*pub))
}

func TestSignIsDeterministic(t *testing.T) {
	a, _ := signTestRequest(t)
	b, _ := signTestRequest(t)
	assert.Equal(t, a, b)
}

func TestTamperedRecordNeverVerifiesToVoter(t *testing.T) {
	signed, voter := signTestRequest(t)

	check := func(name string, mutated *models.ProxySignedBallot) {
		res, err := Verify(cs, mutated)
		if err != nil {
			var cerr *models.CryptographicError
			assert.True(t, errors.As(err, &cerr), "%s: unexpected error type %v", name, err)
			return
		}
		assert.NotEqual(t, voter, res.Address, name)
	}

	for w := range signed.Words {
		for i := 0; i < common.HashLength; i++ {
			mutated := signed.Clone()
			mutated.Words[w][i] ^= 0x01
			check("word", mutated)
		}
	}
	for i := range signed.Extra {
		mutated := signed.Clone()
		mutated.Extra[i] ^= 0x80
		check("extra", mutated)
	}

	appended := signed.Clone()
	appended.Extra = append(appended.Extra, 0x00)
	check("extra appended", appended)

	truncated := signed.Clone()
	truncated.Extra = truncated.Extra[:len(truncated.Extra)-1]
	check("extra truncated", truncated)
}

func TestSequenceBounds(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)
	req := testRequest(t)

	req.Sequence = 0
	_, err = Sign(cs, key, req, Options{})
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, models.CheckSequenceRange, verr.Check)

	signed, err := Sign(cs, key, req, Options{SkipSequenceSizeCheck: true})
	require.NoError(t, err)
	assert.Equal(t, uint32(0), signed.Sequence())
	res, err := Verify(cs, signed)
	require.NoError(t, err)
	assert.True(t, res.SignedBy(crypto.PubkeyToAddress(key.PublicKey)))

	req.Sequence = 1 << 32
	_, err = Sign(cs, key, req, Options{})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, models.CheckSequenceRange, verr.Check)

	_, err = Sign(cs, key, req, Options{SkipSequenceSizeCheck: true})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, models.CheckSequenceWidth, verr.Check)

	req.Sequence = math.MaxUint32
	signed, err = Sign(cs, key, req, Options{})
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), signed.Sequence())
}

func TestSignRejectsMalformedInput(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	cases := map[string]func(r *Request){
		"short vote data":  func(r *Request) { r.VoteData = "0x" + strings.Repeat("00", 31) },
		"long vote data":   func(r *Request) { r.VoteData = "0x" + strings.Repeat("00", 33) },
		"unprefixed vote":  func(r *Request) { r.VoteData = strings.Repeat("00", 32) },
		"odd extra":        func(r *Request) { r.Extra = "0x123" },
		"non-hex extra":    func(r *Request) { r.Extra = "0xzz" },
		"unprefixed extra": func(r *Request) { r.Extra = "abcd" },
	}
	for name, mutate := range cases {
		req := testRequest(t)
		mutate(&req)
		_, err := Sign(cs, key, req, Options{})
		var verr *models.ValidationError
		assert.True(t, errors.As(err, &verr), name)
	}

	req := testRequest(t)
	req.Extra = "0x"
	signed, err := Sign(cs, key, req, Options{})
	require.NoError(t, err)
	assert.Empty(t, signed.Extra)
	res, err := Verify(cs, signed)
	require.NoError(t, err)
	assert.True(t, res.SignedBy(crypto.PubkeyToAddress(key.PublicKey)))

	_, err = Sign(cs, nil, testRequest(t), Options{})
	var cerr *models.CryptographicError
	assert.True(t, errors.As(err, &cerr))
}

func TestVerifyRejectsStructurallyInvalid(t *testing.T) {
	signed, _ := signTestRequest(t)

	badV := signed.Clone()
	badV.Words[models.WordPacked2][0] = 0
	_, err := Verify(cs, badV)
	var cerr *models.CryptographicError
	assert.True(t, errors.As(err, &cerr))

	zeroR := signed.Clone()
	zeroR.Words[models.WordR] = common.Hash{}
	_, err = Verify(cs, zeroR)
	assert.True(t, errors.As(err, &cerr))

	_, err = Verify(cs, nil)
	var verr *models.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestRecordJSONRoundTrip(t *testing.T) {
	signed, voter := signTestRequest(t)

	raw, err := signed.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"proxyReq":["0x`)
	assert.Contains(t, string(raw), `"extra":"0xdeadbeef"`)

	var back models.ProxySignedBallot
	require.NoError(t, back.UnmarshalJSON(raw))
	assert.Equal(t, signed.Words, back.Words)

	res, err := Verify(cs, &back)
	require.NoError(t, err)
	assert.Equal(t, voter, res.Address)

	assert.Error(t, back.UnmarshalJSON([]byte(`{"proxyReq":[],"extra":"0x"}`)))
}

func TestVerifyConcurrent(t *testing.T) {
	signed, voter := signTestRequest(t)

	var wg sync.WaitGroup
	results := make([]common.Address, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := Verify(cs, signed)
			if err == nil {
				results[i] = res.Address
			}
		}(i)
	}
	wg.Wait()
	for _, addr := range results {
		assert.Equal(t, voter, addr)
	}
}
