package service

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proxyvote/ballot"
	"proxyvote/cryptoutil"
	"proxyvote/models"
	"proxyvote/proxy"
)

var testBallotID = common.HexToHash("0x6e6c5875a8c41d9a9e5f8fbd25bd7f981b0e0557a8be4c13b1a3e5d6263e1ea1")

type recordingBroadcaster struct {
	mu   sync.Mutex
	subs []*models.Submission
	err  error
}

func (b *recordingBroadcaster) Broadcast(ctx context.Context, sub *models.Submission) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	return b.err
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func newTestRelay(t *testing.T, dir string, b Broadcaster) *RelayService {
	t.Helper()
	rs, err := NewRelayService(Config{StoragePath: dir, QueueSize: 8, Broadcaster: b})
	require.NoError(t, err)
	rs.now = func() time.Time { return time.Unix(1500, 0) }
	return rs
}

func signedSpec(t *testing.T, start, end uint64) *big.Int {
	t.Helper()
	bits, err := ballot.MkSubmissionBits([]int{int(models.SubmissionUseSigned), int(models.SubmissionIsTesting)})
	require.NoError(t, err)
	return ballot.MkPacked(start, end, bits)
}

func newVoter(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func signFor(t *testing.T, key *ecdsa.PrivateKey, ballotID common.Hash, seq uint64) *models.ProxySignedBallot {
	t.Helper()
	payload, err := ballot.GenRange3VoteData([]int{1, 0, -2})
	require.NoError(t, err)
	signed, err := proxy.Sign(cryptoutil.NewCryptoService(), key, proxy.Request{
		BallotID: ballotID,
		Sequence: seq,
		VoteData: payload.Hex(),
		Extra:    "0x",
	}, proxy.Options{})
	require.NoError(t, err)
	return signed
}

func TestRelaySubmitAcceptsAndBroadcasts(t *testing.T) {
	b := &recordingBroadcaster{}
	rs := newTestRelay(t, t.TempDir(), b)
	rs.Start(context.Background())

	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)

	key := newVoter(t)
	voter := crypto.PubkeyToAddress(key.PublicKey)

	sub, err := rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1), Voter: &voter})
	require.NoError(t, err)
	assert.Equal(t, voter, sub.Voter)
	assert.Equal(t, uint32(1), sub.Sequence)
	assert.Equal(t, int64(1500), sub.ReceivedAt)

	rs.Stop()
	assert.Equal(t, 1, b.count())

	m := rs.Metrics()
	assert.Equal(t, 1, m.Intake.Count)
	assert.Equal(t, 1, m.Broadcast.Count)
	assert.Equal(t, 1, m.Verify.Count)

	subs, err := rs.Submissions(testBallotID)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)
	assert.NoError(t, rs.ValidateJournal(testBallotID))
}

func TestRelayRejectsReplay(t *testing.T) {
	rs := newTestRelay(t, t.TempDir(), &recordingBroadcaster{})
	rs.Start(context.Background())
	defer rs.Stop()

	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)

	key := newVoter(t)
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 5)})
	require.NoError(t, err)

	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 5)})
	assert.ErrorIs(t, err, ErrReplay)
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 4)})
	assert.ErrorIs(t, err, ErrReplay)

	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 6)})
	assert.NoError(t, err)

	other := newVoter(t)
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, other, testBallotID, 1)})
	assert.NoError(t, err)

	assert.Equal(t, 2, rs.Metrics().Rejected[reasonReplay])
}

func TestRelayReplayStateSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	key := newVoter(t)

	rs := newTestRelay(t, dir, &recordingBroadcaster{})
	rs.Start(context.Background())
	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 3)})
	require.NoError(t, err)
	rs.Stop()

	restarted := newTestRelay(t, dir, &recordingBroadcaster{})
	restarted.Start(context.Background())
	defer restarted.Stop()

	window, ok := restarted.Ballot(testBallotID)
	require.True(t, ok)
	assert.Equal(t, uint64(1000), window.Start)

	_, err = restarted.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 3)})
	assert.ErrorIs(t, err, ErrReplay)
	_, err = restarted.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 4)})
	assert.NoError(t, err)
}

func TestRelayRejectsSignerMismatch(t *testing.T) {
	rs := newTestRelay(t, t.TempDir(), &recordingBroadcaster{})
	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)

	key := newVoter(t)
	someoneElse := crypto.PubkeyToAddress(newVoter(t).PublicKey)
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1), Voter: &someoneElse})
	assert.ErrorIs(t, err, ErrSignerMismatch)
	assert.Equal(t, 1, rs.Metrics().Rejected[reasonMismatch])
}

func TestRelayBallotWindow(t *testing.T) {
	rs := newTestRelay(t, t.TempDir(), &recordingBroadcaster{})
	rs.Start(context.Background())
	defer rs.Stop()

	key := newVoter(t)
	_, err := rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1)})
	assert.ErrorIs(t, err, ErrUnknownBallot)
	assert.ErrorIs(t, rs.CloseBallot(testBallotID), ErrUnknownBallot)

	_, err = rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 1500))
	require.NoError(t, err)

	rs.now = func() time.Time { return time.Unix(1501, 0) }
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1)})
	assert.ErrorIs(t, err, ErrBallotClosed)

	rs.now = func() time.Time { return time.Unix(1500, 0) }
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1)})
	assert.NoError(t, err)

	require.NoError(t, rs.CloseBallot(testBallotID))
	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 2)})
	assert.ErrorIs(t, err, ErrBallotClosed)
}

func TestRelayRegisterBallotRequiresSignedFlag(t *testing.T) {
	rs := newTestRelay(t, t.TempDir(), &recordingBroadcaster{})

	_, err := rs.RegisterBallot(testBallotID, ballot.MkPacked(0, 10, models.SubmissionUseLedger))
	assert.ErrorIs(t, err, ErrNotSignedSpec)

	tooLarge := new(big.Int).Lsh(big.NewInt(1), 144)
	_, err = rs.RegisterBallot(testBallotID, tooLarge)
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)

	rb, err := rs.RegisterBallot(testBallotID, signedSpec(t, 0, 10))
	require.NoError(t, err)
	assert.Equal(t, signedSpec(t, 0, 10).String(), rb.PackedSpec)
}

func TestRelayRejectsTamperedRecord(t *testing.T) {
	rs := newTestRelay(t, t.TempDir(), &recordingBroadcaster{})
	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)

	key := newVoter(t)
	voter := crypto.PubkeyToAddress(key.PublicKey)
	record := signFor(t, key, testBallotID, 1)
	record.Words[models.WordVoteData][0] ^= 0xff

	_, err = rs.Submit(context.Background(), SubmitRequest{Record: record, Voter: &voter})
	assert.Error(t, err)

	_, err = rs.Submit(context.Background(), SubmitRequest{Record: nil})
	var verr *models.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Equal(t, 1, rs.Metrics().Rejected[reasonValidation])

	subs, err := rs.Submissions(testBallotID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRelayConcurrentSubmits(t *testing.T) {
	b := &recordingBroadcaster{}
	rs := newTestRelay(t, t.TempDir(), b)
	rs.Start(context.Background())

	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)

	const voters = 8
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		record := signFor(t, newVoter(t), testBallotID, 1)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rs.Submit(context.Background(), SubmitRequest{Record: record})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	rs.Stop()

	assert.Equal(t, voters, b.count())
	assert.NoError(t, rs.ValidateJournal(testBallotID))
}

func TestRelayCloseSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	key := newVoter(t)

	rs := newTestRelay(t, dir, &recordingBroadcaster{})
	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)
	require.NoError(t, rs.CloseBallot(testBallotID))

	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1)})
	assert.ErrorIs(t, err, ErrBallotClosed)

	restarted := newTestRelay(t, dir, &recordingBroadcaster{})
	_, err = restarted.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1)})
	assert.ErrorIs(t, err, ErrBallotClosed)

	subs, err := restarted.Submissions(testBallotID)
	require.NoError(t, err)
	assert.Empty(t, subs)
}

func TestRelayReRegisterKeepsBallotClosed(t *testing.T) {
	dir := t.TempDir()
	key := newVoter(t)

	rs := newTestRelay(t, dir, &recordingBroadcaster{})
	_, err := rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 2000))
	require.NoError(t, err)

	// An open ballot can take a new window.
	_, err = rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 3000))
	require.NoError(t, err)
	window, ok := rs.Ballot(testBallotID)
	require.True(t, ok)
	assert.Equal(t, uint64(3000), window.End)

	require.NoError(t, rs.CloseBallot(testBallotID))
	_, err = rs.RegisterBallot(testBallotID, signedSpec(t, 1000, 4000))
	assert.ErrorIs(t, err, ErrBallotClosed)

	_, err = rs.Submit(context.Background(), SubmitRequest{Record: signFor(t, key, testBallotID, 1)})
	assert.ErrorIs(t, err, ErrBallotClosed)

	restarted := newTestRelay(t, dir, &recordingBroadcaster{})
	_, err = restarted.RegisterBallot(testBallotID, signedSpec(t, 1000, 4000))
	assert.ErrorIs(t, err, ErrBallotClosed)
	window, ok = restarted.Ballot(testBallotID)
	require.True(t, ok)
	assert.Equal(t, uint64(3000), window.End)
}
