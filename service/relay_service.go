package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"proxyvote/ballot"
	"proxyvote/cryptoutil"
	"proxyvote/models"
	"proxyvote/proxy"
	"proxyvote/storage"
)

var (
	ErrUnknownBallot  = errors.New("ballot is not registered with this relay")
	ErrBallotClosed   = errors.New("ballot is not accepting submissions")
	ErrNotSignedSpec  = errors.New("ballot does not accept signed submissions")
	ErrSignerMismatch = errors.New("recovered signer is not the expected voter")
	ErrReplay         = errors.New("sequence number is not above the voter's last accepted sequence")
)

// Rejection reasons reported in metrics.
const (
	reasonValidation = "validation"
	reasonCrypto     = "signature"
	reasonUnknown    = "unknown_ballot"
	reasonClosed     = "closed"
	reasonMismatch   = "signer_mismatch"
	reasonReplay     = "replay"
	reasonInternal   = "internal"
)

type Config struct {
	StoragePath string
	QueueSize   int
	Broadcaster Broadcaster
}

// SubmitRequest is a signed ballot handed to the relay. Voter, when set, is
// the address the caller expects the record to be signed by.
type SubmitRequest struct {
	Record *models.ProxySignedBallot
	Voter  *common.Address
}

type seqKey struct {
	ballot common.Hash
	voter  common.Address
}

// RelayService is the intake side of a proxy relayer: it accepts signed
// ballots for registered ballots, rejects replays, journals what it accepts
// and queues it for broadcast.
type RelayService struct {
	store    *storage.JSONStore
	crypto   *cryptoutil.CryptoService
	metrics  *MetricsCollector
	queue    *BroadcastQueue
	sessions map[common.Hash]*BallotSession
	lastSeq  map[seqKey]uint32
	mu       sync.RWMutex
	now      func() time.Time
}

func NewRelayService(cfg Config) (*RelayService, error) {
	store, err := storage.NewJSONStore(cfg.StoragePath)
	if err != nil {
		return nil, err
	}

	broadcaster := cfg.Broadcaster
	if broadcaster == nil {
		broadcaster = LogBroadcaster{}
	}
	metrics := NewMetricsCollector()

	rs := &RelayService{
		store:    store,
		crypto:   cryptoutil.NewCryptoService(),
		metrics:  metrics,
		queue:    NewBroadcastQueue(broadcaster, cfg.QueueSize, metrics),
		sessions: make(map[common.Hash]*BallotSession),
		lastSeq:  make(map[seqKey]uint32),
		now:      time.Now,
	}

	if err := rs.loadState(); err != nil {
		return nil, err
	}
	return rs, nil
}

// loadState restores registered ballots and sequence high-water marks from
// the store.
func (rs *RelayService) loadState() error {
	for _, rb := range rs.store.LoadBallots() {
		session := NewBallotSession(rb.Window)
		if rb.Closed {
			session.End()
		}
		rs.sessions[rb.BallotID] = session
	}
	for _, id := range rs.store.BallotIDs() {
		subs, err := rs.store.LoadSubmissions(id)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			rs.lastSeq[seqKey{sub.BallotID, sub.Voter}] = sub.Sequence
		}
	}
	log.Debug("Relay state loaded", "ballots", len(rs.sessions), "voters", len(rs.lastSeq))
	return nil
}

// Start runs the broadcast worker until Stop.
func (rs *RelayService) Start(ctx context.Context) {
	rs.queue.Start(ctx)
}

// Stop drains the broadcast queue.
func (rs *RelayService) Stop() {
	rs.queue.Stop()
}

// RegisterBallot opens intake for ballotID within the window packed in spec.
// An open ballot may be re-registered with a new spec; a closed one stays
// closed.
func (rs *RelayService) RegisterBallot(ballotID common.Hash, spec models.PackedBallotSpec) (*models.RegisteredBallot, error) {
	window, err := ballot.UnpackSpec(spec)
	if err != nil {
		return nil, err
	}
	if !window.Bits.Has(models.SubmissionUseSigned) {
		return nil, ErrNotSignedSpec
	}

	rb := &models.RegisteredBallot{
		BallotID:   ballotID,
		PackedSpec: spec.String(),
		Window:     window,
	}

	rs.mu.Lock()
	defer rs.mu.Unlock()

	if prev, ok := rs.store.LoadBallot(ballotID); ok && prev.Closed {
		return nil, ErrBallotClosed
	}
	if err := rs.store.SaveBallot(rb); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to save ballot")
	}
	rs.sessions[ballotID] = NewBallotSession(window)

	log.Info("Registered ballot", "ballot", ballotID, "start", window.Start, "end", window.End, "bits", uint16(window.Bits))
	return rb, nil
}

// CloseBallot stops intake for ballotID before its window ends. The close is
// persisted and survives restarts.
func (rs *RelayService) CloseBallot(ballotID common.Hash) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	session, ok := rs.sessions[ballotID]
	if !ok {
		return ErrUnknownBallot
	}
	if rb, ok := rs.store.LoadBallot(ballotID); ok && !rb.Closed {
		closed := *rb
		closed.Closed = true
		if err := rs.store.SaveBallot(&closed); err != nil {
			return pkgerrors.Wrap(err, "failed to save ballot")
		}
	}
	session.End()
	log.Info("Closed ballot", "ballot", ballotID)
	return nil
}

// Verify recovers the signer of a record without accepting it.
func (rs *RelayService) Verify(record *models.ProxySignedBallot) (models.VerifyResult, error) {
	start := time.Now()
	res, err := proxy.Verify(rs.crypto, record)
	rs.metrics.RecordVerify(time.Since(start))
	return res, err
}

// Submit accepts a signed ballot for broadcast.
func (rs *RelayService) Submit(ctx context.Context, req SubmitRequest) (*models.Submission, error) {
	res, err := rs.Verify(req.Record)
	if err != nil {
		rs.reject(rejectReason(err), err)
		return nil, err
	}
	if req.Voter != nil && !res.SignedBy(*req.Voter) {
		rs.reject(reasonMismatch, ErrSignerMismatch)
		return nil, ErrSignerMismatch
	}

	ballotID := req.Record.BallotID()

	rs.mu.Lock()
	// Read the clock under the lock so journal timestamps never decrease.
	now := rs.now()
	session, ok := rs.sessions[ballotID]
	if !ok {
		rs.mu.Unlock()
		rs.reject(reasonUnknown, ErrUnknownBallot)
		return nil, ErrUnknownBallot
	}
	if !session.IsOpen(now) {
		rs.mu.Unlock()
		rs.reject(reasonClosed, ErrBallotClosed)
		return nil, ErrBallotClosed
	}

	key := seqKey{ballotID, res.Address}
	seq := req.Record.Sequence()
	if last, seen := rs.lastSeq[key]; seen && seq <= last {
		rs.mu.Unlock()
		rs.reject(reasonReplay, ErrReplay)
		return nil, ErrReplay
	}

	sub := &models.Submission{
		ID:         uuid.New(),
		BallotID:   ballotID,
		Voter:      res.Address,
		Sequence:   seq,
		Record:     req.Record.Clone(),
		ReceivedAt: now.Unix(),
	}
	if err := rs.store.SaveSubmission(sub); err != nil {
		rs.mu.Unlock()
		rs.reject(reasonInternal, err)
		return nil, pkgerrors.Wrap(err, "failed to journal submission")
	}
	rs.lastSeq[key] = seq
	rs.mu.Unlock()

	rs.metrics.RecordAccepted(now)
	log.Info("Accepted proxy ballot", "id", sub.ID, "ballot", ballotID, "voter", res.Address, "seq", seq)

	if err := rs.queue.Enqueue(ctx, sub); err != nil {
		return sub, pkgerrors.Wrap(err, "submission journaled but not queued")
	}
	return sub, nil
}

func (rs *RelayService) reject(reason string, err error) {
	rs.metrics.RecordRejected(reason)
	log.Debug("Rejected proxy ballot", "reason", reason, "err", err)
}

func rejectReason(err error) string {
	var verr *models.ValidationError
	var cerr *models.CryptographicError
	switch {
	case errors.As(err, &verr):
		return reasonValidation
	case errors.As(err, &cerr):
		return reasonCrypto
	}
	return reasonInternal
}

// Submissions returns the accepted submissions of a ballot in journal order.
func (rs *RelayService) Submissions(ballotID common.Hash) ([]*models.Submission, error) {
	return rs.store.LoadSubmissions(ballotID)
}

// ValidateJournal checks the hash chain of a ballot's journal.
func (rs *RelayService) ValidateJournal(ballotID common.Hash) error {
	return models.ValidateJournal(rs.store.LoadJournal(ballotID))
}

// Ballot returns a registered ballot's window.
func (rs *RelayService) Ballot(ballotID common.Hash) (models.BallotWindow, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	session, ok := rs.sessions[ballotID]
	if !ok {
		return models.BallotWindow{}, false
	}
	return session.Window(), true
}

func (rs *RelayService) Metrics() MetricsResponse {
	return rs.metrics.GetMetrics()
}

// PendingBroadcasts returns the number of queued submissions.
func (rs *RelayService) PendingBroadcasts() int {
	return rs.queue.Pending()
}
