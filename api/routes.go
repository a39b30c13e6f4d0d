package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/gin-gonic/gin"

	"proxyvote/ballot"
	"proxyvote/models"
	"proxyvote/service"
	"proxyvote/validate"
)

type RegisterBallotRequest struct {
	BallotID   string `json:"ballotId" binding:"required"`
	PackedSpec string `json:"packedSpec"` // decimal or 0x hex; overrides start/end/flags
	Start      uint64 `json:"start"`
	End        uint64 `json:"end"`
	Flags      []int  `json:"flags"`
}

type SubmitRequest struct {
	models.ProxySignedBallot
	Voter *common.Address `json:"voter,omitempty"`
}

// UnmarshalJSON decodes the embedded record and the optional voter from the
// same object.
func (r *SubmitRequest) UnmarshalJSON(input []byte) error {
	if err := json.Unmarshal(input, &r.ProxySignedBallot); err != nil {
		return err
	}
	var voter struct {
		Voter *common.Address `json:"voter"`
	}
	if err := json.Unmarshal(input, &voter); err != nil {
		return err
	}
	r.Voter = voter.Voter
	return nil
}

func (r SubmitRequest) MarshalJSON() ([]byte, error) {
	extra := r.Extra
	if extra == nil {
		extra = []byte{}
	}
	return json.Marshal(struct {
		ProxyReq []common.Hash   `json:"proxyReq"`
		Extra    hexutil.Bytes   `json:"extra"`
		Voter    *common.Address `json:"voter,omitempty"`
	}{r.Words[:], extra, r.Voter})
}

type Range3Request struct {
	Votes []int `json:"votes" binding:"required"`
}

type Range3Response struct {
	VoteData models.VotePayload `json:"voteData"`
}

type ContentCheckResponse struct {
	Match      bool   `json:"match"`
	BallotHash string `json:"ballotHash"`
}

type SubmissionsResponse struct {
	BallotID     common.Hash          `json:"ballot_id"`
	Window       models.BallotWindow  `json:"window"`
	Submissions  []*models.Submission `json:"submissions"`
	JournalValid bool                 `json:"journal_valid"`
}

type errorResponse struct {
	Error string `json:"error"`
	Check string `json:"check,omitempty"`
	Index *int   `json:"index,omitempty"`
}

func registerRoutes(r gin.IRouter, s *Server) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	api := r.Group("/api")
	api.POST("/ballots", s.handleRegisterBallot)
	api.GET("/ballots/:id/submissions", s.handleGetSubmissions)
	api.POST("/proxy/submit", s.handleSubmit)
	api.POST("/proxy/verify", s.handleVerify)
	api.POST("/votes/range3", s.handleRange3)
	api.POST("/content/check", s.handleContentCheck)
	api.GET("/metrics", s.handleMetrics)
}

func (s *Server) handleRegisterBallot(c *gin.Context) {
	var req RegisterBallotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ballotID, err := validate.BallotID(req.BallotID)
	if err != nil {
		respondError(c, err)
		return
	}

	var spec *big.Int
	if req.PackedSpec != "" {
		if spec, err = parsePackedSpec(req.PackedSpec); err != nil {
			respondError(c, err)
			return
		}
	} else {
		bits, err := ballot.MkSubmissionBits(req.Flags)
		if err != nil {
			respondError(c, err)
			return
		}
		spec = ballot.MkPacked(req.Start, req.End, bits)
	}

	rb, err := s.relay.RegisterBallot(ballotID, spec)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rb)
}

func (s *Server) handleGetSubmissions(c *gin.Context) {
	ballotID, err := validate.BallotID(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	window, ok := s.relay.Ballot(ballotID)
	if !ok {
		respondError(c, service.ErrUnknownBallot)
		return
	}

	subs, err := s.relay.Submissions(ballotID)
	if err != nil {
		respondError(c, err)
		return
	}
	journalErr := s.relay.ValidateJournal(ballotID)
	if journalErr != nil {
		log.Warn("Journal validation failed", "ballot", ballotID, "err", journalErr)
	}

	c.JSON(http.StatusOK, SubmissionsResponse{
		BallotID:     ballotID,
		Window:       window,
		Submissions:  subs,
		JournalValid: journalErr == nil,
	})
}

func (s *Server) handleSubmit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	record := req.ProxySignedBallot
	sub, err := s.relay.Submit(c.Request.Context(), service.SubmitRequest{
		Record: &record,
		Voter:  req.Voter,
	})
	if err != nil {
		if sub != nil {
			// Journaled but the broadcast queue refused it.
			log.Warn("Submission not queued", "id", sub.ID, "err", err)
			c.JSON(http.StatusAccepted, sub)
			return
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (s *Server) handleVerify(c *gin.Context) {
	var record models.ProxySignedBallot
	if err := c.ShouldBindJSON(&record); err != nil {
		badRequest(c, err)
		return
	}

	res, err := s.relay.Verify(&record)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleRange3(c *gin.Context) {
	var req Range3Request
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	payload, err := ballot.GenRange3VoteData(req.Votes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, Range3Response{VoteData: payload})
}

func (s *Server) handleContentCheck(c *gin.Context) {
	var gb models.GlobalBallot
	if err := c.ShouldBindJSON(&gb); err != nil {
		badRequest(c, err)
		return
	}
	if len(gb.Data) == 0 {
		respondError(c, models.NewValidationError(models.CheckContentSerialized, nil))
		return
	}

	hash, err := ballot.HashBallotSpec(gb.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	match, err := ballot.CheckBallotHashGBallot(&gb)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ContentCheckResponse{Match: match, BallotHash: hash})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"metrics":            s.relay.Metrics(),
		"pending_broadcasts": s.relay.PendingBroadcasts(),
	})
}

func parsePackedSpec(s string) (*big.Int, error) {
	if strings.HasPrefix(s, "0x") {
		b, err := validate.StrictHex(s)
		if err != nil {
			return nil, err
		}
		return new(big.Int).SetBytes(b), nil
	}
	spec, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, models.NewValidationError(models.CheckStrictHex, s)
	}
	return spec, nil
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func respondError(c *gin.Context, err error) {
	resp := errorResponse{Error: err.Error()}

	var verr *models.ValidationError
	var cerr *models.CryptographicError
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &verr):
		status = http.StatusBadRequest
		resp.Check = verr.Check
		if verr.Index >= 0 {
			idx := verr.Index
			resp.Index = &idx
		}
	case errors.As(err, &cerr):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotSignedSpec):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrUnknownBallot):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrBallotClosed):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrReplay), errors.Is(err, service.ErrSignerMismatch):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		log.Error("Request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, resp)
}
