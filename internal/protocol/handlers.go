package protocol

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	"github.com/lancer-labs/arbiter/internal/dispute"
	"github.com/lancer-labs/arbiter/internal/judge"
	"github.com/lancer-labs/arbiter/internal/logging"
	"github.com/lancer-labs/arbiter/internal/validation"
)

// CallerHeader carries the caller's address. Signature verification is out
// of scope; the header is trusted as-is.
const CallerHeader = "X-Caller-Address"

// Handlers exposes the protocol over HTTP.
type Handlers struct {
	protocol *Protocol
}

// NewHandlers creates HTTP handlers backed by the protocol facade.
func NewHandlers(p *Protocol) *Handlers {
	return &Handlers{protocol: p}
}

// RegisterRoutes registers all protocol routes on the given group.
func (h *Handlers) RegisterRoutes(v1 *gin.RouterGroup) {
	v1.POST("/protocol/init", h.handleInit)
	v1.GET("/protocol", h.handleDescribe)
	v1.POST("/protocol/votes-required", h.handleUpdateVotesRequired)
	v1.POST("/protocol/withdraw", h.handleOwnerWithdraw)

	v1.POST("/judges", h.handleRegisterJudge)
	v1.GET("/judges/:address", validation.AddressParamMiddleware(), h.handleGetJudge)
	v1.POST("/judges/withdraw", h.handleJudgeWithdraw)

	v1.POST("/disputes", h.handleCreateDispute)
	v1.GET("/disputes/:id", h.handleGetDispute)
	v1.POST("/disputes/:id/voters", h.handleRegisterToVote)
	v1.POST("/disputes/:id/commit", h.handleCommitVote)
	v1.POST("/disputes/:id/reveal", h.handleRevealVote)
	v1.POST("/disputes/:id/evidence", h.handleAppendEvidence)
	v1.POST("/disputes/:id/close", h.handleCloseDispute)
	v1.GET("/disputes/:id/resolved", h.handleCheckResolved)
	v1.GET("/disputes/:id/winner", h.handleWinner)
	v1.GET("/disputes/:id/votes", h.handleVotes)
}

func (h *Handlers) caller(c *gin.Context) (string, bool) {
	addr := validation.SanitizeAddress(c.GetHeader(CallerHeader))
	if !validation.IsValidEthAddress(addr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_caller",
			"message": CallerHeader + " must be a valid Ethereum address",
		})
		return "", false
	}
	return addr, true
}

func (h *Handlers) disputeID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_dispute_id",
			"message": "dispute id must be a positive integer",
		})
		return 0, false
	}
	return id, true
}

func (h *Handlers) handleInit(c *gin.Context) {
	var req struct {
		Owner     string `json:"owner" binding:"required"`
		USDCToken string `json:"usdcToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	req.Owner = validation.SanitizeAddress(req.Owner)
	req.USDCToken = validation.SanitizeAddress(req.USDCToken)
	if verrs := validation.Validate(
		validation.ValidAddress("owner", req.Owner),
		validation.ValidAddress("usdcToken", req.USDCToken),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
		return
	}

	if err := h.protocol.Init(c.Request.Context(), req.Owner, req.USDCToken); err != nil {
		h.respondError(c, err)
		return
	}

	logging.FromContext(c.Request.Context()).Info("protocol initialized", "owner", req.Owner)
	c.JSON(http.StatusCreated, gin.H{"owner": req.Owner, "usdcToken": req.USDCToken})
}

func (h *Handlers) handleDescribe(c *gin.Context) {
	snap, err := h.protocol.Describe(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handlers) handleUpdateVotesRequired(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	// Pointer binding: 0 must reach the protocol layer and fail there,
	// not trip the required-field check.
	var req struct {
		N *int `json:"n" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	if err := h.protocol.UpdateVotesRequired(c.Request.Context(), caller, *req.N); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"votesRequired": *req.N})
}

func (h *Handlers) handleOwnerWithdraw(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	amount, err := h.protocol.OwnerWithdraw(c.Request.Context(), caller)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

func (h *Handlers) handleRegisterJudge(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	j, err := h.protocol.RegisterJudge(c.Request.Context(), caller)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, j)
}

func (h *Handlers) handleGetJudge(c *gin.Context) {
	j, err := h.protocol.GetJudge(c.Request.Context(), c.Param("address"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, j)
}

func (h *Handlers) handleJudgeWithdraw(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	amount, err := h.protocol.JudgeWithdraw(c.Request.Context(), caller)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"amount": amount})
}

func (h *Handlers) handleCreateDispute(c *gin.Context) {
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req struct {
		Beneficiary string `json:"beneficiary" binding:"required"`
		Amount      string `json:"amount"`
		Reason      string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	req.Beneficiary = validation.SanitizeAddress(req.Beneficiary)
	req.Reason = validation.SanitizeString(req.Reason, validation.MaxReasonLength)
	if verrs := validation.Validate(
		validation.ValidAddress("beneficiary", req.Beneficiary),
		validation.ValidAmount("amount", req.Amount),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
		return
	}

	d, err := h.protocol.CreateDispute(c.Request.Context(), caller, req.Beneficiary, req.Amount, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handlers) handleGetDispute(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}

	d, err := h.protocol.GetDispute(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

func (h *Handlers) handleRegisterToVote(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	d, err := h.protocol.RegisterToVote(c.Request.Context(), id, caller)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"disputeId":  d.ID,
		"status":     d.Status,
		"rosterSize": len(d.Roster),
	})
}

func (h *Handlers) handleCommitVote(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req struct {
		CommitHash string `json:"commitHash" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if verrs := validation.Validate(
		validation.ValidCommitHash("commitHash", req.CommitHash),
	); len(verrs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
		return
	}

	if err := h.protocol.CommitVote(c.Request.Context(), id, caller, req.CommitHash); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputeId": id, "committed": true})
}

func (h *Handlers) handleRevealVote(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req struct {
		Vote   *bool  `json:"vote" binding:"required"`
		Secret string `json:"secret" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}

	secret, err := decodeSecret(req.Secret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_secret", "message": err.Error()})
		return
	}

	if err := h.protocol.RevealVote(c.Request.Context(), id, caller, *req.Vote, secret); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputeId": id, "revealed": true, "vote": *req.Vote})
}

// decodeSecret accepts the reveal secret either as 0x-prefixed hex or as a
// raw UTF-8 string. Both sides of the commit must agree on the byte form.
func decodeSecret(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return hexutil.Decode(s)
	}
	return []byte(s), nil
}

func (h *Handlers) handleAppendEvidence(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	var req struct {
		Proof string `json:"proof" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	req.Proof = validation.SanitizeString(req.Proof, validation.MaxReasonLength)

	if err := h.protocol.AppendEvidence(c.Request.Context(), id, caller, req.Proof); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"disputeId": id, "author": caller})
}

func (h *Handlers) handleCloseDispute(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}
	caller, ok := h.caller(c)
	if !ok {
		return
	}

	d, err := h.protocol.CloseDispute(c.Request.Context(), id, caller)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputeId": d.ID, "status": d.Status})
}

func (h *Handlers) handleCheckResolved(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}

	resolved, err := h.protocol.CheckResolved(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputeId": id, "resolved": resolved})
}

func (h *Handlers) handleWinner(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}

	winner, err := h.protocol.Winner(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputeId": id, "winner": winner})
}

func (h *Handlers) handleVotes(c *gin.Context) {
	id, ok := h.disputeID(c)
	if !ok {
		return
	}

	forCount, againstCount, err := h.protocol.Votes(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disputeId": id, "for": forCount, "against": againstCount})
}

// respondError maps domain errors to HTTP statuses: 404 for missing
// resources, 409 for duplicates and out-of-order operations, 403 for
// identity failures, 422 for a failed commitment opening, 400 for the rest.
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"

	switch {
	case errors.Is(err, dispute.ErrNotFound):
		status, code = http.StatusNotFound, "dispute_not_found"
	case errors.Is(err, judge.ErrNotFound):
		status, code = http.StatusNotFound, "judge_not_found"

	case errors.Is(err, ErrAlreadyInitialized):
		status, code = http.StatusConflict, "already_initialized"
	case errors.Is(err, ErrNotInitialized):
		status, code = http.StatusConflict, "not_initialized"
	case errors.Is(err, judge.ErrAlreadyRegistered):
		status, code = http.StatusConflict, "already_registered"
	case errors.Is(err, dispute.ErrAlreadyOnRoster):
		status, code = http.StatusConflict, "already_on_roster"
	case errors.Is(err, dispute.ErrAlreadyCommitted):
		status, code = http.StatusConflict, "already_committed"
	case errors.Is(err, dispute.ErrAlreadyRevealed):
		status, code = http.StatusConflict, "already_revealed"
	case errors.Is(err, dispute.ErrDisputeResolved):
		status, code = http.StatusConflict, "dispute_resolved"
	case errors.Is(err, dispute.ErrNotAcceptingVoters):
		status, code = http.StatusConflict, "not_accepting_voters"
	case errors.Is(err, dispute.ErrVotingNotOpen):
		status, code = http.StatusConflict, "voting_not_open"
	case errors.Is(err, dispute.ErrNotResolved):
		status, code = http.StatusConflict, "not_resolved"
	case errors.Is(err, dispute.ErrCannotClose):
		status, code = http.StatusConflict, "cannot_close"

	case errors.Is(err, ErrNotOwner):
		status, code = http.StatusForbidden, "not_owner"
	case errors.Is(err, dispute.ErrNotRequester):
		status, code = http.StatusForbidden, "not_requester"
	case errors.Is(err, dispute.ErrNotParticipant):
		status, code = http.StatusForbidden, "not_participant"

	case errors.Is(err, dispute.ErrCommitmentMismatch):
		status, code = http.StatusUnprocessableEntity, "commitment_mismatch"

	case errors.Is(err, ErrMustBePositive):
		status, code = http.StatusBadRequest, "must_be_positive"
	case errors.Is(err, ErrEmptyTreasury):
		status, code = http.StatusBadRequest, "empty_treasury"
	case errors.Is(err, judge.ErrNoBalance):
		status, code = http.StatusBadRequest, "no_balance"
	case errors.Is(err, judge.ErrInvalidAmount), errors.Is(err, dispute.ErrInvalidAmount):
		status, code = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, dispute.ErrInvalidBeneficiary):
		status, code = http.StatusBadRequest, "invalid_beneficiary"
	case errors.Is(err, dispute.ErrJudgeNotRegistered):
		status, code = http.StatusBadRequest, "judge_not_registered"
	case errors.Is(err, dispute.ErrNotOnRoster):
		status, code = http.StatusBadRequest, "not_on_roster"
	case errors.Is(err, dispute.ErrNoCommitment):
		status, code = http.StatusBadRequest, "no_commitment"
	case errors.Is(err, dispute.ErrInvalidCommitment):
		status, code = http.StatusBadRequest, "invalid_commitment"
	case errors.Is(err, dispute.ErrEmptyProof):
		status, code = http.StatusBadRequest, "empty_proof"
	}

	if status == http.StatusInternalServerError {
		logging.FromContext(c.Request.Context()).Error("request failed", "error", err)
		c.JSON(status, gin.H{"error": code, "message": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": code, "message": err.Error()})
}
