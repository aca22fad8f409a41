package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"commit-reveal-voting/ledger"
	"commit-reveal-voting/models"
)

func registerRoutes(r gin.IRouter, s *Server) {
	api := r.Group("/api")

	api.GET("/phase", s.handleGetPhase)
	api.GET("/candidates", s.handleGetCandidates)
	api.GET("/results", s.handleGetResults)
	api.GET("/status", s.handleGetStatus)
	api.GET("/voters/:address", s.handleGetVoter)
	api.POST("/transactions", s.handleSubmitTransaction)
	api.POST("/authorize", s.handleAuthorize)
	api.GET("/metrics", s.handleGetMetrics)

	audit := api.Group("/audit")
	audit.GET("/events", s.handleGetEvents)
	audit.GET("/verify", s.handleVerify)

	chain := api.Group("/ledger")
	chain.GET("", s.handleGetLedger)
	chain.GET("/blocks/:index", s.handleGetBlock)
}

func (s *Server) handleGetPhase(c *gin.Context) {
	c.JSON(http.StatusOK, s.votingService.Phase())
}

func (s *Server) handleGetCandidates(c *gin.Context) {
	c.JSON(http.StatusOK, s.votingService.Candidates())
}

func (s *Server) handleGetResults(c *gin.Context) {
	c.JSON(http.StatusOK, s.votingService.Results())
}

func (s *Server) handleGetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"phase":  s.votingService.Phase(),
		"voters": s.votingService.Stats(),
		"queue":  s.sequencer.Pending(),
	})
}

func (s *Server) handleGetVoter(c *gin.Context) {
	address := c.Param("address")
	if !common.IsHexAddress(address) {
		abortWithError(c, http.StatusBadRequest, "InvalidAddress", errors.Errorf("invalid address %q", address))
		return
	}
	voter, ok := s.votingService.Voter(common.HexToAddress(address))
	if !ok {
		abortWithError(c, http.StatusNotFound, "NotRegistered", errors.New("voter not found"))
		return
	}
	c.JSON(http.StatusOK, voter)
}

func (s *Server) handleSubmitTransaction(c *gin.Context) {
	var tx models.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidTransaction", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.config.RequestTimeout)
	defer cancel()
	receipt, err := s.sequencer.Submit(ctx, &tx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, receipt)
}

type authorizeRequest struct {
	Email        string `json:"email" binding:"required,email"`
	VoterAddress string `json:"voter_address" binding:"required,eth_addr"`
}

func (s *Server) handleAuthorize(c *gin.Context) {
	if s.issuer == nil {
		abortWithError(c, http.StatusNotFound, "AuthorizationDisabled", errors.New("authorization issuer is not configured"))
		return
	}
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidRequest", err)
		return
	}

	assertion, err := s.issuer.Authorize(req.Email, common.HexToAddress(req.VoterAddress))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"voter":       assertion.Voter,
		"chain_scope": assertion.ChainScope,
		"signature":   assertion.Signature,
	})
}

func (s *Server) handleGetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.votingService.GetMetrics())
}

func (s *Server) handleGetEvents(c *gin.Context) {
	from, err := strconv.ParseUint(c.DefaultQuery("from", "0"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidRequest", errors.Wrap(err, "from"))
		return
	}
	events, err := s.votingService.Events(from)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"from": from, "events": events})
}

func (s *Server) handleVerify(c *gin.Context) {
	v, err := s.votingService.VerifyTally()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

type ledgerResponse struct {
	Height   int    `json:"height"`
	LastHash string `json:"last_hash"`
	IsValid  bool   `json:"is_valid"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleGetLedger(c *gin.Context) {
	blocks := s.votingService.Blocks()
	resp := ledgerResponse{Height: len(blocks), IsValid: true}
	if len(blocks) > 0 {
		resp.LastHash = common.Bytes2Hex(blocks[len(blocks)-1].Hash)
	}
	if err := models.VerifyChain(blocks); err != nil {
		resp.IsValid = false
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetBlock(c *gin.Context) {
	index, err := strconv.ParseUint(c.Param("index"), 10, 64)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "InvalidRequest", errors.Wrap(err, "index"))
		return
	}
	blocks := s.votingService.Blocks()
	if index >= uint64(len(blocks)) {
		abortWithError(c, http.StatusNotFound, "NotFound", errors.Errorf("block %d not found", index))
		return
	}
	block := blocks[index]
	entry, err := ledger.Decode(block)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"block":    block,
		"entry":    entry,
		"is_valid": block.Validate(),
	})
}
