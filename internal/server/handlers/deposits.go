package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/nexbit/dvs/internal/application/verificationservice"
	"github.com/nexbit/dvs/internal/domain"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/pkg/config"
	"github.com/nexbit/dvs/pkg/currency"
)

type DepositHandler struct {
	verificationSvc verificationservice.IVerificationService
	store           ledgerrepo.ILedgerRepository
	chains          config.ChainsConfig
	logger          zerolog.Logger
}

func NewDepositHandler(
	verificationSvc verificationservice.IVerificationService,
	store ledgerrepo.ILedgerRepository,
	chains config.ChainsConfig,
	logger zerolog.Logger,
) *DepositHandler {
	return &DepositHandler{
		verificationSvc: verificationSvc,
		store:           store,
		chains:          chains,
		logger:          logger,
	}
}

type enqueueDepositRequest struct {
	DepositID string          `json:"deposit_id" binding:"required"`
	UserID    string          `json:"user_id" binding:"required"`
	TxHash    string          `json:"tx_hash" binding:"required"`
	Network   domain.Network  `json:"network" binding:"required"`
	Amount    decimal.Decimal `json:"amount" binding:"required"`
	CreatedAt time.Time       `json:"created_at"`
}

// EnqueueDeposit is the single entry point the deposit-submission flow
// calls to hand a new claim to the engine.
func (h *DepositHandler) EnqueueDeposit(c *gin.Context) {
	var req enqueueDepositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Network != domain.NetworkTron && req.Network != domain.NetworkEthereum {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported network"})
		return
	}

	// The claim must be worth at least one base unit of the claimed chain's
	// token; anything smaller truncates to zero on chain.
	decimals := h.chains.Tron.TokenDecimals
	if req.Network == domain.NetworkEthereum {
		decimals = h.chains.Ethereum.TokenDecimals
	}
	if currency.ToBaseUnits(req.Amount, decimals).Sign() <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be at least one token base unit"})
		return
	}

	added := h.verificationSvc.EnqueueForVerification(domain.VerificationTask{
		DepositID: req.DepositID,
		UserID:    req.UserID,
		TxHash:    domain.NormalizeTxHash(req.TxHash),
		Network:   req.Network,
		Amount:    req.Amount,
		CreatedAt: req.CreatedAt,
	})

	status := http.StatusAccepted
	if !added {
		// Same hash already in flight; the submission is a no-op.
		status = http.StatusOK
	}
	c.JSON(status, gin.H{
		"tx_hash":  domain.NormalizeTxHash(req.TxHash),
		"enqueued": added,
	})
}

func (h *DepositHandler) GetDeposit(c *gin.Context) {
	deposit, err := h.store.GetDepositByTxHash(c.Request.Context(), c.Param("tx_hash"))
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "deposit not found"})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to load deposit")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, deposit)
}

func (h *DepositHandler) GetQueueDepth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"depth": h.verificationSvc.QueueDepth()})
}

func (h *DepositHandler) GetTaskStatus(c *gin.Context) {
	task, ok := h.verificationSvc.TaskStatus(c.Param("tx_hash"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no pending verification for hash"})
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h *DepositHandler) GetUserBalance(c *gin.Context) {
	balance, err := h.store.GetUserBalance(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		if errors.Is(err, ledgerrepo.ErrNotFound) {
			c.JSON(http.StatusOK, gin.H{"user_id": c.Param("user_id"), "amount": "0"})
			return
		}
		h.logger.Error().Err(err).Msg("Failed to load balance")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, balance)
}
