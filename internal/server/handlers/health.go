package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nexbit/dvs/internal/application/verificationservice"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
)

type HealthHandler struct {
	store           ledgerrepo.ILedgerRepository
	verificationSvc verificationservice.IVerificationService
}

func NewHealthHandler(store ledgerrepo.ILedgerRepository, verificationSvc verificationservice.IVerificationService) *HealthHandler {
	return &HealthHandler{
		store:           store,
		verificationSvc: verificationSvc,
	}
}

func (h *HealthHandler) Health(c *gin.Context) {
	dbStatus := "healthy"
	status := http.StatusOK
	if err := h.store.Ping(c.Request.Context()); err != nil {
		dbStatus = "unreachable"
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"status":      dbStatus,
		"service":     "dvs",
		"queue_depth": h.verificationSvc.QueueDepth(),
		"timestamp":   time.Now(),
	})
}
