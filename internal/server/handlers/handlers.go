package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/application/verificationservice"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/internal/server/middleware"
	"github.com/nexbit/dvs/internal/server/websocket"
	"github.com/nexbit/dvs/pkg/config"
)

type Handlers struct {
	VerificationSvc verificationservice.IVerificationService
	Store           ledgerrepo.ILedgerRepository
	WsHub           *websocket.WsHub
	Logger          zerolog.Logger
	Config          *config.Config
}

func New(
	verificationSvc verificationservice.IVerificationService,
	store ledgerrepo.ILedgerRepository,
	wsHub *websocket.WsHub,
	logger zerolog.Logger,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		VerificationSvc: verificationSvc,
		Store:           store,
		WsHub:           wsHub,
		Logger:          logger,
		Config:          cfg,
	}
}

func (h *Handlers) SetupHandlers(router *gin.Engine) {
	mw := middleware.NewMiddleware(h.Config.Security, h.Logger)
	mw.SetupMiddleware(router)

	healthHandler := NewHealthHandler(h.Store, h.VerificationSvc)
	depositHandler := NewDepositHandler(h.VerificationSvc, h.Store, h.Config.Chains, h.Logger)
	wsHandler := NewWebSocketHandler(h.WsHub, h.Config.WebSocket, h.Logger)

	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1", mw.APIKeyAuth())
	{
		deposits := v1.Group("/deposits")
		{
			deposits.POST("/verify", depositHandler.EnqueueDeposit)
			deposits.GET("/:tx_hash", depositHandler.GetDeposit)
		}

		queue := v1.Group("/queue")
		{
			queue.GET("/depth", depositHandler.GetQueueDepth)
			queue.GET("/tasks/:tx_hash", depositHandler.GetTaskStatus)
		}

		v1.GET("/users/:user_id/balance", depositHandler.GetUserBalance)
	}

	router.GET("/ws", wsHandler.HandleConnection)
}
