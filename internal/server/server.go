package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/nexbit/dvs/internal/application/verificationservice"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/internal/server/handlers"
	"github.com/nexbit/dvs/internal/server/websocket"
	"github.com/nexbit/dvs/pkg/config"
)

type Server struct {
	VerificationSvc verificationservice.IVerificationService
	Store           ledgerrepo.ILedgerRepository
	Cfg             *config.Config
	Logger          zerolog.Logger
	Router          *gin.Engine
	WsHub           *websocket.WsHub
	httpServer      *http.Server
}

func New(
	cfg *config.Config,
	verificationSvc verificationservice.IVerificationService,
	store ledgerrepo.ILedgerRepository,
	wsHub *websocket.WsHub,
	logger zerolog.Logger,
) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{
		VerificationSvc: verificationSvc,
		Store:           store,
		Cfg:             cfg,
		Logger:          logger,
		Router:          gin.New(),
		WsHub:           wsHub,
	}
}

func (s *Server) SetupRouter() {
	handler := handlers.New(s.VerificationSvc, s.Store, s.WsHub, s.Logger, s.Cfg)
	handler.SetupHandlers(s.Router)
}

// Start serves HTTP until ctx is cancelled, then drains connections.
func (s *Server) Start(ctx context.Context) {
	s.SetupRouter()

	s.httpServer = &http.Server{
		Addr:         s.Cfg.Server.Host + ":" + s.Cfg.Server.Port,
		Handler:      s.Router,
		ReadTimeout:  20 * time.Second,
		WriteTimeout: 20 * time.Second,
	}

	s.Logger.Info().Msgf("Starting server on %s", s.httpServer.Addr)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-ctx.Done()
	s.Logger.Info().Msg("Shutdown signal received, shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.Logger.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	s.Logger.Info().Msg("Server exited gracefully")
}
