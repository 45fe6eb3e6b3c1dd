package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/nexbit/dvs/internal/application/settlement"
	"github.com/nexbit/dvs/internal/application/verificationservice"
	"github.com/nexbit/dvs/internal/infrastructure/database"
	"github.com/nexbit/dvs/internal/infrastructure/rpc"
	"github.com/nexbit/dvs/internal/repositories/ledgerrepo"
	"github.com/nexbit/dvs/internal/server"
	"github.com/nexbit/dvs/internal/server/websocket"
	"github.com/nexbit/dvs/pkg/config"
	"github.com/nexbit/dvs/pkg/logger"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log = logger.NewWithConfig(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.New(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.ShutDown()

	store := ledgerrepo.New(db, log)

	wsHub := websocket.NewWsHub(log)
	go wsHub.Run()

	tronClient, err := rpc.NewTronClient(cfg.Chains.Tron, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure Tron verifier")
	}
	ethClient := rpc.NewEthereumClient(cfg.Chains.Ethereum, log)

	settlementPipeline := settlement.New(store, cfg.Referral, wsHub, log)

	verificationSvc := verificationservice.New(
		store,
		verificationservice.NewQueue(),
		verificationservice.NewNetworkResolver(),
		[]rpc.IChainVerifier{tronClient, ethClient},
		settlementPipeline,
		wsHub,
		cfg.Verification,
		log,
	)

	go func() {
		if err := verificationSvc.Start(ctx); err != nil && ctx.Err() == nil {
			log.Fatal().Err(err).Msg("Verification service failed")
		}
	}()

	srv := server.New(cfg, verificationSvc, store, wsHub, log)
	srv.Start(ctx)
}
