package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/p2ramp/settlement_service/internal/adapters/chain"
	"github.com/p2ramp/settlement_service/internal/adapters/rail"
	"github.com/p2ramp/settlement_service/internal/api/handlers"
	"github.com/p2ramp/settlement_service/internal/api/routes"
	"github.com/p2ramp/settlement_service/internal/domain/services/ledger"
	"github.com/p2ramp/settlement_service/internal/domain/services/rates"
	"github.com/p2ramp/settlement_service/internal/domain/services/reconciliation"
	"github.com/p2ramp/settlement_service/internal/domain/services/settlement"
	"github.com/p2ramp/settlement_service/internal/domain/services/withdrawal"
	"github.com/p2ramp/settlement_service/internal/infrastructure/cache"
	"github.com/p2ramp/settlement_service/internal/infrastructure/config"
	"github.com/p2ramp/settlement_service/internal/infrastructure/database"
	"github.com/p2ramp/settlement_service/internal/infrastructure/repositories"
	"github.com/p2ramp/settlement_service/internal/workers/chainpoller"
	"github.com/p2ramp/settlement_service/pkg/graceful"
	"github.com/p2ramp/settlement_service/pkg/logger"
	"github.com/p2ramp/settlement_service/pkg/metrics"
)

const version = "1.2.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger := logger.New(cfg.LogLevel, cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("Starting settlement service",
		"version", version,
		"environment", cfg.Environment,
	)

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		appLogger.Fatal("Failed to run migrations", "error", err)
	}
	appLogger.Info("Database migrations applied")

	// Redis is optional: without it the poller watermark lives in memory and
	// a restart resumes from the chain head
	var watermarks cache.WatermarkStore
	var redisClient cache.RedisClient
	if redisClient, err = cache.NewRedisClient(&cfg.Redis, appLogger.Zap()); err != nil {
		appLogger.Warn("Redis unavailable, using in-memory poller watermark", "error", err)
		redisClient = nil
		watermarks = cache.NewMemoryWatermarkStore()
	} else {
		watermarks = cache.NewWatermarkStore(redisClient)
	}

	txRepo := repositories.NewTransactionRepository(db)
	merchantRepo := repositories.NewMerchantRepository(db)
	adRepo := repositories.NewAdRepository(db)
	withdrawalRepo := repositories.NewWithdrawalRepository(db)

	chainClient := chain.NewClient(cfg.Chain.RPCURL, appLogger)
	escrow := chain.NewEscrow(chainClient, cfg.Chain.EscrowAddress, cfg.Chain.OperatorAddress, appLogger)

	railClient := rail.NewClient(rail.Config{
		BaseURL:      cfg.Rail.BaseURL,
		ClientID:     cfg.Rail.ClientID,
		ClientSecret: cfg.Rail.ClientSecret,
		SenderName:   cfg.Rail.SenderName,
		Timeout:      time.Duration(cfg.Rail.Timeout) * time.Second,
		MaxRetries:   cfg.Rail.MaxRetries,
	}, appLogger)

	rateResolver := rates.NewResolver(adRepo, merchantRepo, appLogger)
	ledgerSvc := ledger.NewService(merchantRepo, appLogger)
	settlementSvc := settlement.NewService(txRepo, rateResolver, ledgerSvc, railClient, escrow, cfg.Chain.TokenDecimals, appLogger)
	withdrawalSvc := withdrawal.NewService(withdrawalRepo, ledgerSvc, railClient, appLogger)
	reconciliationSvc := reconciliation.NewService(
		txRepo,
		railClient,
		time.Duration(cfg.Reconciliation.PendingAgeHours)*time.Hour,
		appLogger,
	)

	webhookHandler := handlers.NewRailWebhookHandler(txRepo, withdrawalRepo, ledgerSvc, escrow, cfg.Rail.WebhookSecret, appLogger)
	healthHandler := handlers.NewHealthHandler(db, redisClient, chainClient, webhookHandler, cfg.Rail.MockMode(), appLogger, version)
	settlementHandler := handlers.NewSettlementHandler(txRepo, ledgerSvc, withdrawalSvc, reconciliationSvc, appLogger)

	router := routes.SetupRouter(cfg.Environment, appLogger, healthHandler, webhookHandler, settlementHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	shutdown := graceful.NewShutdownManager(server, db.DB, appLogger)

	if cfg.Poller.Enabled {
		poller := chainpoller.NewPoller(chainpoller.Config{
			EscrowAddress: cfg.Chain.EscrowAddress,
			Interval:      cfg.Poller.Interval(),
			StartBlock:    cfg.Chain.StartBlock,
		}, chainClient, settlementSvc, watermarks, appLogger)

		startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := poller.Start(startCtx); err != nil {
			cancel()
			appLogger.Fatal("Failed to start chain poller", "error", err)
		}
		cancel()
		shutdown.Register("chain-poller", poller)
	} else {
		appLogger.Warn("Chain poller disabled by configuration")
	}

	if cfg.Reconciliation.Enabled {
		scheduler, err := reconciliation.NewScheduler(reconciliationSvc, cfg.Reconciliation.Schedule, appLogger)
		if err != nil {
			appLogger.Fatal("Failed to create reconciliation scheduler", "error", err)
		}
		scheduler.Start()
		shutdown.Register("reconciliation-scheduler", scheduler)
	}

	go reportPoolStats(db.DB)

	go func() {
		appLogger.Info("HTTP server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("HTTP server failed", "error", err)
		}
	}()

	shutdown.WaitForShutdown()
}

// reportPoolStats exports connection pool gauges every 15 seconds
func reportPoolStats(db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		stats := db.Stats()
		metrics.DatabaseConnectionsGauge.WithLabelValues("open").Set(float64(stats.OpenConnections))
		metrics.DatabaseConnectionsGauge.WithLabelValues("in_use").Set(float64(stats.InUse))
		metrics.DatabaseConnectionsGauge.WithLabelValues("idle").Set(float64(stats.Idle))
	}
}
