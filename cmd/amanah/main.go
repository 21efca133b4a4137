package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/amanah-erp/amanah-erp/internal/aging"
	"github.com/amanah-erp/amanah-erp/internal/app"
	"github.com/amanah-erp/amanah-erp/internal/beneficiaries"
	"github.com/amanah-erp/amanah-erp/internal/distribution"
	"github.com/amanah-erp/amanah-erp/internal/fiscalyear"
	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/observability"
	"github.com/amanah-erp/amanah-erp/internal/payout"
	"github.com/amanah-erp/amanah-erp/internal/platform/cache"
	"github.com/amanah-erp/amanah-erp/internal/platform/db"
	"github.com/amanah-erp/amanah-erp/internal/platform/retry"
	"github.com/amanah-erp/amanah-erp/internal/reconciliation"
	"github.com/amanah-erp/amanah-erp/internal/shared"
	"github.com/amanah-erp/amanah-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		// Reconciliation falls back to DB-level uniqueness without redis.
		logger.Warn("redis unavailable", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(dbpool)
	approvalRecorder := shared.NewApprovalRecorder(dbpool, logger)

	ledgerRepo := ledger.NewRepository(dbpool)
	ledgerService := ledger.NewService(ledgerRepo, nil, auditLogger)

	distRepo := distribution.NewRepository(dbpool)

	fiscalYearRepo := fiscalyear.NewRepository(dbpool)
	fiscalYearService := fiscalyear.NewService(
		fiscalYearRepo,
		ledgerService,
		distRepo,
		auditLogger,
		fiscalyear.RetentionPolicy(cfg.RetentionPolicy),
		logger,
	)
	ledgerService.WithPeriodGuard(fiscalYearService)

	beneficiaryService := beneficiaries.NewService(beneficiaries.NewRepository(dbpool))

	distService := distribution.NewService(
		distRepo,
		beneficiaries.NewSource(beneficiaryService),
		ledgerService,
		payout.LogExporter{Logger: logger},
		approvalRecorder,
		distribution.Accounts{
			RevenueAllocationID:  cfg.RevenueAllocationAccount,
			NazerPayableID:       cfg.NazerPayableAccount,
			CharityPayableID:     cfg.CharityPayableAccount,
			BeneficiaryPayableID: cfg.BeneficiaryPayableAccount,
		},
		logger,
	)

	matchLock := cache.NewLock(redisClient, time.Minute)
	matchBreaker := retry.NewBreaker("recon-lock", 3, 30*time.Second)
	reconService := reconciliation.NewService(
		reconciliation.NewRepository(dbpool),
		matchLock,
		matchBreaker,
		auditLogger,
		reconciliation.Config{
			WindowDays:          cfg.ReconWindowDays,
			Floor:               cfg.ReconScoreFloor,
			AutoAcceptThreshold: cfg.ReconAutoAcceptThreshold,
		},
		logger,
	)

	agingService := aging.NewService(aging.NewRepository(dbpool))

	metrics := observability.NewMetrics()

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:                logger,
		Config:                cfg,
		LedgerHandler:         ledger.NewHandler(logger, ledgerService),
		DistributionHandler:   distribution.NewHandler(logger, distService),
		FiscalYearHandler:     fiscalyear.NewHandler(logger, fiscalYearService),
		ReconciliationHandler: reconciliation.NewHandler(logger, reconService),
		AgingHandler:          aging.NewHandler(logger, agingService),
		BeneficiariesHandler:  beneficiaries.NewHandler(logger, beneficiaryService),
		JobHandler:            jobHandler,
		Metrics:               metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
