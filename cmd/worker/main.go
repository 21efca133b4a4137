package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/amanah-erp/amanah-erp/internal/app"
	jobmetrics "github.com/amanah-erp/amanah-erp/internal/jobs"
	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/platform/db"
	"github.com/amanah-erp/amanah-erp/internal/reconciliation"
	"github.com/amanah-erp/amanah-erp/internal/shared"
	"github.com/amanah-erp/amanah-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), nil, auditLogger)

	// The worker never takes the match lock: auto-acceptance already runs
	// single-flight through the queue.
	reconService := reconciliation.NewService(
		reconciliation.NewRepository(pool),
		nil,
		nil,
		auditLogger,
		reconciliation.Config{
			WindowDays:          cfg.ReconWindowDays,
			Floor:               cfg.ReconScoreFloor,
			AutoAcceptThreshold: cfg.ReconAutoAcceptThreshold,
		},
		logger,
	)

	metrics := jobmetrics.NewMetrics(nil)
	integrityJob := jobs.NewLedgerIntegrityJob(ledgerService, metrics, logger)
	scanJob := jobs.NewReconAutoScanJob(reconService, metrics, logger)

	scanTask, err := jobs.NewReconAutoScanTask(jobs.ReconAutoScanPayload{})
	if err != nil {
		logger.Error("build scan task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskLedgerIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskReconAutoScan, Handler: scanJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 1 * * *", Task: jobs.NewLedgerIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: "30 */4 * * *", Task: scanTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
