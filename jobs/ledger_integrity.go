package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/amanah-erp/amanah-erp/internal/jobs"
	"github.com/amanah-erp/amanah-erp/internal/ledger"
)

// LedgerIntegrityJob runs the trial balance as a consistency assertion
// over the whole ledger. The report output is discarded; only the
// balanced-or-not outcome matters here.
type LedgerIntegrityJob struct {
	ledger  *ledger.Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// NewLedgerIntegrityJob wires the sweep.
func NewLedgerIntegrityJob(ledgerService *ledger.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{ledger: ledgerService, metrics: metrics, logger: logger, now: time.Now}
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	tracker := j.metrics.Track(TaskLedgerIntegrity)
	asOf := j.now()
	_, err := j.ledger.TrialBalance(ctx, asOf)
	if err != nil {
		if j.logger != nil {
			j.logger.Error("ledger integrity sweep failed",
				slog.Time("as_of", asOf),
				slog.Any("error", err))
		}
		if errors.Is(err, ledger.ErrOutOfBalance) {
			j.metrics.ReportOutOfBalance()
		}
		return tracker.End(err)
	}
	if j.logger != nil {
		j.logger.Info("ledger integrity sweep ok", slog.Time("as_of", asOf))
	}
	return tracker.End(nil)
}
