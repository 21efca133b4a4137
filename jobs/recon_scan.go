package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/amanah-erp/amanah-erp/internal/jobs"
	"github.com/amanah-erp/amanah-erp/internal/reconciliation"
)

// ReconAutoScanJob confirms high-confidence reconciliation matches in the
// background so accountants only review the ambiguous remainder.
type ReconAutoScanJob struct {
	recon   *reconciliation.Service
	metrics *jobmetrics.Metrics
	logger  *slog.Logger
}

// NewReconAutoScanJob wires the scan.
func NewReconAutoScanJob(recon *reconciliation.Service, metrics *jobmetrics.Metrics, logger *slog.Logger) *ReconAutoScanJob {
	return &ReconAutoScanJob{recon: recon, metrics: metrics, logger: logger}
}

// Handle processes TaskReconAutoScan tasks.
func (j *ReconAutoScanJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskReconAutoScan)
	var payload ReconAutoScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			_ = tracker.End(err)
			return asynq.SkipRetry
		}
	}

	statements := []int64{payload.StatementID}
	if payload.StatementID == 0 {
		var err error
		statements, err = j.recon.OpenStatements(ctx)
		if err != nil {
			return tracker.End(err)
		}
	}

	total := 0
	for _, statementID := range statements {
		accepted, err := j.recon.AutoAccept(ctx, statementID)
		total += accepted
		if err != nil {
			if j.logger != nil {
				j.logger.Error("reconciliation scan failed",
					slog.Int64("statement_id", statementID),
					slog.Any("error", err))
			}
			j.metrics.AddAutoMatches(total)
			return tracker.End(err)
		}
	}
	j.metrics.AddAutoMatches(total)
	if j.logger != nil {
		j.logger.Info("reconciliation scan done",
			slog.Int("statements", len(statements)),
			slog.Int("accepted", total))
	}
	return tracker.End(nil)
}
