// Package payout defines the export boundary for executed distributions.
// Formatting the records into bank files (CSV, MT940, ISO 20022) is a
// separate, logic-free concern that consumes this list verbatim.
package payout

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"
)

// Record is one payable line for a beneficiary.
type Record struct {
	BeneficiaryID int64
	Name          string
	IBAN          string
	Amount        decimal.Decimal
	Reference     string
}

// Exporter receives payout records after a distribution executes.
type Exporter interface {
	Export(ctx context.Context, records []Record) error
}

// LogExporter is the default exporter: it only logs the batch. Production
// deployments plug a bank-file writer behind the same interface.
type LogExporter struct {
	Logger *slog.Logger
}

// Export logs each record.
func (e LogExporter) Export(ctx context.Context, records []Record) error {
	if e.Logger == nil {
		return nil
	}
	for _, rec := range records {
		e.Logger.Info("payout record",
			slog.Int64("beneficiary_id", rec.BeneficiaryID),
			slog.String("iban", rec.IBAN),
			slog.String("amount", rec.Amount.StringFixed(2)),
			slog.String("reference", rec.Reference),
		)
	}
	return nil
}
