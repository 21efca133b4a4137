package fiscalyear

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Repository is the persistence port for fiscal years.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetYear(ctx context.Context, id int64) (FiscalYear, error)
	YearForDate(ctx context.Context, date time.Time) (FiscalYear, error)
	ListYears(ctx context.Context) ([]FiscalYear, error)
	GetClosing(ctx context.Context, yearID int64) (Closing, error)
}

// TxRepository exposes mutations available inside a transaction.
type TxRepository interface {
	InsertYear(ctx context.Context, in CreateYearInput) (FiscalYear, error)
	RangeConflict(ctx context.Context, start, end time.Time) (bool, error)
	GetYearForUpdate(ctx context.Context, id int64) (FiscalYear, error)
	SetYearStatus(ctx context.Context, id int64, status YearStatus) error
	InsertClosing(ctx context.Context, c Closing) (Closing, error)
	YearStartingAfter(ctx context.Context, end time.Time) (FiscalYear, error)
	SetOpeningBalance(ctx context.Context, id int64, opening Closing) error
}

// LedgerSource is the slice of the ledger engine the close needs: the
// balance assertion and the period income totals.
type LedgerSource interface {
	TrialBalance(ctx context.Context, asOf time.Time) (ledger.TrialBalance, error)
	IncomeTotals(ctx context.Context, from, to time.Time) (ledger.IncomeTotals, error)
}

// DistributionSource reports distributions still awaiting approval inside
// a date range.
type DistributionSource interface {
	CountPendingInRange(ctx context.Context, from, to time.Time) (int, error)
}

// AuditPort records audit trail entries after commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates the fiscal year lifecycle. It also implements
// ledger.PeriodGuard so the ledger rejects postings into closed years.
type Service struct {
	repo          Repository
	ledgerSource  LedgerSource
	distributions DistributionSource
	audit         AuditPort
	policy        RetentionPolicy
	logger        *slog.Logger
	now           func() time.Time
}

// NewService constructs a fiscalyear Service.
func NewService(repo Repository, ledgerSource LedgerSource, distributions DistributionSource, audit AuditPort, policy RetentionPolicy, logger *slog.Logger) *Service {
	if !policy.Valid() {
		policy = RetainFromClosingBalance
	}
	return &Service{
		repo:          repo,
		ledgerSource:  ledgerSource,
		distributions: distributions,
		audit:         audit,
		policy:        policy,
		logger:        logger,
		now:           time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListYears returns all fiscal years ordered by start date.
func (s *Service) ListYears(ctx context.Context) ([]FiscalYear, error) {
	return s.repo.ListYears(ctx)
}

// GetYear loads a single fiscal year.
func (s *Service) GetYear(ctx context.Context, id int64) (FiscalYear, error) {
	return s.repo.GetYear(ctx, id)
}

// GetClosing loads the closing record for a year.
func (s *Service) GetClosing(ctx context.Context, yearID int64) (Closing, error) {
	return s.repo.GetClosing(ctx, yearID)
}

// CreateYear inserts a new open fiscal year after checking range overlap.
func (s *Service) CreateYear(ctx context.Context, in CreateYearInput) (FiscalYear, error) {
	if err := in.Validate(); err != nil {
		return FiscalYear{}, err
	}
	var year FiscalYear
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		conflict, err := tx.RangeConflict(ctx, in.StartDate, in.EndDate)
		if err != nil {
			return err
		}
		if conflict {
			return ErrYearOverlap
		}
		year, err = tx.InsertYear(ctx, in)
		return err
	})
	if err != nil {
		return FiscalYear{}, err
	}
	return year, nil
}

// Close performs the year-end closing as one atomic unit. Preconditions:
// the year is not already closed, no distribution in the year is still
// pending approval, and the trial balance holds. The closing row, status
// flip, and rollover into the next year commit together or not at all.
// Only the nazer (or an admin) may call it.
func (s *Service) Close(ctx context.Context, in CloseInput) (Closing, error) {
	if _, err := shared.RequireRole(ctx, shared.RoleNazer, shared.RoleAdmin); err != nil {
		return Closing{}, err
	}
	if err := in.Validate(); err != nil {
		return Closing{}, err
	}

	var closing Closing
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		year, err := tx.GetYearForUpdate(ctx, in.FiscalYearID)
		if err != nil {
			return err
		}
		if year.Status == YearStatusClosed {
			return ErrAlreadyClosed
		}
		pending, err := s.distributions.CountPendingInRange(ctx, year.StartDate, year.EndDate)
		if err != nil {
			return err
		}
		if pending > 0 {
			return fmt.Errorf("%w: %d pending", ErrPendingDistributions, pending)
		}
		if err := tx.SetYearStatus(ctx, year.ID, YearStatusClosing); err != nil {
			return err
		}

		// The trial balance doubles as the consistency assertion: an
		// out-of-balance ledger aborts the close.
		if _, err := s.ledgerSource.TrialBalance(ctx, year.EndDate); err != nil {
			return err
		}
		totals, err := s.ledgerSource.IncomeTotals(ctx, year.StartDate, year.EndDate)
		if err != nil {
			return err
		}

		closing = ComputeClosing(s.policy, year.OpeningBalance, totals.Revenue, totals.Expense, in.RetentionPct)
		closing.FiscalYearID = year.ID
		closing.ClosedBy = in.ActorID
		closing.ClosedAt = s.now()
		closing, err = tx.InsertClosing(ctx, closing)
		if err != nil {
			return err
		}
		if err := tx.SetYearStatus(ctx, year.ID, YearStatusClosed); err != nil {
			return err
		}

		// Rollover: seed the following year's opening balance when that
		// year already exists.
		next, err := tx.YearStartingAfter(ctx, year.EndDate)
		switch {
		case errors.Is(err, ErrNotFound):
			return nil
		case err != nil:
			return err
		}
		return tx.SetOpeningBalance(ctx, next.ID, closing)
	})
	if err != nil {
		return Closing{}, err
	}

	s.recordAudit(ctx, closing)
	return closing, nil
}

// EnsureOpen implements ledger.PeriodGuard: postings dated inside a
// closed year are rejected. Dates outside any known year are allowed.
func (s *Service) EnsureOpen(ctx context.Context, date time.Time) error {
	year, err := s.repo.YearForDate(ctx, date)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if year.Status == YearStatusClosed {
		return ledger.ErrPeriodClosed
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, closing Closing) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  closing.ClosedBy,
		Action:   "fiscalyear.close",
		Entity:   "fiscal_years",
		EntityID: fmt.Sprint(closing.FiscalYearID),
		At:       s.now(),
		Meta: map[string]any{
			"net_income":      closing.NetIncome.StringFixed(2),
			"closing_balance": closing.ClosingBalance.StringFixed(2),
			"waqf_corpus":     closing.WaqfCorpus.StringFixed(2),
			"next_opening":    closing.NextOpeningBalance.StringFixed(2),
			"policy":          string(closing.Policy),
		},
	})
	if err != nil && s.logger != nil {
		s.logger.Warn("record audit", slog.Any("error", err))
	}
}
