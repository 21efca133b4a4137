package distribution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amanah-erp/amanah-erp/internal/ledger"
	"github.com/amanah-erp/amanah-erp/internal/payout"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Repository is the persistence port for distributions.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Distribution, error)
	CountPendingInRange(ctx context.Context, from, to time.Time) (int, error)
}

// TxRepository exposes mutations available inside a transaction.
type TxRepository interface {
	Insert(ctx context.Context, d Distribution) error
	InsertDetails(ctx context.Context, id uuid.UUID, details []Detail) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (Distribution, error)
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
	SetJournalEntry(ctx context.Context, id uuid.UUID, entryID int64) error
}

// BeneficiarySource supplies the active beneficiary registry.
type BeneficiarySource interface {
	ListActive(ctx context.Context) ([]Beneficiary, error)
}

// LedgerPort is the slice of the ledger engine this module uses. Account
// balances are only ever touched through it.
type LedgerPort interface {
	PostEntry(ctx context.Context, in ledger.PostingInput) (ledger.JournalEntry, error)
	ReverseEntry(ctx context.Context, in ledger.ReverseInput) (ledger.JournalEntry, error)
}

// ApprovalPort records the approval decision trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// Accounts names the ledger accounts the distribution posting touches.
type Accounts struct {
	RevenueAllocationID  int64
	NazerPayableID       int64
	CharityPayableID     int64
	BeneficiaryPayableID int64
}

// Service orchestrates the distribution lifecycle.
type Service struct {
	repo          Repository
	beneficiaries BeneficiarySource
	ledger        LedgerPort
	exporter      payout.Exporter
	approvals     ApprovalPort
	accounts      Accounts
	logger        *slog.Logger
	now           func() time.Time
}

// NewService constructs a distribution Service.
func NewService(repo Repository, beneficiaries BeneficiarySource, ledgerPort LedgerPort, exporter payout.Exporter, approvals ApprovalPort, accounts Accounts, logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		beneficiaries: beneficiaries,
		ledger:        ledgerPort,
		exporter:      exporter,
		approvals:     approvals,
		accounts:      accounts,
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

// Get loads a distribution with details.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Distribution, error) {
	return s.repo.Get(ctx, id)
}

// Calculate validates the run, allocates shares across the active
// beneficiaries, and persists the result as a draft.
func (s *Service) Calculate(ctx context.Context, in CalculateInput) (Distribution, error) {
	if err := in.Validate(); err != nil {
		return Distribution{}, err
	}
	beneficiaries, err := s.beneficiaries.ListActive(ctx)
	if err != nil {
		return Distribution{}, err
	}
	shares, err := ComputeShares(in.TotalRevenue, in.NazerPct, in.CharityPct, beneficiaries)
	if err != nil {
		return Distribution{}, err
	}

	now := s.now()
	dist := Distribution{
		ID:            uuid.New(),
		PeriodStart:   in.PeriodStart,
		PeriodEnd:     in.PeriodEnd,
		TotalRevenue:  in.TotalRevenue,
		NazerPct:      in.NazerPct,
		CharityPct:    in.CharityPct,
		NazerShare:    shares.NazerShare,
		CharityShare:  shares.CharityShare,
		Distributable: shares.Distributable,
		HeldAmount:    shares.HeldAmount,
		Status:        StatusDraft,
		CreatedBy:     in.ActorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, b := range beneficiaries {
		dist.Details = append(dist.Details, Detail{
			DistributionID: dist.ID,
			BeneficiaryID:  b.ID,
			Name:           b.Name,
			IBAN:           b.IBAN,
			Weight:         b.Weight,
			Amount:         shares.Allocations[i],
		})
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.Insert(ctx, dist); err != nil {
			return err
		}
		return tx.InsertDetails(ctx, dist.ID, dist.Details)
	})
	if err != nil {
		return Distribution{}, err
	}
	return dist, nil
}

// Submit moves a draft into the approval queue.
func (s *Service) Submit(ctx context.Context, id uuid.UUID, actorID int64) (Distribution, error) {
	dist, err := s.transition(ctx, id, StatusDraft, StatusPendingApproval)
	if err != nil {
		return Distribution{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalSubmit, "")
	return dist, nil
}

// Reject declines a pending distribution.
func (s *Service) Reject(ctx context.Context, id uuid.UUID, actorID int64, note string) (Distribution, error) {
	if _, err := shared.RequireRole(ctx, shared.RoleNazer, shared.RoleAdmin); err != nil {
		return Distribution{}, err
	}
	dist, err := s.transition(ctx, id, StatusPendingApproval, StatusRejected)
	if err != nil {
		return Distribution{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalReject, note)
	return dist, nil
}

// Approve executes a pending distribution as one atomic unit: the status
// transition and the aggregated journal posting either both happen or
// neither does. Only the nazer (or an admin) may call it.
func (s *Service) Approve(ctx context.Context, id uuid.UUID, actorID int64) (Distribution, error) {
	if _, err := shared.RequireRole(ctx, shared.RoleNazer, shared.RoleAdmin); err != nil {
		return Distribution{}, err
	}

	var executed Distribution
	var postedEntry ledger.JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dist, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if dist.Status != StatusPendingApproval {
			return fmt.Errorf("%w: %s", ErrInvalidStatus, dist.Status)
		}
		if err := tx.SetStatus(ctx, id, StatusApproved); err != nil {
			return err
		}
		entry, err := s.ledger.PostEntry(ctx, s.postingFor(dist, actorID))
		if err != nil {
			return err
		}
		postedEntry = entry
		if err := tx.SetJournalEntry(ctx, id, entry.ID); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, id, StatusExecuted); err != nil {
			return err
		}
		dist.Status = StatusExecuted
		dist.JournalEntryID = &entry.ID
		executed = dist
		return nil
	})
	if err != nil {
		// The ledger commit is independent of ours. If our transaction
		// failed after the posting landed, issue a compensating reversal so
		// the ledger returns to its pre-operation state.
		if postedEntry.ID != 0 {
			if _, revErr := s.ledger.ReverseEntry(ctx, ledger.ReverseInput{EntryID: postedEntry.ID, ActorID: actorID}); revErr != nil {
				s.logger.Error("compensating reversal failed",
					slog.Int64("entry_id", postedEntry.ID), slog.Any("error", revErr))
			}
		}
		return Distribution{}, err
	}

	s.recordApproval(ctx, id, actorID, shared.ApprovalApprove, "")
	s.exportPayouts(ctx, executed)
	return executed, nil
}

// Cancel voids a distribution. Draft and pending runs cancel directly;
// an executed run is cancelled only through a compensating reversal of its
// journal entry, never an in-place mutation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actorID int64, note string) (Distribution, error) {
	if _, err := shared.RequireRole(ctx, shared.RoleNazer, shared.RoleAdmin); err != nil {
		return Distribution{}, err
	}
	var cancelled Distribution
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dist, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		switch dist.Status {
		case StatusDraft, StatusPendingApproval:
			// no ledger impact yet
		case StatusExecuted:
			if dist.JournalEntryID == nil {
				return fmt.Errorf("distribution: executed run %s has no journal entry", id)
			}
			if _, err := s.ledger.ReverseEntry(ctx, ledger.ReverseInput{EntryID: *dist.JournalEntryID, ActorID: actorID, Memo: note}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s", ErrInvalidStatus, dist.Status)
		}
		if err := tx.SetStatus(ctx, id, StatusCancelled); err != nil {
			return err
		}
		dist.Status = StatusCancelled
		cancelled = dist
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalCancel, note)
	return cancelled, nil
}

// postingFor builds the aggregated multi-line journal entry: one debit for
// the executed total against the revenue allocation account, and credits
// for the nazer share, the charity share, and each beneficiary's payable.
func (s *Service) postingFor(dist Distribution, actorID int64) ledger.PostingInput {
	executedTotal := dist.NazerShare.Add(dist.CharityShare)
	lines := []ledger.PostingLineInput{}
	if dist.NazerShare.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.NazerPayableID, Credit: dist.NazerShare})
	}
	if dist.CharityShare.IsPositive() {
		lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.CharityPayableID, Credit: dist.CharityShare})
	}
	for _, detail := range dist.Details {
		if detail.Amount.IsPositive() {
			lines = append(lines, ledger.PostingLineInput{AccountID: s.accounts.BeneficiaryPayableID, Credit: detail.Amount})
			executedTotal = executedTotal.Add(detail.Amount)
		}
	}
	lines = append([]ledger.PostingLineInput{
		{AccountID: s.accounts.RevenueAllocationID, Debit: executedTotal},
	}, lines...)
	return ledger.PostingInput{
		Date:         dist.PeriodEnd,
		Memo:         fmt.Sprintf("Distribution %s for %s..%s", dist.ID, dist.PeriodStart.Format("2006-01-02"), dist.PeriodEnd.Format("2006-01-02")),
		SourceModule: "DISTRIBUTIONS",
		SourceID:     dist.ID,
		PostedBy:     actorID,
		Lines:        lines,
	}
}

// exportPayouts emits the flat payout record list to the exporter. The
// exporter consumes it verbatim; failures are logged, not fatal, because
// the export can be replayed from the executed distribution.
func (s *Service) exportPayouts(ctx context.Context, dist Distribution) {
	if s.exporter == nil {
		return
	}
	records := make([]payout.Record, 0, len(dist.Details))
	for _, detail := range dist.Details {
		if !detail.Amount.IsPositive() {
			continue
		}
		records = append(records, payout.Record{
			BeneficiaryID: detail.BeneficiaryID,
			Name:          detail.Name,
			IBAN:          detail.IBAN,
			Amount:        detail.Amount,
			Reference:     fmt.Sprintf("DIST-%s", dist.ID),
		})
	}
	if err := s.exporter.Export(ctx, records); err != nil {
		s.logger.Error("payout export", slog.String("distribution_id", dist.ID.String()), slog.Any("error", err))
	}
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to Status) (Distribution, error) {
	var out Distribution
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		dist, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if dist.Status != from {
			return fmt.Errorf("%w: %s", ErrInvalidStatus, dist.Status)
		}
		if err := tx.SetStatus(ctx, id, to); err != nil {
			return err
		}
		dist.Status = to
		out = dist
		return nil
	})
	if err != nil {
		return Distribution{}, err
	}
	return out, nil
}

func (s *Service) recordApproval(ctx context.Context, id uuid.UUID, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	if err := s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  "DISTRIBUTIONS",
		RefID:   id,
		ActorID: actorID,
		Action:  action,
		Note:    note,
		At:      s.now(),
	}); err != nil && s.logger != nil {
		s.logger.Warn("record approval", slog.Any("error", err))
	}
}

// CheckInvariant verifies the distribution identity and returns an error
// naming the drift when it does not hold.
func CheckInvariant(d Distribution) error {
	sum := d.NazerShare.Add(d.CharityShare).Add(d.HeldAmount)
	for _, detail := range d.Details {
		sum = sum.Add(detail.Amount)
	}
	if !sum.Equal(d.TotalRevenue) {
		return fmt.Errorf("distribution: allocation drift %s on %s", sum.Sub(d.TotalRevenue), d.ID)
	}
	return nil
}
