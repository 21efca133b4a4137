package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amanah-erp/amanah-erp/internal/platform/retry"
	"github.com/amanah-erp/amanah-erp/internal/shared"
)

// Repository is the persistence port for the ledger.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	GetEntry(ctx context.Context, id int64) (JournalEntry, error)
	ListEntries(ctx context.Context, from, to time.Time) ([]JournalEntry, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	AccountMovements(ctx context.Context, asOf time.Time) ([]AccountMovement, error)
	IncomeTotals(ctx context.Context, from, to time.Time) (IncomeTotals, error)
}

// TxRepository exposes the mutations available inside a posting
// transaction. Implementations guarantee that either every call in the
// transaction takes effect or none do.
type TxRepository interface {
	AccountsByID(ctx context.Context, ids []int64) (map[int64]Account, error)
	InsertEntry(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	UpdateBalances(ctx context.Context, updates []BalanceUpdate) error
	GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error)
	MarkReversed(ctx context.Context, id, reversalID int64) error
}

// PeriodGuard rejects postings dated inside a closed fiscal year. The
// fiscalyear service implements it.
type PeriodGuard interface {
	EnsureOpen(ctx context.Context, date time.Time) error
}

// AuditPort records audit trail entries after commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the ledger engine. It owns Account balances and the
// JournalEntry lifecycle; other modules mutate balances only by posting
// entries through it.
type Service struct {
	repo   Repository
	guard  PeriodGuard
	audit  AuditPort
	policy retry.Policy
	hook   func(JournalEntry)
	now    func() time.Time
}

// NewService constructs a ledger Service.
func NewService(repo Repository, guard PeriodGuard, audit AuditPort) *Service {
	return &Service{
		repo:   repo,
		guard:  guard,
		audit:  audit,
		policy: retry.DefaultPolicy(),
		now:    time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithPeriodGuard installs the closed-period check. The guard is set
// after construction because the fiscalyear service that implements it
// reads balances through this ledger.
func (s *Service) WithPeriodGuard(guard PeriodGuard) {
	s.guard = guard
}

// WithRetryPolicy overrides the conflict-retry policy.
func (s *Service) WithRetryPolicy(p retry.Policy) {
	s.policy = p
}

// WithPostCommitHook registers a hook invoked after each successful
// posting commit. Transport of the event is left to the caller.
func (s *Service) WithPostCommitHook(hook func(JournalEntry)) {
	s.hook = hook
}

// ListAccounts returns the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// GetEntry loads a single journal entry with lines.
func (s *Service) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return s.repo.GetEntry(ctx, id)
}

// PostEntry validates and posts a balanced journal entry, atomically
// updating every touched account balance. Version conflicts are retried
// within the policy budget before surfacing as ErrVersionConflict.
func (s *Service) PostEntry(ctx context.Context, in PostingInput) (JournalEntry, error) {
	if err := in.Validate(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var e error
		entry, e = s.postOnce(ctx, in, nil)
		return e
	}, func(err error) bool {
		return errors.Is(err, ErrVersionConflict)
	})
	if err != nil {
		if errors.Is(err, retry.ErrRetriesExhausted) {
			return JournalEntry{}, ErrVersionConflict
		}
		return JournalEntry{}, err
	}
	s.afterCommit(ctx, entry, "journal.post", in.PostedBy, map[string]any{
		"source_module": in.SourceModule,
		"source_id":     in.SourceID.String(),
	})
	return entry, nil
}

// ReverseEntry creates a new entry with every line's debit/credit swapped,
// linked to the original, and marks the original reversed.
func (s *Service) ReverseEntry(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	if in.EntryID == 0 {
		return JournalEntry{}, errors.New("ledger: entry id required")
	}
	var reversal JournalEntry
	err := s.policy.Do(ctx, func(ctx context.Context) error {
		var e error
		reversal, e = s.reverseOnce(ctx, in)
		return e
	}, func(err error) bool {
		return errors.Is(err, ErrVersionConflict)
	})
	if err != nil {
		if errors.Is(err, retry.ErrRetriesExhausted) {
			return JournalEntry{}, ErrVersionConflict
		}
		return JournalEntry{}, err
	}
	s.afterCommit(ctx, reversal, "journal.reverse", in.ActorID, map[string]any{
		"original_id": in.EntryID,
	})
	return reversal, nil
}

func (s *Service) postOnce(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if s.guard != nil {
			if err := s.guard.EnsureOpen(ctx, in.Date); err != nil {
				return err
			}
		}
		updates, err := balanceUpdates(ctx, tx, in.Lines)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, in, reversalOf)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, in.Lines); err != nil {
			return err
		}
		if err := tx.UpdateBalances(ctx, updates); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, in.Lines)
		entry = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *Service) reverseOnce(ctx context.Context, in ReverseInput) (JournalEntry, error) {
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryForUpdate(ctx, in.EntryID)
		if err != nil {
			return err
		}
		if original.Status == EntryStatusReversed {
			return ErrAlreadyReversed
		}
		if original.Status != EntryStatusPosted {
			return fmt.Errorf("ledger: entry %d is not posted", in.EntryID)
		}
		date := original.Date
		if in.Date != nil {
			date = *in.Date
		}
		if s.guard != nil {
			if err := s.guard.EnsureOpen(ctx, date); err != nil {
				return err
			}
		}
		posting := PostingInput{
			Date:         date,
			Memo:         reversalMemo(in.Memo, original.Number),
			SourceModule: original.SourceModule + ":REVERSAL",
			SourceID:     uuid.New(),
			PostedBy:     in.ActorID,
			Lines:        swapLines(original.Lines),
		}
		updates, err := balanceUpdates(ctx, tx, posting.Lines)
		if err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, posting, &original.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, posting.Lines); err != nil {
			return err
		}
		if err := tx.UpdateBalances(ctx, updates); err != nil {
			return err
		}
		if err := tx.MarkReversed(ctx, original.ID, inserted.ID); err != nil {
			return err
		}
		inserted.Lines = toJournalLines(inserted.ID, posting.Lines)
		reversal = inserted
		return nil
	})
	if err != nil {
		return JournalEntry{}, err
	}
	return reversal, nil
}

// balanceUpdates loads every touched account and computes its new balance
// together with the version stamp the write must match.
func balanceUpdates(ctx context.Context, tx TxRepository, lines []PostingLineInput) ([]BalanceUpdate, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, line := range lines {
		if !seen[line.AccountID] {
			seen[line.AccountID] = true
			ids = append(ids, line.AccountID)
		}
	}
	accounts, err := tx.AccountsByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	next := make(map[int64]BalanceUpdate, len(ids))
	for _, id := range ids {
		acc, ok := accounts[id]
		if !ok || !acc.IsActive {
			return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
		}
		next[id] = BalanceUpdate{
			AccountID:       id,
			ExpectedVersion: acc.Version,
			NewBalance:      acc.Balance,
		}
	}
	for _, line := range lines {
		upd := next[line.AccountID]
		upd.NewBalance = upd.NewBalance.Add(line.Delta(accounts[line.AccountID].Side))
		next[line.AccountID] = upd
	}
	out := make([]BalanceUpdate, 0, len(ids))
	for _, id := range ids {
		out = append(out, next[id])
	}
	return out, nil
}

func (s *Service) afterCommit(ctx context.Context, entry JournalEntry, action string, actorID int64, meta map[string]any) {
	if s.hook != nil {
		s.hook(entry)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   action,
			Entity:   "journal_entry",
			EntityID: fmt.Sprintf("%d", entry.ID),
			Meta:     meta,
			At:       s.now(),
		})
	}
}

func swapLines(lines []JournalLine) []PostingLineInput {
	out := make([]PostingLineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, PostingLineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	return out
}

func toJournalLines(entryID int64, lines []PostingLineInput) []JournalLine {
	out := make([]JournalLine, 0, len(lines))
	for _, line := range lines {
		out = append(out, JournalLine{
			JournalID: entryID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return out
}

func reversalMemo(memo string, number int64) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of JE %d", number)
}
