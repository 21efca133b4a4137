package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/amanah-erp/amanah-erp/internal/platform/retry"
)

type memoryLedgerRepo struct {
	accounts    map[int64]*Account
	entries     map[int64]*JournalEntry
	nextEntryID int64
	nextNumber  int64

	failBalanceWrites int
}

func newMemoryLedgerRepo(accounts ...Account) *memoryLedgerRepo {
	repo := &memoryLedgerRepo{
		accounts: make(map[int64]*Account),
		entries:  make(map[int64]*JournalEntry),
	}
	for i := range accounts {
		acc := accounts[i]
		if acc.Side == "" {
			acc.Side = acc.Type.NaturalSide()
		}
		acc.IsActive = true
		repo.accounts[acc.ID] = &acc
	}
	return repo
}

func (r *memoryLedgerRepo) snapshot() (map[int64]Account, map[int64]JournalEntry) {
	accounts := make(map[int64]Account, len(r.accounts))
	for id, acc := range r.accounts {
		accounts[id] = *acc
	}
	entries := make(map[int64]JournalEntry, len(r.entries))
	for id, e := range r.entries {
		copied := *e
		copied.Lines = append([]JournalLine(nil), e.Lines...)
		entries[id] = copied
	}
	return accounts, entries
}

func (r *memoryLedgerRepo) restore(accounts map[int64]Account, entries map[int64]JournalEntry) {
	r.accounts = make(map[int64]*Account, len(accounts))
	for id := range accounts {
		acc := accounts[id]
		r.accounts[id] = &acc
	}
	r.entries = make(map[int64]*JournalEntry, len(entries))
	for id := range entries {
		e := entries[id]
		r.entries[id] = &e
	}
}

func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	accounts, entries := r.snapshot()
	nextID, nextNumber := r.nextEntryID, r.nextNumber
	if err := fn(ctx, r); err != nil {
		r.restore(accounts, entries)
		r.nextEntryID, r.nextNumber = nextID, nextNumber
		return err
	}
	return nil
}

func (r *memoryLedgerRepo) AccountsByID(ctx context.Context, ids []int64) (map[int64]Account, error) {
	out := make(map[int64]Account, len(ids))
	for _, id := range ids {
		if acc, ok := r.accounts[id]; ok {
			out[id] = *acc
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) InsertEntry(ctx context.Context, in PostingInput, reversalOf *int64) (JournalEntry, error) {
	r.nextEntryID++
	r.nextNumber++
	entry := JournalEntry{
		ID:           r.nextEntryID,
		Number:       r.nextNumber,
		Date:         in.Date,
		Memo:         in.Memo,
		SourceModule: in.SourceModule,
		SourceID:     in.SourceID,
		Status:       EntryStatusPosted,
		ReversalOf:   reversalOf,
		PostedBy:     in.PostedBy,
		PostedAt:     time.Now(),
	}
	stored := entry
	r.entries[entry.ID] = &stored
	return entry, nil
}

func (r *memoryLedgerRepo) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	entry := r.entries[entryID]
	entry.Lines = toJournalLines(entryID, lines)
	return nil
}

func (r *memoryLedgerRepo) UpdateBalances(ctx context.Context, updates []BalanceUpdate) error {
	if r.failBalanceWrites > 0 {
		r.failBalanceWrites--
		return ErrVersionConflict
	}
	for _, upd := range updates {
		acc, ok := r.accounts[upd.AccountID]
		if !ok {
			return ErrAccountNotFound
		}
		if acc.Version != upd.ExpectedVersion {
			return ErrVersionConflict
		}
		acc.Balance = upd.NewBalance
		acc.Version++
	}
	return nil
}

func (r *memoryLedgerRepo) GetEntryForUpdate(ctx context.Context, id int64) (JournalEntry, error) {
	entry, ok := r.entries[id]
	if !ok {
		return JournalEntry{}, ErrEntryNotFound
	}
	copied := *entry
	copied.Lines = append([]JournalLine(nil), entry.Lines...)
	return copied, nil
}

func (r *memoryLedgerRepo) MarkReversed(ctx context.Context, id, reversalID int64) error {
	entry, ok := r.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if entry.Status != EntryStatusPosted {
		return ErrAlreadyReversed
	}
	entry.Status = EntryStatusReversed
	return nil
}

func (r *memoryLedgerRepo) GetEntry(ctx context.Context, id int64) (JournalEntry, error) {
	return r.GetEntryForUpdate(ctx, id)
}

func (r *memoryLedgerRepo) ListEntries(ctx context.Context, from, to time.Time) ([]JournalEntry, error) {
	var out []JournalEntry
	for _, e := range r.entries {
		if !e.Date.Before(from) && !e.Date.After(to) {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, acc := range r.accounts {
		out = append(out, *acc)
	}
	return out, nil
}

func (r *memoryLedgerRepo) AccountMovements(ctx context.Context, asOf time.Time) ([]AccountMovement, error) {
	type agg struct {
		debit  decimal.Decimal
		credit decimal.Decimal
	}
	totals := make(map[int64]agg)
	for _, entry := range r.entries {
		if entry.Date.After(asOf) {
			continue
		}
		for _, line := range entry.Lines {
			t := totals[line.AccountID]
			if t.debit.IsZero() && t.credit.IsZero() {
				t = agg{debit: decimal.Zero, credit: decimal.Zero}
			}
			t.debit = t.debit.Add(line.Debit)
			t.credit = t.credit.Add(line.Credit)
			totals[line.AccountID] = t
		}
	}
	var out []AccountMovement
	for id, acc := range r.accounts {
		t := totals[id]
		if t.debit.IsZero() && t.credit.IsZero() {
			t = agg{debit: decimal.Zero, credit: decimal.Zero}
		}
		out = append(out, AccountMovement{
			Code:   acc.Code,
			Name:   acc.Name,
			Type:   acc.Type,
			Debit:  t.debit,
			Credit: t.credit,
		})
	}
	return out, nil
}

func (r *memoryLedgerRepo) IncomeTotals(ctx context.Context, from, to time.Time) (IncomeTotals, error) {
	totals := IncomeTotals{From: from, To: to, Revenue: decimal.Zero, Expense: decimal.Zero}
	for _, entry := range r.entries {
		if entry.Date.Before(from) || entry.Date.After(to) {
			continue
		}
		for _, line := range entry.Lines {
			acc, ok := r.accounts[line.AccountID]
			if !ok {
				continue
			}
			switch acc.Type {
			case AccountTypeRevenue:
				totals.Revenue = totals.Revenue.Add(line.Credit).Sub(line.Debit)
			case AccountTypeExpense:
				totals.Expense = totals.Expense.Add(line.Debit).Sub(line.Credit)
			}
		}
	}
	return totals, nil
}

type openGuard struct{}

func (openGuard) EnsureOpen(ctx context.Context, date time.Time) error { return nil }

type closedGuard struct{ before time.Time }

func (g closedGuard) EnsureOpen(ctx context.Context, date time.Time) error {
	if date.Before(g.before) {
		return ErrPeriodClosed
	}
	return nil
}

func amount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testAccounts() []Account {
	return []Account{
		{ID: 1, Code: "11.100", Name: "Bank", Type: AccountTypeAsset},
		{ID: 2, Code: "41.100", Name: "Rental Revenue", Type: AccountTypeRevenue},
		{ID: 3, Code: "51.100", Name: "Maintenance Expense", Type: AccountTypeExpense},
	}
}

func balancedPosting(date time.Time) PostingInput {
	return PostingInput{
		Date:         date,
		Memo:         "rent collection",
		SourceModule: "CONTRACTS",
		SourceID:     uuid.New(),
		PostedBy:     7,
		Lines: []PostingLineInput{
			{AccountID: 1, Debit: amount("1500.00")},
			{AccountID: 2, Credit: amount("1500.00")},
		},
	}
}

func TestPostEntryUpdatesBalances(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)

	entry, err := svc.PostEntry(context.Background(), balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Equal(t, EntryStatusPosted, entry.Status)
	require.Len(t, entry.Lines, 2)

	require.True(t, repo.accounts[1].Balance.Equal(amount("1500.00")), "bank balance: %s", repo.accounts[1].Balance)
	require.True(t, repo.accounts[2].Balance.Equal(amount("1500.00")), "revenue balance: %s", repo.accounts[2].Balance)
	require.EqualValues(t, 1, repo.accounts[1].Version)
}

func TestPostEntryRejectsUnbalanced(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)

	in := balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	in.Lines[1].Credit = amount("1499.99")
	_, err := svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
}

func TestPostEntryRejectsUnknownAccount(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)

	in := balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	in.Lines[0].AccountID = 99
	_, err := svc.PostEntry(context.Background(), in)
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Empty(t, repo.entries)
	require.True(t, repo.accounts[2].Balance.IsZero())
}

func TestPostEntryRejectsClosedPeriod(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, closedGuard{before: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}, nil)

	_, err := svc.PostEntry(context.Background(), balancedPosting(time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)))
	require.ErrorIs(t, err, ErrPeriodClosed)
	require.Empty(t, repo.entries)
}

func TestPostEntryRetriesVersionConflict(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	repo.failBalanceWrites = 2
	svc := NewService(repo, openGuard{}, nil)
	svc.WithRetryPolicy(retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, err := svc.PostEntry(context.Background(), balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.True(t, repo.accounts[1].Balance.Equal(amount("1500.00")))
}

func TestPostEntrySurfacesConflictWhenBudgetExhausted(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	repo.failBalanceWrites = 5
	svc := NewService(repo, openGuard{}, nil)
	svc.WithRetryPolicy(retry.Policy{MaxAttempts: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})

	_, err := svc.PostEntry(context.Background(), balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.ErrorIs(t, err, ErrVersionConflict)
	require.Empty(t, repo.entries)
}

func TestReverseEntryRestoresBalances(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)
	ctx := context.Background()
	date := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	entry, err := svc.PostEntry(ctx, balancedPosting(date))
	require.NoError(t, err)

	reversal, err := svc.ReverseEntry(ctx, ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.NoError(t, err)
	require.NotNil(t, reversal.ReversalOf)
	require.Equal(t, entry.ID, *reversal.ReversalOf)

	require.True(t, repo.accounts[1].Balance.IsZero(), "bank balance: %s", repo.accounts[1].Balance)
	require.True(t, repo.accounts[2].Balance.IsZero(), "revenue balance: %s", repo.accounts[2].Balance)
	require.Equal(t, EntryStatusReversed, repo.entries[entry.ID].Status)

	tb, err := svc.TrialBalance(ctx, date)
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func TestReverseEntryTwiceFails(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)
	ctx := context.Background()

	entry, err := svc.PostEntry(ctx, balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	_, err = svc.ReverseEntry(ctx, ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.NoError(t, err)
	_, err = svc.ReverseEntry(ctx, ReverseInput{EntryID: entry.ID, ActorID: 7})
	require.ErrorIs(t, err, ErrAlreadyReversed)
}

func TestReverseEntryNotFound(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)

	_, err := svc.ReverseEntry(context.Background(), ReverseInput{EntryID: 42, ActorID: 7})
	require.ErrorIs(t, err, ErrEntryNotFound)
}

func TestPostCommitHookFires(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)
	var seen []int64
	svc.WithPostCommitHook(func(entry JournalEntry) {
		seen = append(seen, entry.ID)
	})

	entry, err := svc.PostEntry(context.Background(), balancedPosting(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.Equal(t, []int64{entry.ID}, seen)
}
