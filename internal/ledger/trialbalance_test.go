package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestBuildTrialBalanceGroupsByCodePrefix(t *testing.T) {
	asOf := time.Date(2025, 6, 30, 0, 0, 0, 0, time.UTC)
	movements := []AccountMovement{
		{Code: "11.200", Name: "Cash", Type: AccountTypeAsset, Debit: amount("250.00"), Credit: amount("0")},
		{Code: "11.100", Name: "Bank", Type: AccountTypeAsset, Debit: amount("1000.00"), Credit: amount("0")},
		{Code: "41.100", Name: "Rental Revenue", Type: AccountTypeRevenue, Debit: amount("0"), Credit: amount("1250.00")},
	}

	tb := BuildTrialBalance(asOf, movements)

	require.Len(t, tb.Groups, 2)
	require.Equal(t, "11", tb.Groups[0].Key)
	require.Equal(t, "41", tb.Groups[1].Key)
	require.Equal(t, "11.100", tb.Groups[0].Rows[0].Code)
	require.Equal(t, "11.200", tb.Groups[0].Rows[1].Code)
	require.True(t, tb.Groups[0].Debit.Equal(amount("1250.00")))
	require.True(t, tb.TotalDebit.Equal(tb.TotalCredit))
}

func TestTrialBalanceExcludesEntriesAfterCutoff(t *testing.T) {
	repo := newMemoryLedgerRepo(testAccounts()...)
	svc := NewService(repo, openGuard{}, nil)

	_, err := svc.PostEntry(context.Background(), balancedPosting(time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, err = svc.PostEntry(context.Background(), balancedPosting(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	tb, err := svc.TrialBalance(context.Background(), time.Date(2025, 1, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(amount("1500.00")), "february posting must not leak into january: %s", tb.TotalDebit)
	require.True(t, tb.TotalCredit.Equal(amount("1500.00")))

	tb, err = svc.TrialBalance(context.Background(), time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, tb.TotalDebit.Equal(amount("3000.00")))
}

type corruptMovementsRepo struct {
	*memoryLedgerRepo
}

func (r corruptMovementsRepo) AccountMovements(ctx context.Context, asOf time.Time) ([]AccountMovement, error) {
	return []AccountMovement{
		{Code: "11.100", Name: "Bank", Type: AccountTypeAsset, Debit: amount("100.00"), Credit: decimal.Zero},
		{Code: "41.100", Name: "Rental Revenue", Type: AccountTypeRevenue, Debit: decimal.Zero, Credit: amount("99.00")},
	}, nil
}

func TestTrialBalanceSelfCheck(t *testing.T) {
	repo := corruptMovementsRepo{newMemoryLedgerRepo(testAccounts()...)}
	svc := NewService(repo, openGuard{}, nil)

	_, err := svc.TrialBalance(context.Background(), time.Now())
	require.ErrorIs(t, err, ErrOutOfBalance)
}
