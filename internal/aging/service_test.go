package aging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func mustDate(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

type staticDues []Due

func (s staticDues) ListOutstandingDues(ctx context.Context, asOf time.Time) ([]Due, error) {
	return s, nil
}

func TestComputeAgingSingleOverdueInvoice(t *testing.T) {
	asOf := mustDate("2025-06-15")
	// due 45 days before asOf
	dues := staticDues{{ID: 1, DebtorID: 7, DebtorName: "Shop 12", Amount: dec("10000"), Paid: decimal.Zero, DueDate: mustDate("2025-05-01")}}
	svc := NewService(dues)

	report, err := svc.ComputeAging(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)

	row := report.Rows[0]
	require.True(t, row.Buckets.Days31to60.Equal(dec("10000")), "31-60 bucket: %s", row.Buckets.Days31to60)
	require.True(t, row.Buckets.Current.IsZero())
	require.True(t, row.Buckets.Days61to90.IsZero())
	require.True(t, row.Buckets.Sum().Equal(row.Outstanding))
}

func TestComputeAgingBucketBoundaries(t *testing.T) {
	asOf := mustDate("2025-06-15")
	cases := []struct {
		days   int
		bucket string
	}{
		{0, "current"},
		{30, "current"},
		{31, "31-60"},
		{60, "31-60"},
		{61, "61-90"},
		{90, "61-90"},
		{91, "91-120"},
		{120, "91-120"},
		{121, "over-120"},
		{400, "over-120"},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("days=%d", tc.days), func(t *testing.T) {
			due := Due{ID: 1, DebtorID: 1, DebtorName: "D", Amount: dec("100"), Paid: decimal.Zero,
				DueDate: asOf.AddDate(0, 0, -tc.days)}
			svc := NewService(staticDues{due})
			report, err := svc.ComputeAging(context.Background(), asOf)
			require.NoError(t, err)
			b := report.Rows[0].Buckets
			got := map[string]decimal.Decimal{
				"current":  b.Current,
				"31-60":    b.Days31to60,
				"61-90":    b.Days61to90,
				"91-120":   b.Days91to120,
				"over-120": b.Over120,
			}
			for name, amount := range got {
				if name == tc.bucket {
					require.True(t, amount.Equal(dec("100")), "expected %s in %s", amount, name)
				} else {
					require.True(t, amount.IsZero(), "unexpected amount in %s", name)
				}
			}
		})
	}
}

func TestComputeAgingPerDebtorAndGrandTotal(t *testing.T) {
	asOf := mustDate("2025-06-15")
	dues := staticDues{
		{ID: 1, DebtorID: 1, DebtorName: "Shop 12", Amount: dec("1000.50"), Paid: dec("200.50"), DueDate: mustDate("2025-06-10")},
		{ID: 2, DebtorID: 1, DebtorName: "Shop 12", Amount: dec("5000"), Paid: decimal.Zero, DueDate: mustDate("2025-01-01")},
		{ID: 3, DebtorID: 2, DebtorName: "Shop 9", Amount: dec("750.25"), Paid: decimal.Zero, DueDate: mustDate("2025-04-20")},
		// fully paid dues never appear
		{ID: 4, DebtorID: 3, DebtorName: "Shop 1", Amount: dec("100"), Paid: dec("100"), DueDate: mustDate("2025-01-01")},
	}
	svc := NewService(dues)

	report, err := svc.ComputeAging(context.Background(), asOf)
	require.NoError(t, err)
	require.Len(t, report.Rows, 2)

	for _, row := range report.Rows {
		require.True(t, row.Buckets.Sum().Equal(row.Outstanding), "debtor %d bucket drift", row.DebtorID)
	}

	first := report.Rows[0]
	require.Equal(t, int64(1), first.DebtorID)
	require.True(t, first.Buckets.Current.Equal(dec("800")), "current: %s", first.Buckets.Current)
	require.True(t, first.Buckets.Over120.Equal(dec("5000")), "over-120: %s", first.Buckets.Over120)

	second := report.Rows[1]
	require.True(t, second.Buckets.Days31to60.Equal(dec("750.25")))

	require.True(t, report.Total.Sum().Equal(dec("6550.25")), "grand total: %s", report.Total.Sum())
}

func TestComputeAgingFutureDueIsCurrent(t *testing.T) {
	asOf := mustDate("2025-06-15")
	dues := staticDues{{ID: 1, DebtorID: 1, DebtorName: "D", Amount: dec("300"), Paid: decimal.Zero, DueDate: mustDate("2025-09-01")}}
	svc := NewService(dues)

	report, err := svc.ComputeAging(context.Background(), asOf)
	require.NoError(t, err)
	require.True(t, report.Rows[0].Buckets.Current.Equal(dec("300")))
}
