package distribution

import (
	"fmt"
	"testing"

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

func equalWeightBeneficiaries(n int) []Beneficiary {
	out := make([]Beneficiary, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Beneficiary{ID: int64(i + 1), Name: fmt.Sprintf("B%d", i+1), Weight: decimal.NewFromInt(1)})
	}
	return out
}

func TestComputeSharesExactSplit(t *testing.T) {
	for _, n := range []int{1, 7, 13, 100} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			shares, err := ComputeShares(dec("1000000"), dec("10"), dec("5"), equalWeightBeneficiaries(n))
			require.NoError(t, err)

			require.True(t, shares.NazerShare.Equal(dec("100000")), "nazer: %s", shares.NazerShare)
			require.True(t, shares.CharityShare.Equal(dec("50000")), "charity: %s", shares.CharityShare)
			require.True(t, shares.Distributable.Equal(dec("850000")), "distributable: %s", shares.Distributable)

			sum := decimal.Zero
			for _, a := range shares.Allocations {
				require.False(t, a.IsNegative())
				sum = sum.Add(a)
			}
			require.True(t, sum.Equal(dec("850000")), "n=%d sum=%s", n, sum)
		})
	}
}

func TestComputeSharesLargestRemainder(t *testing.T) {
	// 100.00 across three equal weights: 33.33 each leaves 0.01 for the
	// largest fractional remainder; ties keep list order.
	shares, err := ComputeShares(dec("100"), decimal.Zero, decimal.Zero, equalWeightBeneficiaries(3))
	require.NoError(t, err)
	require.True(t, shares.Allocations[0].Equal(dec("33.34")), "first: %s", shares.Allocations[0])
	require.True(t, shares.Allocations[1].Equal(dec("33.33")))
	require.True(t, shares.Allocations[2].Equal(dec("33.33")))
}

func TestComputeSharesWeighted(t *testing.T) {
	beneficiaries := []Beneficiary{
		{ID: 1, Weight: dec("2")},
		{ID: 2, Weight: dec("1")},
		{ID: 3, Weight: dec("1")},
	}
	shares, err := ComputeShares(dec("1000"), decimal.Zero, decimal.Zero, beneficiaries)
	require.NoError(t, err)
	require.True(t, shares.Allocations[0].Equal(dec("500")))
	require.True(t, shares.Allocations[1].Equal(dec("250")))
	require.True(t, shares.Allocations[2].Equal(dec("250")))
}

func TestComputeSharesNoBeneficiariesHoldsDistributable(t *testing.T) {
	shares, err := ComputeShares(dec("1000"), dec("10"), dec("5"), nil)
	require.NoError(t, err)
	require.True(t, shares.HeldAmount.Equal(dec("850")), "held: %s", shares.HeldAmount)
	require.Empty(t, shares.Allocations)
}

func TestComputeSharesZeroWeights(t *testing.T) {
	_, err := ComputeShares(dec("1000"), decimal.Zero, decimal.Zero, []Beneficiary{
		{ID: 1, Weight: decimal.Zero},
		{ID: 2, Weight: decimal.Zero},
	})
	require.ErrorIs(t, err, ErrNoWeights)
}

func TestComputeSharesDeterministic(t *testing.T) {
	beneficiaries := equalWeightBeneficiaries(7)
	first, err := ComputeShares(dec("999.97"), dec("3.5"), dec("1.25"), beneficiaries)
	require.NoError(t, err)
	second, err := ComputeShares(dec("999.97"), dec("3.5"), dec("1.25"), beneficiaries)
	require.NoError(t, err)
	require.Equal(t, len(first.Allocations), len(second.Allocations))
	for i := range first.Allocations {
		require.True(t, first.Allocations[i].Equal(second.Allocations[i]))
	}
}

func TestCalculateInputValidate(t *testing.T) {
	base := CalculateInput{
		PeriodStart:  mustDate("2025-01-01"),
		PeriodEnd:    mustDate("2025-03-31"),
		TotalRevenue: dec("100"),
		NazerPct:     dec("10"),
		CharityPct:   dec("5"),
		ActorID:      1,
	}
	require.NoError(t, base.Validate())

	negative := base
	negative.TotalRevenue = dec("-1")
	require.ErrorIs(t, negative.Validate(), ErrValidation)

	over := base
	over.NazerPct = dec("60")
	over.CharityPct = dec("41")
	require.ErrorIs(t, over.Validate(), ErrValidation)

	// Fractions of a cent would make the remainder hand-out overshoot the
	// distributable and break the exact-sum identity.
	subCent := base
	subCent.TotalRevenue = dec("100.005")
	require.ErrorIs(t, subCent.Validate(), ErrValidation)
}

func TestComputeSharesMinorUnitRevenueStaysExact(t *testing.T) {
	shares, err := ComputeShares(dec("100.01"), dec("0"), dec("0"), equalWeightBeneficiaries(3))
	require.NoError(t, err)

	sum := decimal.Zero
	for _, a := range shares.Allocations {
		sum = sum.Add(a)
	}
	require.True(t, sum.Equal(shares.Distributable), "sum %s distributable %s", sum, shares.Distributable)
}
