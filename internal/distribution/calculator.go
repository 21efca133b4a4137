package distribution

import (
	"sort"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// minorUnit is the smallest currency step handed out during remainder
// distribution.
var minorUnit = decimal.New(1, -2)

// Shares is the result of splitting a period's revenue.
type Shares struct {
	NazerShare    decimal.Decimal
	CharityShare  decimal.Decimal
	Distributable decimal.Decimal
	Allocations   []decimal.Decimal
	HeldAmount    decimal.Decimal
}

// ComputeShares splits totalRevenue into the nazer share, the charity
// share, and per-beneficiary allocations. Top shares are truncated to the
// minor unit so the distributable remainder absorbs any residue and the
// identity revenue == nazer + charity + sum(allocations) + held is exact.
// With no beneficiaries the whole distributable is held pending, never
// discarded.
func ComputeShares(totalRevenue, nazerPct, charityPct decimal.Decimal, beneficiaries []Beneficiary) (Shares, error) {
	nazerShare := totalRevenue.Mul(nazerPct).Div(hundred).RoundDown(2)
	charityShare := totalRevenue.Mul(charityPct).Div(hundred).RoundDown(2)
	distributable := totalRevenue.Sub(nazerShare).Sub(charityShare)

	out := Shares{
		NazerShare:    nazerShare,
		CharityShare:  charityShare,
		Distributable: distributable,
		HeldAmount:    decimal.Zero,
	}
	if len(beneficiaries) == 0 {
		out.HeldAmount = distributable
		return out, nil
	}
	allocations, err := allocate(distributable, beneficiaries)
	if err != nil {
		return Shares{}, err
	}
	out.Allocations = allocations
	return out, nil
}

// allocate divides total across beneficiaries proportional to weight using
// the largest-remainder method: exact proportional shares are truncated to
// the minor unit, then the leftover is handed out one unit at a time to
// the largest fractional remainders. Ties keep beneficiary list order, so
// the result is deterministic.
func allocate(total decimal.Decimal, beneficiaries []Beneficiary) ([]decimal.Decimal, error) {
	weightSum := decimal.Zero
	for _, b := range beneficiaries {
		weightSum = weightSum.Add(b.Weight)
	}
	if !weightSum.IsPositive() {
		return nil, ErrNoWeights
	}

	type remainder struct {
		index int
		frac  decimal.Decimal
	}
	allocations := make([]decimal.Decimal, len(beneficiaries))
	remainders := make([]remainder, len(beneficiaries))
	allocated := decimal.Zero
	for i, b := range beneficiaries {
		exact := total.Mul(b.Weight).Div(weightSum)
		truncated := exact.RoundDown(2)
		allocations[i] = truncated
		remainders[i] = remainder{index: i, frac: exact.Sub(truncated)}
		allocated = allocated.Add(truncated)
	}

	leftover := total.Sub(allocated)
	sort.SliceStable(remainders, func(i, j int) bool {
		return remainders[i].frac.GreaterThan(remainders[j].frac)
	})
	for i := 0; leftover.IsPositive(); i = (i + 1) % len(remainders) {
		idx := remainders[i].index
		allocations[idx] = allocations[idx].Add(minorUnit)
		leftover = leftover.Sub(minorUnit)
	}
	return allocations, nil
}
