package ledger

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountMovement is the per-account aggregation of postings up to a date.
type AccountMovement struct {
	Code   string
	Name   string
	Type   AccountType
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// GroupKey returns the key used for grouping trial balance rows.
func (m AccountMovement) GroupKey() string {
	if idx := strings.Index(m.Code, "."); idx > 0 {
		return m.Code[:idx]
	}
	if len(m.Code) >= 2 {
		return m.Code[:2]
	}
	return m.Code
}

// TrialBalanceRow is one account inside a trial balance group.
type TrialBalanceRow struct {
	Code   string
	Name   string
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// TrialBalanceGroup aggregates rows sharing a code prefix.
type TrialBalanceGroup struct {
	Key    string
	Rows   []TrialBalanceRow
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// TrialBalance is the balance-by-account listing as of a date. Its totals
// double as an internal consistency assertion over the whole ledger.
type TrialBalance struct {
	AsOf        time.Time
	Groups      []TrialBalanceGroup
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
}

// IncomeTotals sums revenue and expense postings inside a period.
type IncomeTotals struct {
	From    time.Time
	To      time.Time
	Revenue decimal.Decimal
	Expense decimal.Decimal
}

// Net returns revenue minus expense.
func (t IncomeTotals) Net() decimal.Decimal {
	return t.Revenue.Sub(t.Expense)
}

// IncomeTotals aggregates posted revenue and expense lines dated inside
// [from, to]. Reversals cancel out because both sides of the pair land in
// the sum.
func (s *Service) IncomeTotals(ctx context.Context, from, to time.Time) (IncomeTotals, error) {
	return s.repo.IncomeTotals(ctx, from, to)
}

// TrialBalance aggregates postings up to asOf per account and asserts that
// global debits equal global credits. A violation returns ErrOutOfBalance:
// it means the ledger itself is corrupt, not merely the report.
func (s *Service) TrialBalance(ctx context.Context, asOf time.Time) (TrialBalance, error) {
	movements, err := s.repo.AccountMovements(ctx, asOf)
	if err != nil {
		return TrialBalance{}, err
	}
	tb := BuildTrialBalance(asOf, movements)
	if !tb.TotalDebit.Equal(tb.TotalCredit) {
		return TrialBalance{}, ErrOutOfBalance
	}
	return tb, nil
}

// BuildTrialBalance converts account movements into grouped trial balance
// data ordered by code.
func BuildTrialBalance(asOf time.Time, movements []AccountMovement) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	for _, mov := range movements {
		key := mov.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		row := TrialBalanceRow{
			Code:   mov.Code,
			Name:   mov.Name,
			Debit:  mov.Debit,
			Credit: mov.Credit,
		}
		grp.Rows = append(grp.Rows, row)
		grp.Debit = grp.Debit.Add(row.Debit)
		grp.Credit = grp.Credit.Add(row.Credit)
	}

	sort.Strings(keys)
	result := TrialBalance{AsOf: asOf, TotalDebit: decimal.Zero, TotalCredit: decimal.Zero}
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Rows, func(i, j int) bool {
			return grp.Rows[i].Code < grp.Rows[j].Code
		})
		result.Groups = append(result.Groups, *grp)
		result.TotalDebit = result.TotalDebit.Add(grp.Debit)
		result.TotalCredit = result.TotalCredit.Add(grp.Credit)
	}
	return result
}
