// Package aging partitions outstanding receivables into overdue age
// buckets per debtor. The report is derived on demand and never persisted.
package aging

import (
	"time"

	"github.com/shopspring/decimal"
)

// Due is one unpaid receivable: a tenant rent, a pledged donation, any
// amount owed to the waqf. Outstanding is Amount minus Paid.
type Due struct {
	ID         int64
	DebtorID   int64
	DebtorName string
	Amount     decimal.Decimal
	Paid       decimal.Decimal
	DueDate    time.Time
}

// Outstanding returns the unpaid remainder.
func (d Due) Outstanding() decimal.Decimal {
	return d.Amount.Sub(d.Paid)
}

// BucketSet partitions an outstanding balance by days overdue.
type BucketSet struct {
	Current     decimal.Decimal
	Days31to60  decimal.Decimal
	Days61to90  decimal.Decimal
	Days91to120 decimal.Decimal
	Over120     decimal.Decimal
}

func zeroBuckets() BucketSet {
	return BucketSet{
		Current:     decimal.Zero,
		Days31to60:  decimal.Zero,
		Days61to90:  decimal.Zero,
		Days91to120: decimal.Zero,
		Over120:     decimal.Zero,
	}
}

// Sum returns the total across all buckets.
func (b BucketSet) Sum() decimal.Decimal {
	return b.Current.Add(b.Days31to60).Add(b.Days61to90).Add(b.Days91to120).Add(b.Over120)
}

func (b *BucketSet) add(daysOverdue int, amount decimal.Decimal) {
	switch {
	case daysOverdue <= 30:
		b.Current = b.Current.Add(amount)
	case daysOverdue <= 60:
		b.Days31to60 = b.Days31to60.Add(amount)
	case daysOverdue <= 90:
		b.Days61to90 = b.Days61to90.Add(amount)
	case daysOverdue <= 120:
		b.Days91to120 = b.Days91to120.Add(amount)
	default:
		b.Over120 = b.Over120.Add(amount)
	}
}

// DebtorAging is one debtor's row in the report. The bucket sum equals
// Outstanding exactly.
type DebtorAging struct {
	DebtorID    int64
	DebtorName  string
	Buckets     BucketSet
	Outstanding decimal.Decimal
}

// Report is the full aging report as of a date, with a grand total row.
type Report struct {
	AsOf  time.Time
	Rows  []DebtorAging
	Total BucketSet
}
