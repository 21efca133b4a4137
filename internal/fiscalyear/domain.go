// Package fiscalyear owns the year lifecycle: opening balances, the
// closing computation with waqf corpus retention, and the rollover into
// the next year. A closed year is immutable and blocks further postings.
package fiscalyear

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// YearStatus enumerates the fiscal year lifecycle.
type YearStatus string

const (
	YearStatusOpen    YearStatus = "OPEN"
	YearStatusClosing YearStatus = "CLOSING"
	YearStatusClosed  YearStatus = "CLOSED"
)

// RetentionPolicy names the corpus rollover formula.
type RetentionPolicy string

const (
	// RetainFromClosingBalance computes the corpus as a percentage of the
	// closing balance and subtracts it from the next opening balance.
	RetainFromClosingBalance RetentionPolicy = "FROM_CLOSING_BALANCE"
	// RetainFromNetIncome applies the percentage to net income instead.
	RetainFromNetIncome RetentionPolicy = "FROM_NET_INCOME"
)

// Valid reports whether the policy is one of the named formulas.
func (p RetentionPolicy) Valid() bool {
	return p == RetainFromClosingBalance || p == RetainFromNetIncome
}

// FiscalYear is one accounting year. OpeningBalance is seeded at creation
// and overwritten by the previous year's rollover.
type FiscalYear struct {
	ID             int64
	Code           string
	StartDate      time.Time
	EndDate        time.Time
	Status         YearStatus
	OpeningBalance decimal.Decimal
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Contains reports whether the date falls inside the year.
func (y FiscalYear) Contains(date time.Time) bool {
	return !date.Before(y.StartDate) && !date.After(y.EndDate)
}

// Closing is the immutable result of closing a fiscal year. Exactly one
// non-cancelled closing exists per year; the repository enforces it.
type Closing struct {
	ID                 int64
	FiscalYearID       int64
	OpeningBalance     decimal.Decimal
	NetIncome          decimal.Decimal
	ClosingBalance     decimal.Decimal
	WaqfCorpus         decimal.Decimal
	NextOpeningBalance decimal.Decimal
	RetentionPct       decimal.Decimal
	Policy             RetentionPolicy
	IsClosed           bool
	ClosedBy           int64
	ClosedAt           time.Time
}

// CreateYearInput carries parameters for a new fiscal year.
type CreateYearInput struct {
	Code           string
	StartDate      time.Time
	EndDate        time.Time
	OpeningBalance decimal.Decimal
	ActorID        int64
}

// Validate ensures the new year is coherent.
func (in CreateYearInput) Validate() error {
	if strings.TrimSpace(in.Code) == "" {
		return errors.New("fiscalyear: code required")
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		return errors.New("fiscalyear: start and end date required")
	}
	if in.StartDate.After(in.EndDate) {
		return errors.New("fiscalyear: start date after end date")
	}
	if in.ActorID == 0 {
		return errors.New("fiscalyear: actor required")
	}
	return nil
}

// CloseInput carries parameters for closing a year.
type CloseInput struct {
	FiscalYearID int64
	RetentionPct decimal.Decimal
	ActorID      int64
}

// Validate rejects malformed close requests.
func (in CloseInput) Validate() error {
	if in.FiscalYearID == 0 {
		return errors.New("fiscalyear: fiscal year id required")
	}
	if in.RetentionPct.IsNegative() || in.RetentionPct.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: retention percentage outside [0,100]", ErrValidation)
	}
	if in.ActorID == 0 {
		return errors.New("fiscalyear: actor required")
	}
	return nil
}

var hundred = decimal.NewFromInt(100)

// ComputeClosing applies the retention policy. Amounts are truncated to
// the minor unit so the rollover identity holds exactly:
// nextOpening + corpus == closingBalance (under RetainFromClosingBalance).
func ComputeClosing(policy RetentionPolicy, opening, revenue, expense, retentionPct decimal.Decimal) Closing {
	net := revenue.Sub(expense)
	closing := opening.Add(net)
	var corpus decimal.Decimal
	switch policy {
	case RetainFromNetIncome:
		corpus = net.Mul(retentionPct).Div(hundred).RoundDown(2)
	default:
		corpus = closing.Mul(retentionPct).Div(hundred).RoundDown(2)
	}
	if corpus.IsNegative() {
		corpus = decimal.Zero
	}
	return Closing{
		OpeningBalance:     opening,
		NetIncome:          net,
		ClosingBalance:     closing,
		WaqfCorpus:         corpus,
		NextOpeningBalance: closing.Sub(corpus),
		RetentionPct:       retentionPct,
		Policy:             policy,
		IsClosed:           true,
	}
}

var (
	// ErrNotFound indicates a missing fiscal year.
	ErrNotFound = errors.New("fiscalyear: not found")
	// ErrAlreadyClosed indicates the year already has a closing.
	ErrAlreadyClosed = errors.New("fiscalyear: already closed")
	// ErrPendingDistributions indicates distributions in the year still
	// await approval.
	ErrPendingDistributions = errors.New("fiscalyear: distributions pending approval")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("fiscalyear: invalid input")
	// ErrYearOverlap indicates the requested range conflicts with an
	// existing year.
	ErrYearOverlap = errors.New("fiscalyear: range overlaps existing year")
)
