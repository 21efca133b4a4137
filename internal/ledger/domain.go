// Package ledger implements the double-entry core: chart of accounts,
// balanced journal posting, reversal, and the trial balance.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalSide is the side on which an account naturally increases.
type NormalSide string

const (
	SideDebit  NormalSide = "DEBIT"
	SideCredit NormalSide = "CREDIT"
)

// NaturalSide returns the normal balance side for an account type.
func (t AccountType) NaturalSide() NormalSide {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return SideDebit
	default:
		return SideCredit
	}
}

// EntryStatus enumerates journal lifecycle values.
type EntryStatus string

const (
	EntryStatusDraft    EntryStatus = "DRAFT"
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// Account models a chart of accounts node. Balance carries the running
// balance on the account's natural side and is mutated only by posted
// entries. Version is the optimistic concurrency stamp checked and
// incremented on every balance write.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Side      NormalSide
	Balance   decimal.Decimal
	Version   int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// JournalEntry captures posting metadata. Immutable once posted except via
// a reversing entry.
type JournalEntry struct {
	ID           int64
	Number       int64
	Date         time.Time
	Memo         string
	SourceModule string
	SourceID     uuid.UUID
	Status       EntryStatus
	ReversalOf   *int64
	PostedBy     int64
	PostedAt     time.Time
	Lines        []JournalLine
}

// JournalLine stores a debit or credit amount for an account. Exactly one
// of Debit/Credit is non-zero.
type JournalLine struct {
	ID        int64
	JournalID int64
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingLineInput describes a journal line in a posting request.
type PostingLineInput struct {
	AccountID int64
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	Date         time.Time
	Memo         string
	SourceModule string
	SourceID     uuid.UUID
	PostedBy     int64
	Lines        []PostingLineInput
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	EntryID int64
	ActorID int64
	Memo    string
	Date    *time.Time
}

// BalanceUpdate carries an optimistic balance write for one account.
type BalanceUpdate struct {
	AccountID       int64
	ExpectedVersion int64
	NewBalance      decimal.Decimal
}

var (
	// ErrUnbalanced indicates debit != credit across entry lines.
	ErrUnbalanced = errors.New("ledger: journal lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: journal requires at least two lines")
	// ErrAccountNotFound indicates a line references a missing account.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrEntryNotFound indicates a missing journal entry.
	ErrEntryNotFound = errors.New("ledger: journal entry not found")
	// ErrAlreadyReversed indicates the entry was reversed before.
	ErrAlreadyReversed = errors.New("ledger: journal entry already reversed")
	// ErrPeriodClosed indicates the posting date falls in a closed fiscal year.
	ErrPeriodClosed = errors.New("ledger: period is closed for posting")
	// ErrVersionConflict indicates an optimistic balance write lost a race.
	// Callers may retry; PostEntry retries internally within its budget.
	ErrVersionConflict = errors.New("ledger: account version conflict")
	// ErrOutOfBalance indicates the trial balance self-check failed.
	ErrOutOfBalance = errors.New("ledger: global debits do not equal credits")
)

// Validate ensures the posting input meets structural criteria: at least
// two one-sided lines with non-negative amounts at minor-unit precision,
// and total debits equal to total credits exactly.
func (in PostingInput) Validate() error {
	if in.Date.IsZero() {
		return errors.New("ledger: posting date required")
	}
	if strings.TrimSpace(in.SourceModule) == "" {
		return errors.New("ledger: source module required")
	}
	if in.SourceID == uuid.Nil {
		return errors.New("ledger: source id required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	debit := decimal.Zero
	credit := decimal.Zero
	for idx, line := range in.Lines {
		if line.AccountID == 0 {
			return fmt.Errorf("ledger: line %d missing account", idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("ledger: line %d negative amount", idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("ledger: line %d cannot be both debit and credit", idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("ledger: line %d has no amount", idx)
		}
		if !line.Debit.Equal(line.Debit.Round(2)) || !line.Credit.Equal(line.Credit.Round(2)) {
			return fmt.Errorf("ledger: line %d amount below minor currency unit", idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return ErrUnbalanced
	}
	return nil
}

// Delta returns the signed balance movement a line causes on an account
// with the given natural side.
func (l PostingLineInput) Delta(side NormalSide) decimal.Decimal {
	if side == SideDebit {
		return l.Debit.Sub(l.Credit)
	}
	return l.Credit.Sub(l.Debit)
}
