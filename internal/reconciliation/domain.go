// Package reconciliation matches imported bank transactions against
// posted journal entries. Auto-matching is advisory and read-only; only
// a manual (or worker auto-accept) confirmation persists a match.
package reconciliation

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// MatchType distinguishes confirmed matches by origin.
type MatchType string

const (
	MatchTypeAuto   MatchType = "AUTO"
	MatchTypeManual MatchType = "MANUAL"
)

// BankTransaction is one imported statement line.
type BankTransaction struct {
	ID          int64
	StatementID int64
	Date        time.Time
	Amount      decimal.Decimal
	Reference   string
	Matched     bool
	CreatedAt   time.Time
}

// Match links a bank transaction to a journal entry. Each side
// participates in at most one active match; the repository's uniqueness
// constraints are the authoritative guard.
type Match struct {
	ID                int64
	BankTransactionID int64
	JournalEntryID    int64
	Type              MatchType
	Confidence        float64
	Notes             string
	MatchedBy         int64
	MatchedAt         time.Time
}

// CandidateEntry is the slice of a posted journal entry the scorer needs.
type CandidateEntry struct {
	ID     int64
	Date   time.Time
	Amount decimal.Decimal
	Memo   string
}

// Suggestion is one ranked auto-match proposal. Suggestions never mutate
// state.
type Suggestion struct {
	BankTransactionID int64
	JournalEntryID    int64
	EntryDate         time.Time
	Score             float64
}

// ManualMatchInput carries a manual confirmation.
type ManualMatchInput struct {
	BankTransactionID int64
	JournalEntryID    int64
	Notes             string
	ActorID           int64
}

// Validate rejects malformed confirmations.
func (in ManualMatchInput) Validate() error {
	if in.BankTransactionID == 0 || in.JournalEntryID == 0 {
		return errors.New("reconciliation: bank transaction and journal entry required")
	}
	if in.ActorID == 0 {
		return errors.New("reconciliation: actor required")
	}
	return nil
}

// Config tunes the matcher.
type Config struct {
	// WindowDays is the half-width of the date search window.
	WindowDays int
	// Floor is the minimum score a suggestion must reach.
	Floor float64
	// AutoAcceptThreshold is used only by the background scan; suggestions
	// below it stay advisory.
	AutoAcceptThreshold float64
}

// DefaultConfig returns the matcher defaults.
func DefaultConfig() Config {
	return Config{WindowDays: 5, Floor: 0.5, AutoAcceptThreshold: 0.95}
}

var (
	// ErrNotFound indicates a missing bank transaction or statement.
	ErrNotFound = errors.New("reconciliation: not found")
	// ErrDuplicateMatch indicates one side already has an active match.
	ErrDuplicateMatch = errors.New("reconciliation: already matched")
	// ErrPairLocked indicates another caller is matching the same pair.
	ErrPairLocked = errors.New("reconciliation: pair locked by another caller")
)
