// Package distribution computes and executes periodic revenue
// distributions: the nazer and charity shares come off the top, and the
// remainder is allocated across beneficiaries with zero rounding leftover.
package distribution

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enumerates the distribution lifecycle.
type Status string

const (
	StatusDraft           Status = "DRAFT"
	StatusPendingApproval Status = "PENDING_APPROVAL"
	StatusApproved        Status = "APPROVED"
	StatusExecuted        Status = "EXECUTED"
	StatusRejected        Status = "REJECTED"
	StatusCancelled       Status = "CANCELLED"
)

// Distribution models one period's revenue split. The invariant holds at
// every stage: TotalRevenue == NazerShare + CharityShare + sum(detail
// amounts) + HeldAmount, exactly.
type Distribution struct {
	ID             uuid.UUID
	PeriodStart    time.Time
	PeriodEnd      time.Time
	TotalRevenue   decimal.Decimal
	NazerPct       decimal.Decimal
	CharityPct     decimal.Decimal
	NazerShare     decimal.Decimal
	CharityShare   decimal.Decimal
	Distributable  decimal.Decimal
	HeldAmount     decimal.Decimal
	Status         Status
	JournalEntryID *int64
	CreatedBy      int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Details        []Detail
}

// Detail is one beneficiary's allocated amount.
type Detail struct {
	ID             int64
	DistributionID uuid.UUID
	BeneficiaryID  int64
	Name           string
	IBAN           string
	Weight         decimal.Decimal
	Amount         decimal.Decimal
}

// Beneficiary is the view of the registry this module needs: a weight for
// proportional allocation and payout coordinates.
type Beneficiary struct {
	ID     int64
	Name   string
	IBAN   string
	Weight decimal.Decimal
}

// CalculateInput carries the parameters of a distribution run.
type CalculateInput struct {
	PeriodStart  time.Time
	PeriodEnd    time.Time
	TotalRevenue decimal.Decimal
	NazerPct     decimal.Decimal
	CharityPct   decimal.Decimal
	ActorID      int64
}

// Validate rejects malformed runs before any computation happens.
func (in CalculateInput) Validate() error {
	if in.PeriodStart.IsZero() || in.PeriodEnd.IsZero() {
		return errors.New("distribution: period start and end required")
	}
	if in.PeriodStart.After(in.PeriodEnd) {
		return errors.New("distribution: period start after end")
	}
	if in.TotalRevenue.IsNegative() {
		return fmt.Errorf("%w: negative revenue", ErrValidation)
	}
	if !in.TotalRevenue.Equal(in.TotalRevenue.Round(2)) {
		return fmt.Errorf("%w: revenue below minor currency unit", ErrValidation)
	}
	if in.NazerPct.IsNegative() || in.CharityPct.IsNegative() {
		return fmt.Errorf("%w: negative share percentage", ErrValidation)
	}
	if in.NazerPct.Add(in.CharityPct).GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("%w: nazer and charity shares exceed 100%%", ErrValidation)
	}
	if in.ActorID == 0 {
		return errors.New("distribution: actor required")
	}
	return nil
}

var (
	// ErrValidation indicates malformed calculation input.
	ErrValidation = errors.New("distribution: invalid input")
	// ErrNotFound indicates a missing distribution.
	ErrNotFound = errors.New("distribution: not found")
	// ErrInvalidStatus indicates the lifecycle transition is not allowed.
	ErrInvalidStatus = errors.New("distribution: invalid status transition")
	// ErrNoWeights indicates every beneficiary carries zero weight.
	ErrNoWeights = errors.New("distribution: beneficiary weights sum to zero")
)
