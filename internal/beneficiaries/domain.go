// Package beneficiaries holds the registry the distribution calculator
// allocates against: who receives a share, with what weight, and where
// the payout goes.
package beneficiaries

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Beneficiary is one registered recipient.
type Beneficiary struct {
	ID        int64
	Name      string
	Category  string
	IBAN      string
	Weight    decimal.Decimal
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UpsertInput carries creation and update parameters.
type UpsertInput struct {
	Name     string
	Category string
	IBAN     string
	Weight   decimal.Decimal
	ActorID  int64
}

// Validate rejects malformed registry entries.
func (in UpsertInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name required", ErrValidation)
	}
	if strings.TrimSpace(in.IBAN) == "" {
		return fmt.Errorf("%w: iban required", ErrValidation)
	}
	if in.Weight.IsNegative() {
		return fmt.Errorf("%w: negative weight", ErrValidation)
	}
	if in.ActorID == 0 {
		return errors.New("beneficiaries: actor required")
	}
	return nil
}

var (
	// ErrNotFound indicates a missing beneficiary.
	ErrNotFound = errors.New("beneficiaries: not found")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("beneficiaries: invalid input")
)
