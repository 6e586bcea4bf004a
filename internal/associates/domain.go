// Package associates manages the credit lines of loan officers who distribute loans.
package associates

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/shared"
)

// Associate is a loan officer with a revolving credit line.
type Associate struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	CreditUsed  decimal.Decimal `json:"credit_used"`
	IsActive    bool            `json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Available is the unreserved part of the credit line.
func (a Associate) Available() decimal.Decimal {
	return a.CreditLimit.Sub(a.CreditUsed)
}

// CanReserve checks the associate can back a new loan of amount.
func (a Associate) CanReserve(amount decimal.Decimal) error {
	if !a.IsActive {
		return shared.PreconditionFailed("associate %d is inactive", a.ID)
	}
	if amount.GreaterThan(a.Available()) {
		return shared.PreconditionFailed("associate %d has insufficient credit: available %s, requested %s",
			a.ID, a.Available().StringFixed(2), amount.StringFixed(2))
	}
	return nil
}

// CreateInput registers a new associate.
type CreateInput struct {
	Name        string
	CreditLimit decimal.Decimal
	ActorID     int64
}

// Validate ensures the input is usable.
func (in CreateInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return shared.Invalid("name", "required")
	}
	if in.CreditLimit.IsNegative() {
		return shared.Invalid("credit_limit", "cannot be negative")
	}
	return nil
}

// UpdateLimitInput changes a credit limit.
type UpdateLimitInput struct {
	AssociateID int64
	CreditLimit decimal.Decimal
	ActorID     int64
}
