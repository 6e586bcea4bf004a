// Package payments tracks client installments against an approved loan schedule.
package payments

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/amortization"
	"github.com/credinet/credinet/internal/shared"
)

// Status enumerates installment states.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusDueToday        Status = "DUE_TODAY"
	StatusPaid            Status = "PAID"
	StatusOverdue         Status = "OVERDUE"
	StatusPartial         Status = "PARTIAL"
	StatusInCollection    Status = "IN_COLLECTION"
	StatusRescheduled     Status = "RESCHEDULED"
	StatusPaidPartial     Status = "PAID_PARTIAL"
	StatusPaidByAssociate Status = "PAID_BY_ASSOCIATE"
	StatusPaidNotReported Status = "PAID_NOT_REPORTED"
	StatusForgiven        Status = "FORGIVEN"
	StatusCancelled       Status = "CANCELLED"
)

// CollectionAfterDays moves an overdue installment into collection.
const CollectionAfterDays = 60

// Payment is one scheduled installment.
type Payment struct {
	ID               int64           `json:"id"`
	LoanID           int64           `json:"loan_id"`
	Number           int             `json:"payment_number"`
	DueDate          time.Time       `json:"payment_due_date"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	Principal        decimal.Decimal `json:"principal_amount"`
	Interest         decimal.Decimal `json:"interest_amount"`
	Commission       decimal.Decimal `json:"commission_amount"`
	AssociatePayment decimal.Decimal `json:"associate_payment"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	Status           Status          `json:"status"`
	MarkedBy         *int64          `json:"marked_by,omitempty"`
	MarkedAt         *time.Time      `json:"marked_at,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	StatementID      *int64          `json:"statement_id,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Remaining is the unpaid part of the installment.
func (p Payment) Remaining() decimal.Decimal {
	return p.ExpectedAmount.Sub(p.AmountPaid)
}

// FromRow materialises a schedule row as a pending installment.
func FromRow(loanID int64, row amortization.Row) Payment {
	return Payment{
		LoanID:           loanID,
		Number:           row.Number,
		DueDate:          row.DueDate,
		ExpectedAmount:   row.ExpectedAmount,
		Principal:        row.Principal,
		Interest:         row.Interest,
		Commission:       row.Commission,
		AssociatePayment: row.AssociatePayment,
		BalanceAfter:     row.BalanceAfter,
		AmountPaid:       decimal.Zero,
		Status:           StatusPending,
	}
}

// MarkPaidInput records a client collection against an installment.
type MarkPaidInput struct {
	PaymentID int64
	Amount    decimal.Decimal
	MarkedBy  int64
	Notes     string
}

// Validate checks the input shape; amount bounds are checked against the stored row.
func (in MarkPaidInput) Validate() error {
	if in.PaymentID <= 0 {
		return shared.Invalid("payment_id", "required")
	}
	if in.MarkedBy <= 0 {
		return shared.Invalid("marked_by", "required")
	}
	if err := shared.RequirePositive("amount", in.Amount); err != nil {
		return err
	}
	if len(strings.TrimSpace(in.Notes)) > 1000 {
		return shared.Invalid("notes", "must be at most 1000 characters")
	}
	return nil
}

// Apply validates and applies a client collection, returning the updated installment.
// The receiver is left untouched so callers can keep the prior state for optimistic guards.
func (p Payment) Apply(in MarkPaidInput, at time.Time) (Payment, error) {
	return p.apply(in, at, StatusPaid)
}

// ApplyByAssociate applies a collection remitted by the associate through a statement abono.
// A fully covered installment ends PAID_BY_ASSOCIATE.
func (p Payment) ApplyByAssociate(in MarkPaidInput, at time.Time) (Payment, error) {
	return p.apply(in, at, StatusPaidByAssociate)
}

func (p Payment) apply(in MarkPaidInput, at time.Time, paid Status) (Payment, error) {
	if !p.Status.Collectable() {
		return Payment{}, shared.Conflict("payment", p.ID, string(p.Status), "payment does not accept collections")
	}
	if err := shared.RequirePositive("amount", in.Amount); err != nil {
		return Payment{}, err
	}
	if in.Amount.GreaterThan(p.Remaining()) {
		return Payment{}, shared.Invalid("amount", "exceeds remaining %s", p.Remaining().StringFixed(2))
	}
	next := p
	next.AmountPaid = p.AmountPaid.Add(in.Amount)
	if next.AmountPaid.GreaterThanOrEqual(p.ExpectedAmount) {
		next.Status = paid
	} else {
		next.Status = StatusPartial
	}
	marker := in.MarkedBy
	stamp := at
	next.MarkedBy = &marker
	next.MarkedAt = &stamp
	if notes := strings.TrimSpace(in.Notes); notes != "" {
		next.Notes = notes
	}
	next.UpdatedAt = at
	return next, nil
}

// Derive computes the sweep status as of the given date. Only schedule-driven states move.
func (p Payment) Derive(asOf time.Time) Status {
	due := dateOf(p.DueDate)
	today := dateOf(asOf)
	switch p.Status {
	case StatusPending, StatusDueToday:
		switch {
		case today.Equal(due):
			return StatusDueToday
		case today.After(due):
			return StatusOverdue
		}
		return StatusPending
	case StatusOverdue:
		if today.Sub(due) > CollectionAfterDays*24*time.Hour {
			return StatusInCollection
		}
	}
	return p.Status
}

// Delinquent reports whether the installment makes its loan overdue as of asOf.
func (p Payment) Delinquent(asOf time.Time) bool {
	switch p.Status {
	case StatusOverdue, StatusInCollection:
		return true
	case StatusPartial:
		return dateOf(asOf).After(dateOf(p.DueDate))
	}
	return false
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	AsOf            time.Time `json:"as_of"`
	PaymentsUpdated int       `json:"payments_updated"`
	LoansOverdue    int       `json:"loans_overdue"`
	LoansRecovered  int       `json:"loans_recovered"`
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
