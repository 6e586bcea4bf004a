// Package loans implements the loan lifecycle: creation, approval, rejection and closure.
package loans

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/amortization"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/shared"
)

// MinReasonLength bounds rejection and cancellation reasons.
const MinReasonLength = 10

// Loan is a client loan distributed through an associate.
type Loan struct {
	ID              int64            `json:"id"`
	ClientID        int64            `json:"client_id"`
	AssociateID     *int64           `json:"associate_id,omitempty"`
	Amount          decimal.Decimal  `json:"amount"`
	TermBiweeks     int              `json:"term_biweeks"`
	ProfileCode     string           `json:"profile_code"`
	CustomRate      *decimal.Decimal `json:"custom_interest_rate,omitempty"`
	InterestRate    *decimal.Decimal `json:"interest_rate,omitempty"`
	CommissionRate  *decimal.Decimal `json:"commission_rate,omitempty"`
	Status          Status           `json:"status"`
	RejectionReason *string          `json:"rejection_reason,omitempty"`
	Notes           string           `json:"notes,omitempty"`
	ApprovedBy      *int64           `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time       `json:"approved_at,omitempty"`
	RejectedBy      *int64           `json:"rejected_by,omitempty"`
	RejectedAt      *time.Time       `json:"rejected_at,omitempty"`
	CreatedBy       int64            `json:"created_by"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (l Loan) quoteInput(at time.Time) amortization.QuoteInput {
	return amortization.QuoteInput{
		ProfileCode:  l.ProfileCode,
		Amount:       l.Amount,
		TermBiweeks:  l.TermBiweeks,
		CustomRate:   l.CustomRate,
		ApprovalDate: at,
	}
}

// CreateLoanInput captures a loan application.
type CreateLoanInput struct {
	ClientID    int64
	AssociateID *int64
	Amount      decimal.Decimal
	TermBiweeks int
	ProfileCode string
	CustomRate  *decimal.Decimal
	Notes       string
	CreatedBy   int64
}

// Validate checks fields that do not depend on the rate catalog.
func (in CreateLoanInput) Validate() error {
	if in.ClientID <= 0 {
		return shared.Invalid("client_id", "required")
	}
	if in.AssociateID != nil && *in.AssociateID <= 0 {
		return shared.Invalid("associate_id", "must be a positive id")
	}
	if in.CreatedBy <= 0 {
		return shared.Invalid("created_by", "required")
	}
	if err := shared.RequirePositive("amount", in.Amount); err != nil {
		return err
	}
	if strings.TrimSpace(in.ProfileCode) == "" {
		return shared.Invalid("profile_code", "required")
	}
	if len(in.Notes) > 2000 {
		return shared.Invalid("notes", "must be at most 2000 characters")
	}
	return nil
}

// ApproveInput approves a pending loan.
type ApproveInput struct {
	LoanID     int64
	ApprovedBy int64
	Notes      string
}

// RejectInput rejects a pending loan.
type RejectInput struct {
	LoanID     int64
	RejectedBy int64
	Reason     string
}

// Validate enforces the reason length.
func (in RejectInput) Validate() error {
	if in.RejectedBy <= 0 {
		return shared.Invalid("rejected_by", "required")
	}
	return validateReason("rejection_reason", in.Reason)
}

// TransitionInput drives a manual transition out of the active family.
type TransitionInput struct {
	LoanID  int64
	To      Status
	ActorID int64
	Notes   string
}

// CancelInput cancels a pending or active loan.
type CancelInput struct {
	LoanID  int64
	ActorID int64
	Reason  string
}

// DeleteInput removes a loan and its schedule.
type DeleteInput struct {
	LoanID  int64
	ActorID int64
	Force   bool
}

// ListFilter narrows ListLoans.
type ListFilter struct {
	Status      Status
	AssociateID int64
	ClientID    int64
	Page        shared.Page
}

// ScheduleRow is a persisted installment as shown on a schedule.
type ScheduleRow struct {
	amortization.Row
	PaymentID  int64           `json:"payment_id,omitempty"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Status     payments.Status `json:"status"`
}

// LoanSchedule is the amortization view of a loan. Projected schedules are not yet persisted.
type LoanSchedule struct {
	LoanID      int64                `json:"loan_id"`
	Status      Status               `json:"status"`
	Projected   bool                 `json:"projected"`
	Summary     amortization.Summary `json:"summary"`
	Rows        []ScheduleRow        `json:"rows"`
	TotalPaid   decimal.Decimal      `json:"total_paid"`
	Outstanding decimal.Decimal      `json:"outstanding"`
}

func validateReason(field, reason string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) < MinReasonLength {
		return shared.Invalid(field, "must be at least %d characters", MinReasonLength)
	}
	return nil
}
