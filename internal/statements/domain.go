// Package statements bills associates for the commission collected in a cut period.
package statements

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/shared"
)

// Status enumerates statement states.
type Status string

const (
	StatusGenerated   Status = "GENERATED"
	StatusSent        Status = "SENT"
	StatusPartialPaid Status = "PARTIAL_PAID"
	StatusPaid        Status = "PAID"
	StatusOverdue     Status = "OVERDUE"
	StatusClosed      Status = "CLOSED"
	StatusAbsorbed    Status = "ABSORBED"
)

// DefaultLateFeeRate is applied to unpaid commission when no abono was made.
var DefaultLateFeeRate = decimal.RequireFromString("0.30")

// PaidTolerance absorbs rounding when deciding a statement is paid.
var PaidTolerance = decimal.RequireFromString("0.01")

// MinNotesLength bounds late-fee audit notes.
const MinNotesLength = 10

// StatusInfo describes a statement status.
type StatusInfo struct {
	Code          Status `json:"code"`
	Label         string `json:"label"`
	Tone          string `json:"tone"`
	AcceptsAbonos bool   `json:"accepts_abonos"`
	Settled       bool   `json:"settled"`
}

var statusTable = []StatusInfo{
	{Code: StatusGenerated, Label: "Generated", Tone: "neutral", AcceptsAbonos: true},
	{Code: StatusSent, Label: "Sent", Tone: "info", AcceptsAbonos: true},
	{Code: StatusPartialPaid, Label: "Partially paid", Tone: "warning", AcceptsAbonos: true},
	{Code: StatusPaid, Label: "Paid", Tone: "success"},
	{Code: StatusOverdue, Label: "Overdue", Tone: "danger", AcceptsAbonos: true},
	{Code: StatusClosed, Label: "Closed", Tone: "success", Settled: true},
	{Code: StatusAbsorbed, Label: "Absorbed into debt", Tone: "danger", Settled: true},
}

// Statuses returns the status metadata table.
func Statuses() []StatusInfo {
	out := make([]StatusInfo, len(statusTable))
	copy(out, statusTable)
	return out
}

func info(s Status) StatusInfo {
	for _, i := range statusTable {
		if i.Code == s {
			return i
		}
	}
	return StatusInfo{Code: s}
}

// AcceptsAbonos reports whether remittances may be registered in s.
func (s Status) AcceptsAbonos() bool { return info(s).AcceptsAbonos }

// Settled reports whether close-out already ran.
func (s Status) Settled() bool { return info(s).Settled }

// Statement is an associate's commission bill for one cut period.
type Statement struct {
	ID                  int64           `json:"id"`
	CutPeriodID         int64           `json:"cut_period_id"`
	AssociateID         int64           `json:"associate_id"`
	PaymentCount        int             `json:"payment_count"`
	ExpectedCollection  decimal.Decimal `json:"expected_collection"`
	CommissionEarned    decimal.Decimal `json:"commission_earned"`
	TotalCommissionOwed decimal.Decimal `json:"total_commission_owed"`
	LateFeeAmount       decimal.Decimal `json:"late_fee_amount"`
	LateFeeApplied      bool            `json:"late_fee_applied"`
	LateFeeNotes        string          `json:"late_fee_notes,omitempty"`
	PaidAmount          decimal.Decimal `json:"paid_amount"`
	Status              Status          `json:"status"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// TotalOwed is commission plus any late fee.
func (s Statement) TotalOwed() decimal.Decimal {
	return s.TotalCommissionOwed.Add(s.LateFeeAmount)
}

// Remaining is what the associate still owes on the statement.
func (s Statement) Remaining() decimal.Decimal {
	return s.TotalOwed().Sub(s.PaidAmount)
}

// View adds the derived amounts for presentation.
type View struct {
	Statement
	TotalOwed decimal.Decimal `json:"total_owed"`
	Remaining decimal.Decimal `json:"remaining"`
}

// NewView renders a statement with derived totals.
func NewView(s Statement) View {
	return View{Statement: s, TotalOwed: s.TotalOwed(), Remaining: s.Remaining()}
}

// Totals aggregates the installments billed on one statement.
type Totals struct {
	PaymentCount        int
	ExpectedCollection  decimal.Decimal
	CommissionEarned    decimal.Decimal
	TotalCommissionOwed decimal.Decimal
}

// Aggregate sums installments. The associate owes the associate_payment part of each.
func Aggregate(items []payments.Payment) Totals {
	t := Totals{ExpectedCollection: decimal.Zero, CommissionEarned: decimal.Zero, TotalCommissionOwed: decimal.Zero}
	for _, p := range items {
		t.PaymentCount++
		t.ExpectedCollection = t.ExpectedCollection.Add(p.ExpectedAmount)
		t.CommissionEarned = t.CommissionEarned.Add(p.Commission)
		t.TotalCommissionOwed = t.TotalCommissionOwed.Add(p.AssociatePayment)
	}
	return t
}

// Payment methods accepted for abonos.
const (
	MethodCash     = "CASH"
	MethodTransfer = "TRANSFER"
	MethodDeposit  = "DEPOSIT"
	MethodCheck    = "CHECK"
)

var methods = map[string]bool{MethodCash: true, MethodTransfer: true, MethodDeposit: true, MethodCheck: true}

// StatementPayment is one abono recorded against a statement.
type StatementPayment struct {
	ID          int64           `json:"id"`
	StatementID int64           `json:"statement_id"`
	Amount      decimal.Decimal `json:"amount"`
	PaymentDate time.Time       `json:"payment_date"`
	Method      string          `json:"method"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes,omitempty"`
	RecordedBy  int64           `json:"recorded_by"`
	PaymentID   *int64          `json:"payment_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RegisterPaymentInput records an abono.
type RegisterPaymentInput struct {
	StatementID int64
	Amount      decimal.Decimal
	PaymentDate time.Time
	Method      string
	Reference   string
	Notes       string
	RecordedBy  int64
}

// Validate checks the abono fields that do not depend on stored state.
func (in *RegisterPaymentInput) Validate() error {
	if in.StatementID <= 0 {
		return shared.Invalid("statement_id", "is required")
	}
	if err := shared.RequirePositive("amount", in.Amount); err != nil {
		return err
	}
	if in.PaymentDate.IsZero() {
		return shared.Invalid("payment_date", "is required")
	}
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	if !methods[in.Method] {
		return shared.Invalid("method", "must be one of CASH, TRANSFER, DEPOSIT, CHECK")
	}
	if in.RecordedBy <= 0 {
		return shared.Invalid("recorded_by", "is required")
	}
	in.Reference = strings.TrimSpace(in.Reference)
	return nil
}

// RegisterPaymentResult returns the updated statement and the stored abono.
type RegisterPaymentResult struct {
	Statement View             `json:"statement"`
	Payment   StatementPayment `json:"payment"`
}

// AssociatePaymentInput records an installment the associate settled on the client's behalf.
type AssociatePaymentInput struct {
	StatementID int64
	PaymentID   int64
	PaymentDate time.Time
	Method      string
	Reference   string
	Notes       string
	RecordedBy  int64
}

// Validate checks the fields that do not depend on stored state.
func (in *AssociatePaymentInput) Validate() error {
	if in.StatementID <= 0 {
		return shared.Invalid("statement_id", "is required")
	}
	if in.PaymentID <= 0 {
		return shared.Invalid("payment_id", "is required")
	}
	if in.PaymentDate.IsZero() {
		return shared.Invalid("payment_date", "is required")
	}
	in.Method = strings.ToUpper(strings.TrimSpace(in.Method))
	if !methods[in.Method] {
		return shared.Invalid("method", "must be one of CASH, TRANSFER, DEPOSIT, CHECK")
	}
	if in.RecordedBy <= 0 {
		return shared.Invalid("recorded_by", "is required")
	}
	in.Reference = strings.TrimSpace(in.Reference)
	return nil
}

// AssociateShare is the part of the installment's open balance the associate owes the
// statement: the remaining amount less the commission the associate keeps, pro rata.
func AssociateShare(p payments.Payment) decimal.Decimal {
	remaining := p.Remaining()
	if !p.ExpectedAmount.IsPositive() || !remaining.IsPositive() {
		return decimal.Zero
	}
	if remaining.Equal(p.ExpectedAmount) {
		return p.AssociatePayment
	}
	return shared.Round2(remaining.Mul(p.AssociatePayment).Div(p.ExpectedAmount))
}

// AssociatePaymentResult returns the credited statement and the collected installment.
type AssociatePaymentResult struct {
	Statement   View             `json:"statement"`
	Payment     StatementPayment `json:"payment"`
	Installment payments.Payment `json:"installment"`
	LoanPaidOff bool             `json:"loan_paid_off"`
}

// applyAbono adds amount to the paid total and recomputes the status.
func (s Statement) applyAbono(amount decimal.Decimal) (Statement, error) {
	if !s.Status.AcceptsAbonos() {
		return Statement{}, shared.Conflict("statement", s.ID, string(s.Status), "abonos are not accepted")
	}
	if err := shared.RequirePositive("amount", amount); err != nil {
		return Statement{}, err
	}
	remaining := s.Remaining()
	if !remaining.IsPositive() {
		return Statement{}, shared.Conflict("statement", s.ID, string(s.Status), "nothing remains to be paid")
	}
	if amount.GreaterThan(remaining) {
		return Statement{}, shared.Invalid("amount", "exceeds remaining %s", remaining.StringFixed(2))
	}
	next := s
	next.PaidAmount = s.PaidAmount.Add(amount)
	switch left := next.Remaining(); {
	case left.LessThanOrEqual(PaidTolerance):
		next.Status = StatusPaid
	case next.PaidAmount.IsPositive() && next.PaidAmount.LessThan(next.TotalOwed()):
		next.Status = StatusPartialPaid
	}
	return next, nil
}

// lateFee computes the penalty on the statement's commission.
func (s Statement) lateFee(rate decimal.Decimal) decimal.Decimal {
	return shared.Round2(s.TotalCommissionOwed.Mul(rate))
}

// feeEligible reports whether the zero-abono penalty applies.
func (s Statement) feeEligible() bool {
	return s.Status == StatusOverdue && s.PaidAmount.IsZero() && !s.LateFeeApplied
}

func (s Statement) applyLateFee(rate decimal.Decimal, notes string) (Statement, error) {
	notes = strings.TrimSpace(notes)
	if len([]rune(notes)) < MinNotesLength {
		return Statement{}, shared.Invalid("notes", "must be at least %d characters", MinNotesLength)
	}
	if s.Status != StatusOverdue {
		return Statement{}, shared.Conflict("statement", s.ID, string(s.Status), "late fee requires OVERDUE")
	}
	if s.LateFeeApplied {
		return Statement{}, shared.Conflict("statement", s.ID, string(s.Status), "late fee already applied")
	}
	if !s.PaidAmount.IsZero() {
		return Statement{}, shared.PreconditionFailed("statement %d received abonos; late fee does not apply", s.ID)
	}
	next := s
	next.LateFeeAmount = s.lateFee(rate)
	next.LateFeeApplied = true
	next.LateFeeNotes = notes
	return next, nil
}

// settlement is the outcome of closing one statement.
type settlement struct {
	next    Statement
	lateFee decimal.Decimal
	debt    decimal.Decimal
}

// settle closes the statement. An unpaid balance is carried into debt and the
// statement becomes ABSORBED; a fee is added first when no abono was made.
func (s Statement) settle(rate decimal.Decimal) settlement {
	out := settlement{next: s, lateFee: decimal.Zero, debt: decimal.Zero}
	if s.Status == StatusPaid || s.Remaining().LessThanOrEqual(PaidTolerance) {
		out.next.Status = StatusClosed
		return out
	}
	if s.feeEligible() {
		out.lateFee = s.lateFee(rate)
		out.next.LateFeeAmount = out.lateFee
		out.next.LateFeeApplied = true
		out.next.LateFeeNotes = "applied at period close"
	}
	out.debt = out.next.Remaining()
	out.next.Status = StatusAbsorbed
	return out
}
