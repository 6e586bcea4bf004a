// Package debts keeps the accumulated debt ledger of associates.
package debts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/shared"
)

// DebtItem is an unpaid statement balance transferred at period close.
type DebtItem struct {
	ID                int64           `json:"id"`
	AssociateID       int64           `json:"associate_id"`
	SourceStatementID int64           `json:"source_statement_id"`
	Amount            decimal.Decimal `json:"amount"`
	PaidAmount        decimal.Decimal `json:"paid_amount"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Outstanding is what remains unpaid on the item.
func (d DebtItem) Outstanding() decimal.Decimal {
	return d.Amount.Sub(d.PaidAmount)
}

// Open reports whether the item still carries a balance.
func (d DebtItem) Open() bool {
	return d.Outstanding().IsPositive()
}

// Allocation is the portion of a debt payment applied to one item.
type Allocation struct {
	DebtItemID int64           `json:"debt_item_id"`
	Amount     decimal.Decimal `json:"amount"`
	Settled    bool            `json:"settled"`
}

// Summary aggregates an associate's open debt.
type Summary struct {
	AssociateID      int64           `json:"associate_id"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	OpenItems        int             `json:"open_items"`
	OldestOpenAt     *time.Time      `json:"oldest_open_at,omitempty"`
}

// PaymentInput is an associate remittance against accumulated debt.
type PaymentInput struct {
	AssociateID int64
	Amount      decimal.Decimal
	ActorID     int64
}

// Validate checks the input shape.
func (in PaymentInput) Validate() error {
	if in.AssociateID <= 0 {
		return shared.Invalid("associate_id", "required")
	}
	if in.ActorID <= 0 {
		return shared.Invalid("recorded_by", "required")
	}
	return shared.RequirePositive("amount", in.Amount)
}

// PaymentResult reports how a payment was spread across items.
type PaymentResult struct {
	AssociateID int64           `json:"associate_id"`
	Amount      decimal.Decimal `json:"amount"`
	Allocations []Allocation    `json:"allocations"`
	Remaining   decimal.Decimal `json:"remaining_debt"`
}

// Allocate spreads amount over items oldest first. Items must be sorted by (CreatedAt, ID).
// The amount may not exceed the total outstanding.
func Allocate(items []DebtItem, amount decimal.Decimal) ([]Allocation, error) {
	if err := shared.RequirePositive("amount", amount); err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Outstanding())
	}
	if amount.GreaterThan(total) {
		return nil, shared.Invalid("amount", "exceeds outstanding debt %s", total.StringFixed(2))
	}
	left := amount
	var out []Allocation
	for _, it := range items {
		if !left.IsPositive() {
			break
		}
		open := it.Outstanding()
		if !open.IsPositive() {
			continue
		}
		take := decimal.Min(open, left)
		out = append(out, Allocation{DebtItemID: it.ID, Amount: take, Settled: take.Equal(open)})
		left = left.Sub(take)
	}
	return out, nil
}
