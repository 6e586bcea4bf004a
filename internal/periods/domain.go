// Package periods drives the biweekly cut-period calendar and its settlement batches.
package periods

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates cut-period phases. The lifecycle is strictly linear.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusCutoff     Status = "CUTOFF"
	StatusCollecting Status = "COLLECTING"
	StatusSettling   Status = "SETTLING"
	StatusClosed     Status = "CLOSED"

	// StatusLegacyActive is accepted on read and treated as PENDING.
	StatusLegacyActive Status = "ACTIVE"
)

var successor = map[Status]Status{
	StatusPending:    StatusCutoff,
	StatusCutoff:     StatusCollecting,
	StatusCollecting: StatusSettling,
	StatusSettling:   StatusClosed,
}

// Normalize folds the legacy ACTIVE code into PENDING.
func (s Status) Normalize() Status {
	if s == StatusLegacyActive {
		return StatusPending
	}
	return s
}

// Next returns the only phase reachable from s.
func (s Status) Next() (Status, bool) {
	next, ok := successor[s.Normalize()]
	return next, ok
}

// StatusInfo describes a phase for presentation.
type StatusInfo struct {
	Code          Status `json:"code"`
	Label         string `json:"label"`
	Tone          string `json:"tone"`
	AcceptsAbonos bool   `json:"accepts_abonos"`
}

var statusTable = []StatusInfo{
	{Code: StatusPending, Label: "Pending", Tone: "neutral"},
	{Code: StatusCutoff, Label: "Cut off", Tone: "info", AcceptsAbonos: true},
	{Code: StatusCollecting, Label: "Collecting", Tone: "warning", AcceptsAbonos: true},
	{Code: StatusSettling, Label: "Settling", Tone: "danger"},
	{Code: StatusClosed, Label: "Closed", Tone: "success"},
}

// Statuses returns the phase metadata table.
func Statuses() []StatusInfo {
	out := make([]StatusInfo, len(statusTable))
	copy(out, statusTable)
	return out
}

// Valid reports whether s is a known phase, the legacy alias included.
func (s Status) Valid() bool {
	for _, info := range statusTable {
		if info.Code == s.Normalize() {
			return true
		}
	}
	return false
}

// AcceptsAbonos reports whether statements of a period in s take associate remittances.
func (s Status) AcceptsAbonos() bool {
	for _, info := range statusTable {
		if info.Code == s.Normalize() {
			return info.AcceptsAbonos
		}
	}
	return false
}

// CutPeriod is one billing window ending on a cut date.
type CutPeriod struct {
	ID          int64      `json:"id"`
	Code        string     `json:"period_code"`
	StartDate   time.Time  `json:"start_date"`
	EndDate     time.Time  `json:"end_date"`
	CutDate     time.Time  `json:"cut_date"`
	PaymentDate time.Time  `json:"payment_date"`
	Status      Status     `json:"status"`
	CutoffAt    *time.Time `json:"cutoff_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ClosedBy    *int64     `json:"closed_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Item results reported by batch steps.
const (
	ResultCreated  = "created"
	ResultExisting = "existing"
	ResultClosed   = "closed"
	ResultAbsorbed = "absorbed"
	ResultSettled  = "already_settled"
	ResultFailed   = "failed"
)

// ItemOutcome is the per-associate result of a batch step.
type ItemOutcome struct {
	AssociateID int64            `json:"associate_id"`
	StatementID int64            `json:"statement_id,omitempty"`
	Result      string           `json:"result"`
	LateFee     *decimal.Decimal `json:"late_fee,omitempty"`
	DebtAmount  *decimal.Decimal `json:"debt_amount,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// BatchReport summarises a cutoff or close run.
type BatchReport struct {
	PeriodID      int64         `json:"period_id"`
	PeriodCode    string        `json:"period_code"`
	Status        Status        `json:"status"`
	AlreadyClosed bool          `json:"already_closed,omitempty"`
	Succeeded     int           `json:"succeeded"`
	Failed        int           `json:"failed"`
	Items         []ItemOutcome `json:"items"`
}

func (r *BatchReport) tally() {
	r.Succeeded, r.Failed = 0, 0
	for _, it := range r.Items {
		if it.Result == ResultFailed {
			r.Failed++
		} else {
			r.Succeeded++
		}
	}
}

// StatementRef identifies a statement to settle.
type StatementRef struct {
	ID          int64
	AssociateID int64
}

// GenerateResult is returned by statement generation.
type GenerateResult struct {
	StatementID int64
	Created     bool
}

// SettleResult is returned by statement close-out.
type SettleResult struct {
	StatementID    int64
	AssociateID    int64
	LateFee        decimal.Decimal
	DebtAmount     decimal.Decimal
	Absorbed       bool
	AlreadySettled bool
}
