package loans

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/amortization"
	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/shared"
)

// RepositoryPort abstracts loan persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Loan, error)
	List(ctx context.Context, filter ListFilter) ([]Loan, error)
	ListPayments(ctx context.Context, loanID int64) ([]payments.Payment, error)
}

// TxRepository exposes transactional loan writes. Every write spans loans, payments and associate credit.
type TxRepository interface {
	Insert(ctx context.Context, in CreateLoanInput, status Status) (Loan, error)
	Lock(ctx context.Context, id int64) (Loan, error)
	Update(ctx context.Context, prev, next Loan) error
	Delete(ctx context.Context, id int64) error
	Associate(ctx context.Context, id int64) (associates.Associate, error)
	ReserveCredit(ctx context.Context, associateID int64, amount decimal.Decimal) error
	ReleaseCredit(ctx context.Context, associateID int64, amount decimal.Decimal) error
	InsertPayments(ctx context.Context, rows []payments.Payment) error
	CancelOpenPayments(ctx context.Context, loanID int64) (int, error)
	HasStatementPayments(ctx context.Context, loanID int64) (bool, error)
	OpenPaymentCount(ctx context.Context, loanID int64) (int, error)
}

// ScheduleCache memoises schedule views.
type ScheduleCache interface {
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Service orchestrates the loan lifecycle.
type Service struct {
	repo    RepositoryPort
	catalog amortization.Catalog
	audit   shared.AuditPort
	cache   ScheduleCache
	logger  *slog.Logger
	now     func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo RepositoryPort, catalog amortization.Catalog, audit shared.AuditPort, cache ScheduleCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateLoan registers a PENDING application after validating it against the rate catalog.
func (s *Service) CreateLoan(ctx context.Context, in CreateLoanInput) (Loan, error) {
	in.ProfileCode = strings.TrimSpace(in.ProfileCode)
	in.Notes = strings.TrimSpace(in.Notes)
	if err := in.Validate(); err != nil {
		return Loan{}, err
	}
	if _, err := amortization.Rates(s.catalog, amortization.QuoteInput{
		ProfileCode: in.ProfileCode,
		Amount:      in.Amount,
		TermBiweeks: in.TermBiweeks,
		CustomRate:  in.CustomRate,
	}); err != nil {
		return Loan{}, err
	}
	var loan Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.AssociateID != nil {
			a, err := tx.Associate(ctx, *in.AssociateID)
			if err != nil {
				return err
			}
			if !a.IsActive {
				return shared.PreconditionFailed("associate %d is inactive", a.ID)
			}
		}
		var err error
		loan, err = tx.Insert(ctx, in, StatusPending)
		return err
	})
	if err != nil {
		return Loan{}, err
	}
	s.record(ctx, in.CreatedBy, "loan.create", loan, map[string]any{
		"amount":  loan.Amount.String(),
		"term":    loan.TermBiweeks,
		"profile": loan.ProfileCode,
	})
	return loan, nil
}

// ApproveLoan snapshots rates, materialises installments and reserves associate credit atomically.
func (s *Service) ApproveLoan(ctx context.Context, in ApproveInput) (Loan, error) {
	if in.ApprovedBy <= 0 {
		return Loan{}, shared.Invalid("approved_by", "required")
	}
	now := s.now()
	var approved Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return shared.Conflict("loan", current.ID, string(current.Status), "only PENDING loans can be approved")
		}
		if current.AssociateID == nil {
			return shared.PreconditionFailed("loan %d has no associate assigned", current.ID)
		}
		quote, err := amortization.BuildQuote(s.catalog, current.quoteInput(now))
		if err != nil {
			return err
		}
		if err := tx.ReserveCredit(ctx, *current.AssociateID, current.Amount); err != nil {
			return err
		}
		rows := make([]payments.Payment, 0, len(quote.Schedule.Rows))
		for _, row := range quote.Schedule.Rows {
			rows = append(rows, payments.FromRow(current.ID, row))
		}
		if err := tx.InsertPayments(ctx, rows); err != nil {
			return err
		}

		next := current
		next.Status = StatusApproved
		interest := quote.ClientRateAnnual
		commission := quote.CommissionRateAnnual
		next.InterestRate = &interest
		next.CommissionRate = &commission
		approver := in.ApprovedBy
		next.ApprovedBy = &approver
		next.ApprovedAt = &now
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			next.Notes = notes
		}
		next.UpdatedAt = now
		if err := tx.Update(ctx, current, next); err != nil {
			return err
		}
		approved = next
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	s.invalidate(ctx, approved.ID)
	s.record(ctx, in.ApprovedBy, "loan.approve", approved, map[string]any{
		"interest_rate":   approved.InterestRate.String(),
		"commission_rate": approved.CommissionRate.String(),
	})
	s.logger.Info("loan approved", slog.Int64("loan_id", approved.ID), slog.String("amount", approved.Amount.String()))
	return approved, nil
}

// RejectLoan rejects a pending loan with an audit reason.
func (s *Service) RejectLoan(ctx context.Context, in RejectInput) (Loan, error) {
	if err := in.Validate(); err != nil {
		return Loan{}, err
	}
	now := s.now()
	var rejected Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending {
			return shared.Conflict("loan", current.ID, string(current.Status), "only PENDING loans can be rejected")
		}
		next := current
		next.Status = StatusRejected
		reason := strings.TrimSpace(in.Reason)
		next.RejectionReason = &reason
		rejecter := in.RejectedBy
		next.RejectedBy = &rejecter
		next.RejectedAt = &now
		next.UpdatedAt = now
		if err := tx.Update(ctx, current, next); err != nil {
			return err
		}
		rejected = next
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	s.record(ctx, in.RejectedBy, "loan.reject", rejected, map[string]any{"reason": *rejected.RejectionReason})
	return rejected, nil
}

// TransitionLoan moves an active loan to PAID_OFF, DEFAULTED, RESTRUCTURED or EARLY_PAYMENT.
func (s *Service) TransitionLoan(ctx context.Context, in TransitionInput) (Loan, error) {
	if in.ActorID <= 0 {
		return Loan{}, shared.Invalid("actor_id", "required")
	}
	if !manualTargets[in.To] {
		return Loan{}, shared.Invalid("status", "unsupported target status %q", in.To)
	}
	now := s.now()
	var moved Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if !current.Status.IsActive() || current.Status.Canonical() == in.To {
			return shared.Conflict("loan", current.ID, string(current.Status), "transition to "+string(in.To)+" not allowed")
		}
		if in.To == StatusPaidOff {
			open, err := tx.OpenPaymentCount(ctx, current.ID)
			if err != nil {
				return err
			}
			if open > 0 {
				return shared.PreconditionFailed("loan %d still has %d open installments", current.ID, open)
			}
		}
		if releasesCredit[in.To] && current.AssociateID != nil {
			if err := tx.ReleaseCredit(ctx, *current.AssociateID, current.Amount); err != nil {
				return err
			}
		}
		next := current
		next.Status = in.To
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			next.Notes = notes
		}
		next.UpdatedAt = now
		if err := tx.Update(ctx, current, next); err != nil {
			return err
		}
		moved = next
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	s.invalidate(ctx, moved.ID)
	s.record(ctx, in.ActorID, "loan.transition", moved, map[string]any{"status": string(moved.Status)})
	return moved, nil
}

// CancelLoan cancels a pending or active loan and cascades its open installments.
func (s *Service) CancelLoan(ctx context.Context, in CancelInput) (Loan, error) {
	if in.ActorID <= 0 {
		return Loan{}, shared.Invalid("actor_id", "required")
	}
	if err := validateReason("reason", in.Reason); err != nil {
		return Loan{}, err
	}
	now := s.now()
	var cancelled Loan
	var cascaded int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if current.Status != StatusPending && !current.Status.IsActive() {
			return shared.Conflict("loan", current.ID, string(current.Status), "only pending or active loans can be cancelled")
		}
		if current.Status.IsActive() && current.AssociateID != nil {
			if err := tx.ReleaseCredit(ctx, *current.AssociateID, current.Amount); err != nil {
				return err
			}
		}
		if cascaded, err = tx.CancelOpenPayments(ctx, current.ID); err != nil {
			return err
		}
		next := current
		next.Status = StatusCancelled
		next.Notes = strings.TrimSpace(in.Reason)
		next.UpdatedAt = now
		if err := tx.Update(ctx, current, next); err != nil {
			return err
		}
		cancelled = next
		return nil
	})
	if err != nil {
		return Loan{}, err
	}
	s.invalidate(ctx, cancelled.ID)
	s.record(ctx, in.ActorID, "loan.cancel", cancelled, map[string]any{"payments_cancelled": cascaded, "reason": cancelled.Notes})
	return cancelled, nil
}

// DeleteLoan removes a loan and its installments, releasing reserved credit.
func (s *Service) DeleteLoan(ctx context.Context, in DeleteInput) error {
	if in.ActorID <= 0 {
		return shared.Invalid("actor_id", "required")
	}
	var deleted Loan
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.Lock(ctx, in.LoanID)
		if err != nil {
			return err
		}
		if undeletable[current.Status] {
			return shared.PreconditionFailed("loan %d is %s and cannot be deleted", current.ID, current.Status)
		}
		if !in.Force && current.Status != StatusPending && current.Status != StatusRejected {
			return shared.PreconditionFailed("loan %d is %s; deletion requires force", current.ID, current.Status)
		}
		billed, err := tx.HasStatementPayments(ctx, current.ID)
		if err != nil {
			return err
		}
		if billed {
			return shared.PreconditionFailed("has_statement_payments: loan %d has installments folded into a statement", current.ID)
		}
		if current.Status.IsActive() && current.AssociateID != nil {
			if err := tx.ReleaseCredit(ctx, *current.AssociateID, current.Amount); err != nil {
				return err
			}
		}
		deleted = current
		return tx.Delete(ctx, current.ID)
	})
	if err != nil {
		return err
	}
	s.invalidate(ctx, deleted.ID)
	s.record(ctx, in.ActorID, "loan.delete", deleted, map[string]any{"status": string(deleted.Status), "force": in.Force})
	return nil
}

// GetLoan returns one loan with the legacy ACTIVE code left as stored.
func (s *Service) GetLoan(ctx context.Context, id int64) (Loan, error) {
	return s.repo.Get(ctx, id)
}

// ListLoans pages through loans.
func (s *Service) ListLoans(ctx context.Context, filter ListFilter) ([]Loan, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Invalid("status", "unknown status %q", filter.Status)
	}
	return s.repo.List(ctx, filter)
}

// GetAmortizationSchedule returns the persisted schedule of an approved loan, or a projection for pending ones.
func (s *Service) GetAmortizationSchedule(ctx context.Context, loanID int64) (LoanSchedule, error) {
	var out LoanSchedule
	loader := func(ctx context.Context) (any, error) { return s.buildSchedule(ctx, loanID) }
	if s.cache == nil {
		v, err := loader(ctx)
		if err != nil {
			return LoanSchedule{}, err
		}
		return v.(LoanSchedule), nil
	}
	if err := s.cache.FetchJSON(ctx, shared.ScheduleCacheKey(loanID), &out, loader); err != nil {
		return LoanSchedule{}, err
	}
	return out, nil
}

func (s *Service) buildSchedule(ctx context.Context, loanID int64) (LoanSchedule, error) {
	loan, err := s.repo.Get(ctx, loanID)
	if err != nil {
		return LoanSchedule{}, err
	}
	out := LoanSchedule{LoanID: loan.ID, Status: loan.Status, TotalPaid: decimal.Zero}

	if loan.ApprovedAt == nil || loan.InterestRate == nil || loan.CommissionRate == nil {
		quote, err := amortization.BuildQuote(s.catalog, loan.quoteInput(s.now()))
		if err != nil {
			return LoanSchedule{}, err
		}
		out.Projected = true
		out.Summary = quote.Schedule.Summary
		for _, row := range quote.Schedule.Rows {
			out.Rows = append(out.Rows, ScheduleRow{Row: row, AmountPaid: decimal.Zero, Status: payments.StatusPending})
		}
		out.Outstanding = out.Summary.TotalPayment
		return out, nil
	}

	schedule, err := amortization.Calculate(amortization.Input{
		Amount:               loan.Amount,
		TermBiweeks:          loan.TermBiweeks,
		ClientRateAnnual:     *loan.InterestRate,
		CommissionRateAnnual: *loan.CommissionRate,
		ApprovalDate:         *loan.ApprovedAt,
	})
	if err != nil {
		return LoanSchedule{}, err
	}
	out.Summary = schedule.Summary
	installments, err := s.repo.ListPayments(ctx, loan.ID)
	if err != nil {
		return LoanSchedule{}, err
	}
	for _, p := range installments {
		out.Rows = append(out.Rows, ScheduleRow{
			Row: amortization.Row{
				Number:           p.Number,
				DueDate:          p.DueDate,
				ExpectedAmount:   p.ExpectedAmount,
				Principal:        p.Principal,
				Interest:         p.Interest,
				Commission:       p.Commission,
				AssociatePayment: p.AssociatePayment,
				BalanceAfter:     p.BalanceAfter,
			},
			PaymentID:  p.ID,
			AmountPaid: p.AmountPaid,
			Status:     p.Status,
		})
		out.TotalPaid = out.TotalPaid.Add(p.AmountPaid)
	}
	out.Outstanding = out.Summary.TotalPayment.Sub(out.TotalPaid)
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, loanID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, shared.ScheduleCacheKey(loanID)); err != nil {
		s.logger.Warn("invalidate schedule cache", slog.Int64("loan_id", loanID), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action string, loan Loan, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "loan",
		EntityID: strconv.FormatInt(loan.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}
