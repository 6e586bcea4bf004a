package statements

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/shared"
)

// RepositoryPort abstracts statement persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Statement, error)
	ListByPeriod(ctx context.Context, periodID int64, page shared.Page) ([]Statement, error)
	ListPayments(ctx context.Context, statementID int64) ([]StatementPayment, error)
	AssociatesWithActivity(ctx context.Context, start, end time.Time) ([]int64, error)
	Refs(ctx context.Context, periodID int64) ([]periods.StatementRef, error)
	MoveStatus(ctx context.Context, periodID int64, from []Status, to Status, onlyUnpaid bool) (int, error)
	MarkOverduePastPayment(ctx context.Context, asOf time.Time) (int, error)
}

// TxRepository groups the writes of one statement operation.
type TxRepository interface {
	FindByPeriodAssociate(ctx context.Context, periodID, associateID int64) (Statement, bool, error)
	PaymentsInWindow(ctx context.Context, associateID int64, start, end time.Time) ([]payments.Payment, error)
	Insert(ctx context.Context, s Statement) (Statement, error)
	LinkPayments(ctx context.Context, statementID int64, paymentIDs []int64) error
	Lock(ctx context.Context, id int64) (Statement, periods.Status, error)
	Update(ctx context.Context, prev, next Statement) error
	InsertPayment(ctx context.Context, p StatementPayment) (StatementPayment, error)
	LockInstallment(ctx context.Context, id int64) (payments.Payment, error)
	SaveInstallment(ctx context.Context, prev, next payments.Payment, at time.Time) (bool, error)
	AddDebt(ctx context.Context, associateID, statementID int64, amount decimal.Decimal) error
}

// Service implements statement settlement. It also serves the period batches.
type Service struct {
	repo        RepositoryPort
	audit       shared.AuditPort
	lateFeeRate decimal.Decimal
	cache       payments.CacheInvalidator
	logger      *slog.Logger
	now         func() time.Time
}

var _ periods.StatementBatch = (*Service)(nil)

// NewService constructs a Service. A zero rate selects DefaultLateFeeRate.
func NewService(repo RepositoryPort, audit shared.AuditPort, lateFeeRate decimal.Decimal, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if !lateFeeRate.IsPositive() {
		lateFeeRate = DefaultLateFeeRate
	}
	return &Service{repo: repo, audit: audit, lateFeeRate: lateFeeRate, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithScheduleCache drops cached loan schedules when an associate-paid abono collects an installment.
func (s *Service) WithScheduleCache(cache payments.CacheInvalidator) *Service {
	s.cache = cache
	return s
}

// Get loads a statement with derived totals.
func (s *Service) Get(ctx context.Context, id int64) (View, error) {
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return View{}, err
	}
	return NewView(st), nil
}

// ListByPeriod returns the statements of a period.
func (s *Service) ListByPeriod(ctx context.Context, periodID int64, page shared.Page) ([]View, error) {
	items, err := s.repo.ListByPeriod(ctx, periodID, page)
	if err != nil {
		return nil, err
	}
	out := make([]View, 0, len(items))
	for _, st := range items {
		out = append(out, NewView(st))
	}
	return out, nil
}

// ListPayments returns the abonos of a statement.
func (s *Service) ListPayments(ctx context.Context, statementID int64) ([]StatementPayment, error) {
	if _, err := s.repo.Get(ctx, statementID); err != nil {
		return nil, err
	}
	return s.repo.ListPayments(ctx, statementID)
}

// RegisterPayment records an abono while the period accepts remittances.
func (s *Service) RegisterPayment(ctx context.Context, in RegisterPaymentInput) (RegisterPaymentResult, error) {
	if err := in.Validate(); err != nil {
		return RegisterPaymentResult{}, err
	}
	if in.Reference == "" {
		in.Reference = uuid.NewString()
	}
	var res RegisterPaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, phase, err := tx.Lock(ctx, in.StatementID)
		if err != nil {
			return err
		}
		if !phase.AcceptsAbonos() {
			return shared.PreconditionFailed("period of statement %d is %s; abonos are not accepted", st.ID, phase)
		}
		next, err := st.applyAbono(in.Amount)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, st, next); err != nil {
			return err
		}
		stored, err := tx.InsertPayment(ctx, StatementPayment{
			StatementID: st.ID,
			Amount:      in.Amount,
			PaymentDate: in.PaymentDate,
			Method:      in.Method,
			Reference:   in.Reference,
			Notes:       in.Notes,
			RecordedBy:  in.RecordedBy,
		})
		if err != nil {
			return err
		}
		res = RegisterPaymentResult{Statement: NewView(next), Payment: stored}
		return nil
	})
	if err != nil {
		return RegisterPaymentResult{}, err
	}
	s.record(ctx, in.RecordedBy, "statement.payment", in.StatementID, map[string]any{
		"amount":    in.Amount.String(),
		"method":    in.Method,
		"reference": in.Reference,
		"status":    string(res.Statement.Status),
	})
	return res, nil
}

// RegisterAssociatePayment settles an installment billed on the statement with an abono from
// the associate: the installment becomes PAID_BY_ASSOCIATE and the statement is credited with
// the associate's share. Both commit together.
func (s *Service) RegisterAssociatePayment(ctx context.Context, in AssociatePaymentInput) (AssociatePaymentResult, error) {
	if err := in.Validate(); err != nil {
		return AssociatePaymentResult{}, err
	}
	if in.Reference == "" {
		in.Reference = "payment:" + strconv.FormatInt(in.PaymentID, 10)
	}
	now := s.now()
	var res AssociatePaymentResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, phase, err := tx.Lock(ctx, in.StatementID)
		if err != nil {
			return err
		}
		if !phase.AcceptsAbonos() {
			return shared.PreconditionFailed("period of statement %d is %s; abonos are not accepted", st.ID, phase)
		}
		inst, err := tx.LockInstallment(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		if inst.StatementID == nil || *inst.StatementID != st.ID {
			return shared.PreconditionFailed("payment %d is not billed on statement %d", inst.ID, st.ID)
		}
		credit := AssociateShare(inst)
		if !credit.IsPositive() {
			return shared.PreconditionFailed("payment %d has no associate share left to remit", inst.ID)
		}
		collected, err := inst.ApplyByAssociate(payments.MarkPaidInput{
			PaymentID: inst.ID,
			Amount:    inst.Remaining(),
			MarkedBy:  in.RecordedBy,
			Notes:     in.Notes,
		}, now)
		if err != nil {
			return err
		}
		next, err := st.applyAbono(credit)
		if err != nil {
			return err
		}
		paidOff, err := tx.SaveInstallment(ctx, inst, collected, now)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, st, next); err != nil {
			return err
		}
		paymentID := inst.ID
		stored, err := tx.InsertPayment(ctx, StatementPayment{
			StatementID: st.ID,
			Amount:      credit,
			PaymentDate: in.PaymentDate,
			Method:      in.Method,
			Reference:   in.Reference,
			Notes:       in.Notes,
			RecordedBy:  in.RecordedBy,
			PaymentID:   &paymentID,
		})
		if err != nil {
			return err
		}
		res = AssociatePaymentResult{Statement: NewView(next), Payment: stored, Installment: collected, LoanPaidOff: paidOff}
		return nil
	})
	if err != nil {
		return AssociatePaymentResult{}, err
	}
	s.invalidate(ctx, res.Installment.LoanID)
	s.record(ctx, in.RecordedBy, "statement.associate_payment", in.StatementID, map[string]any{
		"payment_id":         in.PaymentID,
		"amount":             res.Payment.Amount.String(),
		"status":             string(res.Statement.Status),
		"installment_status": string(res.Installment.Status),
		"loan_paid_off":      res.LoanPaidOff,
	})
	if res.LoanPaidOff {
		s.logger.Info("loan paid off by associate", slog.Int64("loan_id", res.Installment.LoanID))
	}
	return res, nil
}

func (s *Service) invalidate(ctx context.Context, loanID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, shared.ScheduleCacheKey(loanID)); err != nil {
		s.logger.Warn("invalidate schedule cache", slog.Int64("loan_id", loanID), slog.Any("error", err))
	}
}

// ApplyLateFee adds the zero-abono penalty to an OVERDUE statement.
func (s *Service) ApplyLateFee(ctx context.Context, statementID, actorID int64, notes string) (View, error) {
	if actorID <= 0 {
		return View{}, shared.Invalid("actor_id", "is required")
	}
	var out Statement
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, _, err := tx.Lock(ctx, statementID)
		if err != nil {
			return err
		}
		next, err := st.applyLateFee(s.lateFeeRate, notes)
		if err != nil {
			return err
		}
		if err := tx.Update(ctx, st, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	if err != nil {
		return View{}, err
	}
	s.record(ctx, actorID, "statement.late_fee", statementID, map[string]any{"late_fee": out.LateFeeAmount.String()})
	return NewView(out), nil
}

// MarkOverdue flags unpaid statements whose payment date has passed.
func (s *Service) MarkOverdue(ctx context.Context, asOf time.Time) (int, error) {
	n, err := s.repo.MarkOverduePastPayment(ctx, asOf)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("statements overdue", slog.Int("count", n), slog.String("as_of", asOf.Format(time.DateOnly)))
	}
	return n, nil
}

// AssociatesWithActivity lists associates with installments due in the period window.
func (s *Service) AssociatesWithActivity(ctx context.Context, period periods.CutPeriod) ([]int64, error) {
	return s.repo.AssociatesWithActivity(ctx, period.StartDate, period.EndDate)
}

// Generate builds the associate's statement for the period. Re-running returns
// the existing statement.
func (s *Service) Generate(ctx context.Context, period periods.CutPeriod, associateID int64) (periods.GenerateResult, error) {
	var res periods.GenerateResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		existing, ok, err := tx.FindByPeriodAssociate(ctx, period.ID, associateID)
		if err != nil {
			return err
		}
		if ok {
			res = periods.GenerateResult{StatementID: existing.ID}
			return nil
		}
		items, err := tx.PaymentsInWindow(ctx, associateID, period.StartDate, period.EndDate)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return shared.PreconditionFailed("associate %d has no installments in %s", associateID, period.Code)
		}
		totals := Aggregate(items)
		stored, err := tx.Insert(ctx, Statement{
			CutPeriodID:         period.ID,
			AssociateID:         associateID,
			PaymentCount:        totals.PaymentCount,
			ExpectedCollection:  totals.ExpectedCollection,
			CommissionEarned:    totals.CommissionEarned,
			TotalCommissionOwed: totals.TotalCommissionOwed,
			LateFeeAmount:       decimal.Zero,
			PaidAmount:          decimal.Zero,
			Status:              StatusGenerated,
		})
		if err != nil {
			return err
		}
		ids := make([]int64, 0, len(items))
		for _, p := range items {
			ids = append(ids, p.ID)
		}
		if err := tx.LinkPayments(ctx, stored.ID, ids); err != nil {
			return err
		}
		res = periods.GenerateResult{StatementID: stored.ID, Created: true}
		return nil
	})
	if err != nil {
		return periods.GenerateResult{}, err
	}
	if res.Created {
		s.record(ctx, 0, "statement.generate", res.StatementID, map[string]any{
			"cut_period_id": period.ID,
			"associate_id":  associateID,
		})
	}
	return res, nil
}

// OpenForCollection sends every generated statement of the period.
func (s *Service) OpenForCollection(ctx context.Context, periodID int64) (int, error) {
	return s.repo.MoveStatus(ctx, periodID, []Status{StatusGenerated}, StatusSent, false)
}

// FreezeForSettlement marks every statement with a balance OVERDUE.
func (s *Service) FreezeForSettlement(ctx context.Context, periodID int64) (int, error) {
	return s.repo.MoveStatus(ctx, periodID, []Status{StatusGenerated, StatusSent, StatusPartialPaid}, StatusOverdue, true)
}

// StatementsForClose lists every statement of the period, settled ones included.
func (s *Service) StatementsForClose(ctx context.Context, periodID int64) ([]periods.StatementRef, error) {
	return s.repo.Refs(ctx, periodID)
}

// Settle closes one statement in its own transaction, moving any balance into debt.
func (s *Service) Settle(ctx context.Context, statementID, actorID int64) (periods.SettleResult, error) {
	var res periods.SettleResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		st, _, err := tx.Lock(ctx, statementID)
		if err != nil {
			return err
		}
		res = periods.SettleResult{StatementID: st.ID, AssociateID: st.AssociateID}
		if st.Status.Settled() {
			res.AlreadySettled = true
			return nil
		}
		out := st.settle(s.lateFeeRate)
		if out.debt.IsPositive() {
			if err := tx.AddDebt(ctx, st.AssociateID, st.ID, out.debt); err != nil {
				return err
			}
		}
		if err := tx.Update(ctx, st, out.next); err != nil {
			return err
		}
		res.LateFee = out.lateFee
		res.DebtAmount = out.debt
		res.Absorbed = out.next.Status == StatusAbsorbed
		return nil
	})
	if err != nil {
		return periods.SettleResult{}, err
	}
	if !res.AlreadySettled {
		s.record(ctx, actorID, "statement.settle", statementID, map[string]any{
			"late_fee": res.LateFee.String(),
			"debt":     res.DebtAmount.String(),
			"absorbed": res.Absorbed,
		})
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, statementID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "statement",
		EntityID: strconv.FormatInt(statementID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}
