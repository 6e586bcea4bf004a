package payments

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/credinet/credinet/internal/shared"
)

// RepositoryPort abstracts installment persistence.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Payment, error)
	ListByLoan(ctx context.Context, loanID int64) ([]Payment, error)
	ListOpenDue(ctx context.Context, asOf time.Time) ([]Payment, error)
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	MarkLoansOverdue(ctx context.Context, loanIDs []int64) (int, error)
	RecoverLoans(ctx context.Context, delinquentLoanIDs []int64) (int, error)
}

// TxRepository exposes the writes performed atomically by MarkPaid.
type TxRepository interface {
	LockPayment(ctx context.Context, id int64) (Payment, error)
	UpdateCollected(ctx context.Context, prev, next Payment) error
	LoanSettled(ctx context.Context, loanID int64) (bool, error)
	PayOffLoan(ctx context.Context, loanID int64, at time.Time) (bool, error)
}

// CacheInvalidator drops cached schedule views.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...string) error
}

// Service implements the payment ledger.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	cache  CacheInvalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. cache may be nil.
func NewService(repo RepositoryPort, audit shared.AuditPort, cache CacheInvalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, cache: cache, logger: logger, now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Get returns one installment.
func (s *Service) Get(ctx context.Context, id int64) (Payment, error) {
	return s.repo.Get(ctx, id)
}

// ListByLoan returns the installments of a loan ordered by number.
func (s *Service) ListByLoan(ctx context.Context, loanID int64) ([]Payment, error) {
	return s.repo.ListByLoan(ctx, loanID)
}

// MarkPaidResult carries the updated installment and whether the loan was paid off.
type MarkPaidResult struct {
	Payment     Payment `json:"payment"`
	LoanPaidOff bool    `json:"loan_paid_off"`
}

// MarkPaid applies a client collection to an installment.
func (s *Service) MarkPaid(ctx context.Context, in MarkPaidInput) (MarkPaidResult, error) {
	if err := in.Validate(); err != nil {
		return MarkPaidResult{}, err
	}
	now := s.now()
	var result MarkPaidResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockPayment(ctx, in.PaymentID)
		if err != nil {
			return err
		}
		next, err := current.Apply(in, now)
		if err != nil {
			return err
		}
		if err := tx.UpdateCollected(ctx, current, next); err != nil {
			return err
		}
		result.Payment = next
		if !next.Status.Settled() {
			return nil
		}
		settled, err := tx.LoanSettled(ctx, next.LoanID)
		if err != nil {
			return err
		}
		if settled {
			result.LoanPaidOff, err = tx.PayOffLoan(ctx, next.LoanID, now)
		}
		return err
	})
	if err != nil {
		return MarkPaidResult{}, err
	}

	s.invalidate(ctx, result.Payment.LoanID)
	s.record(ctx, in.MarkedBy, "payment.mark_paid", result.Payment.ID, map[string]any{
		"loan_id":     result.Payment.LoanID,
		"amount":      in.Amount.String(),
		"amount_paid": result.Payment.AmountPaid.String(),
		"status":      string(result.Payment.Status),
	})
	if result.LoanPaidOff {
		s.logger.Info("loan paid off", slog.Int64("loan_id", result.Payment.LoanID))
	}
	return result, nil
}

// Sweep derives due-date statuses and loan delinquency as of asOf. Safe to re-run.
func (s *Service) Sweep(ctx context.Context, asOf time.Time) (SweepResult, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	res := SweepResult{AsOf: dateOf(asOf)}
	open, err := s.repo.ListOpenDue(ctx, asOf)
	if err != nil {
		return res, err
	}
	delinquent := make(map[int64]struct{})
	touched := make(map[int64]struct{})
	for _, p := range open {
		next := p.Derive(asOf)
		if next != p.Status {
			ok, err := s.repo.UpdateStatus(ctx, p.ID, p.Status, next)
			if err != nil {
				s.logger.Error("sweep payment", slog.Int64("payment_id", p.ID), slog.Any("error", err))
				continue
			}
			if ok {
				res.PaymentsUpdated++
				touched[p.LoanID] = struct{}{}
				p.Status = next
			}
		}
		if p.Delinquent(asOf) {
			delinquent[p.LoanID] = struct{}{}
		}
	}

	ids := make([]int64, 0, len(delinquent))
	for id := range delinquent {
		ids = append(ids, id)
	}
	if res.LoansOverdue, err = s.repo.MarkLoansOverdue(ctx, ids); err != nil {
		return res, err
	}
	if res.LoansRecovered, err = s.repo.RecoverLoans(ctx, ids); err != nil {
		return res, err
	}
	for id := range touched {
		s.invalidate(ctx, id)
	}
	s.logger.Info("payment sweep",
		slog.Time("as_of", res.AsOf),
		slog.Int("payments_updated", res.PaymentsUpdated),
		slog.Int("loans_overdue", res.LoansOverdue),
		slog.Int("loans_recovered", res.LoansRecovered))
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

func (s *Service) record(ctx context.Context, actorID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "payment",
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}
