package debts

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/shared"
)

// RepositoryPort abstracts the debt ledger store.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListOpen(ctx context.Context, associateID int64) ([]DebtItem, error)
	ListItems(ctx context.Context, associateID int64, page shared.Page) ([]DebtItem, error)
}

// TxRepository exposes ledger writes.
type TxRepository interface {
	LockOpen(ctx context.Context, associateID int64) ([]DebtItem, error)
	ApplyAllocation(ctx context.Context, item DebtItem, amount decimal.Decimal, actorID int64) error
}

// Service implements the debt ledger.
type Service struct {
	repo   RepositoryPort
	audit  shared.AuditPort
	logger *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, audit shared.AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger}
}

// ApplyDebtPayment allocates a remittance across open items oldest first.
func (s *Service) ApplyDebtPayment(ctx context.Context, in PaymentInput) (PaymentResult, error) {
	if err := in.Validate(); err != nil {
		return PaymentResult{}, err
	}
	res := PaymentResult{AssociateID: in.AssociateID, Amount: in.Amount}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		items, err := tx.LockOpen(ctx, in.AssociateID)
		if err != nil {
			return err
		}
		allocs, err := Allocate(items, in.Amount)
		if err != nil {
			return err
		}
		byID := make(map[int64]DebtItem, len(items))
		remaining := decimal.Zero
		for _, it := range items {
			byID[it.ID] = it
			remaining = remaining.Add(it.Outstanding())
		}
		for _, a := range allocs {
			if err := tx.ApplyAllocation(ctx, byID[a.DebtItemID], a.Amount, in.ActorID); err != nil {
				return err
			}
		}
		res.Allocations = allocs
		res.Remaining = remaining.Sub(in.Amount)
		return nil
	})
	if err != nil {
		return PaymentResult{}, err
	}
	if s.audit != nil {
		if err := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.ActorID,
			Action:   "debt.payment",
			Entity:   "associate",
			EntityID: strconv.FormatInt(in.AssociateID, 10),
			Meta:     map[string]any{"amount": in.Amount.String(), "items": len(res.Allocations)},
		}); err != nil {
			s.logger.Warn("audit", slog.String("action", "debt.payment"), slog.Any("error", err))
		}
	}
	return res, nil
}

// DebtSummary returns the outstanding total and open item count.
func (s *Service) DebtSummary(ctx context.Context, associateID int64) (Summary, error) {
	items, err := s.repo.ListOpen(ctx, associateID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(associateID, items), nil
}

// ListItems returns an associate's debt items, paid ones included.
func (s *Service) ListItems(ctx context.Context, associateID int64, page shared.Page) ([]DebtItem, error) {
	return s.repo.ListItems(ctx, associateID, page)
}

// Summarize aggregates the open items.
func Summarize(associateID int64, items []DebtItem) Summary {
	sum := Summary{AssociateID: associateID, TotalOutstanding: decimal.Zero}
	for _, it := range items {
		if !it.Open() {
			continue
		}
		sum.TotalOutstanding = sum.TotalOutstanding.Add(it.Outstanding())
		sum.OpenItems++
		if sum.OldestOpenAt == nil || it.CreatedAt.Before(*sum.OldestOpenAt) {
			at := it.CreatedAt
			sum.OldestOpenAt = &at
		}
	}
	return sum
}
