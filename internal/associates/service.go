package associates

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/shared"
)

// RepositoryPort lists the persistence operations the service needs.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (Associate, error)
	List(ctx context.Context, page shared.Page) ([]Associate, error)
	Create(ctx context.Context, in CreateInput) (Associate, error)
	UpdateLimit(ctx context.Context, id int64, limit decimal.Decimal) (Associate, error)
}

// Service exposes associate administration.
type Service struct {
	repo  RepositoryPort
	audit shared.AuditPort
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit shared.AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Get returns one associate.
func (s *Service) Get(ctx context.Context, id int64) (Associate, error) {
	return s.repo.Get(ctx, id)
}

// List pages through associates.
func (s *Service) List(ctx context.Context, page shared.Page) ([]Associate, error) {
	return s.repo.List(ctx, page)
}

// Create registers an associate.
func (s *Service) Create(ctx context.Context, in CreateInput) (Associate, error) {
	if err := in.Validate(); err != nil {
		return Associate{}, err
	}
	a, err := s.repo.Create(ctx, in)
	if err != nil {
		return Associate{}, err
	}
	s.record(ctx, in.ActorID, "associate.create", a)
	return a, nil
}

// UpdateLimit changes the credit limit.
func (s *Service) UpdateLimit(ctx context.Context, in UpdateLimitInput) (Associate, error) {
	if in.CreditLimit.IsNegative() {
		return Associate{}, shared.Invalid("credit_limit", "cannot be negative")
	}
	a, err := s.repo.UpdateLimit(ctx, in.AssociateID, in.CreditLimit)
	if err != nil {
		return Associate{}, err
	}
	s.record(ctx, in.ActorID, "associate.limit", a)
	return a, nil
}

func (s *Service) record(ctx context.Context, actorID int64, action string, a Associate) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "associate",
		EntityID: strconv.FormatInt(a.ID, 10),
		Meta:     map[string]any{"credit_limit": a.CreditLimit.String()},
	})
}
