package associates

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/shared"
)

type memoryRepo struct {
	items  map[int64]*Associate
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[int64]*Associate)}
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (Associate, error) {
	a, ok := m.items[id]
	if !ok {
		return Associate{}, shared.NotFound("associate", id)
	}
	return *a, nil
}

func (m *memoryRepo) List(ctx context.Context, page shared.Page) ([]Associate, error) {
	var out []Associate
	for id := int64(1); id <= m.nextID; id++ {
		if a, ok := m.items[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryRepo) Create(ctx context.Context, in CreateInput) (Associate, error) {
	m.nextID++
	a := &Associate{ID: m.nextID, Name: in.Name, CreditLimit: in.CreditLimit, IsActive: true, CreatedAt: time.Now()}
	m.items[a.ID] = a
	return *a, nil
}

func (m *memoryRepo) UpdateLimit(ctx context.Context, id int64, limit decimal.Decimal) (Associate, error) {
	a, ok := m.items[id]
	if !ok {
		return Associate{}, shared.NotFound("associate", id)
	}
	if a.CreditUsed.GreaterThan(limit) {
		return Associate{}, shared.PreconditionFailed("credit limit below credit in use")
	}
	a.CreditLimit = limit
	return *a, nil
}

func TestCanReserve(t *testing.T) {
	a := Associate{ID: 1, CreditLimit: decimal.NewFromInt(50000), CreditUsed: decimal.NewFromInt(45000), IsActive: true}
	require.NoError(t, a.CanReserve(decimal.NewFromInt(5000)))
	err := a.CanReserve(decimal.NewFromInt(5500))
	require.True(t, errors.Is(err, shared.ErrPreconditionFailed))

	a.IsActive = false
	require.True(t, errors.Is(a.CanReserve(decimal.NewFromInt(1)), shared.ErrPreconditionFailed))
}

func TestServiceCreateAndUpdateLimit(t *testing.T) {
	repo := newMemoryRepo()
	audit := &shared.MemoryAudit{}
	svc := NewService(repo, audit)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Name: "  "})
	var verr *shared.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Equal(t, "name", verr.Field)

	a, err := svc.Create(ctx, CreateInput{Name: "Maria", CreditLimit: decimal.NewFromInt(20000), ActorID: 9})
	require.NoError(t, err)
	require.True(t, a.Available().Equal(decimal.NewFromInt(20000)))

	repo.items[a.ID].CreditUsed = decimal.NewFromInt(15000)
	_, err = svc.UpdateLimit(ctx, UpdateLimitInput{AssociateID: a.ID, CreditLimit: decimal.NewFromInt(10000), ActorID: 9})
	require.True(t, errors.Is(err, shared.ErrPreconditionFailed))

	a, err = svc.UpdateLimit(ctx, UpdateLimitInput{AssociateID: a.ID, CreditLimit: decimal.NewFromInt(30000), ActorID: 9})
	require.NoError(t, err)
	require.True(t, a.Available().Equal(decimal.NewFromInt(15000)))
	require.Equal(t, []string{"associate.create", "associate.limit"}, audit.Actions())
}
