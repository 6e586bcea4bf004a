package statements

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/shared"
)

// memoryPeriods keeps period phases in the statement repo so abono checks see them.
type memoryPeriods struct {
	repo    *memoryRepo
	records map[int64]periods.CutPeriod
}

func (m *memoryPeriods) Get(ctx context.Context, id int64) (periods.CutPeriod, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	p, ok := m.records[id]
	if !ok {
		return periods.CutPeriod{}, shared.NotFound("cut_period", id)
	}
	p.Status = m.repo.phases[id]
	return p, nil
}

func (m *memoryPeriods) GetByCode(ctx context.Context, code string) (periods.CutPeriod, error) {
	return periods.CutPeriod{}, shared.NotFoundKey("cut_period", code)
}

func (m *memoryPeriods) List(ctx context.Context, status periods.Status, page shared.Page) ([]periods.CutPeriod, error) {
	return nil, nil
}

func (m *memoryPeriods) Insert(ctx context.Context, p periods.CutPeriod) (periods.CutPeriod, bool, error) {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	p.ID = int64(len(m.records) + 1)
	m.records[p.ID] = p
	m.repo.phases[p.ID] = p.Status
	return p, true, nil
}

func (m *memoryPeriods) Transition(ctx context.Context, id int64, from, to periods.Status, actorID int64, at time.Time) error {
	m.repo.mu.Lock()
	defer m.repo.mu.Unlock()
	if m.repo.phases[id].Normalize() != from {
		return shared.ConcurrentUpdate("cut_period", id)
	}
	m.repo.phases[id] = to
	return nil
}

func (m *memoryPeriods) DueForCutoff(ctx context.Context, asOf time.Time) ([]periods.CutPeriod, error) {
	return nil, nil
}

func (m *memoryPeriods) CountInPhase(ctx context.Context, excludeID int64, phases ...periods.Status) (int, error) {
	return 0, nil
}

func TestPeriodSettlementEndToEnd(t *testing.T) {
	repo := newMemoryRepo()
	store := &memoryPeriods{repo: repo, records: map[int64]periods.CutPeriod{}}
	statements, _ := newTestService(repo)
	audit := &shared.MemoryAudit{}
	lifecycle := periods.NewService(store, statements, nil, audit, periods.Options{Concurrency: 3}, nil).
		WithNow(func() time.Time { return testNow })
	ctx := context.Background()

	p, err := periods.BuildPeriod(time.Date(2026, time.January, 8, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	p, _, err = store.Insert(ctx, p)
	require.NoError(t, err)

	jan5 := time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)
	repo.addInstallment(5, 1, jan5, payments.StatusPending, "2000", "200")
	repo.addInstallment(6, 2, jan5, payments.StatusPending, "800", "80")
	repo.addInstallment(7, 3, jan5, payments.StatusPaid, "300", "30")

	report, err := lifecycle.Cutoff(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 3, report.Succeeded)
	byAssociate := map[int64]int64{}
	for _, it := range report.Items {
		byAssociate[it.AssociateID] = it.StatementID
	}

	_, err = lifecycle.OpenCollection(ctx, p.ID, 1)
	require.NoError(t, err)
	_, err = statements.RegisterPayment(ctx, abono(byAssociate[6], "500"))
	require.NoError(t, err)
	_, err = statements.RegisterPayment(ctx, abono(byAssociate[7], "300"))
	require.NoError(t, err)

	_, err = lifecycle.StartSettlement(ctx, p.ID, 1)
	require.NoError(t, err)
	_, err = statements.RegisterPayment(ctx, abono(byAssociate[6], "300"))
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)

	closed, err := lifecycle.ClosePeriod(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, periods.StatusClosed, closed.Status)
	require.Equal(t, 0, closed.Failed)

	require.Equal(t, "2600", repo.debts[byAssociate[5]].String())
	require.Equal(t, "300", repo.debts[byAssociate[6]].String())
	_, ok := repo.debts[byAssociate[7]]
	require.False(t, ok)

	st, err := statements.Get(ctx, byAssociate[7])
	require.NoError(t, err)
	require.Equal(t, StatusClosed, st.Status)

	again, err := lifecycle.ClosePeriod(ctx, p.ID, 1)
	require.NoError(t, err)
	require.True(t, again.AlreadyClosed)
	require.Len(t, repo.debts, 2)
}
