package periods

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/platform/cache"
	"github.com/credinet/credinet/internal/shared"
)

type memoryRepo struct {
	mu      sync.Mutex
	periods map[int64]*CutPeriod
	nextID  int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{periods: make(map[int64]*CutPeriod)}
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (CutPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok {
		return CutPeriod{}, shared.NotFound("cut_period", id)
	}
	return *p, nil
}

func (m *memoryRepo) GetByCode(ctx context.Context, code string) (CutPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.Code == code {
			return *p, nil
		}
	}
	return CutPeriod{}, shared.NotFoundKey("cut_period", code)
}

func (m *memoryRepo) List(ctx context.Context, status Status, page shared.Page) ([]CutPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CutPeriod
	for _, p := range m.periods {
		if status == "" || p.Status.Normalize() == status {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CutDate.Before(out[j].CutDate) })
	return out, nil
}

func (m *memoryRepo) Insert(ctx context.Context, p CutPeriod) (CutPeriod, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.periods {
		if existing.Code == p.Code {
			return CutPeriod{}, false, nil
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.periods[p.ID] = &p
	return p, true, nil
}

func (m *memoryRepo) Transition(ctx context.Context, id int64, from, to Status, actorID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.periods[id]
	if !ok || p.Status.Normalize() != from {
		return shared.ConcurrentUpdate("cut_period", id)
	}
	p.Status = to
	switch to {
	case StatusCutoff:
		p.CutoffAt = &at
	case StatusClosed:
		p.ClosedAt = &at
		p.ClosedBy = &actorID
	}
	return nil
}

func (m *memoryRepo) DueForCutoff(ctx context.Context, asOf time.Time) ([]CutPeriod, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CutPeriod
	for _, p := range m.periods {
		if p.Status.Normalize() == StatusPending && !p.CutDate.After(asOf) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CutDate.Before(out[j].CutDate) })
	return out, nil
}

func (m *memoryRepo) CountInPhase(ctx context.Context, excludeID int64, phases ...Status) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, p := range m.periods {
		for _, ph := range phases {
			if p.ID != excludeID && p.Status == ph {
				n++
			}
		}
	}
	return n, nil
}

func (m *memoryRepo) seed(cut time.Time, status Status) CutPeriod {
	p, err := BuildPeriod(cut)
	if err != nil {
		panic(err)
	}
	p.Status = status
	stored, _, _ := m.Insert(context.Background(), p)
	return stored
}

// fakeBatch records statement work and fails for selected associates.
type fakeBatch struct {
	mu         sync.Mutex
	associates []int64
	generated  map[int64]bool
	settled    map[int64]bool
	failFor    map[int64]bool
	remaining  map[int64]decimal.Decimal
	sent       int
	frozen     int
}

func newFakeBatch(associates ...int64) *fakeBatch {
	return &fakeBatch{
		associates: associates,
		generated:  make(map[int64]bool),
		settled:    make(map[int64]bool),
		failFor:    make(map[int64]bool),
		remaining:  make(map[int64]decimal.Decimal),
	}
}

func (f *fakeBatch) AssociatesWithActivity(ctx context.Context, period CutPeriod) ([]int64, error) {
	return f.associates, nil
}

func (f *fakeBatch) Generate(ctx context.Context, period CutPeriod, associateID int64) (GenerateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[associateID] {
		return GenerateResult{}, errors.New("boom")
	}
	if f.generated[associateID] {
		return GenerateResult{StatementID: associateID * 100}, nil
	}
	f.generated[associateID] = true
	return GenerateResult{StatementID: associateID * 100, Created: true}, nil
}

func (f *fakeBatch) OpenForCollection(ctx context.Context, periodID int64) (int, error) {
	f.sent = len(f.generated)
	return f.sent, nil
}

func (f *fakeBatch) FreezeForSettlement(ctx context.Context, periodID int64) (int, error) {
	f.frozen++
	return len(f.remaining), nil
}

func (f *fakeBatch) StatementsForClose(ctx context.Context, periodID int64) ([]StatementRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []StatementRef
	for _, a := range f.associates {
		out = append(out, StatementRef{ID: a * 100, AssociateID: a})
	}
	return out, nil
}

func (f *fakeBatch) Settle(ctx context.Context, statementID, actorID int64) (SettleResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	associateID := statementID / 100
	if f.failFor[associateID] {
		return SettleResult{}, errors.New("boom")
	}
	res := SettleResult{StatementID: statementID, AssociateID: associateID}
	if f.settled[statementID] {
		res.AlreadySettled = true
		return res, nil
	}
	f.settled[statementID] = true
	if rem, ok := f.remaining[associateID]; ok {
		res.Absorbed = true
		res.DebtAmount = rem
	}
	return res, nil
}

var testNow = time.Date(2026, time.January, 8, 6, 0, 0, 0, time.UTC)

func newTestService(repo *memoryRepo, batch *fakeBatch, locker Locker) (*Service, *shared.MemoryAudit) {
	audit := &shared.MemoryAudit{}
	svc := NewService(repo, batch, locker, audit, Options{Concurrency: 2}, nil).
		WithNow(func() time.Time { return testNow })
	return svc, audit
}

func TestSeedYearIsIdempotent(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, newFakeBatch(), nil)
	ctx := context.Background()

	created, err := svc.SeedYear(ctx, 2026)
	require.NoError(t, err)
	require.Len(t, created, 24)

	created, err = svc.SeedYear(ctx, 2026)
	require.NoError(t, err)
	require.Empty(t, created)

	_, err = svc.SeedYear(ctx, 1999)
	require.ErrorIs(t, err, shared.ErrValidation)

	p, err := svc.GetPeriodByCode(ctx, "Feb23-2026")
	require.NoError(t, err)
	require.Equal(t, date(2026, time.February, 9), p.StartDate)
}

func TestFullLifecycle(t *testing.T) {
	repo := newMemoryRepo()
	batch := newFakeBatch(1, 2)
	batch.remaining[2] = decimal.RequireFromString("2600")
	svc, audit := newTestService(repo, batch, nil)
	ctx := context.Background()
	p := repo.seed(date(2026, time.January, 8), StatusPending)

	report, err := svc.Cutoff(ctx, p.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCutoff, report.Status)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, ResultCreated, report.Items[0].Result)

	_, err = svc.ClosePeriod(ctx, p.ID, 9)
	var conflict *shared.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, "CUTOFF", conflict.Current)

	got, err := svc.OpenCollection(ctx, p.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusCollecting, got.Status)
	require.Equal(t, 2, batch.sent)

	got, err = svc.StartSettlement(ctx, p.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusSettling, got.Status)

	closed, err := svc.ClosePeriod(ctx, p.ID, 9)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, closed.Status)
	require.Equal(t, ResultClosed, closed.Items[0].Result)
	require.Equal(t, ResultAbsorbed, closed.Items[1].Result)
	require.Equal(t, "2600", closed.Items[1].DebtAmount.String())

	again, err := svc.ClosePeriod(ctx, p.ID, 9)
	require.NoError(t, err)
	require.True(t, again.AlreadyClosed)
	require.Empty(t, again.Items)

	stored, err := repo.Get(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ClosedBy)
	require.Equal(t, int64(9), *stored.ClosedBy)
	require.Equal(t, []string{"period.cutoff", "period.collect", "period.settle", "period.close"}, audit.Actions())
}

func TestBackwardTransitionsRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, newFakeBatch(), nil)
	ctx := context.Background()
	p := repo.seed(date(2026, time.January, 8), StatusSettling)

	_, err := svc.OpenCollection(ctx, p.ID, 1)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.StartSettlement(ctx, p.ID, 1)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.Cutoff(ctx, p.ID, 1)
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestCutoffBeforeCutDateRejected(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, newFakeBatch(1), nil)
	p := repo.seed(date(2026, time.January, 23), StatusPending)

	_, err := svc.Cutoff(context.Background(), p.ID, 1)
	require.ErrorIs(t, err, shared.ErrPreconditionFailed)
}

func TestCutoffRerunGeneratesMissingOnly(t *testing.T) {
	repo := newMemoryRepo()
	batch := newFakeBatch(1, 2, 3)
	batch.failFor[2] = true
	svc, _ := newTestService(repo, batch, nil)
	ctx := context.Background()
	p := repo.seed(date(2026, time.January, 8), StatusLegacyActive)

	report, err := svc.Cutoff(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, ResultFailed, report.Items[1].Result)
	require.Equal(t, "boom", report.Items[1].Error)

	delete(batch.failFor, 2)
	report, err = svc.Cutoff(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, 0, report.Failed)
	require.Equal(t, ResultExisting, report.Items[0].Result)
	require.Equal(t, ResultCreated, report.Items[1].Result)
	require.Equal(t, ResultExisting, report.Items[2].Result)
}

func TestCloseIsolatesFailuresAndStaysSettling(t *testing.T) {
	repo := newMemoryRepo()
	batch := newFakeBatch(1, 2, 3)
	batch.failFor[3] = true
	svc, _ := newTestService(repo, batch, nil)
	ctx := context.Background()
	p := repo.seed(date(2026, time.January, 8), StatusSettling)

	report, err := svc.ClosePeriod(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusSettling, report.Status)
	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 1, report.Failed)
	stored, _ := repo.Get(ctx, p.ID)
	require.Equal(t, StatusSettling, stored.Status)

	delete(batch.failFor, 3)
	report, err = svc.ClosePeriod(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, report.Status)
	require.Equal(t, ResultSettled, report.Items[0].Result)
	require.Equal(t, ResultSettled, report.Items[1].Result)
	require.Equal(t, ResultClosed, report.Items[2].Result)
}

func TestRunScheduledCutoffProcessesDuePeriods(t *testing.T) {
	repo := newMemoryRepo()
	svc, _ := newTestService(repo, newFakeBatch(1), nil)
	ctx := context.Background()
	repo.seed(date(2025, time.December, 23), StatusPending)
	repo.seed(date(2026, time.January, 8), StatusLegacyActive)
	repo.seed(date(2026, time.January, 23), StatusPending)

	reports, err := svc.RunScheduledCutoff(ctx, testNow)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	require.Equal(t, "Dec23-2025", reports[0].PeriodCode)
	require.Equal(t, "Jan08-2026", reports[1].PeriodCode)

	pending, err := svc.ListPeriods(ctx, StatusPending, shared.NewPage(50, 0))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "Jan23-2026", pending[0].Code)
}

func TestBatchLockExcludesConcurrentRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	locker := cache.NewLocker(client)

	repo := newMemoryRepo()
	svc, _ := newTestService(repo, newFakeBatch(1), locker)
	ctx := context.Background()
	p := repo.seed(date(2026, time.January, 8), StatusSettling)

	release, err := locker.Acquire(ctx, shared.PeriodLockKey(p.ID), time.Minute)
	require.NoError(t, err)
	_, err = svc.ClosePeriod(ctx, p.ID, 1)
	require.ErrorIs(t, err, shared.ErrConflict)

	release()
	report, err := svc.ClosePeriod(ctx, p.ID, 1)
	require.NoError(t, err)
	require.Equal(t, StatusClosed, report.Status)
}
