package periods

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/credinet/credinet/internal/platform/cache"
	"github.com/credinet/credinet/internal/shared"
)

// RepositoryPort abstracts cut-period persistence.
type RepositoryPort interface {
	Get(ctx context.Context, id int64) (CutPeriod, error)
	GetByCode(ctx context.Context, code string) (CutPeriod, error)
	List(ctx context.Context, status Status, page shared.Page) ([]CutPeriod, error)
	Insert(ctx context.Context, p CutPeriod) (CutPeriod, bool, error)
	Transition(ctx context.Context, id int64, from, to Status, actorID int64, at time.Time) error
	DueForCutoff(ctx context.Context, asOf time.Time) ([]CutPeriod, error)
	CountInPhase(ctx context.Context, excludeID int64, phases ...Status) (int, error)
}

// StatementBatch performs the per-associate work of each phase.
type StatementBatch interface {
	AssociatesWithActivity(ctx context.Context, period CutPeriod) ([]int64, error)
	Generate(ctx context.Context, period CutPeriod, associateID int64) (GenerateResult, error)
	OpenForCollection(ctx context.Context, periodID int64) (int, error)
	FreezeForSettlement(ctx context.Context, periodID int64) (int, error)
	StatementsForClose(ctx context.Context, periodID int64) ([]StatementRef, error)
	Settle(ctx context.Context, statementID, actorID int64) (SettleResult, error)
}

// Locker serialises batch operations on one period.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// Options tunes batch execution.
type Options struct {
	Concurrency int
	LockTTL     time.Duration
}

// Service implements the cut-period lifecycle.
type Service struct {
	repo   RepositoryPort
	batch  StatementBatch
	locker Locker
	audit  shared.AuditPort
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, batch StatementBatch, locker Locker, audit shared.AuditPort, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 5 * time.Minute
	}
	return &Service{repo: repo, batch: batch, locker: locker, audit: audit, opts: opts, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// SeedYear creates the 24 periods of a year, skipping existing codes.
func (s *Service) SeedYear(ctx context.Context, year int) ([]CutPeriod, error) {
	if year < 2000 || year > 2100 {
		return nil, shared.Invalid("year", "must be between 2000 and 2100")
	}
	var created []CutPeriod
	for _, cut := range CutDates(year) {
		p, err := BuildPeriod(cut)
		if err != nil {
			return nil, err
		}
		stored, ok, err := s.repo.Insert(ctx, p)
		if err != nil {
			return nil, err
		}
		if ok {
			created = append(created, stored)
		}
	}
	s.logger.Info("periods seeded", slog.Int("year", year), slog.Int("created", len(created)))
	return created, nil
}

// GetPeriod loads a period.
func (s *Service) GetPeriod(ctx context.Context, id int64) (CutPeriod, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return CutPeriod{}, err
	}
	p.Status = p.Status.Normalize()
	return p, nil
}

// GetPeriodByCode loads a period by its code.
func (s *Service) GetPeriodByCode(ctx context.Context, code string) (CutPeriod, error) {
	p, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return CutPeriod{}, err
	}
	p.Status = p.Status.Normalize()
	return p, nil
}

// ListPeriods pages through periods, optionally filtered by status.
func (s *Service) ListPeriods(ctx context.Context, status Status, page shared.Page) ([]CutPeriod, error) {
	if status != "" {
		if !status.Valid() {
			return nil, shared.Invalid("status", "unknown period status %q", status)
		}
	}
	items, err := s.repo.List(ctx, status.Normalize(), page)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = items[i].Status.Normalize()
	}
	return items, nil
}

// Cutoff moves a due period to CUTOFF and generates one statement per associate
// with activity. Re-running on a CUTOFF period generates only what is missing.
func (s *Service) Cutoff(ctx context.Context, periodID, actorID int64) (BatchReport, error) {
	release, err := s.lock(ctx, periodID)
	if err != nil {
		return BatchReport{}, err
	}
	defer release()

	p, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return BatchReport{}, err
	}
	switch p.Status {
	case StatusPending:
		if day(s.now()).Before(p.CutDate) {
			return BatchReport{}, shared.PreconditionFailed("period %s is not due until %s", p.Code, p.CutDate.Format(time.DateOnly))
		}
		if err := s.repo.Transition(ctx, p.ID, StatusPending, StatusCutoff, actorID, s.now()); err != nil {
			return BatchReport{}, err
		}
		p.Status = StatusCutoff
		s.record(ctx, actorID, "period.cutoff", p, nil)
	case StatusCutoff:
	default:
		return BatchReport{}, shared.Conflict("period", p.ID, string(p.Status), "cutoff requires PENDING")
	}

	associates, err := s.batch.AssociatesWithActivity(ctx, p)
	if err != nil {
		return BatchReport{}, err
	}
	report := BatchReport{PeriodID: p.ID, PeriodCode: p.Code, Status: p.Status, Items: make([]ItemOutcome, len(associates))}
	s.fanOut(len(associates), func(i int) {
		out := ItemOutcome{AssociateID: associates[i]}
		res, err := s.batch.Generate(ctx, p, associates[i])
		switch {
		case err != nil:
			out.Result = ResultFailed
			out.Error = err.Error()
			s.logger.Error("statement generation failed", slog.Int64("period_id", p.ID),
				slog.Int64("associate_id", associates[i]), slog.Any("error", err))
		case res.Created:
			out.StatementID = res.StatementID
			out.Result = ResultCreated
		default:
			out.StatementID = res.StatementID
			out.Result = ResultExisting
		}
		report.Items[i] = out
	})
	report.tally()
	s.logger.Info("period cutoff", slog.String("period", p.Code),
		slog.Int("succeeded", report.Succeeded), slog.Int("failed", report.Failed))
	return report, nil
}

// RunScheduledCutoff cuts every period whose cut date has been reached.
// One failing period does not stop the others.
func (s *Service) RunScheduledCutoff(ctx context.Context, asOf time.Time) ([]BatchReport, error) {
	due, err := s.repo.DueForCutoff(ctx, day(asOf))
	if err != nil {
		return nil, err
	}
	var (
		reports []BatchReport
		errs    []error
	)
	for _, p := range due {
		report, err := s.Cutoff(ctx, p.ID, 0)
		if err != nil {
			s.logger.Error("scheduled cutoff", slog.String("period", p.Code), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		reports = append(reports, report)
	}
	return reports, errors.Join(errs...)
}

// OpenCollection sends the period's statements and moves it to COLLECTING.
func (s *Service) OpenCollection(ctx context.Context, periodID, actorID int64) (CutPeriod, error) {
	release, err := s.lock(ctx, periodID)
	if err != nil {
		return CutPeriod{}, err
	}
	defer release()

	p, err := s.expect(ctx, periodID, StatusCutoff)
	if err != nil {
		return CutPeriod{}, err
	}
	if n, err := s.repo.CountInPhase(ctx, p.ID, StatusCollecting, StatusSettling); err == nil && n > 0 {
		s.logger.Warn("another period is still being collected", slog.String("period", p.Code), slog.Int("open", n))
	}
	sent, err := s.batch.OpenForCollection(ctx, p.ID)
	if err != nil {
		return CutPeriod{}, err
	}
	if err := s.repo.Transition(ctx, p.ID, StatusCutoff, StatusCollecting, actorID, s.now()); err != nil {
		return CutPeriod{}, err
	}
	p.Status = StatusCollecting
	s.record(ctx, actorID, "period.collect", p, map[string]any{"statements_sent": sent})
	return p, nil
}

// StartSettlement freezes abonos and marks unpaid statements OVERDUE.
func (s *Service) StartSettlement(ctx context.Context, periodID, actorID int64) (CutPeriod, error) {
	release, err := s.lock(ctx, periodID)
	if err != nil {
		return CutPeriod{}, err
	}
	defer release()

	p, err := s.expect(ctx, periodID, StatusCollecting)
	if err != nil {
		return CutPeriod{}, err
	}
	overdue, err := s.batch.FreezeForSettlement(ctx, p.ID)
	if err != nil {
		return CutPeriod{}, err
	}
	if err := s.repo.Transition(ctx, p.ID, StatusCollecting, StatusSettling, actorID, s.now()); err != nil {
		return CutPeriod{}, err
	}
	p.Status = StatusSettling
	s.record(ctx, actorID, "period.settle", p, map[string]any{"statements_overdue": overdue})
	return p, nil
}

// ClosePeriod settles every statement and closes the period once all succeed.
// Closing a CLOSED period is a no-op reported as AlreadyClosed.
func (s *Service) ClosePeriod(ctx context.Context, periodID, actorID int64) (BatchReport, error) {
	release, err := s.lock(ctx, periodID)
	if err != nil {
		return BatchReport{}, err
	}
	defer release()

	p, err := s.GetPeriod(ctx, periodID)
	if err != nil {
		return BatchReport{}, err
	}
	report := BatchReport{PeriodID: p.ID, PeriodCode: p.Code, Status: p.Status}
	switch p.Status {
	case StatusClosed:
		report.AlreadyClosed = true
		return report, nil
	case StatusSettling:
	default:
		return BatchReport{}, shared.Conflict("period", p.ID, string(p.Status), "close requires SETTLING")
	}

	refs, err := s.batch.StatementsForClose(ctx, p.ID)
	if err != nil {
		return BatchReport{}, err
	}
	report.Items = make([]ItemOutcome, len(refs))
	s.fanOut(len(refs), func(i int) {
		out := ItemOutcome{AssociateID: refs[i].AssociateID, StatementID: refs[i].ID}
		res, err := s.batch.Settle(ctx, refs[i].ID, actorID)
		switch {
		case err != nil:
			out.Result = ResultFailed
			out.Error = err.Error()
			s.logger.Error("statement close failed", slog.Int64("period_id", p.ID),
				slog.Int64("statement_id", refs[i].ID), slog.Any("error", err))
		case res.AlreadySettled:
			out.Result = ResultSettled
		case res.Absorbed:
			out.Result = ResultAbsorbed
			debt := res.DebtAmount
			out.DebtAmount = &debt
		default:
			out.Result = ResultClosed
		}
		if err == nil && res.LateFee.IsPositive() {
			fee := res.LateFee
			out.LateFee = &fee
		}
		report.Items[i] = out
	})
	report.tally()
	if report.Failed > 0 {
		s.logger.Warn("period left in settlement", slog.String("period", p.Code), slog.Int("failed", report.Failed))
		return report, nil
	}
	if err := s.repo.Transition(ctx, p.ID, StatusSettling, StatusClosed, actorID, s.now()); err != nil {
		return BatchReport{}, err
	}
	report.Status = StatusClosed
	s.record(ctx, actorID, "period.close", p, map[string]any{"statements": len(refs)})
	s.logger.Info("period closed", slog.String("period", p.Code), slog.Int("statements", len(refs)))
	return report, nil
}

func (s *Service) expect(ctx context.Context, id int64, want Status) (CutPeriod, error) {
	p, err := s.GetPeriod(ctx, id)
	if err != nil {
		return CutPeriod{}, err
	}
	if p.Status != want {
		next, _ := want.Next()
		return CutPeriod{}, shared.Conflict("period", p.ID, string(p.Status), "moving to "+string(next)+" requires "+string(want))
	}
	return p, nil
}

func (s *Service) lock(ctx context.Context, periodID int64) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	release, err := s.locker.Acquire(ctx, shared.PeriodLockKey(periodID), s.opts.LockTTL)
	if errors.Is(err, cache.ErrLockHeld) {
		return nil, shared.Conflict("period", periodID, "", "another batch is running")
	}
	return release, err
}

// fanOut runs fn for every index with bounded concurrency. Items never abort each other.
func (s *Service) fanOut(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) record(ctx context.Context, actorID int64, action string, p CutPeriod, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	meta["period_code"] = p.Code
	if err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cut_period",
		EntityID: strconv.FormatInt(p.ID, 10),
		Meta:     meta,
	}); err != nil {
		s.logger.Warn("audit", slog.String("action", action), slog.Any("error", err))
	}
}
