package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/credinet/credinet/internal/jobs"
	"github.com/credinet/credinet/internal/payments"
)

type paymentSweeper interface {
	Sweep(ctx context.Context, asOf time.Time) (payments.SweepResult, error)
}

type overdueMarker interface {
	MarkOverdue(ctx context.Context, asOf time.Time) (int, error)
}

// PaymentSweepJob derives DUE_TODAY, OVERDUE and IN_COLLECTION daily.
type PaymentSweepJob struct {
	Payments paymentSweeper
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewPaymentSweepJob wires the sweep handler.
func NewPaymentSweepJob(svc paymentSweeper, logger *slog.Logger, metrics *jobmetrics.Metrics) *PaymentSweepJob {
	return &PaymentSweepJob{Payments: svc, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskPaymentSweep.
func (j *PaymentSweepJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Payments == nil {
		return errors.New("payment sweep: handler not configured")
	}
	asOf, ok := parseDate(t, nowOr(j.clock))
	if !ok {
		return asynq.SkipRetry
	}
	tracker := metricsOr(j.Metrics).Track(TaskPaymentSweep)
	defer func() { err = tracker.End(err) }()

	res, err := j.Payments.Sweep(ctx, asOf)
	if err != nil {
		jobLogger(j.Logger, TaskPaymentSweep).Error("sweep failed", slog.Any("error", err))
		return err
	}
	metricsOr(j.Metrics).AddItems(TaskPaymentSweep, "payments_updated", res.PaymentsUpdated)
	metricsOr(j.Metrics).AddItems(TaskPaymentSweep, "loans_overdue", res.LoansOverdue)
	metricsOr(j.Metrics).AddItems(TaskPaymentSweep, "loans_recovered", res.LoansRecovered)
	jobLogger(j.Logger, TaskPaymentSweep).Info("sweep complete",
		slog.String("as_of", asOf.Format(time.DateOnly)),
		slog.Int("payments_updated", res.PaymentsUpdated),
		slog.Int("loans_overdue", res.LoansOverdue),
		slog.Int("loans_recovered", res.LoansRecovered))
	return nil
}

// StatementOverdueJob marks statements OVERDUE once their payment date passes.
type StatementOverdueJob struct {
	Statements overdueMarker
	Logger     *slog.Logger
	Metrics    *jobmetrics.Metrics
	clock      func() time.Time
}

// NewStatementOverdueJob wires the overdue handler.
func NewStatementOverdueJob(svc overdueMarker, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatementOverdueJob {
	return &StatementOverdueJob{Statements: svc, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskStatementOverdue.
func (j *StatementOverdueJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Statements == nil {
		return errors.New("statement overdue: handler not configured")
	}
	asOf, ok := parseDate(t, nowOr(j.clock))
	if !ok {
		return asynq.SkipRetry
	}
	tracker := metricsOr(j.Metrics).Track(TaskStatementOverdue)
	defer func() { err = tracker.End(err) }()

	n, err := j.Statements.MarkOverdue(ctx, asOf)
	if err != nil {
		jobLogger(j.Logger, TaskStatementOverdue).Error("mark overdue failed", slog.Any("error", err))
		return err
	}
	metricsOr(j.Metrics).AddItems(TaskStatementOverdue, "overdue", n)
	return nil
}

type keyCleaner interface {
	Cleanup(ctx context.Context, before time.Time) (int, error)
}

// IdempotencyCleanupJob drops Idempotency-Key records older than the retention window.
type IdempotencyCleanupJob struct {
	Keys      keyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewIdempotencyCleanupJob wires the cleanup handler.
func NewIdempotencyCleanupJob(keys keyCleaner, retention time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *IdempotencyCleanupJob {
	return &IdempotencyCleanupJob{Keys: keys, Retention: retention, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskIdempotencyCleanup.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	if j.Retention <= 0 {
		return asynq.SkipRetry
	}
	asOf, ok := parseDate(t, nowOr(j.clock))
	if !ok {
		return asynq.SkipRetry
	}
	tracker := metricsOr(j.Metrics).Track(TaskIdempotencyCleanup)
	defer func() { err = tracker.End(err) }()

	n, err := j.Keys.Cleanup(ctx, asOf.Add(-j.Retention))
	if err != nil {
		jobLogger(j.Logger, TaskIdempotencyCleanup).Error("cleanup failed", slog.Any("error", err))
		return err
	}
	metricsOr(j.Metrics).AddItems(TaskIdempotencyCleanup, "deleted", n)
	return nil
}

func parseDate(t *asynq.Task, now time.Time) (time.Time, bool) {
	var payload DatePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return time.Time{}, false
		}
	}
	asOf, err := payload.date(now)
	return asOf, err == nil
}

func nowOr(clock func() time.Time) time.Time {
	if clock != nil {
		return clock()
	}
	return time.Now().UTC()
}

func metricsOr(m *jobmetrics.Metrics) *jobmetrics.Metrics {
	if m != nil {
		return m
	}
	return defaultJobMetrics
}

func jobLogger(l *slog.Logger, job string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("job", job))
}
