package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/credinet/credinet/internal/jobs"
	"github.com/credinet/credinet/internal/periods"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

type cutoffRunner interface {
	Cutoff(ctx context.Context, periodID, actorID int64) (periods.BatchReport, error)
	RunScheduledCutoff(ctx context.Context, asOf time.Time) ([]periods.BatchReport, error)
}

// CutoffJob runs scheduled period cutoffs.
type CutoffJob struct {
	Periods cutoffRunner
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewCutoffJob wires the cutoff handler.
func NewCutoffJob(svc cutoffRunner, logger *slog.Logger, metrics *jobmetrics.Metrics) *CutoffJob {
	return &CutoffJob{Periods: svc, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle processes TaskPeriodCutoff.
func (j *CutoffJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Periods == nil {
		return errors.New("cutoff: handler not configured")
	}
	var payload CutoffPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := payload.date(j.now())
	if err != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskPeriodCutoff)
	defer func() { err = tracker.End(err) }()

	logger := j.logger().With(slog.String("as_of", asOf.Format(time.DateOnly)))
	var reports []periods.BatchReport
	if payload.PeriodID > 0 {
		report, cerr := j.Periods.Cutoff(ctx, payload.PeriodID, 0)
		if cerr != nil {
			logger.Error("cutoff failed", slog.Int64("period_id", payload.PeriodID), slog.Any("error", cerr))
			return cerr
		}
		reports = append(reports, report)
	} else {
		reports, err = j.Periods.RunScheduledCutoff(ctx, asOf)
	}
	for _, r := range reports {
		counts := map[string]int{}
		for _, it := range r.Items {
			counts[it.Result]++
		}
		for result, n := range counts {
			j.metrics().AddItems(TaskPeriodCutoff, result, n)
		}
		logger.Info("period cut", slog.String("period", r.PeriodCode),
			slog.Int("succeeded", r.Succeeded), slog.Int("failed", r.Failed))
	}
	if err != nil {
		logger.Error("scheduled cutoff incomplete", slog.Any("error", err))
	}
	return err
}

func (j *CutoffJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPeriodCutoff))
	}
	return slog.Default().With(slog.String("job", TaskPeriodCutoff))
}

func (j *CutoffJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *CutoffJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
