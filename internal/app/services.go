package app

import (
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/credinet/credinet/internal/associates"
	"github.com/credinet/credinet/internal/debts"
	"github.com/credinet/credinet/internal/loans"
	"github.com/credinet/credinet/internal/payments"
	"github.com/credinet/credinet/internal/periods"
	"github.com/credinet/credinet/internal/platform/cache"
	"github.com/credinet/credinet/internal/rates"
	"github.com/credinet/credinet/internal/shared"
	"github.com/credinet/credinet/internal/statements"
)

// Services is the domain graph shared by the server and the worker.
type Services struct {
	Rates      *rates.Catalog
	Associates *associates.Service
	Loans      *loans.Service
	Payments   *payments.Service
	Periods    *periods.Service
	Statements *statements.Service
	Debts      *debts.Service
	Audit      *shared.AuditLogger
}

// NewServices builds repositories and services over the pool. redisClient may be nil, which
// disables the schedule cache and the period lock.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	catalog, err := rates.LoadCatalog(cfg.RateCatalogPath, cfg.LoanAmountIncrement)
	if err != nil {
		return nil, fmt.Errorf("load rate catalog: %w", err)
	}

	audit := shared.NewAuditLogger(pool)

	var scheduleCache *cache.JSONCache
	if redisClient != nil {
		scheduleCache = cache.NewJSONCache(redisClient, cfg.ScheduleCacheTTL)
	}

	statementService := statements.NewService(statements.NewRepository(pool), audit, cfg.LateFeeRate, logger.With(slog.String("service", "statements"))).
		WithScheduleCache(invalidatorOrNil(scheduleCache))
	periodService := periods.NewService(
		periods.NewRepository(pool),
		statementService,
		cache.NewLocker(redisClient),
		audit,
		periods.Options{Concurrency: cfg.BatchConcurrency, LockTTL: cfg.LockTTL},
		logger.With(slog.String("service", "periods")),
	)

	svc := &Services{
		Rates:      catalog,
		Associates: associates.NewService(associates.NewRepository(pool), audit),
		Loans:      loans.NewService(loans.NewRepository(pool), catalog, audit, scheduleCacheOrNil(scheduleCache), logger.With(slog.String("service", "loans"))),
		Payments:   payments.NewService(payments.NewRepository(pool), audit, invalidatorOrNil(scheduleCache), logger.With(slog.String("service", "payments"))),
		Periods:    periodService,
		Statements: statementService,
		Debts:      debts.NewService(debts.NewRepository(pool), audit, logger.With(slog.String("service", "debts"))),
		Audit:      audit,
	}
	return svc, nil
}

func scheduleCacheOrNil(c *cache.JSONCache) loans.ScheduleCache {
	if c == nil {
		return nil
	}
	return c
}

func invalidatorOrNil(c *cache.JSONCache) payments.CacheInvalidator {
	if c == nil {
		return nil
	}
	return c
}
