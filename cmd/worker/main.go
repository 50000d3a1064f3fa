// Package main - точка входа для фоновых процессов (Worker).
//
// Worker отвечает за периодическую сверку прогресса:
// - Пересчёт процента завершения после изменения структуры курса
// - Выдача сертификатов, которые стали положены без запроса студента
//
// Все записи идут через ту же сагу и те же блокировки, что и в API,
// поэтому Worker можно запускать рядом с несколькими экземплярами API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillforge/lms-backend/config"
	"github.com/skillforge/lms-backend/internal/application/eventhandler"
	"github.com/skillforge/lms-backend/internal/application/saga"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"

	// Infrastructure layer
	"github.com/skillforge/lms-backend/internal/infrastructure/lock"
	"github.com/skillforge/lms-backend/internal/infrastructure/messaging"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/memory"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/postgres"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/redis"
	"github.com/skillforge/lms-backend/internal/infrastructure/scheduler"
	"github.com/skillforge/lms-backend/internal/infrastructure/scheduler/jobs"

	"github.com/skillforge/lms-backend/pkg/circuitbreaker"
	"github.com/skillforge/lms-backend/pkg/logger"
	"github.com/skillforge/lms-backend/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "worker failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	log := logger.New(opts).With(logger.String("service", cfg.App.Name+"-worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler disabled, nothing to do")
		return nil
	}
	if cfg.Database.URL == "" {
		return errors.New("DATABASE_URL is required for the worker")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. POSTGRESQL
	// ─────────────────────────────────────────────────────────────────────────
	pgConfig := postgres.DefaultConfig()
	pgConfig.URL = cfg.Database.URL
	pgConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgConfig.QueryTimeout = cfg.Database.QueryTimeout

	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.NewConnection(ctx, pgConfig)
	}, retry.WithMaxAttempts(5), retry.WithInitialDelay(500*time.Millisecond))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()
	log.Info("database connection established")

	courses := postgres.NewCourseRepository(conn)
	enrollments := postgres.NewEnrollmentRepository(conn)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. REDIS (блокировки общие с API)
	// ─────────────────────────────────────────────────────────────────────────
	var (
		locker    enrollment.Locker        = lock.NewKeyedMutex()
		snapshots enrollment.SnapshotCache = memory.NewSnapshotCache()
	)
	if cfg.Redis.Disabled {
		log.Warn("redis disabled, locks are process-local and do not exclude the API")
	} else {
		cache, err := redis.NewCache(ctx, redis.Config{
			URL:          cfg.Redis.URL,
			Host:         cfg.Redis.Host,
			Port:         cfg.Redis.Port,
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer func() { _ = cache.Close() }()
		locker = redis.NewEnrollmentLocker(cache, cfg.Progress.LockTTL, cfg.Progress.LockAttempts, log)
		snapshots = redis.NewSnapshotCache(cache, cfg.Progress.SnapshotCacheTTL,
			redis.WithBreaker(circuitbreaker.ForCache("snapshot-cache", logBreaker(log))))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS И САГА
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.Logger = log
	eventBus := messaging.New(busConfig)
	defer func() { _ = eventBus.Close() }()

	if err := eventBus.Subscribe(shared.EventCertificateIssued,
		eventhandler.NewOnCertificateIssuedHandler(snapshots, log).Handle); err != nil {
		return fmt.Errorf("failed to subscribe certificate handler: %w", err)
	}
	if err := eventBus.SubscribeAll(eventhandler.NewAuditLogHandler(log).Handle); err != nil {
		return fmt.Errorf("failed to subscribe audit handler: %w", err)
	}

	issuer := enrollment.NewCertificateIssuer(enrollment.IssuerConfig{
		Prefix:       cfg.Certificate.Prefix,
		SecureSuffix: cfg.Features.IsEnabled(config.FeatureCertificateSecureSuffix, nil),
	})
	flow := saga.NewProgressFlowSaga(saga.ProgressFlowDeps{
		Courses:     courses,
		Enrollments: enrollments,
		Engine:      enrollment.NewEngine(issuer),
		Locker:      locker,
		Snapshots:   snapshots,
		EventBus:    eventBus,
		Logger:      log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.NewScheduler(scheduler.SchedulerConfig{
		Logger:         log,
		Timezone:       time.UTC,
		JobTimeout:     cfg.Scheduler.JobTimeout,
		MaxHistorySize: 100,
	})

	schedule, err := scheduler.ParseCron(cfg.Scheduler.ReconcileSpec)
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule: %w", err)
	}
	reconcile := jobs.NewReconcileProgressJob(enrollments, flow, log, jobs.ReconcileProgressConfig{
		BatchSize: cfg.Scheduler.ReconcileBatchSize,
	})
	if err := sched.Register(reconcile, schedule); err != nil {
		return fmt.Errorf("failed to register reconcile job: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("worker started", logger.String("reconcile_schedule", schedule.String()))

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ОЖИДАНИЕ СИГНАЛА
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	if err := sched.Stop(); err != nil {
		log.Error("failed to stop scheduler", logger.Err(err))
		return err
	}
	log.Info("worker stopped")
	return nil
}

// logBreaker пишет в лог смену состояния circuit breaker.
func logBreaker(log *logger.Logger) func(name string, from, to circuitbreaker.State) {
	return func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	}
}
