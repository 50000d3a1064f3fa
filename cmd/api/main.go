// Package main - точка входа HTTP API движка прогресса и сертификации.
//
// API принимает отметки о прохождении модулей, упражнений, активностей
// и квизов, пересчитывает процент завершения, ведёт статус записи на курс
// и выдаёт сертификат, когда выполнены все условия.
//
// Архитектура следует принципам Clean Architecture и DDD:
// - Domain: курс, запись на курс, агрегатор прогресса, выдача сертификата
// - Application: команды, запросы, сага пересчёта прогресса
// - Infrastructure: PostgreSQL, Redis, каталог курсов, шина событий
// - Interface: REST API на gin
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

	// Application layer
	"github.com/skillforge/lms-backend/internal/application/command"
	"github.com/skillforge/lms-backend/internal/application/eventhandler"
	"github.com/skillforge/lms-backend/internal/application/query"
	"github.com/skillforge/lms-backend/internal/application/saga"

	// Domain layer
	"github.com/skillforge/lms-backend/internal/domain/course"
	"github.com/skillforge/lms-backend/internal/domain/enrollment"
	"github.com/skillforge/lms-backend/internal/domain/shared"

	// Infrastructure layer
	"github.com/skillforge/lms-backend/internal/infrastructure/catalog"
	"github.com/skillforge/lms-backend/internal/infrastructure/lock"
	"github.com/skillforge/lms-backend/internal/infrastructure/messaging"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/memory"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/postgres"
	"github.com/skillforge/lms-backend/internal/infrastructure/persistence/redis"
	"github.com/skillforge/lms-backend/internal/infrastructure/service"

	// Interface layer
	httpserver "github.com/skillforge/lms-backend/internal/interface/http"
	"github.com/skillforge/lms-backend/internal/interface/http/handlers"

	// Packages
	"github.com/skillforge/lms-backend/pkg/circuitbreaker"
	"github.com/skillforge/lms-backend/pkg/logger"
	"github.com/skillforge/lms-backend/pkg/retry"
)

const devJWTSecret = "dev-only-secret"

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

// coursePurger сбрасывает все кэшированные снимки курса.
type coursePurger interface {
	InvalidateCourse(ctx context.Context, courseID string) (int, error)
}

// storage объединяет репозитории и их инфраструктуру.
type storage struct {
	courses     course.Repository
	enrollments enrollment.Repository
	entries     enrollment.ProgressEntryRepository
	locker      enrollment.Locker
	snapshots   enrollment.SnapshotCache
	closers     []func()
}

func (s *storage) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	defer func() { _ = log.Sync() }()

	log.Info("starting LMS progress API",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	health := handlers.NewHealthRegistry(cfg.App.Version, 3*time.Second)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ (PostgreSQL или память) И REDIS
	// ─────────────────────────────────────────────────────────────────────────
	store, err := openStorage(ctx, cfg, log, health)
	if err != nil {
		return err
	}
	defer store.close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. КАТАЛОГ КУРСОВ
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Catalog.Dir != "" {
		loader := catalog.NewLoader(cfg.Catalog.Dir, log)
		if purger, ok := store.snapshots.(coursePurger); ok {
			// Снимки в Redis переживают рестарт и могут ссылаться на старый список модулей.
			loader.AfterSave(func(ctx context.Context, c *course.Course) error {
				_, err := purger.InvalidateCourse(ctx, c.ID)
				return err
			})
		}
		if _, err := loader.Seed(ctx, store.courses); err != nil {
			return fmt.Errorf("failed to seed course catalog: %w", err)
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS И ОБРАБОТЧИКИ СОБЫТИЙ
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultConfig()
	busConfig.Logger = log
	eventBus := messaging.New(busConfig)
	defer func() {
		_ = eventBus.Close()
		stats := eventBus.Stats()
		log.Info("event bus drained",
			logger.Int64("published", stats.Published),
			logger.Int64("failed", stats.Failed),
			logger.Int64("inline", stats.Inline),
		)
	}()

	if err := eventBus.Subscribe(shared.EventCertificateIssued,
		eventhandler.NewOnCertificateIssuedHandler(store.snapshots, log).Handle); err != nil {
		return fmt.Errorf("failed to subscribe certificate handler: %w", err)
	}
	if err := eventBus.SubscribeAll(eventhandler.NewAuditLogHandler(log).Handle); err != nil {
		return fmt.Errorf("failed to subscribe audit handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ДВИЖОК ПРОГРЕССА И САГА
	// ─────────────────────────────────────────────────────────────────────────
	features := cfg.Features
	for _, name := range features.Names() {
		rollout, _ := features.Rollout(name)
		log.Debug("feature flag", logger.String("flag", name), logger.Int("rollout", rollout))
	}
	issuer := enrollment.NewCertificateIssuer(enrollment.IssuerConfig{
		Prefix:       cfg.Certificate.Prefix,
		SecureSuffix: features.IsEnabled(config.FeatureCertificateSecureSuffix, nil),
	})

	signer, err := service.NewCertificateVerifier(cfg.Certificate.VerificationKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate verifier: %w", err)
	}
	if cfg.Certificate.VerificationKey == "" {
		log.Warn("CERTIFICATE_VERIFICATION_KEY is empty, verification codes are unkeyed")
	}

	flow := saga.NewProgressFlowSaga(saga.ProgressFlowDeps{
		Courses:     store.courses,
		Enrollments: store.enrollments,
		Engine:      enrollment.NewEngine(issuer),
		Locker:      store.locker,
		Snapshots:   store.snapshots,
		EventBus:    eventBus,
		Logger:      log,
	})

	toggle := func(name string) query.Toggle {
		return func(studentID string) bool {
			return features.IsEnabled(name, &config.FeatureContext{StudentID: studentID})
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	httpConfig := httpserver.ConfigFrom(cfg)
	if httpConfig.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty, using the development secret")
		httpConfig.JWTSecret = devJWTSecret
	}

	httpServer := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Enroll:               command.NewEnrollHandler(store.courses, store.enrollments, flow, eventBus, log),
		UpdateProgress:       command.NewUpdateProgressHandler(flow, log),
		SetEnrollmentStatus:  command.NewSetEnrollmentStatusHandler(flow, log),
		MarkModuleComplete:   command.NewMarkModuleCompleteHandler(flow, store.entries, log),
		TogglePracticeItem:   command.NewTogglePracticeItemHandler(flow, log),
		SubmitQuiz:           command.NewSubmitQuizHandler(flow, log),
		ListMyEnrollments:    query.NewListMyEnrollmentsHandler(store.enrollments, store.courses, flow, toggle(config.FeatureRecomputeOnRead), log),
		GetProgressSnapshot:  query.NewGetProgressSnapshotHandler(flow, store.entries, store.snapshots, toggle(config.FeatureSnapshotCache), log),
		GetCertificateStatus: query.NewGetCertificateStatusHandler(flow, signer, log),
		VerifyCertificate:    query.NewVerifyCertificateHandler(store.enrollments, store.courses, signer),
		Features:             features,
		HealthChecker:        health,
		Logger:               log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	errCh := httpServer.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case err, ok := <-errCh:
		if ok && err != nil {
			log.Error("http server failed", logger.Err(err))
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", logger.Duration("timeout", cfg.App.ShutdownTimeout))
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", logger.Err(err))
		return err
	}

	log.Info("shutdown completed successfully")
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// openStorage подключает PostgreSQL и Redis. Без DATABASE_URL в development
// используются репозитории в памяти, без Redis - локальные блокировки.
func openStorage(ctx context.Context, cfg *config.Config, log *logger.Logger, health *handlers.HealthRegistry) (*storage, error) {
	store := &storage{}

	if cfg.Database.URL == "" {
		if !cfg.IsDevelopment() {
			return nil, errors.New("DATABASE_URL is required outside development")
		}
		log.Warn("DATABASE_URL is empty, using in-memory storage")
		courses := memory.NewCourseRepository()
		store.courses = courses
		store.enrollments = memory.NewEnrollmentRepository(courses)
		store.entries = memory.NewProgressEntryRepository()
	} else {
		conn, err := connectPostgres(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		store.closers = append(store.closers, func() {
			log.Info("closing database connection...")
			conn.Close()
		})
		health.AddCheck("postgres", handlers.NewPingCheck(conn))

		store.courses = postgres.NewCourseRepository(conn)
		store.enrollments = postgres.NewEnrollmentRepository(conn)
		store.entries = postgres.NewProgressEntryRepository(conn)
	}

	if cfg.Redis.Disabled {
		log.Info("redis disabled, using process-local locks and snapshot cache")
		store.locker = lock.NewKeyedMutex()
		store.snapshots = memory.NewSnapshotCache()
		return store, nil
	}

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
		if !cfg.IsDevelopment() {
			store.close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Warn("redis unavailable, using process-local locks", logger.Err(err))
		store.locker = lock.NewKeyedMutex()
		store.snapshots = memory.NewSnapshotCache()
		return store, nil
	}

	store.closers = append(store.closers, func() { _ = cache.Close() })
	health.AddOptionalCheck("redis", handlers.NewPingCheck(cache))
	store.locker = redis.NewEnrollmentLocker(cache, cfg.Progress.LockTTL, cfg.Progress.LockAttempts, log)
	breaker := circuitbreaker.ForCache("snapshot-cache", logBreaker(log))
	health.AddOptionalCheck("snapshot_cache", func(context.Context) error {
		if breaker.State() == circuitbreaker.StateOpen {
			return circuitbreaker.ErrCircuitOpen
		}
		return nil
	})
	store.snapshots = redis.NewSnapshotCache(cache, cfg.Progress.SnapshotCacheTTL, redis.WithBreaker(breaker))
	log.Info("redis connection established")

	return store, nil
}

// connectPostgres открывает пул с повторами и применяет миграции.
func connectPostgres(ctx context.Context, cfg *config.Config, log *logger.Logger) (*postgres.Connection, error) {
	pgConfig := postgres.DefaultConfig()
	pgConfig.URL = cfg.Database.URL
	pgConfig.MaxConns = int32(cfg.Database.MaxOpenConns)
	pgConfig.MinConns = int32(cfg.Database.MaxIdleConns)
	pgConfig.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	pgConfig.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	pgConfig.QueryTimeout = cfg.Database.QueryTimeout

	log.Info("connecting to database...")
	var conn *postgres.Connection
	err := retry.Do(ctx, func(ctx context.Context) error {
		var err error
		conn, err = postgres.NewConnection(ctx, pgConfig)
		return err
	},
		retry.WithMaxAttempts(5),
		retry.WithInitialDelay(500*time.Millisecond),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("database not ready, retrying",
				logger.Int("attempt", attempt),
				logger.Err(err),
				logger.Duration("delay", delay),
			)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		log.Info("running database migrations...")
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return conn, nil
}

// setupLogger настраивает структурированное логирование.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts).With(logger.String("service", cfg.App.Name))
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
