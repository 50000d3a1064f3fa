// Package http implements the REST API of the progress and certification engine.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/skillforge/lms-backend/config"
	"github.com/skillforge/lms-backend/internal/application/command"
	"github.com/skillforge/lms-backend/internal/application/query"
	"github.com/skillforge/lms-backend/internal/interface/http/handlers"
	"github.com/skillforge/lms-backend/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RequestTimeout bounds the context handed to application handlers.
	RequestTimeout time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// MaxBodyBytes - maximum size of request bodies.
	MaxBodyBytes int64

	// AllowedOrigins - allowed origins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// RateLimitPerMinute - requests per minute per IP (0 = disabled).
	RateLimitPerMinute int

	// JWTSecret and JWTIssuer configure bearer token verification.
	JWTSecret string
	JWTIssuer string

	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:               "0.0.0.0",
		Port:               8080,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       15 * time.Second,
		IdleTimeout:        60 * time.Second,
		RequestTimeout:     10 * time.Second,
		MaxHeaderBytes:     1 << 20,
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 120,
		Version:            "v1",
	}
}

// ConfigFrom maps application configuration onto server configuration.
func ConfigFrom(cfg *config.Config) Config {
	c := DefaultConfig()
	c.Host = cfg.HTTP.Host
	c.Port = cfg.HTTP.Port
	c.ReadTimeout = cfg.HTTP.ReadTimeout
	c.WriteTimeout = cfg.HTTP.WriteTimeout
	c.IdleTimeout = cfg.HTTP.IdleTimeout
	c.AllowedOrigins = cfg.HTTP.AllowedOrigins
	c.RateLimitPerMinute = cfg.HTTP.RateLimitPerMin
	c.JWTSecret = cfg.Auth.JWTSecret
	c.JWTIssuer = cfg.Auth.Issuer
	c.Version = cfg.App.Version
	return c
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command Handlers (CQRS Write Side)
	Enroll              *command.EnrollHandler
	UpdateProgress      *command.UpdateProgressHandler
	SetEnrollmentStatus *command.SetEnrollmentStatusHandler
	MarkModuleComplete  *command.MarkModuleCompleteHandler
	TogglePracticeItem  *command.TogglePracticeItemHandler
	SubmitQuiz          *command.SubmitQuizHandler

	// Query Handlers (CQRS Read Side)
	ListMyEnrollments    *query.ListMyEnrollmentsHandler
	GetProgressSnapshot  *query.GetProgressSnapshotHandler
	GetCertificateStatus *query.GetCertificateStatusHandler
	VerifyCertificate    *query.VerifyCertificateHandler

	// Features gates public certificate verification. Nil enables everything.
	Features *config.FeatureFlags

	HealthChecker handlers.HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	auth       *handlers.JWTAuth
	logger     *logger.Logger

	rateLimiter *handlers.RateLimiter
	stopLimiter context.CancelFunc

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
func NewServer(cfg Config, deps Dependencies) *Server {
	s := &Server{
		config: cfg,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	s.logger = s.logger.With(logger.Component("http"))

	s.auth = handlers.NewJWTAuth(cfg.JWTSecret, cfg.JWTIssuer, writeError)
	if cfg.RateLimitPerMinute > 0 {
		s.rateLimiter = handlers.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	}

	registerValidatorTags()
	s.useMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           cfg.Address(),
		Handler:        s.engine,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: cfg.MaxHeaderBytes,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	s.engine.GET("/health", s.handleHealth)
	s.engine.GET("/ready", s.handleReady)
	s.engine.GET("/live", s.handleLive)

	s.engine.NoRoute(func(c *gin.Context) {
		writeError(c, http.StatusNotFound, "not_found", "route not found")
	})

	api := s.engine.Group("/api/v1", handlers.NoCache())

	// ─────────────────────────────────────────────────────────────────────────
	// Public Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	api.GET("/certificates/:certificateId/verify", s.handleVerifyCertificate)

	// ─────────────────────────────────────────────────────────────────────────
	// Authenticated Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	authed := api.Group("", s.auth.RequireAuth())

	enrollments := authed.Group("/enrollments")
	enrollments.POST("", s.handleEnroll)
	enrollments.GET("/my-courses", s.handleListMyEnrollments)
	enrollments.PUT("/progress", s.handleUpdateProgress)
	enrollments.PUT("/status", s.auth.RequireRole(handlers.RoleInstructor), s.handleSetEnrollmentStatus)

	progress := authed.Group("/progress")
	progress.GET("/:courseId", s.handleGetProgress)
	progress.GET("/:courseId/certificate", s.handleGetCertificate)
	progress.PUT("/module-complete", s.handleMarkModuleComplete)
	progress.PUT("/practice-complete", s.handleTogglePracticeItem)
	progress.POST("/quiz", s.handleSubmitQuiz)
}

// ══════════════════════════════════════════════════════════════════════════════
// MIDDLEWARE CHAIN
// ══════════════════════════════════════════════════════════════════════════════

// useMiddleware installs global middleware. Order matters: recovery wraps everything.
func (s *Server) useMiddleware() {
	s.engine.Use(s.recoveryMiddleware())
	s.engine.Use(handlers.RequestID())
	s.engine.Use(s.loggingMiddleware())
	s.engine.Use(handlers.SecurityHeaders())

	if len(s.config.AllowedOrigins) > 0 {
		s.engine.Use(cors.New(cors.Config{
			AllowOrigins:     s.config.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Authorization", "Content-Type", handlers.HeaderRequestID},
			ExposeHeaders:    []string{handlers.HeaderRequestID},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if s.rateLimiter != nil {
		s.engine.Use(s.rateLimiter.Middleware(writeError))
	}
	if s.config.MaxBodyBytes > 0 {
		s.engine.Use(handlers.BodyLimit(s.config.MaxBodyBytes, writeError))
	}
	s.engine.Use(handlers.Timeout(s.config.RequestTimeout))
}

// loggingMiddleware logs all HTTP requests.
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		status := c.Writer.Status()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", status),
			logger.Latency(time.Since(start)),
			logger.String("ip", c.ClientIP()),
			logger.String("request_id", handlers.RequestIDFrom(c)),
		}
		if p, ok := handlers.PrincipalFrom(c); ok {
			fields = append(fields, logger.String("user_id", p.UserID))
		}

		switch {
		case status >= 500:
			s.logger.Error("http request", fields...)
		case status >= 400:
			s.logger.Warn("http request", fields...)
		default:
			s.logger.Info("http request", fields...)
		}
	}
}

// recoveryMiddleware recovers from panics and returns 500.
func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic recovered",
					logger.Any("panic", r),
					logger.String("stack", string(debug.Stack())),
					logger.String("path", c.Request.URL.Path),
					logger.String("request_id", handlers.RequestIDFrom(c)),
				)
				writeError(c, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
			}
		}()
		c.Next()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	if s.rateLimiter != nil {
		var ctx context.Context
		ctx, s.stopLimiter = context.WithCancel(context.Background())
		go s.rateLimiter.Run(ctx)
	}
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	if s.stopLimiter != nil {
		s.stopLimiter()
	}
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns the server uptime.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startedAt)
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
