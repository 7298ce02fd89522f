// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/helixpay/payguard/internal/appeals"
	"github.com/helixpay/payguard/internal/assessor"
	"github.com/helixpay/payguard/internal/config"
	"github.com/helixpay/payguard/internal/custody"
	"github.com/helixpay/payguard/internal/detector"
	"github.com/helixpay/payguard/internal/directory"
	"github.com/helixpay/payguard/internal/fusion"
	"github.com/helixpay/payguard/internal/geo"
	"github.com/helixpay/payguard/internal/groundtruth"
	"github.com/helixpay/payguard/internal/health"
	"github.com/helixpay/payguard/internal/ledger"
	"github.com/helixpay/payguard/internal/logging"
	"github.com/helixpay/payguard/internal/metrics"
	"github.com/helixpay/payguard/internal/ratelimit"
	"github.com/helixpay/payguard/internal/rules"
	"github.com/helixpay/payguard/internal/security"
	"github.com/helixpay/payguard/internal/validation"
	"github.com/helixpay/payguard/internal/verdict"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg *config.Config

	directory    directory.Store
	ledger       *ledger.Ledger
	verdicts     verdict.Store
	custodySvc   *custody.Service
	custodyTmr   *custody.Timer
	gtSvc        *groundtruth.Service
	gtTmr        *groundtruth.Timer
	healthCalc   *health.Calculator
	appealsStore appeals.Store
	appealsSvc   *appeals.Service
	detectorSvc  *detector.Service

	// Test seams
	assessorOverride assessor.Assessor
	resolverOverride geo.Resolver

	rateLimiter  *ratelimit.Limiter
	redisClient  *redis.Client // nil unless REDIS_URL is set
	db           *sql.DB       // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAssessor injects a custom assessor (for testing)
func WithAssessor(a assessor.Assessor) Option {
	return func(s *Server) {
		s.assessorOverride = a
	}
}

// WithResolver injects a custom IP resolver (for testing)
func WithResolver(r geo.Resolver) Option {
	return func(s *Server) {
		s.resolverOverride = r
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		s.directory = directory.NewPostgresStore(db)
		s.ledger = ledger.New(ledger.NewPostgresStore(db))
		s.verdicts = verdict.NewPostgresStore(db)
		s.custodySvc = custody.NewService(custody.NewPostgresStore(db), s.ledger, cfg.ReviewHold, cfg.BlockHold)
		s.appealsStore = appeals.NewPostgresStore(db)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		s.directory = directory.NewMemoryStore()
		s.ledger = ledger.New(ledger.NewMemoryStore())
		s.verdicts = verdict.NewMemoryStore()
		s.custodySvc = custody.NewService(custody.NewMemoryStore(), s.ledger, cfg.ReviewHold, cfg.BlockHold)
		s.appealsStore = appeals.NewMemoryStore()
	}

	// Ground truth and the services built on the verdict log
	s.gtSvc = groundtruth.NewService(s.verdicts)
	s.healthCalc = health.NewCalculator(s.verdicts)
	s.appealsSvc = appeals.NewService(s.appealsStore, s.verdicts, s.gtSvc, s.custodySvc)

	// Hold-expiry sweep asks ground truth before releasing money
	s.custodyTmr = custody.NewTimer(s.custodySvc, s.gtSvc, s.logger)
	s.gtTmr = groundtruth.NewTimer(s.gtSvc, s.logger)

	// AI assessor, budgeted and optional
	as := s.assessorOverride
	if as == nil {
		as = s.buildAssessor(ctx)
	}

	// IP geolocation
	resolver := s.resolverOverride
	if resolver == nil {
		r, err := s.buildResolver()
		if err != nil {
			return nil, err
		}
		resolver = r
	}

	strategy := fusion.ForName(cfg.FusionStrategy, cfg.ConsensusThreshold)
	engine := rules.NewEngine(rules.DefaultRules()...)

	s.detectorSvc = detector.NewService(
		engine,
		as,
		strategy,
		resolver,
		s.directory,
		s.ledger,
		s.custodySvc,
		s.verdicts,
	)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// buildAssessor wires the external AI assessor with its call budget. Returns
// the disabled assessor when no endpoint is configured, so every caller can
// treat the AI layer as always present.
func (s *Server) buildAssessor(ctx context.Context) assessor.Assessor {
	if !s.cfg.AssessorEnabled() {
		s.logger.Info("AI assessor disabled (rules-only scoring)")
		return assessor.Disabled{}
	}

	// SSRF guard: a production deployment must not point the assessor at
	// internal infrastructure
	if s.cfg.IsProduction() {
		if err := security.ValidateEndpointURL(s.cfg.AssessorURL); err != nil {
			s.logger.Error("rejecting assessor endpoint, falling back to rules-only", "error", err)
			return assessor.Disabled{}
		}
	}

	var counters assessor.CounterStore
	if s.cfg.RedisURL != "" {
		opts, err := redis.ParseURL(s.cfg.RedisURL)
		if err != nil {
			s.logger.Warn("invalid REDIS_URL, using in-process budget counters", "error", err)
		} else {
			client := redis.NewClient(opts)
			if err := client.Ping(ctx).Err(); err != nil {
				s.logger.Warn("redis unreachable, using in-process budget counters", "error", err)
				_ = client.Close()
			} else {
				s.redisClient = client
				counters = assessor.NewRedisCounters(client)
				s.logger.Info("assessor budget counters shared via redis")
			}
		}
	}
	if counters == nil {
		counters = assessor.NewMemoryCounters()
	}

	budget := assessor.NewBudget(counters, s.cfg.AssessorPerMinute, s.cfg.AssessorPerDay)
	client := assessor.NewHTTPAssessor(s.cfg.AssessorURL, s.cfg.AssessorAPIKey, s.cfg.AssessorTimeout).
		WithBudget(budget)

	s.logger.Info("AI assessor enabled",
		"url", s.cfg.AssessorURL,
		"timeout", s.cfg.AssessorTimeout,
		"per_minute", s.cfg.AssessorPerMinute,
		"per_day", s.cfg.AssessorPerDay,
	)
	return client
}

// buildResolver picks MaxMind when a database path is configured, otherwise a
// static resolver that only knows private ranges.
func (s *Server) buildResolver() (geo.Resolver, error) {
	if s.cfg.GeoDBPath == "" {
		s.logger.Info("geo resolver running without a GeoIP database (private IPs only)")
		return geo.NewStaticResolver(nil), nil
	}
	r, err := geo.NewMaxMindResolver(s.cfg.GeoDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
	}
	s.logger.Info("geo resolver using MaxMind database", "path", s.cfg.GeoDBPath)
	return r, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// adminAuthMiddleware guards mutation endpoints reserved for operators.
func (s *Server) adminAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.cfg.AdminSecret == "" {
			// Development convenience only; Validate() rejects this in production
			c.Next()
			return
		}
		got := c.GetHeader("X-Admin-Secret")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminSecret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Admin secret required",
			})
			return
		}
		c.Next()
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	directory.NewHandler(s.directory).RegisterRoutes(v1)
	detector.NewHandler(s.detectorSvc).RegisterRoutes(v1)
	ledger.NewHandler(s.ledger).RegisterRoutes(v1)
	verdict.NewHandler(s.verdicts).RegisterRoutes(v1)
	health.NewHandler(s.healthCalc).RegisterRoutes(v1)

	custodyHandler := custody.NewHandler(s.custodySvc)
	custodyHandler.RegisterRoutes(v1)

	gtHandler := groundtruth.NewHandler(s.gtSvc)
	gtHandler.RegisterRoutes(v1)

	appealsHandler := appeals.NewHandler(s.appealsSvc)
	appealsHandler.RegisterRoutes(v1)

	// ADMIN ROUTES (label verdicts, resolve held transfers, decide appeals)
	admin := v1.Group("/admin")
	admin.Use(s.adminAuthMiddleware())
	custodyHandler.RegisterAdminRoutes(admin)
	gtHandler.RegisterAdminRoutes(admin)
	appealsHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	status := http.StatusOK
	state := "healthy"
	if !s.healthy.Load() {
		status = http.StatusServiceUnavailable
		state = "unhealthy"
	}

	dbState := "in-memory"
	if s.db != nil {
		dbState = "connected"
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			dbState = "unreachable"
			status = http.StatusServiceUnavailable
			state = "unhealthy"
		}
	}

	c.JSON(status, gin.H{
		"status":   state,
		"database": dbState,
		"assessor": s.cfg.AssessorEnabled(),
		"time":     time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if s.healthy.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "alive"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "dead"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if s.ready.Load() {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "payguard",
		"description": "Fraud decision engine for P2P payments",
		"version":     "v1",
		"endpoints": gin.H{
			"check":    "POST /v1/transactions",
			"verdicts": "GET /v1/verdicts/:id",
			"health":   "GET /v1/users/:id/health",
			"report":   "GET /v1/groundtruth/report",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and background timers, then blocks until a
// shutdown signal or context cancellation.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start hold-expiry sweep
	if s.custodyTmr != nil {
		go s.custodyTmr.Start(runCtx)
	}

	// Start review-backlog sweep
	if s.gtTmr != nil {
		go s.gtTmr.Start(runCtx)
	}

	// Export connection-pool gauges
	if s.db != nil {
		go metrics.CollectDBStats(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	// Stop hold-expiry sweep
	if s.custodyTmr != nil {
		s.custodyTmr.Stop()
		s.logger.Info("custody timer stopped")
	}

	// Stop review-backlog sweep
	if s.gtTmr != nil {
		s.gtTmr.Stop()
		s.logger.Info("ground truth timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Close redis budget counters
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
