// Package server
//
// @title Gestor API
// @version 1.0
// @description Accounts and sessions for the gestor business-management application
// @host localhost:8080
// @BasePath /
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/alderburg/Teste-sub007/internal/auth"
	"github.com/alderburg/Teste-sub007/internal/config"
	"github.com/alderburg/Teste-sub007/internal/models"
	"github.com/alderburg/Teste-sub007/internal/sessionstore"
)

// Server represents the HTTP server
type Server struct {
	router    *gin.Engine
	db        *gorm.DB
	config    *config.Config
	logger    zerolog.Logger
	validator *validator.Validate
	sessions  sessionstore.Store
	redis     *redis.Client
	scheduler *cron.Cron
	version   string
	now       func() time.Time
}

// New creates a new server instance
func New(cfg *config.Config, zlog zerolog.Logger, version string) (*Server, error) {
	// Initialize database with production settings
	db, err := initDatabase(cfg, zlog)
	if err != nil {
		return nil, err
	}

	var (
		store       sessionstore.Store
		redisClient *redis.Client
	)
	if cfg.Redis.Address != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Address, err)
		}
		store = sessionstore.NewRedisStore(redisClient)
		zlog.Info().Str("address", cfg.Redis.Address).Msg("Storing sessions in Redis")
	} else {
		store = sessionstore.NewGormStore(db)
		zlog.Info().Msg("Storing sessions in the database")
	}

	srv, err := newServer(cfg, db, store, zlog, version)
	if err != nil {
		return nil, err
	}
	srv.redis = redisClient
	return srv, nil
}

// newServer wires a server around an open database and session store
func newServer(cfg *config.Config, db *gorm.DB, store sessionstore.Store, zlog zerolog.Logger, version string) (*Server, error) {
	// Run database migrations
	if err := models.AutoMigrate(db); err != nil {
		return nil, err
	}

	if err := initJWT(db, zlog); err != nil {
		return nil, err
	}

	// Initialize validator
	validate := validator.New()

	scheduler, err := newPurgeScheduler(cfg.Session.PurgeSchedule)
	if err != nil {
		return nil, err
	}

	server := &Server{
		db:        db,
		config:    cfg,
		logger:    zlog,
		validator: validate,
		sessions:  store,
		scheduler: scheduler,
		version:   version,
		now:       time.Now,
	}

	if _, err := scheduler.AddFunc(cfg.Session.PurgeSchedule, server.purgeExpiredSessions); err != nil {
		return nil, fmt.Errorf("invalid SESSION_PURGE_SCHEDULE %q: %w", cfg.Session.PurgeSchedule, err)
	}

	// Setup router
	server.setupRouter()

	return server, nil
}

// initJWT loads the signing secret, generating it on first start
func initJWT(db *gorm.DB, zlog zerolog.Logger) error {
	var cfg models.Config
	err := db.First(&cfg).Error
	if err == nil {
		auth.InitializeJWT(cfg.JWTSecret)
		zlog.Debug().Msg("Loaded JWT secret from database")
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Generate JWT secret (64 hex characters = 32 bytes of randomness)
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return fmt.Errorf("failed to generate JWT secret: %w", err)
	}
	cfg = models.Config{JWTSecret: hex.EncodeToString(secretBytes)}
	if err := db.Create(&cfg).Error; err != nil {
		return fmt.Errorf("failed to store JWT secret: %w", err)
	}

	auth.InitializeJWT(cfg.JWTSecret)
	zlog.Info().Msg("Generated JWT secret on first start")
	return nil
}

// initDatabase initializes the database connection with production settings
func initDatabase(cfg *config.Config, zlog zerolog.Logger) (*gorm.DB, error) {
	const (
		maxOpenConns      = 8         // Reduced for SQLite efficiency
		maxIdleConns      = 4         // Reduced proportionally
		connMaxLifetime   = 300       // 5 minutes
		busyTimeout       = 5000      // 5 seconds
		cacheSize         = 10000     // 10MB
		mmapSize          = 134217728 // 128MB
		walAutocheckpoint = 1000      // WAL auto-checkpoint pages
	)

	// Open database connection
	db, err := gorm.Open(sqlite.Open(cfg.Database.URL), &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				LogLevel:                  logger.Error,
				IgnoreRecordNotFoundError: true,
				SlowThreshold:             200 * time.Millisecond,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Get underlying sql.DB to configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Apply SQLite pragmas directly (connection string pragmas may not work with all drivers)
	// WAL mode must be set first for optimal concurrency
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		fmt.Sprintf("PRAGMA wal_autocheckpoint=%d", walAutocheckpoint),
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout),
		fmt.Sprintf("PRAGMA cache_size=-%d", cacheSize),
		"PRAGMA foreign_keys=1",
		"PRAGMA temp_store=2",
		fmt.Sprintf("PRAGMA mmap_size=%d", mmapSize),
	}

	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			zlog.Warn().Str("pragma", pragma).Err(err).Msg("Failed to apply pragma")
		}
	}

	var walMode string
	db.Raw("PRAGMA journal_mode").Scan(&walMode)
	zlog.Debug().Str("journal_mode", walMode).Str("path", cfg.Database.URL).Msg("Database ready")

	return db, nil
}

// setupRouter configures the Gin router with routes and middleware
func (s *Server) setupRouter() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()

	// Add middleware
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())

	// CORS middleware
	s.router.Use(cors.New(cors.Config{
		AllowOrigins:     s.config.HTTP.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Cache-Control", "Pragma", "Expires"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Health check endpoint (no auth required)
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")
	api.Use(noStoreMiddleware())
	api.Use(s.sessionMiddleware())
	{
		// Public auth endpoints
		api.POST("/register", s.register)
		api.POST("/login", s.login)
		api.POST("/logout", s.logout)
		api.GET("/auth/2fa-session-status", s.twoFactorSessionStatus)

		// Needs a pending second-factor session
		api.POST("/verify-2fa", s.verifyTwoFactor)

		// Identity of any session, verified or not
		api.GET("/user", RequireSession(s.logger), s.getCurrentUser)

		// Fully verified sessions only
		verified := api.Group("")
		verified.Use(RequireSession(s.logger, models.StageActive))
		{
			verified.POST("/2fa/setup", s.setupTwoFactor)
			verified.POST("/2fa/enable", s.enableTwoFactor)
		}
	}
}

// loggingMiddleware creates a custom logging middleware using zerolog
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start)

		s.logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}

// @Router /health [get]
// @Success 200 {object} map[string]interface{}
func (s *Server) healthCheck(c *gin.Context) {
	status := http.StatusOK
	database := "online"
	if sqlDB, err := s.db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
		status = http.StatusServiceUnavailable
		database = "offline"
	}

	c.JSON(status, gin.H{
		"status":    "online",
		"database":  database,
		"timestamp": s.now().UTC(),
		"service":   "gestor-api",
		"version":   s.version,
	})
}

// Handler returns the HTTP handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server
func (s *Server) Start() error {
	addr := s.config.HTTP.Address

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.scheduler.Start()
	s.logger.Info().Str("schedule", s.config.Session.PurgeSchedule).Msg("Session purge scheduled")

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Wait for shutdown signal
	select {
	case <-sigChan:
		s.logger.Info().Msg("Received shutdown signal, shutting down gracefully...")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		s.close()
		return err
	}

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	s.logger.Info().Msg("Shutting down HTTP server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Msg("Error shutting down HTTP server")
		return err
	}

	s.close()
	s.logger.Info().Msg("Server shutdown complete")
	return nil
}

func (s *Server) close() {
	// Wait for a running purge to finish
	<-s.scheduler.Stop().Done()

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("Error closing Redis client")
		}
	}

	// Close database connection to flush WAL writes
	if sqlDB, err := s.db.DB(); err == nil {
		s.logger.Info().Msg("Closing database connection...")
		if err := sqlDB.Close(); err != nil {
			s.logger.Error().Err(err).Msg("Error closing database")
		} else {
			s.logger.Info().Msg("Database closed successfully")
		}
	}
}
