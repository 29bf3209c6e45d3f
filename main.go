// Command contacts-api serves the contacts REST API. It loads configuration,
// connects Postgres and the optional Redis and MinIO backends, wires the
// services and handlers, and shuts down gracefully on SIGINT or SIGTERM.
//
// @title Contacts API
// @version 1.0
// @description Contacts REST API with JWT authentication.
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type 'Bearer YOUR_JWT_TOKEN' to authorize
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"

	"github.com/user/contacts-api/auth"
	"github.com/user/contacts-api/avatar"
	"github.com/user/contacts-api/background"
	"github.com/user/contacts-api/cache"
	"github.com/user/contacts-api/config"
	"github.com/user/contacts-api/contacts"
	"github.com/user/contacts-api/db"
	_ "github.com/user/contacts-api/docs" // Generated Swagger docs
	"github.com/user/contacts-api/health"
	"github.com/user/contacts-api/logging"
	"github.com/user/contacts-api/mail"
	"github.com/user/contacts-api/metrics"
	"github.com/user/contacts-api/ratelimit"
	"github.com/user/contacts-api/users"
	"github.com/user/contacts-api/validation"
)

func main() {
	// In production variables come from the environment directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or error loading it: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited with error", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.DB.MigrationsPath != "" {
		if err := db.RunMigrations(cfg.DB, cfg.DB.MigrationsPath, logger); err != nil {
			return err
		}
	}

	// Redis backs the user cache and the rate limiter. Without it both are
	// disabled and requests go straight to Postgres.
	var (
		rdb     *redis.Client
		limiter *ratelimit.Limiter
	)
	authOpts := []auth.ServiceOption{}
	if cfg.Redis.Enabled() {
		rdb, err = cache.NewClient(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		userCache := cache.NewResilient(cache.NewRedisUserCache(rdb), cfg.Redis.FailureCooldown, logger)
		authOpts = append(authOpts, auth.WithCache(userCache))
		limiter = ratelimit.New(ratelimit.NewRedisStore(rdb), cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)
		logger.Info("redis enabled", zap.Duration("user_cache_ttl", cfg.Redis.UserCacheTTL))
	} else {
		logger.Info("redis not configured, user cache and rate limiting disabled")
	}

	mailer := background.NewMailer(mail.NewSMTPSender(cfg.SMTP), cfg.SMTP.Workers, cfg.SMTP.Queue, logger)
	mailer.Start()
	authOpts = append(authOpts, auth.WithNotifier(mail.NewNotifier(cfg.Server.PublicBaseURL, mailer)))

	var avatars avatar.Storage
	if cfg.Storage.Enabled() {
		storage, err := avatar.NewMinioStorage(ctx, cfg.Storage)
		if err != nil {
			return err
		}
		avatars = storage
	} else {
		logger.Info("object storage not configured, avatar uploads disabled")
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.JWTSecret)
	if err != nil {
		return err
	}
	userStore := auth.NewPostgresStore(pool)
	authService := auth.NewService(
		userStore,
		auth.NewBcryptHasher(cfg.Auth.BcryptCost),
		tokens,
		auth.ServiceConfigFrom(cfg.Auth, cfg.Redis),
		logger,
		authOpts...,
	)
	validate := validation.New()
	authMiddleware := auth.NewMiddleware(authService, logger)
	authHandlers := auth.NewHandlers(authService, validate, logger)

	userService := users.NewService(userStore, authService, avatars, logger)
	userHandlers := users.NewHandlers(userService, cfg.Storage.MaxAvatarBytes, logger)

	contactService := contacts.NewService(contacts.NewPostgresStore(pool), logger)
	contactHandler := contacts.NewHandler(contactService, validate, logger)

	healthHandler := health.New(logger, readinessChecks(pool, rdb))
	appMetrics := metrics.New()

	r := chi.NewRouter()

	// Chi requires all middleware to be registered before any routes.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(logging.Recoverer(logger))
	r.Use(appMetrics.Middleware)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Method(http.MethodGet, "/metrics", appMetrics.Handler())
	healthHandler.RegisterRoutes(r)

	r.Route("/users", func(r chi.Router) {
		authHandlers.RegisterRoutes(r, limiter.Middleware("login"))

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Use(authMiddleware.RequireRole(auth.RoleUser))
			userHandlers.RegisterRoutes(r, authMiddleware.RequireRole(auth.RoleAdmin), limiter.Middleware("me"))
		})
	})

	r.Route("/contacts", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)
		r.Use(authMiddleware.RequireRole(auth.RoleUser))
		contactHandler.RegisterRoutes(r)
	})

	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 65 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serveErr:
		_ = mailer.Stop(context.Background())
		return fmt.Errorf("listen on %s: %w", addr, err)
	case sig := <-quit:
		logger.Info("server shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	// Handlers are done enqueueing; let the workers drain what is left.
	if err := mailer.Stop(shutdownCtx); err != nil {
		logger.Warn("mailer did not drain before shutdown deadline", zap.Error(err))
	}
	logger.Info("server stopped gracefully")
	return nil
}

func readinessChecks(pool *pgxpool.Pool, rdb *redis.Client) map[string]health.Check {
	checks := map[string]health.Check{"postgres": pool.Ping}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}
