// File: app/app.go
package app

import (
	"context"
	"database/sql"
	"errors"
	"go-auth-api/config"
	"go-auth-api/db"
	"go-auth-api/handler"
	"go-auth-api/logger"
	"go-auth-api/metrics"
	"go-auth-api/repository"
	"go-auth-api/router"
	"go-auth-api/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

// App is the fully wired service.
type App struct {
	DB     *sql.DB
	Router http.Handler
	Pruner *service.LedgerPruner
}

// New wires repositories, services, handlers and the router on top of an open
// database. A nil cache disables response caching.
func New(cfg config.Config, database *sql.DB, cache service.ICacheClient) *App {
	userRepo := repository.NewUserRepository(database)
	tokenRepo := repository.NewTokenRepository(database)

	tokens := service.NewTokenService(service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		RefreshSecret: cfg.JWT.RefreshSecret,
		Issuer:        cfg.JWT.Issuer,
	})
	hasher := service.NewPasswordHasher(cfg.Auth.BcryptCost)

	userService := service.NewUserService(userRepo, cache, cfg.Redis.CacheTTL)
	authService := service.NewAuthService(userRepo, tokenRepo, hasher, tokens, service.AuthPolicy{
		MinPasswordLength:           cfg.Auth.MinPasswordLength,
		RequirePasswordConfirmation: cfg.Auth.RequirePasswordConfirmation,
		RotateRefreshTokens:         cfg.Auth.RotateRefreshTokens,
		SigninAccessTTL:             cfg.JWT.SigninAccessTTL,
		RefreshAccessTTL:            cfg.JWT.RefreshAccessTTL,
		RefreshTTL:                  cfg.JWT.RefreshTTL,
	}).WithUserListInvalidator(userService)

	var limiter *handler.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = handler.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst)
		if err := limiter.TrustProxies(cfg.RateLimit.TrustedProxies); err != nil {
			logger.Log.WithError(err).Warn("Ignoring trusted proxies, rate limiting on socket peer")
		}
	}

	r := router.NewRouter(router.Handlers{
		Auth:          handler.NewAuthHandler(authService, cfg.Auth.SecureCookie),
		Users:         handler.NewUserHandler(userService),
		Health:        handler.NewHealthHandler(database),
		Authenticator: handler.NewAuthenticator(tokens),
		RateLimiter:   limiter,
	}, router.Options{
		CORSOrigins:  cfg.CORS.AllowedOrigins,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})

	return &App{
		DB:     database,
		Router: r,
		Pruner: service.NewLedgerPruner(tokenRepo, cfg.JWT.RefreshTTL, cfg.Ledger.PruneInterval),
	}
}

func Run() {
	logger.Init()
	if err := config.LoadConfig("."); err != nil {
		logger.Log.Fatalf("Invalid configuration: %v", err)
	}
	cfg := config.AppConfig
	logger.Configure(cfg.Log.Level, cfg.Log.Format)
	logger.Log.Info("Configuration loaded successfully")

	metrics.Init()

	database, err := db.Connect()
	if err != nil {
		logger.Log.Fatalf("Error connecting to the database: %v", err)
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(database); err != nil {
			logger.Log.Fatalf("Error running migrations: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var cache service.ICacheClient
	rdb, err := db.ConnectRedis(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("Continuing without response cache")
	} else if rdb != nil {
		defer rdb.Close()
		cache = rdb
	}

	a := New(cfg, database, cache)
	go a.Pruner.Run(ctx)

	port := cfg.Server.Port
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: a.Router,
	}

	go func() {
		logger.Log.Infof("Server starting on port :%s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Warn("Shutdown signal received. Starting graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server forced to shutdown")
		return
	}

	logger.Log.Info("Server exited properly")
}
