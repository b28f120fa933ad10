package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"loanhub-auth-service/internal/app"
	"loanhub-auth-service/internal/config"
	"loanhub-auth-service/internal/domain"
	"loanhub-auth-service/internal/health"
	"loanhub-auth-service/internal/http/handler"
	"loanhub-auth-service/internal/http/middleware"
	"loanhub-auth-service/internal/http/router"
	"loanhub-auth-service/internal/notify"
	"loanhub-auth-service/internal/observability"
	"loanhub-auth-service/internal/repository"
	"loanhub-auth-service/internal/security"
	"loanhub-auth-service/internal/service"
	"loanhub-auth-service/internal/tools/common"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:           "loanhub-auth-service",
		Short:         "Credential issuance and session lifecycle service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), envFile)
		},
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to an optional env file")
	return cmd
}

func run(ctx context.Context, envFile string) error {
	if err := common.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, loggerProvider, err := observability.NewLogger(ctx, cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	runtime, err := observability.InitRuntime(ctx, cfg, logger, loggerProvider)
	if err != nil {
		return err
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseDSN), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	if err := db.AutoMigrate(&domain.Account{}, &domain.Session{}); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	accountRepo := repository.NewAccountRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	jwtMgr := security.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTokenSecret, cfg.RefreshTokenSecret)
	hasher := security.NewPasswordHasher(cfg.BcryptCost)
	notifier := notify.NewLogNotifier(logger)

	accounts := service.NewAccountService(accountRepo, sessionRepo, hasher, notifier, logger)
	tokens := service.NewTokenService(jwtMgr, sessionRepo, cfg.RefreshTokenPepper, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	sessions := service.NewSessionService(sessionRepo)

	var limiterBackend middleware.Limiter
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		limiterBackend = middleware.NewRedisWindowLimiter(client, "loanhub:ratelimit")
		logger.Info("distributed rate limiting enabled", "redis", cfg.RedisAddr)
	}

	readiness := health.NewProbeRunner(2*time.Second, time.Second)
	readiness.Register(health.NewDatabaseChecker(sqlDB.PingContext))

	mux := router.New(router.Dependencies{
		AuthHandler:      handler.NewAuthHandler(accounts, tokens, cfg.Environment == "production", cfg.AccessTokenTTL, cfg.RefreshTokenTTL, logger),
		UserHandler:      handler.NewUserHandler(accounts, sessions, logger),
		AdminHandler:     handler.NewAdminHandler(accounts, logger),
		JWTManager:       jwtMgr,
		AccountResolver:  accounts,
		CORSOrigins:      cfg.CORSOrigins,
		APIRateLimitRPM:  cfg.APIRateLimitRPM,
		AuthRateLimitRPM: cfg.AuthRateLimitRPM,
		RateLimitBackend: limiterBackend,
		Readiness:        readiness,
		EnableOTelHTTP:   cfg.OTELTracesEnabled,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeper := service.NewSessionSweeper(tokens, cfg.SessionSweepInterval, logger)
	go sweeper.Run(sweepCtx)

	a := app.New(cfg, logger, server, runtime, readiness, stopSweeper)
	return a.Run(ctx)
}
