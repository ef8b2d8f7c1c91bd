package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/authgate/authgate-go/internal/config"
	"github.com/authgate/authgate-go/internal/handler"
	"github.com/authgate/authgate-go/internal/repository"
	"github.com/authgate/authgate-go/internal/service"
	"github.com/authgate/authgate-go/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		logger.Error("credential store unavailable", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	issuer := session.NewIssuer(cfg.JWTSecret)
	verifier := session.NewVerifier(cfg.JWTSecret)

	authService, err := service.NewAuthService(repo, issuer)
	if err != nil {
		logger.Error("auth service init failed", "error", err)
		os.Exit(1)
	}
	authHandler := handler.NewAuthHandler(authService, cfg.CookieSecure, logger)

	router := handler.NewRouter(ctx, authHandler, handler.RouterConfig{
		Verifier:       verifier,
		CORSOrigins:    cfg.CORSOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStore connects the configured credential store and applies migrations.
func openStore(ctx context.Context, cfg config.Config) (repository.UserRepository, func(), error) {
	if cfg.StoreDriver == "memory" {
		slog.Warn("using in-memory credential store; accounts vanish on restart")
		return repository.NewMemoryUserRepository(), func() {}, nil
	}

	dialect, err := repository.ParseDialect(cfg.StoreDriver)
	if err != nil {
		return nil, nil, err
	}

	db, err := repository.NewDB(dialect, cfg.DatabaseDSN)
	if err != nil {
		return nil, nil, err
	}

	if err := repository.Migrate(ctx, db, dialect); err != nil {
		db.Close()
		return nil, nil, err
	}

	return repository.NewUserRepository(db, dialect), func() { db.Close() }, nil
}
