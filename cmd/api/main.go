package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/octobees/leadgen/internal/app"
	"github.com/octobees/leadgen/internal/auth"
	"github.com/octobees/leadgen/internal/config"
	"github.com/octobees/leadgen/internal/handler"
	"github.com/octobees/leadgen/internal/logger"
	middlewarepkg "github.com/octobees/leadgen/internal/middleware"
	"github.com/octobees/leadgen/internal/router"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	deps, err := app.Build(ctx, cfg, zlog)
	if err != nil {
		zlog.Fatal("failed to wire dependencies", zap.Error(err))
	}
	defer deps.Close()
	if deps.StoreErr != nil {
		zlog.Fatal("database is required by the api", zap.Error(deps.StoreErr))
	}

	runCtx, stopRuns := context.WithCancel(context.Background())
	defer stopRuns()

	jwtManager := auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL)
	handlers := router.Handlers{
		Health:    handler.NewHealthHandler(deps.Pool),
		Prospects: handler.NewProspectsHandler(deps.Prospects),
		Analyze:   handler.NewAnalyzeHandler(deps.Trust, deps.Scorer),
	}
	if deps.SearchErr == nil {
		handlers.Runs = handler.NewRunsHandler(runCtx, deps.Runner, zlog)
	} else {
		zlog.Warn("run submission disabled", zap.Error(deps.SearchErr))
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middlewarepkg.RequestID())
	e.Use(middlewarepkg.Logging(zlog))
	e.Use(echoMiddleware.Recover())

	router.Register(e, cfg, jwtManager, handlers)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- e.Start(":" + cfg.Port)
	}()
	zlog.Info("api listening", zap.String("port", cfg.Port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		zlog.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Fatal("server error", zap.Error(err))
		}
		return
	}

	stopRuns()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		zlog.Error("graceful shutdown failed", zap.Error(err))
	}
}
