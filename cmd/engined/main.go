// Command engined runs the provably-fair game resolution engine.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fairhouse/engine/internal/api"
	"github.com/fairhouse/engine/internal/config"
	"github.com/fairhouse/engine/internal/round"
	"github.com/fairhouse/engine/internal/store"
)

func main() {
	// A .env file is a development convenience; absence is fine.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(logger); err != nil {
		logger.Fatal("engine exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := store.NewSQLiteDB(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	controller := round.NewController(db, logger, round.Options{
		MinBet:     decimal.NewFromFloat(cfg.MinBet),
		MaxBet:     decimal.NewFromFloat(cfg.MaxBet),
		RateWindow: cfg.RateLimitWindow,
		RateMax:    cfg.RateLimitMax,
	})
	server := api.NewServer(controller, db, logger, []byte(cfg.JWTSecret))

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("engine listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("database", cfg.DatabasePath),
			zap.String("version", api.EngineVersion),
		)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
