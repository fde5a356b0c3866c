package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	clts "insiderscan/clients"
	"insiderscan/config"
	"insiderscan/internal/app"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; deployments configure through the environment.
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// Load config from environment variables
	cfg := config.Load()
	logger.Info("starting insiderscan", zap.Bool("isProd", cfg.IsProd))

	if result := cfg.Validate(); !result.Valid {
		for _, e := range result.Errors {
			logger.Error("invalid config value",
				zap.String("field", e.Field),
				zap.String("message", e.Message),
			)
		}
		logger.Fatal("configuration invalid, refusing to start")
	}

	logger.Info("instantiating clients")
	clients := clts.NewClients(logger, cfg)
	defer clients.Close()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	server := app.NewServer(logger, cfg, clients.Polymarket, clients.Notifier)

	if !cfg.Server.Enabled {
		// One-shot mode: run a single scan and exit. Useful under external
		// schedulers that invoke the binary per run.
		summary := server.RunOnce(ctx)
		if !summary.Success {
			logger.Fatal("scan failed", zap.Strings("errors", summary.Errors))
		}
		return
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", zap.Error(err))
		}
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	}
}
