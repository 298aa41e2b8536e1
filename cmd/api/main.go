package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/infra"
	"github.com/congo-pay/walletd/internal/jobs"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/migrations"
	"github.com/congo-pay/walletd/internal/notification"
	"github.com/congo-pay/walletd/internal/server"
)

const sweepBatch = 500

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.AppName, cfg.Development())

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		if cfg.RunMigrations {
			if err := migrations.Up(cfg.DatabaseURL); err != nil {
				logger.Error("apply migrations", "error", err)
				os.Exit(1)
			}
			logger.Info("migrations applied")
		}
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{
			MaxConns:        cfg.DBMaxConns,
			ApplicationName: cfg.AppName,
		})
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	notifier := buildNotifier(cfg, logger)

	srv, err := server.New(cfg, db, cache, notifier, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	svc := srv.Services()
	sweeper := jobs.NewSweeper(svc.Engine, jobs.GatewayChecker{Gateway: svc.Gateway}, cfg.PendingDepositTTL, sweepBatch, logger)
	if err := sweeper.Start(cfg.SweepSchedule); err != nil {
		logger.Error("schedule deposit sweeper", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
	sweeper.Stop(shutdownCtx)
	if closer, ok := notifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Warn("close notifier", "error", err)
		}
	}

	logger.Info("server exited cleanly")
}

// buildNotifier always logs ledger events and also publishes them to Kafka
// when brokers are configured.
func buildNotifier(cfg config.Config, logger *slog.Logger) notification.Notifier {
	log := notification.NewLoggerNotifier(logger)
	if len(cfg.KafkaBrokers) == 0 {
		return log
	}
	logger.Info("publishing ledger events to kafka", "topic", cfg.KafkaTopic)
	return notification.Fanout{log, notification.NewKafkaNotifier(notification.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))}
}
