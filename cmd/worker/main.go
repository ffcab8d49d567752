package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/ledger"
	"geoattend/internal/logger"
	"geoattend/internal/queue"
	"geoattend/internal/store"
)

// Worker consumes ledger jobs, submits them to the relay, and stores the tx hash.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	if cfg.QueueBackend != "redis" {
		return fmt.Errorf("standalone worker needs QUEUE_BACKEND=redis; the memory queue is consumed inside the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DBDriver, cfg.DatabaseURL)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("db: %w", err)
	}
	defer db.Close()

	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warn("redis not reachable yet, consumer will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	client := ledger.New(cfg.LedgerURL, cfg.LedgerAPIKey, cfg.LedgerSkip)
	if !cfg.LedgerSkip {
		if err := client.Health(ctx); err != nil {
			log.Warn("ledger relay not available", zap.Error(err))
		} else {
			log.Info("ledger relay connected", zap.String("url", cfg.LedgerURL))
		}
	}

	q := queue.NewRedisQueue(rdb.Client, cfg.QueueKey, log.Named("queue"))
	w := ledger.NewWorker(client, attendance.NewRepository(db), log.Named("ledger"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx, q) })
	return g.Wait()
}
