package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"geoattend/internal/api"
	"geoattend/internal/attendance"
	"geoattend/internal/config"
	"geoattend/internal/course"
	"geoattend/internal/homework"
	"geoattend/internal/httpmiddleware"
	"geoattend/internal/ledger"
	"geoattend/internal/logger"
	"geoattend/internal/queue"
	"geoattend/internal/store"
)

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

	if cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("api server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
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

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(rdb.Client, cfg.QueueKey, log.Named("queue"))
	}

	repo := attendance.NewRepository(db)
	ledgerClient := ledger.New(cfg.LedgerURL, cfg.LedgerAPIKey, cfg.LedgerSkip)
	att := attendance.NewService(repo, ledger.NewQueueMirror(q), log.Named("attendance"), attendance.Config{
		Validity:        cfg.CodeValidity,
		DefaultRadius:   cfg.DefaultRadiusMeters,
		GPSBuffer:       cfg.GPSBufferMeters,
		ClockSkew:       cfg.ClockSkew,
		LocationTimeout: cfg.LocationTimeout,
	})
	courses := course.NewService(course.NewRepository(db), log.Named("course"))
	work := homework.NewService(homework.NewRepository(db), courses, log.Named("homework"))

	var limiter httpmiddleware.Limiter = httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin)
	if cfg.RateLimitBackend == "redis" {
		limiter = httpmiddleware.NewRedisLimiter(rdb.Client, cfg.RateLimitPerMin, time.Minute)
	}

	health := map[string]func(context.Context) bool{"db": db.Healthy}
	if cfg.QueueBackend == "redis" || cfg.RateLimitBackend == "redis" {
		health["redis"] = rdb.Healthy
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.Deps{
			Config:     cfg,
			Attendance: att,
			Courses:    courses,
			Homework:   work,
			Ledger:     ledgerClient,
			Limiter:    limiter,
			Logger:     log.Named("http"),
			Health:     health,
		}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// The in-memory queue only reaches consumers in this process.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	if cfg.QueueBackend == "memory" {
		w := ledger.NewWorker(ledgerClient, repo, log.Named("ledger"))
		g.Go(func() error { return w.Run(workerCtx, q) })
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if derr := att.Drain(shutdownCtx); derr != nil {
			log.Warn("ledger dispatches still in flight", zap.Error(derr))
		}
		stopWorker()
		return err
	})

	return g.Wait()
}
