package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/careops/clinic-scheduling/internal/appointment"
	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/db"
	"github.com/careops/clinic-scheduling/internal/metrics"
	"github.com/careops/clinic-scheduling/internal/notify"
	redisclient "github.com/careops/clinic-scheduling/internal/redis"
	"github.com/careops/clinic-scheduling/pkg/logging"
)

// The sweep worker drives the three periodic sweeps on independent tickers.
// Each sweep runs once at startup so a restarted worker catches up
// immediately instead of waiting a full interval.
func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("sweep-worker starting up",
		"env", cfg.Env,
		"reminder_interval", cfg.ReminderInterval.String(),
		"no_show_interval", cfg.NoShowInterval.String(),
		"cleanup_interval", cfg.CleanupInterval.String(),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(redisclient.Config{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
		// Sweeps run one at a time, a couple of connections suffice.
		PoolSize: 2,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	emailSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:   cfg.SendGridAPIKey,
		From:     cfg.EmailFrom,
		FromName: cfg.EmailFromName,
	}, logger)

	var email notify.EmailSender
	if emailSender != nil {
		email = emailSender
	} else {
		logger.Warn("SENDGRID_API_KEY not set, reminders will be logged only")
	}

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	notifier := notify.NewService(email, logger)
	m := metrics.NewSchedulingMetrics(nil)
	svc := appointment.NewService(repo, locker, notifier, cfg.Scheduling, logger, m)

	// The sweep counters live in this process, so it needs its own scrape
	// endpoint; the API server's /metrics only sees booking traffic.
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:              ":" + cfg.MetricsPort,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", "addr", metricsSrv.Addr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics endpoint shutdown error", "error", err)
		}
	}()

	runSweep(rootCtx, logger, "reminder", func(ctx context.Context) error {
		_, err := svc.RunReminderSweep(ctx)
		return err
	})
	runSweep(rootCtx, logger, "no_show", func(ctx context.Context) error {
		_, err := svc.RunNoShowSweep(ctx)
		return err
	})
	runSweep(rootCtx, logger, "cleanup", func(ctx context.Context) error {
		_, err := svc.RunCleanupSweep(ctx)
		return err
	})

	reminderTicker := time.NewTicker(cfg.ReminderInterval)
	defer reminderTicker.Stop()
	noShowTicker := time.NewTicker(cfg.NoShowInterval)
	defer noShowTicker.Stop()
	cleanupTicker := time.NewTicker(cfg.CleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep-worker")
			return
		case <-reminderTicker.C:
			runSweep(rootCtx, logger, "reminder", func(ctx context.Context) error {
				_, err := svc.RunReminderSweep(ctx)
				return err
			})
		case <-noShowTicker.C:
			runSweep(rootCtx, logger, "no_show", func(ctx context.Context) error {
				_, err := svc.RunNoShowSweep(ctx)
				return err
			})
		case <-cleanupTicker.C:
			runSweep(rootCtx, logger, "cleanup", func(ctx context.Context) error {
				_, err := svc.RunCleanupSweep(ctx)
				return err
			})
		}
	}
}

func runSweep(ctx context.Context, logger *logging.Logger, name string, fn func(ctx context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	start := time.Now()
	if err := fn(runCtx); err != nil {
		logger.Error("sweep run error", "sweep", name, "error", err)
		return
	}
	logger.Info("sweep run complete", "sweep", name, "duration", time.Since(start).String())
}
