package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/careops/clinic-scheduling/internal/api"
	"github.com/careops/clinic-scheduling/internal/appointment"
	"github.com/careops/clinic-scheduling/internal/config"
	"github.com/careops/clinic-scheduling/internal/db"
	"github.com/careops/clinic-scheduling/internal/metrics"
	"github.com/careops/clinic-scheduling/internal/notify"
	redisclient "github.com/careops/clinic-scheduling/internal/redis"
	"github.com/careops/clinic-scheduling/pkg/logging"
)

const version = "0.3.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort)

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
		logger.Warn("SENDGRID_API_KEY not set, notifications will be logged only")
	}

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	notifier := notify.NewService(email, logger)
	m := metrics.NewSchedulingMetrics(nil)
	svc := appointment.NewService(repo, locker, notifier, cfg.Scheduling, logger, m)

	router := api.NewRouter(api.RouterConfig{
		Service: svc,
		PgPool:  pgPool,
		Redis:   rdb,
		Logger:  logger,
		Env:     cfg.Env,
		Version: version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	logger.Info("api-server stopped")
}
