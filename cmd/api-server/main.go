package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/caresync/scheduling/internal/api"
	"github.com/caresync/scheduling/internal/appointment"
	"github.com/caresync/scheduling/internal/audit"
	"github.com/caresync/scheduling/internal/calendar"
	"github.com/caresync/scheduling/internal/config"
	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/notify"
	"github.com/caresync/scheduling/internal/observability/metrics"
	redisclient "github.com/caresync/scheduling/internal/redis"
	"github.com/caresync/scheduling/internal/slot"
	"github.com/caresync/scheduling/pkg/logging"
)

const version = "1.0.0"

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

	// Redis is optional: without it booking falls back to the database CAS.
	var locker redisclient.Locker = redisclient.NoopLocker{}
	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Warn("redis unavailable, slot locks disabled", "error", err)
		rdb = nil
	} else {
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("error closing redis", "error", err)
			}
		}()
		locker = redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL)
		logger.Info("connected to Redis")
	}

	registry := prometheus.NewRegistry()
	m := metrics.NewSchedulingMetrics(registry)

	runner := db.NewRunner(pgPool)
	dir := directory.NewPgDirectory(pgPool)
	slotStore := slot.NewPgStore(pgPool)
	apptStore := appointment.NewPgStore(pgPool)
	auditor := audit.NewPgRecorder(pgPool, logger)
	inApp := notify.NewPgStore(pgPool)

	var sender notify.EmailSender = notify.NewStubEmailSender(logger)
	if cfg.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}
	mailer := notify.NewMailer(sender, logger)

	slotSvc, err := slot.NewService(runner, slotStore, dir, auditor, logger, m, slot.ServiceConfig{
		DefaultWindows:  cfg.SlotWindows,
		SlotDurationMin: cfg.SlotDurationMin,
	})
	if err != nil {
		logger.Error("slot service init error", "error", err)
		os.Exit(1)
	}

	apptSvc := appointment.NewService(runner, apptStore, slotStore, dir, locker, auditor, inApp, mailer, logger, m,
		appointment.ServiceConfig{
			ReminderWindow: cfg.ReminderWindow,
			NoShowGrace:    cfg.NoShowGrace,
		})

	var bridge *calendar.Bridge
	if cfg.CalendarBaseURL != "" {
		provider := calendar.NewHTTPProvider(cfg.CalendarBaseURL)
		bridge = calendar.NewBridge(provider, runner, slotStore, dir, auditor, logger, m)
		logger.Info("calendar bridge enabled", "base_url", cfg.CalendarBaseURL)
	}

	router := api.NewRouter(api.RouterConfig{
		Slots:         slotSvc,
		Appointments:  apptSvc,
		Calendar:      bridge,
		Notifications: inApp,
		PgPool:        pgPool,
		Redis:         rdb,
		Registry:      registry,
		Logger:        logger,
		Env:           cfg.Env,
		Version:       version,
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logger.Info("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
