package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caresync/scheduling/internal/appointment"
	"github.com/caresync/scheduling/internal/audit"
	"github.com/caresync/scheduling/internal/config"
	"github.com/caresync/scheduling/internal/db"
	"github.com/caresync/scheduling/internal/directory"
	"github.com/caresync/scheduling/internal/notify"
	"github.com/caresync/scheduling/internal/slot"
	"github.com/caresync/scheduling/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("sweep-worker starting up", "env", cfg.Env, "interval", cfg.WorkerInterval.String())

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

	var sender notify.EmailSender = notify.NewStubEmailSender(logger)
	if cfg.SendGridAPIKey != "" {
		sender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.EmailFrom,
			FromName:  cfg.EmailFromName,
		}, logger)
	}

	svc := appointment.NewService(
		db.NewRunner(pgPool),
		appointment.NewPgStore(pgPool),
		slot.NewPgStore(pgPool),
		directory.NewPgDirectory(pgPool),
		nil, // sweeps never compete for slot locks
		audit.NewPgRecorder(pgPool, logger),
		notify.NewPgStore(pgPool),
		notify.NewMailer(sender, logger),
		logger,
		nil,
		appointment.ServiceConfig{
			ReminderWindow: cfg.ReminderWindow,
			NoShowGrace:    cfg.NoShowGrace,
		})

	runOnce(rootCtx, svc, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *appointment.Service, logger *logging.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	start := time.Now()
	reminded, err := svc.ScheduleReminders(runCtx)
	if err != nil {
		logger.Error("reminder sweep error", "error", err)
	}
	noShows, err := svc.HandleNoShows(runCtx)
	if err != nil {
		logger.Error("no-show sweep error", "error", err)
	}
	logger.Info("sweep run complete", "reminded", reminded, "no_shows", noShows, "duration", time.Since(start).String())
}
