package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segyhp/loan-tracker/internal/app"
	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/logger"
	"github.com/segyhp/loan-tracker/internal/notify"
	"github.com/segyhp/loan-tracker/internal/scheduler"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger := logger.New(cfg.Logging)
	defer func() { _ = zapLogger.Sync() }()
	zapLogger.Info("starting loan reminder scheduler")

	ctx := context.Background()
	client, err := app.NewClient(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialize client", zap.Error(err))
	}
	defer client.Close()

	// Jobs and one-shot reminders share one runner
	location := cfg.GetSchedulerLocation()
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	notifier := notify.NewCronNotifier(c, notify.NewLogSink(zapLogger), zapLogger)
	jobs := scheduler.NewJobs(client.Coordinator, notifier, location, zapLogger)

	if err := jobs.Register(c, cfg.Scheduler.SyncSpec, cfg.Scheduler.OverdueSpec); err != nil {
		zapLogger.Fatal("failed to schedule jobs", zap.Error(err))
	}

	// Start the scheduler
	notifier.Start()
	zapLogger.Info("scheduler started",
		zap.String("sync_spec", cfg.Scheduler.SyncSpec),
		zap.String("overdue_spec", cfg.Scheduler.OverdueSpec),
		zap.String("timezone", location.String()),
	)

	if n, err := jobs.SyncReminders(ctx); err != nil {
		zapLogger.Error("initial reminder sync failed", zap.Error(err))
	} else {
		zapLogger.Info("initial reminder sync finished", zap.Int("count", n))
	}

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down scheduler")
	<-notifier.Stop().Done()
	zapLogger.Info("scheduler stopped")
}
