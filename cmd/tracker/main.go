package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/segyhp/loan-tracker/internal/app"
	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/installment"
	"github.com/segyhp/loan-tracker/internal/logger"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger := logger.New(cfg.Logging)
	defer func() { _ = zapLogger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := app.NewClient(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialize client", zap.Error(err))
	}
	defer client.Close()

	t := &tracker{
		loans:   client.Coordinator,
		planner: installment.NewPlanner(client.Coordinator, zapLogger),
		out:     os.Stdout,
	}
	if err := t.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		client.Close()
		os.Exit(1)
	}
}
