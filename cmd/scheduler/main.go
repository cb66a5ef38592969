package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/app"
	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/logger"
)

const stopTimeout = 30 * time.Second

// The scheduler binary runs the notification jobs without the HTTP API.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging)
	log.Info("Starting notification scheduler...")

	stores, err := app.OpenStores(context.Background(), cfg, log)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer stores.Close(context.Background())

	formatter, err := app.NewFormatter(cfg)
	if err != nil {
		log.Fatalf("Failed to build formatter: %v", err)
	}

	jobs := app.NewJobs(cfg, app.NewRepositories(stores), formatter, log)

	sched, err := app.NewScheduler(cfg, jobs, log)
	if err != nil {
		log.Fatalf("Error scheduling jobs: %v", err)
	}
	sched.Start()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down scheduler...")
	select {
	case <-sched.Stop().Done():
	case <-time.After(stopTimeout):
		log.Warn("Timed out waiting for running jobs")
	}
	log.Info("Scheduler stopped")
}
