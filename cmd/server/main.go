package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/app"
	"github.com/segyhp/loan-tracker/internal/auth"
	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/handler"
	"github.com/segyhp/loan-tracker/internal/logger"
	"github.com/segyhp/loan-tracker/internal/service"
)

const shutdownTimeout = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	log := logger.New(cfg.Logging)
	ctx := context.Background()

	stores, err := app.OpenStores(ctx, cfg, log)
	if err != nil {
		log.Fatalf("Failed to open stores: %v", err)
	}
	defer stores.Close(context.Background())

	repos := app.NewRepositories(stores)

	formatter, err := app.NewFormatter(cfg)
	if err != nil {
		log.Fatalf("Failed to build formatter: %v", err)
	}

	enforcer, err := auth.NewEnforcer()
	if err != nil {
		log.Fatalf("Failed to build RBAC enforcer: %v", err)
	}
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Initialize services
	jobs := app.NewJobs(cfg, repos, formatter, log)
	authService := service.NewAuthService(repos.Users, tokens, log)
	loanService := service.NewLoanService(repos.Loans, repos.Unread, formatter, cfg.Location(), log)
	notificationService := service.NewNotificationService(repos.Notifications, repos.Unread, jobs.Generator, log)
	adminService := service.NewAdminService(
		repos.Users, loanService, notificationService, tokens, cfg.Auth.ImpersonationTTL,
		service.NewAuditRecorder(repos.Audits, log), log,
	)

	router := handler.NewRouter(handler.Handlers{
		Auth:          handler.NewAuthHandler(authService, log),
		Loans:         handler.NewLoanHandler(loanService, log),
		Notifications: handler.NewNotificationHandler(notificationService, log),
		Admin:         handler.NewAdminHandler(adminService, log),
		Health:        handler.NewHealthHandler(stores.Pingers(), cfg.Health.Timeout),
	}, authService, enforcer, handler.RouterOptions{TrustProxy: cfg.Server.TrustProxy}, log)

	sched, err := app.NewInProcessScheduler(cfg, jobs, log)
	if err != nil {
		log.Fatalf("Failed to schedule jobs: %v", err)
	}
	if sched != nil {
		sched.Start()
	} else {
		log.Info("In-process scheduler disabled, jobs run in the scheduler binary")
	}

	server := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in a goroutine
	go func() {
		log.WithField("addr", server.Addr).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	if sched != nil {
		select {
		case <-sched.Stop().Done():
		case <-shutdownCtx.Done():
			log.Warn("Timed out waiting for running jobs")
		}
	}

	log.Info("Server exited")
}
