// Package app wires stores, repositories and scheduled jobs for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/segyhp/loan-tracker/internal/cache"
	"github.com/segyhp/loan-tracker/internal/config"
	"github.com/segyhp/loan-tracker/internal/mail"
	"github.com/segyhp/loan-tracker/internal/repository"
	"github.com/segyhp/loan-tracker/internal/scheduler"
	"github.com/segyhp/loan-tracker/internal/service"
	"github.com/segyhp/loan-tracker/internal/storage"
	"github.com/segyhp/loan-tracker/pkg/utils"
)

const indexTimeout = 10 * time.Second

type Stores struct {
	DB      *sqlx.DB
	Redis   *redis.Client
	Mongo   *mongo.Client
	MongoDB *mongo.Database
}

// OpenStores connects postgres, redis and mongo. On error everything already
// opened is closed again.
func OpenStores(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Stores, error) {
	db, err := storage.OpenPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	mc, mdb, err := storage.OpenMongo(ctx, cfg.Mongo)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize mongo: %w", err)
	}

	stores := &Stores{
		DB:      db,
		Redis:   storage.OpenRedis(cfg.Redis),
		Mongo:   mc,
		MongoDB: mdb,
	}

	indexCtx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	if err := repository.EnsureAuditIndexes(indexCtx, mdb); err != nil {
		log.WithError(err).Warn("Failed to ensure audit log indexes")
	}

	return stores, nil
}

func (s *Stores) Pingers() map[string]storage.Pinger {
	return storage.Pingers(s.DB, s.Redis, s.Mongo)
}

func (s *Stores) Close(ctx context.Context) {
	_ = s.Redis.Close()
	_ = s.Mongo.Disconnect(ctx)
	_ = s.DB.Close()
}

type Repositories struct {
	Users         repository.UserRepository
	Loans         repository.LoanRepository
	Notifications repository.NotificationRepository
	Audits        repository.AuditRepository
	Unread        repository.UnreadCountCache
}

func NewRepositories(s *Stores) *Repositories {
	return &Repositories{
		Users:         repository.NewUserRepository(s.DB),
		Loans:         repository.NewLoanRepository(s.DB),
		Notifications: repository.NewNotificationRepository(s.DB),
		Audits:        repository.NewAuditRepository(s.MongoDB),
		Unread:        cache.NewUnreadCounts(s.Redis, cache.DefaultUnreadTTL),
	}
}

// NewFormatter builds the money/date formatter from the locale settings
func NewFormatter(cfg *config.Config) (*utils.Formatter, error) {
	return utils.NewFormatter(cfg.Locale.Locale, cfg.Locale.Currency, cfg.Location())
}

type Jobs struct {
	Generator  *service.NotificationGenerator
	Dispatcher *service.EmailDispatcher
}

// NewJobs builds the generator and the email dispatcher. Without an SMTP
// host the dispatcher runs with no mailer and leaves emails PENDING.
func NewJobs(cfg *config.Config, repos *Repositories, formatter *utils.Formatter, log logrus.FieldLogger) *Jobs {
	var mailer mail.Mailer
	if cfg.MailEnabled() {
		mailer = mail.NewSMTPMailer(cfg.Mail)
	}

	return &Jobs{
		Generator: service.NewNotificationGenerator(
			repos.Loans, repos.Notifications, repos.Unread, formatter, cfg.Location(), log,
		),
		Dispatcher: service.NewEmailDispatcher(repos.Notifications, repos.Users, mailer, cfg.Mail.BatchSize, log),
	}
}

// NewScheduler returns a scheduler handle with the notification jobs
// registered. The caller owns Start and Stop.
func NewScheduler(cfg *config.Config, jobs *Jobs, log logrus.FieldLogger) (*scheduler.Scheduler, error) {
	s := scheduler.New(cfg.Location(), log)

	generate := func(ctx context.Context) error {
		_, err := jobs.Generator.Run(ctx)
		return err
	}
	dispatch := func(ctx context.Context) error {
		_, err := jobs.Dispatcher.Dispatch(ctx)
		return err
	}

	err := scheduler.RegisterNotificationJobs(s, scheduler.JobsConfig{
		NotificationSpec: cfg.Scheduler.Cron,
		EmailSpec:        cfg.Scheduler.EmailCron,
		Production:       cfg.IsProduction(),
		StartupDelay:     cfg.Scheduler.StartupDelay,
	}, generate, dispatch)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// NewInProcessScheduler is NewScheduler for the API server. It returns a nil
// handle when SCHEDULER_IN_PROCESS is off and the jobs run elsewhere.
func NewInProcessScheduler(cfg *config.Config, jobs *Jobs, log logrus.FieldLogger) (*scheduler.Scheduler, error) {
	if !cfg.Scheduler.InProcess {
		return nil, nil
	}
	return NewScheduler(cfg, jobs, log)
}
