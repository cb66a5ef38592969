package scheduler

import "time"

const (
	NotificationJob = "notification-generator"
	EmailJob        = "email-dispatcher"
)

type JobsConfig struct {
	NotificationSpec string
	EmailSpec        string
	Production       bool
	StartupDelay     time.Duration
}

// RegisterNotificationJobs schedules the daily notification run and, when
// dispatch is set, the email dispatcher. Dispatcher ticks never overlap.
// Outside production the generator also runs once StartupDelay after Start.
func RegisterNotificationJobs(s *Scheduler, cfg JobsConfig, generate, dispatch JobFunc) error {
	if err := s.Register(NotificationJob, cfg.NotificationSpec, generate); err != nil {
		return err
	}

	if dispatch != nil {
		if err := s.RegisterExclusive(EmailJob, cfg.EmailSpec, dispatch); err != nil {
			return err
		}
	}

	if !cfg.Production {
		s.RunOnceAfter(cfg.StartupDelay, NotificationJob+"-startup", generate)
	}
	return nil
}
