package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-tracker/internal/domain"
	"github.com/segyhp/loan-tracker/internal/mail"
	"github.com/segyhp/loan-tracker/internal/repository"
)

// EmailDispatcher delivers PENDING email notifications and records the outcome
type EmailDispatcher struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	mailer        mail.Mailer
	batchSize     int
	log           logrus.FieldLogger
	now           func() time.Time
}

// NewEmailDispatcher wires a dispatcher; a nil mailer makes Dispatch a no-op
func NewEmailDispatcher(
	notifications repository.NotificationRepository,
	users repository.UserRepository,
	mailer mail.Mailer,
	batchSize int,
	log logrus.FieldLogger,
) *EmailDispatcher {
	if batchSize <= 0 {
		batchSize = 50
	}
	return &EmailDispatcher{
		notifications: notifications,
		users:         users,
		mailer:        mailer,
		batchSize:     batchSize,
		log:           log.WithField("component", "email_dispatcher"),
		now:           time.Now,
	}
}

// Dispatch claims one batch of PENDING emails and sends it. A claimed email
// is sent at most once: a failed message is marked FAILED and the batch
// continues.
func (d *EmailDispatcher) Dispatch(ctx context.Context) (*domain.DispatchReport, error) {
	report := &domain.DispatchReport{}
	if d.mailer == nil {
		d.log.Debug("No mailer configured, skipping email dispatch")
		return report, nil
	}

	pending, err := d.notifications.ClaimPendingEmails(ctx, d.batchSize)
	if err != nil {
		return nil, fmt.Errorf("claim pending emails: %w", err)
	}

	recipients := make(map[uuid.UUID]*domain.User)
	for _, n := range pending {
		report.Attempted++
		log := d.log.WithFields(logrus.Fields{"notification_id": n.ID, "user_id": n.UserID})

		user, ok := recipients[n.UserID]
		if !ok {
			user, err = d.users.GetByID(ctx, n.UserID)
			if err != nil {
				log.WithError(err).Error("Failed to load email recipient")
				d.markFailed(ctx, log, n, err)
				report.Failed++
				continue
			}
			recipients[n.UserID] = user
		}

		msg := mail.Message{
			To:      user.Email,
			Subject: n.Title,
			Body:    fmt.Sprintf("Hi %s,\n\n%s\n\nLoan Tracker", user.Name, n.Message),
		}
		if err := d.mailer.Send(ctx, msg); err != nil {
			log.WithError(err).Warn("Email delivery failed")
			d.markFailed(ctx, log, n, err)
			report.Failed++
			continue
		}

		sentAt := d.now()
		if err := d.notifications.UpdateEmailStatus(ctx, n.ID, domain.EmailStatusSent, nil, &sentAt); err != nil {
			log.WithError(err).Error("Failed to record sent email")
		}
		report.Sent++
	}

	if report.Attempted > 0 {
		d.log.WithFields(logrus.Fields{
			"attempted": report.Attempted,
			"sent":      report.Sent,
			"failed":    report.Failed,
		}).Info("Email dispatch finished")
	}
	return report, nil
}

func (d *EmailDispatcher) markFailed(ctx context.Context, log logrus.FieldLogger, n *domain.Notification, cause error) {
	msg := cause.Error()
	if err := d.notifications.UpdateEmailStatus(ctx, n.ID, domain.EmailStatusFailed, &msg, nil); err != nil {
		log.WithError(err).Error("Failed to record email failure")
	}
}
